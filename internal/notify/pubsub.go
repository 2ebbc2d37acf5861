package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/signup"
)

// PubSubNotifier publishes signup records to a Google Cloud Pub/Sub topic
// for internal consumers (admin dashboard, CRM sync).
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubNotifier creates a Pub/Sub client and verifies the topic
// exists. It authenticates using Application Default Credentials.
func NewPubSubNotifier(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSubNotifier{client: client, topic: topic, logger: logger}, nil
}

// NotifyAdmin marshals the record to JSON and publishes it. The publish
// result is awaited so the dispatcher can log a definite outcome, but the
// client still batches and retries in the background.
func (p *PubSubNotifier) NotifyAdmin(ctx context.Context, rec signup.Stored) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal signup record: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"source": rec.Source, "focus": rec.Focus},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish signup notification: %w", err)
	}
	return nil
}

// Close stops the topic publisher and closes the client connection.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
