// Package notify dispatches best-effort signup notifications.
// Notification failures are logged and counted but never propagate to the
// request path: this is an explicit interface guarantee, not an accident.
package notify

import (
	"context"

	"github.com/torqlist/leadgate/internal/signup"
)

// AdminNotifier delivers the internal notification about a new signup.
type AdminNotifier interface {
	// NotifyAdmin publishes the record on the internal side channel.
	NotifyAdmin(ctx context.Context, rec signup.Stored) error
}

// AckSender delivers the caller-facing acknowledgment. The actual email
// collaborator lives outside this service; implementations adapt to it.
type AckSender interface {
	// SendAck acknowledges the signup to the captured address.
	SendAck(ctx context.Context, rec signup.Stored) error
}

// NoOpNotifier satisfies both notification interfaces without doing
// anything. Used when no notification channel is configured.
type NoOpNotifier struct{}

// NotifyAdmin for NoOpNotifier does nothing and returns nil.
func (NoOpNotifier) NotifyAdmin(_ context.Context, _ signup.Stored) error { return nil }

// SendAck for NoOpNotifier does nothing and returns nil.
func (NoOpNotifier) SendAck(_ context.Context, _ signup.Stored) error { return nil }
