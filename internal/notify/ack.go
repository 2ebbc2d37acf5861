package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/signup"
)

// LogAckSender records the acknowledgment intent in the service log. It
// stands in for the external email collaborator, whose delivery contract
// is owned outside this service.
type LogAckSender struct {
	From   string
	Logger *zap.Logger
}

// SendAck logs the acknowledgment that would be delivered to the lead.
func (s *LogAckSender) SendAck(_ context.Context, rec signup.Stored) error {
	s.Logger.Info("signup acknowledgment queued",
		zap.String("from", s.From),
		zap.String("to", rec.Email),
		zap.String("focus", rec.Focus),
	)
	return nil
}
