package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/metrics"
	"github.com/torqlist/leadgate/internal/signup"
)

// Dispatcher fires the admin and acknowledgment notifications for a
// persisted signup. The two are attempted independently and may fail
// independently; no ordering is guaranteed between them.
type Dispatcher struct {
	admin   AdminNotifier
	ack     AckSender
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher wires the two notification channels. A nil notifier is
// replaced with a no-op.
func NewDispatcher(admin AdminNotifier, ack AckSender, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if admin == nil {
		admin = NoOpNotifier{}
	}
	if ack == nil {
		ack = NoOpNotifier{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{admin: admin, ack: ack, timeout: timeout, logger: logger}
}

// Dispatch attempts both notifications concurrently and waits for them to
// finish, swallowing failures. The signup path calls this before
// responding so the response reflects a completed (if degraded) dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, rec signup.Stored) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := d.admin.NotifyAdmin(ctx, rec); err != nil {
			metrics.ObserveNotifyFailure("admin")
			d.logger.Warn("admin notification failed", zap.String("email", rec.Email), zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := d.ack.SendAck(ctx, rec); err != nil {
			metrics.ObserveNotifyFailure("ack")
			d.logger.Warn("signup acknowledgment failed", zap.String("email", rec.Email), zap.Error(err))
		}
	}()
	wg.Wait()
}

// DispatchDetached fires Dispatch on its own goroutine for callers that
// must not wait, such as streaming responses.
func (d *Dispatcher) DispatchDetached(ctx context.Context, rec signup.Stored) {
	go d.Dispatch(ctx, rec)
}
