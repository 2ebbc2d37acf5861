// Package pipeline implements the resilient signup capture flow:
// validate, probe the primary store, persist (primary or fallback),
// notify, and normalize the outcome into the caller-facing contract.
//
// Signup capture prioritizes never losing a lead over surfacing
// infrastructure problems to an end user. Only a hard upfront connection
// failure, where nothing could be attempted, fails loudly.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/metrics"
	"github.com/torqlist/leadgate/internal/notify"
	"github.com/torqlist/leadgate/internal/signup"
	"github.com/torqlist/leadgate/internal/store"
)

// Clock abstracts time.Now so tests can pin CreatedAt stamps.
type Clock interface {
	Now() time.Time
}

// Outcome identifies which storage path a capture took.
type Outcome string

const (
	// OutcomePrimary means the record landed in the primary store.
	OutcomePrimary Outcome = "primary"
	// OutcomeFallback means the record landed in the local fallback store.
	OutcomeFallback Outcome = "fallback"
	// OutcomeDuplicate means the email was already captured.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeDegraded means the primary store failed after a write was
	// attempted, but the intent was still captured.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeUnreachable means no write could be attempted at all.
	OutcomeUnreachable Outcome = "unreachable"
	// OutcomeInvalid means the payload failed validation.
	OutcomeInvalid Outcome = "invalid"
)

// Result is the normalized capture response. It hides fallback decisions
// behind a stable success contract.
type Result struct {
	Success       bool
	Message       string
	Record        *signup.Stored
	AlreadyExists bool
	Warning       string
	Note          string
	Outcome       Outcome
	Fields        []string
}

// Pipeline orchestrates one capture request end to end.
type Pipeline struct {
	primary    store.Backend
	prober     store.Prober
	fallback   store.Backend
	dispatcher *notify.Dispatcher
	clock      Clock
	logger     *zap.Logger
}

// New wires the capture pipeline. primary and prober may be nil, which
// puts the pipeline into fallback-only mode.
func New(
	primary store.Backend,
	prober store.Prober,
	fallback store.Backend,
	dispatcher *notify.Dispatcher,
	clock Clock,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		primary:    primary,
		prober:     prober,
		fallback:   fallback,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
	}
}

// Capture runs the full validate/probe/persist/notify flow and returns
// the normalized result. It never returns an error: every failure class
// is folded into the Result per the response contract.
func (p *Pipeline) Capture(ctx context.Context, payload signup.Payload) Result {
	rec, err := signup.Validate(payload, p.clock.Now())
	if err != nil {
		var verr *signup.ValidationError
		errors.As(err, &verr)
		metrics.ObserveSignup(string(OutcomeInvalid))
		return Result{
			Success: false,
			Message: err.Error(),
			Outcome: OutcomeInvalid,
			Fields:  verr.Fields,
		}
	}

	res := p.persist(ctx, rec)
	metrics.ObserveSignup(string(res.Outcome))

	// Notification is skipped for pure duplicates and for requests that
	// never reached a store. The signup path waits for dispatch so the
	// response reflects a completed attempt; failures are swallowed.
	if res.Record != nil && res.Outcome != OutcomeDuplicate && res.Outcome != OutcomeUnreachable {
		p.dispatcher.Dispatch(ctx, *res.Record)
	}
	return res
}

func (p *Pipeline) persist(ctx context.Context, rec signup.Record) Result {
	if p.primary == nil {
		return p.fallbackWrite(ctx, rec, "")
	}

	switch p.prober.Probe(ctx) {
	case store.Unprovisioned:
		return p.fallbackWrite(ctx, rec, "signup storage is not fully provisioned")
	case store.Unreachable:
		p.logger.Error("primary store unreachable before write", zap.String("email", rec.Email))
		return Result{
			Success: false,
			Message: "signup storage is unavailable, please try again",
			Outcome: OutcomeUnreachable,
		}
	}

	stored, err := p.primary.Insert(ctx, rec)
	if err == nil {
		return Result{
			Success: true,
			Message: "You're on the list!",
			Record:  &stored,
			Outcome: OutcomePrimary,
		}
	}

	switch store.KindOf(err) {
	case store.KindDuplicateKey:
		existing, findErr := p.primary.FindByEmail(ctx, rec.Email)
		if findErr != nil {
			p.logger.Warn("duplicate lookup failed", zap.String("email", rec.Email), zap.Error(findErr))
		}
		return Result{
			Success:       true,
			Message:       "You're already on the list!",
			Record:        existing,
			AlreadyExists: true,
			Outcome:       OutcomeDuplicate,
		}
	case store.KindSchemaMissing:
		return p.fallbackWrite(ctx, rec, "signup storage is not fully provisioned")
	case store.KindConnectionFailure:
		p.logger.Error("primary store connection failed", zap.String("email", rec.Email), zap.Error(err))
		return Result{
			Success: false,
			Message: "signup storage is unavailable, please try again",
			Outcome: OutcomeUnreachable,
		}
	default:
		// The write was attempted and the intent captured; the original
		// error stays server-side, the caller only sees a warning flag.
		p.logger.Error("primary store write degraded", zap.String("email", rec.Email), zap.Error(err))
		stored := signup.Stored{Record: rec}
		return Result{
			Success: true,
			Message: "You're on the list!",
			Record:  &stored,
			Warning: "signup recorded with degraded storage",
			Outcome: OutcomeDegraded,
		}
	}
}

// fallbackWrite appends to the local store. This is the last-resort path:
// a persistence failure here is logged and absorbed, because surfacing it
// would regress the success contract.
func (p *Pipeline) fallbackWrite(ctx context.Context, rec signup.Record, note string) Result {
	stored, err := p.fallback.Insert(ctx, rec)
	if err != nil {
		p.logger.Error("fallback store write failed", zap.String("email", rec.Email), zap.Error(err))
		stored = signup.Stored{Record: rec}
	} else {
		metrics.ObserveFallbackWrite()
	}
	return Result{
		Success: true,
		Message: "You're on the list!",
		Record:  &stored,
		Note:    note,
		Outcome: OutcomeFallback,
	}
}

// Lookup resolves an email against whichever backend is currently active.
func (p *Pipeline) Lookup(ctx context.Context, email string) (*signup.Stored, error) {
	email = signup.NormalizeEmail(email)
	if p.primary != nil && p.prober.Probe(ctx) == store.Available {
		return p.primary.FindByEmail(ctx, email)
	}
	return p.fallback.FindByEmail(ctx, email)
}
