// Package store defines the interfaces for persisting signup records.
// By using an interface, we decouple the capture pipeline from a specific
// backend, allowing the primary remote store and the local fallback store
// to be swapped per request.
package store

import (
	"context"

	"github.com/torqlist/leadgate/internal/signup"
)

// Backend defines the common interface for a signup record store.
type Backend interface {
	// Insert persists a record exactly once. Failures are classified via
	// *Error; raw backend error shapes never cross this boundary.
	Insert(ctx context.Context, rec signup.Record) (signup.Stored, error)

	// FindByEmail returns the stored record for a normalized email, or nil
	// when no record exists.
	FindByEmail(ctx context.Context, email string) (*signup.Stored, error)
}

// Availability is the result of a capability probe against the primary
// store.
type Availability int

const (
	// Available means the primary store answered the probe.
	Available Availability = iota
	// Unprovisioned means the store is reachable but the expected relation
	// does not exist.
	Unprovisioned
	// Unreachable means the store could not be contacted within the probe
	// timeout.
	Unreachable
)

// String returns the availability label used in logs and readiness output.
func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unprovisioned:
		return "unprovisioned"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Prober checks, per request, whether the primary store is reachable and
// provisioned.
type Prober interface {
	Probe(ctx context.Context) Availability
}
