package syncstatus

import (
	"context"
	"time"
)

// Repository tracks consecutive failures per identifier and suppresses
// further attempts once a lockout is armed. The identifier is opaque: the
// engine uses record ids, but the same store fits any keyed retry gate
// (the pattern is a generalized login-attempt rate limiter).
type Repository interface {
	// Allowed reports whether the identifier may attempt again at the
	// given instant. Unknown identifiers are always allowed.
	Allowed(ctx context.Context, identifier string, now time.Time) (bool, error)

	// RecordFailure increments the failure count and, past the policy
	// threshold, arms an exponentially growing lockout deadline.
	RecordFailure(ctx context.Context, identifier string, now time.Time) error

	// Reset clears all bookkeeping for the identifier. Called on success.
	Reset(ctx context.Context, identifier string) error
}

// Policy controls when and for how long an identifier is locked out.
type Policy struct {
	// Threshold is the number of consecutive failures after which a
	// lockout is armed.
	Threshold int

	// BaseLockout is the first lockout window; it doubles with every
	// further failure.
	BaseLockout time.Duration

	// MaxLockout caps the exponential growth.
	MaxLockout time.Duration
}

// DefaultPolicy is three strikes, then 30s doubling up to 15 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:   3,
		BaseLockout: 30 * time.Second,
		MaxLockout:  15 * time.Minute,
	}
}
