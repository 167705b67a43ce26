package consent

import (
	"context"
	"time"
)

// Store persists consent records. Implementations return sentinel errors
// (pkg/platform/sentinel) for lookup misses; the service translates them.
type Store interface {
	Save(ctx context.Context, record *Record) error
	// FindByToken returns the record regardless of status. Data-subject
	// access rights survive expiry and revocation.
	FindByToken(ctx context.Context, token string) (*Record, error)
	// TransitionStatus conditionally moves a record from one status to
	// another. It reports whether this call won the transition; concurrent
	// callers observe false and re-read the already-updated status. This is
	// the atomicity primitive behind lazy expiry.
	TransitionStatus(ctx context.Context, token string, from, to Status, at time.Time) (bool, error)
	// MarkRevoked stamps revoked status unconditionally. Revocation is
	// idempotent: re-revoking an already terminal record is a no-op success.
	MarkRevoked(ctx context.Context, token string, revokedAt time.Time) error
}
