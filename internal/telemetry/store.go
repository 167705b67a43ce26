package telemetry

import (
	"context"
	"time"
)

// Store persists telemetry records.
//
//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks Store
type Store interface {
	// Insert persists a record only while the referenced consent is active
	// and unexpired, atomically with respect to a concurrent revocation.
	// Returns sentinel.ErrInvalidState when the consent check fails; no row
	// is created in that case.
	Insert(ctx context.Context, record *Record) error
	// ListByPseudoID returns all non-soft-deleted records for a subject,
	// most recent first.
	ListByPseudoID(ctx context.Context, pseudoID string) ([]*Record, error)
	// SoftDeleteByToken stamps deleted_at on every record submitted under
	// the token. Physical erasure belongs to the external retention sweep.
	SoftDeleteByToken(ctx context.Context, token string, deletedAt time.Time) error
}
