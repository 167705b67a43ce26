package audit

import "context"

// Store persists audit events. Append-only: no implementation exposes update
// or delete. ListRecent exists for the operator surface, never for request
// control flow.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
