// Package consent owns the consent lifecycle: registration, validation,
// lazy expiry, and revocation. It is the single source of truth for whether a
// subject is currently authorized, and the only component allowed to mutate
// consent status.
package consent

import (
	"time"

	"trailguard/internal/crypto"
)

// Status of a consent record. Transitions are monotonic: active can become
// expired or revoked; expired and revoked are terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Demographics is the sensitive identity payload. It exists in clear only in
// process memory, between request decode and encryption (or between
// decryption and response encode).
type Demographics struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Education string `json:"education"`
}

// Record is one participant's explicit authorization. Token is the opaque
// bearer handle; PseudoID is the derived subject identity. The two are
// deliberately unrelated: a token leak must not reveal who the subject is.
type Record struct {
	Token        string
	PseudoID     string
	ConsentTypes []string
	// ConsentText is the exact text the subject accepted. Immutable once
	// stored: it is legal evidence.
	ConsentText  string
	IPAddress    string
	UserAgent    string
	ExpiresAt    time.Time
	Demographics crypto.Blob
	Status       Status
	IssuedAt     time.Time
	RevokedAt    *time.Time
}

// PastExpiry reports whether the validity window has closed, independent of
// whether the stored status has caught up yet.
func (r *Record) PastExpiry(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
