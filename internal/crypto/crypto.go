// Package crypto implements the two data-protection transforms this service
// relies on: one-way pseudonymization of identifying values and reversible
// authenticated encryption of personal payloads.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	dErrors "trailguard/pkg/domain-errors"
)

// ivSize matches the stored demographics_iv / encryption_iv column contract:
// 16 random bytes per encryption, hex-encoded.
const ivSize = 16

// pseudoIDLength is the length of the hex pseudonymous identifier. Half of a
// SHA-256 digest keeps collisions negligible while staying compact in every
// table that carries the ID.
const pseudoIDLength = 32

// Blob is one encrypted value as persisted: hex ciphertext plus the
// parameters required to decrypt and verify it.
type Blob struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Service performs pseudonymization and AES-256-GCM encryption with
// process-wide secrets fixed at construction. Safe for concurrent use; it
// holds no mutable state.
type Service struct {
	aead cipher.AEAD
	salt string
}

// New builds a Service from the 32-byte encryption key and the
// pseudonymization salt. Missing material is a configuration fault, not a
// per-request error.
func New(key []byte, salt string) (*Service, error) {
	if salt == "" {
		return nil, fmt.Errorf("crypto: pseudonymization salt is not configured")
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: init GCM: %w", err)
	}
	return &Service{aead: aead, salt: salt}, nil
}

// Pseudonymize derives a stable opaque identifier from an identifying value.
// Same input always yields the same ID; the salt keeps the transform
// non-reversible without the process secret.
func (s *Service) Pseudonymize(identity string) string {
	digest := sha256.Sum256([]byte(identity + s.salt))
	return hex.EncodeToString(digest[:])[:pseudoIDLength]
}

// Encrypt serializes v as JSON and encrypts it under a fresh random IV.
// The GCM tag is split off the sealed output so ciphertext, IV, and tag land
// in their own columns.
func (s *Service) Encrypt(v any) (Blob, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Blob{}, fmt.Errorf("crypto: serialize payload: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return Blob{}, fmt.Errorf("crypto: generate iv: %w", err)
	}
	sealed := s.aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - s.aead.Overhead()
	return Blob{
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt reverses Encrypt into out. A failed authentication tag surfaces as
// CodeIntegrity so callers can treat it as a security event; a malformed blob
// or JSON decode failure is an ordinary internal error.
func (s *Service) Decrypt(b Blob, out any) error {
	ciphertext, err := hex.DecodeString(b.Ciphertext)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "malformed ciphertext encoding")
	}
	iv, err := hex.DecodeString(b.IV)
	if err != nil || len(iv) != ivSize {
		return dErrors.New(dErrors.CodeInternal, "malformed iv")
	}
	tag, err := hex.DecodeString(b.AuthTag)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "malformed auth tag encoding")
	}
	plaintext, err := s.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrity, "authentication tag verification failed")
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode decrypted payload")
	}
	return nil
}
