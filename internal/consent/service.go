package consent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"trailguard/internal/audit"
	"trailguard/internal/crypto"
	"trailguard/internal/platform/metrics"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/platform/sentinel"
	"trailguard/pkg/requestcontext"
)

// tokenBytes gives 256 bits of entropy per consent token, hex-encoded for
// transport. The token is never derived from personal data.
const tokenBytes = 32

// Deleter is the cascade target for revocation. Implemented by the telemetry
// service; declared here so the dependency points from consent outward
// without importing the telemetry package.
type Deleter interface {
	SoftDeleteByToken(ctx context.Context, token string) error
}

// RegisterInput is a validated registration request. Field syntax checking
// happens at the transport boundary; by the time input reaches the ledger it
// is shape-correct.
type RegisterInput struct {
	Name         string
	Email        string
	Age          int
	Gender       string
	Education    string
	ConsentTypes []string
	ConsentText  string
	IPAddress    string
}

// Service is the consent ledger. It exclusively owns consent status
// transitions and emits an audit event for every decision it takes.
type Service struct {
	store   Store
	crypto  *crypto.Service
	auditor *audit.Publisher
	deleter Deleter
	metrics *metrics.Metrics
	ttl     time.Duration
}

// NewService wires the ledger. ttl is the consent validity window (two years
// in production).
func NewService(store Store, cryptoSvc *crypto.Service, auditor *audit.Publisher, deleter Deleter, m *metrics.Metrics, ttl time.Duration) *Service {
	return &Service{
		store:   store,
		crypto:  cryptoSvc,
		auditor: auditor,
		deleter: deleter,
		metrics: m,
		ttl:     ttl,
	}
}

// Register creates a consent record and returns it with the raw token. This
// is the only moment the token ever travels back to a caller.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Record, error) {
	token, err := newToken()
	if err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRegistrationErr, "", 500, err.Error()))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate consent token")
	}

	pseudoID := s.crypto.Pseudonymize(input.Email)
	blob, err := s.crypto.Encrypt(Demographics{
		Name:      input.Name,
		Email:     input.Email,
		Age:       input.Age,
		Gender:    input.Gender,
		Education: input.Education,
	})
	if err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRegistrationErr, pseudoID, 500, err.Error()))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encrypt demographics")
	}

	now := requestcontext.Now(ctx)
	ip := input.IPAddress
	if ip == "" {
		ip = requestcontext.ClientIP(ctx)
	}
	record := &Record{
		Token:        token,
		PseudoID:     pseudoID,
		ConsentTypes: input.ConsentTypes,
		ConsentText:  input.ConsentText,
		IPAddress:    ip,
		UserAgent:    requestcontext.UserAgent(ctx),
		ExpiresAt:    now.Add(s.ttl),
		Demographics: blob,
		Status:       StatusActive,
		IssuedAt:     now,
	}
	if err := s.store.Save(ctx, record); err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRegistrationErr, pseudoID, 500, err.Error()))
		return nil, dErrors.Wrap(err, dErrors.CodeForBackend(err), "persist consent")
	}

	s.auditor.Emit(ctx, audit.Success(ctx, audit.ActionConsentRegistered, pseudoID))
	if s.metrics != nil {
		s.metrics.ConsentsRegistered.Inc()
	}
	return record, nil
}

// Validate answers "is this subject currently authorized". It detects expiry
// lazily: the first validation past the deadline transitions the record to
// expired, atomically with respect to concurrent validations of the same
// token.
func (s *Service) Validate(ctx context.Context, token string) (*Record, error) {
	record, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentCheckFailed, "", 403, "unknown consent token"))
			return nil, dErrors.New(dErrors.CodeInvalidConsent, "consent not found or inactive")
		}
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentCheckError, "", 500, err.Error()))
		return nil, dErrors.Wrap(err, dErrors.CodeForBackend(err), "look up consent")
	}

	switch record.Status {
	case StatusExpired:
		// Terminal: every later validation keeps reporting expiry.
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentCheckFailed, record.PseudoID, 403, "consent expired"))
		return nil, dErrors.New(dErrors.CodeConsentExpired, "consent expired")
	case StatusRevoked:
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentCheckFailed, record.PseudoID, 403, "consent revoked"))
		return nil, dErrors.New(dErrors.CodeInvalidConsent, "consent not found or inactive")
	}

	now := requestcontext.Now(ctx)
	if record.PastExpiry(now) {
		won, err := s.store.TransitionStatus(ctx, token, StatusActive, StatusExpired, now)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentCheckError, record.PseudoID, 500, err.Error()))
			return nil, dErrors.Wrap(err, dErrors.CodeForBackend(err), "expire consent")
		}
		if won {
			if s.metrics != nil {
				s.metrics.ConsentsExpired.Inc()
			}
		}
		// Losers of the race land here too: the status is already expired,
		// the outcome is the same.
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentExpired, record.PseudoID, 403, "consent expired"))
		return nil, dErrors.New(dErrors.CodeConsentExpired, "consent expired")
	}

	return record, nil
}

// Revoke is irreversible and idempotent: revoking an already revoked or
// expired consent reports success without complaint. The cascade soft-delete
// into telemetry is part of the operation, not a follow-up.
func (s *Service) Revoke(ctx context.Context, token string) error {
	record, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRevocationFailed, "", 404, "unknown consent token"))
			return dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRevocationError, "", 500, err.Error()))
		return dErrors.Wrap(err, dErrors.CodeForBackend(err), "look up consent")
	}

	now := requestcontext.Now(ctx)
	if err := s.store.MarkRevoked(ctx, token, now); err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRevocationError, record.PseudoID, 500, err.Error()))
		return dErrors.Wrap(err, dErrors.CodeForBackend(err), "revoke consent")
	}
	if err := s.deleter.SoftDeleteByToken(ctx, token); err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionConsentRevocationError, record.PseudoID, 500, err.Error()))
		return dErrors.Wrap(err, dErrors.CodeForBackend(err), "cascade telemetry soft delete")
	}

	s.auditor.Emit(ctx, audit.Success(ctx, audit.ActionConsentRevoked, record.PseudoID))
	if s.metrics != nil {
		s.metrics.ConsentsRevoked.Inc()
	}
	return nil
}

// Lookup fetches a consent record regardless of status. Data-subject access
// rights do not depend on the consent still being active; callers own the
// audit trail for the access itself.
func (s *Service) Lookup(ctx context.Context, token string) (*Record, error) {
	record, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeForBackend(err), "look up consent")
	}
	return record, nil
}

// DecryptDemographics recovers the sensitive identity payload of a record.
func (s *Service) DecryptDemographics(record *Record) (Demographics, error) {
	var demographics Demographics
	if err := s.crypto.Decrypt(record.Demographics, &demographics); err != nil {
		return Demographics{}, err
	}
	return demographics, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
