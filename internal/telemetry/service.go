package telemetry

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"trailguard/internal/audit"
	"trailguard/internal/consent"
	"trailguard/internal/crypto"
	"trailguard/internal/platform/metrics"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/platform/sentinel"
	"trailguard/pkg/requestcontext"
)

// Ledger is the slice of the consent service this package needs: resolving a
// token to its record for data-subject access, without requiring active
// status.
type Ledger interface {
	Lookup(ctx context.Context, token string) (*consent.Record, error)
}

// SubmitInput is one validated test-session submission. PseudoID and
// ConsentToken come from the consent record the gate authorized, never from
// the client.
type SubmitInput struct {
	PseudoID     string
	ConsentToken string
	SessionID    string
	TestPhase    Phase
	Payload      map[string]any
	Aggregates   Aggregates
	Metadata     map[string]any
}

// Service encrypts and persists telemetry, serves data-subject access
// requests, and is the cascade target for consent revocation.
type Service struct {
	store   Store
	ledger  Ledger
	crypto  *crypto.Service
	auditor *audit.Publisher
	metrics *metrics.Metrics
}

// NewService wires the telemetry service.
func NewService(store Store, ledger Ledger, cryptoSvc *crypto.Service, auditor *audit.Publisher, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		ledger:  ledger,
		crypto:  cryptoSvc,
		auditor: auditor,
		metrics: m,
	}
}

// BindLedger attaches the consent ledger after construction. The ledger and
// this service reference each other (revocation cascades here, access
// resolution goes there), so one side has to bind late.
func (s *Service) BindLedger(ledger Ledger) { s.ledger = ledger }

// Submit encrypts the interaction trace and persists the record. The store
// re-checks consent transactionally, so a revocation landing between the gate
// check and this call still blocks the write.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (string, error) {
	blob, err := s.crypto.Encrypt(input.Payload)
	if err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataCollectionError, input.PseudoID, 500, err.Error()))
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encrypt telemetry payload")
	}

	record := &Record{
		ID:           uuid.NewString(),
		PseudoID:     input.PseudoID,
		SessionID:    input.SessionID,
		TestPhase:    input.TestPhase,
		Payload:      blob,
		Aggregates:   input.Aggregates,
		Metadata:     input.Metadata,
		ConsentToken: input.ConsentToken,
		CollectedAt:  requestcontext.Now(ctx),
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}

	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataCollectionError, input.PseudoID, 403, "consent no longer active at submit time"))
			return "", dErrors.New(dErrors.CodeInvalidConsent, "consent not found or inactive")
		}
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataCollectionError, input.PseudoID, 500, err.Error()))
		return "", dErrors.Wrap(err, dErrors.CodeForBackend(err), "persist telemetry record")
	}

	s.auditor.Emit(ctx, audit.Success(ctx, audit.ActionDataCollected, input.PseudoID))
	if s.metrics != nil {
		s.metrics.TelemetryRecords.Inc()
	}
	return record.ID, nil
}

// ListFor serves a data-subject access request: every non-deleted record for
// the token's subject, most recent first, payloads decrypted. Access rights
// survive expiry and revocation, so the lookup ignores consent status.
//
// A single integrity failure fails the whole request: silently omitting a
// corrupted record would hide data loss from the subject, which is itself a
// compliance violation.
func (s *Service) ListFor(ctx context.Context, token string) ([]DecryptedRecord, error) {
	record, err := s.ledger.Lookup(ctx, token)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataAccessFailed, "", 404, "unknown consent token"))
			return nil, err
		}
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataAccessError, "", 500, err.Error()))
		return nil, err
	}

	records, err := s.store.ListByPseudoID(ctx, record.PseudoID)
	if err != nil {
		s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataAccessError, record.PseudoID, 500, err.Error()))
		return nil, dErrors.Wrap(err, dErrors.CodeForBackend(err), "fetch telemetry records")
	}

	out := make([]DecryptedRecord, 0, len(records))
	for _, r := range records {
		var payload map[string]any
		if err := s.crypto.Decrypt(r.Payload, &payload); err != nil {
			s.auditor.Emit(ctx, audit.Failure(ctx, audit.ActionDataAccessError, record.PseudoID, 500, err.Error()))
			if dErrors.Is(err, dErrors.CodeIntegrity) {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decrypt telemetry payload")
		}
		out = append(out, DecryptedRecord{
			RecordID:    r.ID,
			SessionID:   r.SessionID,
			TestPhase:   r.TestPhase,
			CollectedAt: r.CollectedAt,
			Summary:     r.Aggregates,
			Payload:     payload,
		})
	}

	s.auditor.Emit(ctx, audit.Success(ctx, audit.ActionDataAccessRequest, record.PseudoID))
	if s.metrics != nil {
		s.metrics.DataAccessRequests.Inc()
	}
	return out, nil
}

// SoftDeleteByToken marks every record under the token as deleted. Called by
// the consent ledger as part of revocation; also safe to call directly.
func (s *Service) SoftDeleteByToken(ctx context.Context, token string) error {
	if err := s.store.SoftDeleteByToken(ctx, token, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeForBackend(err), "soft delete telemetry records")
	}
	return nil
}
