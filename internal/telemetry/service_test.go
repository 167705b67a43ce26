package telemetry_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"trailguard/internal/audit"
	"trailguard/internal/consent"
	"trailguard/internal/crypto"
	"trailguard/internal/platform/metrics"
	"trailguard/internal/telemetry"
	"trailguard/internal/telemetry/mocks"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/platform/sentinel"
)

type stubLedger struct {
	record *consent.Record
	err    error
}

func (s *stubLedger) Lookup(_ context.Context, _ string) (*consent.Record, error) {
	return s.record, s.err
}

type fixture struct {
	crypto *crypto.Service
	trail  *audit.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cryptoSvc, err := crypto.New(bytes.Repeat([]byte{0x2a}, 32), "test-salt")
	require.NoError(t, err)
	return &fixture{crypto: cryptoSvc, trail: audit.NewInMemoryStore()}
}

func (f *fixture) service(t *testing.T, store telemetry.Store, ledger telemetry.Ledger) *telemetry.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	auditor := audit.NewPublisher(f.trail, logger, m)
	return telemetry.NewService(store, ledger, f.crypto, auditor, m)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestSubmitPersistsEncryptedRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	store := mocks.NewMockStore(ctrl)

	var persisted *telemetry.Record
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, record *telemetry.Record) error {
			persisted = record
			return nil
		})

	svc := f.service(t, store, &stubLedger{})
	payload := map[string]any{"clicks": []any{map[string]any{"target": float64(1), "t": float64(812)}}}
	id, err := svc.Submit(context.Background(), telemetry.SubmitInput{
		PseudoID:     "a1b2c3",
		ConsentToken: "tok-1",
		SessionID:    "sess-1",
		TestPhase:    telemetry.PhaseTest,
		Payload:      payload,
		Aggregates:   telemetry.Aggregates{TotalTime: floatPtr(42), TotalErrors: intPtr(1)},
	})
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, id, persisted.ID)
	assert.NotEmpty(t, persisted.ID)
	assert.Equal(t, "a1b2c3", persisted.PseudoID)
	assert.Equal(t, "tok-1", persisted.ConsentToken)

	// The raw trace must not be stored in clear.
	assert.NotContains(t, persisted.Payload.Ciphertext, "clicks")
	var roundTrip map[string]any
	require.NoError(t, f.crypto.Decrypt(persisted.Payload, &roundTrip))
	assert.Equal(t, payload, roundTrip)

	events := f.trail.ByAction(audit.ActionDataCollected)
	require.Len(t, events, 1)
	assert.Equal(t, audit.StatusSuccess, events[0].Status)
	assert.Equal(t, "a1b2c3", events[0].DataSubject)
}

func TestSubmitConsentNoLongerActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(sentinel.ErrInvalidState)

	svc := f.service(t, store, &stubLedger{})
	_, err := svc.Submit(context.Background(), telemetry.SubmitInput{
		PseudoID:     "a1b2c3",
		ConsentToken: "tok-revoked",
		SessionID:    "sess-1",
		TestPhase:    telemetry.PhaseTest,
		Payload:      map[string]any{"clicks": []any{}},
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidConsent))

	events := f.trail.ByAction(audit.ActionDataCollectionError)
	require.Len(t, events, 1)
	assert.Equal(t, 403, events[0].ResponseStatus)
	assert.Equal(t, audit.StatusFailed, events[0].Status)
}

func TestSubmitStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	svc := f.service(t, store, &stubLedger{})
	_, err := svc.Submit(context.Background(), telemetry.SubmitInput{
		PseudoID:     "a1b2c3",
		ConsentToken: "tok-1",
		SessionID:    "sess-1",
		TestPhase:    telemetry.PhasePractice,
		Payload:      map[string]any{"clicks": []any{}},
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeStoreFailure))

	events := f.trail.ByAction(audit.ActionDataCollectionError)
	require.Len(t, events, 1)
	assert.Equal(t, 500, events[0].ResponseStatus)
}

func TestSubmitDeadlineExpirySurfacesAsTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(
		fmt.Errorf("insert telemetry record: %w", context.DeadlineExceeded))

	svc := f.service(t, store, &stubLedger{})
	_, err := svc.Submit(context.Background(), telemetry.SubmitInput{
		PseudoID:     "a1b2c3",
		ConsentToken: "tok-1",
		SessionID:    "sess-1",
		TestPhase:    telemetry.PhaseTest,
		Payload:      map[string]any{"clicks": []any{}},
	})
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeTimeout))
	assert.False(t, dErrors.Is(err, dErrors.CodeStoreFailure))
}

func TestListForUnknownToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	store := mocks.NewMockStore(ctrl)
	ledger := &stubLedger{err: dErrors.New(dErrors.CodeNotFound, "consent not found")}

	svc := f.service(t, store, ledger)
	_, err := svc.ListFor(context.Background(), "no-such-token")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))

	events := f.trail.ByAction(audit.ActionDataAccessFailed)
	require.Len(t, events, 1)
	assert.Equal(t, 404, events[0].ResponseStatus)
}

func TestListForReturnsDecryptedRecordsNewestFirst(t *testing.T) {
	f := newFixture(t)
	store := telemetry.NewInMemoryStore(nil)
	ledger := &stubLedger{record: &consent.Record{Token: "tok-1", PseudoID: "a1b2c3", Status: consent.StatusActive}}
	svc := f.service(t, store, ledger)

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i, payload := range []map[string]any{
		{"clicks": []any{map[string]any{"target": float64(1)}}},
		{"clicks": []any{map[string]any{"target": float64(2)}}},
	} {
		blob, err := f.crypto.Encrypt(payload)
		require.NoError(t, err)
		require.NoError(t, store.Insert(context.Background(), &telemetry.Record{
			ID:           "rec-" + string(rune('a'+i)),
			PseudoID:     "a1b2c3",
			SessionID:    "sess-1",
			TestPhase:    telemetry.PhaseTest,
			Payload:      blob,
			Aggregates:   telemetry.Aggregates{TotalTime: floatPtr(float64(40 + i))},
			ConsentToken: "tok-1",
			CollectedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := svc.ListFor(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-b", records[0].RecordID)
	assert.Equal(t, "rec-a", records[1].RecordID)
	assert.Equal(t, map[string]any{"clicks": []any{map[string]any{"target": float64(2)}}}, records[0].Payload)
	assert.Equal(t, 41.0, *records[0].Summary.TotalTime)

	events := f.trail.ByAction(audit.ActionDataAccessRequest)
	require.Len(t, events, 1)
	assert.Equal(t, "a1b2c3", events[0].DataSubject)
}

func TestListForIntegrityFailureFailsWholeRequest(t *testing.T) {
	f := newFixture(t)
	store := telemetry.NewInMemoryStore(nil)
	ledger := &stubLedger{record: &consent.Record{Token: "tok-1", PseudoID: "a1b2c3", Status: consent.StatusActive}}
	svc := f.service(t, store, ledger)

	good, err := f.crypto.Encrypt(map[string]any{"clicks": []any{}})
	require.NoError(t, err)
	tampered, err := f.crypto.Encrypt(map[string]any{"clicks": []any{}})
	require.NoError(t, err)
	tampered.AuthTag = good.AuthTag // valid hex, wrong tag

	for i, blob := range []crypto.Blob{good, tampered} {
		require.NoError(t, store.Insert(context.Background(), &telemetry.Record{
			ID:           "rec-" + string(rune('a'+i)),
			PseudoID:     "a1b2c3",
			ConsentToken: "tok-1",
			Payload:      blob,
			CollectedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	_, err = svc.ListFor(context.Background(), "tok-1")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeIntegrity))

	events := f.trail.ByAction(audit.ActionDataAccessError)
	require.Len(t, events, 1)
	assert.Equal(t, 500, events[0].ResponseStatus)
}

func TestSoftDeleteByTokenHidesRecordsFromAccess(t *testing.T) {
	f := newFixture(t)
	store := telemetry.NewInMemoryStore(nil)
	ledger := &stubLedger{record: &consent.Record{Token: "tok-1", PseudoID: "a1b2c3", Status: consent.StatusRevoked}}
	svc := f.service(t, store, ledger)

	blob, err := f.crypto.Encrypt(map[string]any{"clicks": []any{}})
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), &telemetry.Record{
		ID: "rec-a", PseudoID: "a1b2c3", ConsentToken: "tok-1", Payload: blob, CollectedAt: time.Now(),
	}))

	require.NoError(t, svc.SoftDeleteByToken(context.Background(), "tok-1"))

	// Soft-deleted rows stay in the table for the retention sweep but are
	// invisible to access requests.
	all := store.AllIncludingDeleted()
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)

	records, err := svc.ListFor(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}
