package consent_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailguard/internal/audit"
	"trailguard/internal/consent"
	"trailguard/internal/crypto"
	"trailguard/internal/platform/metrics"
	dErrors "trailguard/pkg/domain-errors"
	"trailguard/pkg/requestcontext"
)

const consentTTL = 2 * 365 * 24 * time.Hour

type recordingDeleter struct {
	tokens []string
}

func (d *recordingDeleter) SoftDeleteByToken(_ context.Context, token string) error {
	d.tokens = append(d.tokens, token)
	return nil
}

type fixture struct {
	store   *consent.InMemoryStore
	crypto  *crypto.Service
	trail   *audit.InMemoryStore
	deleter *recordingDeleter
	auditor *audit.Publisher
	metrics *metrics.Metrics
	svc     *consent.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cryptoSvc, err := crypto.New(bytes.Repeat([]byte{0x2a}, 32), "test-salt")
	require.NoError(t, err)

	f := &fixture{
		store:   consent.NewInMemoryStore(),
		crypto:  cryptoSvc,
		trail:   audit.NewInMemoryStore(),
		deleter: &recordingDeleter{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.metrics = metrics.New(prometheus.NewRegistry())
	f.auditor = audit.NewPublisher(f.trail, logger, f.metrics)
	f.svc = consent.NewService(f.store, cryptoSvc, f.auditor, f.deleter, f.metrics, consentTTL)
	return f
}

func (f *fixture) gate(t *testing.T) *consent.Gate {
	t.Helper()
	return consent.NewGate(f.svc, f.auditor, f.metrics)
}

func registerInput() consent.RegisterInput {
	return consent.RegisterInput{
		Name:         "Maria Silva",
		Email:        "maria@example.com",
		Age:          34,
		Gender:       "female",
		Education:    "graduate",
		ConsentTypes: []string{"data_collection", "data_storage"},
		ConsentText:  "I agree to the collection of my test data.",
	}
}

func TestRegisterIssuesTokenAndEncryptsDemographics(t *testing.T) {
	f := newFixture(t)
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.9", "test-agent")

	record, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)
	assert.Len(t, record.Token, 64) // 32 random bytes, hex
	assert.Len(t, record.PseudoID, 32)
	assert.Equal(t, consent.StatusActive, record.Status)
	assert.Equal(t, "203.0.113.9", record.IPAddress)
	assert.WithinDuration(t, record.IssuedAt.Add(consentTTL), record.ExpiresAt, time.Second)

	// The stored demographics must be ciphertext, recoverable only through
	// the crypto service.
	assert.NotContains(t, record.Demographics.Ciphertext, "maria")
	demographics, err := f.svc.DecryptDemographics(record)
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", demographics.Email)
	assert.Equal(t, 34, demographics.Age)

	events := f.trail.ByAction(audit.ActionConsentRegistered)
	require.Len(t, events, 1)
	assert.Equal(t, record.PseudoID, events[0].DataSubject)
	assert.Equal(t, "203.0.113.9", events[0].IPAddress)
}

func TestRegisterTwiceSameEmailDistinctTokensSamePseudoID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)
	second, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, first.PseudoID, second.PseudoID)
}

func TestValidateActiveConsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	got, err := f.svc.Validate(ctx, record.Token)
	require.NoError(t, err)
	assert.Equal(t, record.PseudoID, got.PseudoID)
	assert.Equal(t, consent.StatusActive, got.Status)
}

func TestValidateUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Validate(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidConsent))

	events := f.trail.ByAction(audit.ActionConsentCheckFailed)
	require.Len(t, events, 1)
	assert.Equal(t, 403, events[0].ResponseStatus)
}

func TestValidateExpiryIsLazyAndTerminal(t *testing.T) {
	f := newFixture(t)
	issued := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), issued)

	record, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	// First validation past the deadline transitions the record.
	late := requestcontext.WithTime(context.Background(), record.ExpiresAt.Add(time.Hour))
	_, err = f.svc.Validate(late, record.Token)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConsentExpired))

	stored, err := f.store.FindByToken(context.Background(), record.Token)
	require.NoError(t, err)
	assert.Equal(t, consent.StatusExpired, stored.Status)

	// Expired is terminal: a later validation inside a hypothetical new
	// window still reports expiry.
	_, err = f.svc.Validate(requestcontext.WithTime(context.Background(), issued), record.Token)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConsentExpired))

	assert.Len(t, f.trail.ByAction(audit.ActionConsentExpired), 1)
	assert.NotEmpty(t, f.trail.ByAction(audit.ActionConsentCheckFailed))
}

func TestRevokeCascadesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, record.Token))

	stored, err := f.store.FindByToken(ctx, record.Token)
	require.NoError(t, err)
	assert.Equal(t, consent.StatusRevoked, stored.Status)
	require.NotNil(t, stored.RevokedAt)
	assert.Equal(t, []string{record.Token}, f.deleter.tokens)

	_, err = f.svc.Validate(ctx, record.Token)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidConsent))

	// Revoking again succeeds without complaint; the subject's withdrawal
	// request is honored either way.
	require.NoError(t, f.svc.Revoke(ctx, record.Token))
	assert.Len(t, f.trail.ByAction(audit.ActionConsentRevoked), 2)
}

func TestRevokeUnknownToken(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Revoke(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))

	events := f.trail.ByAction(audit.ActionConsentRevocationFailed)
	require.Len(t, events, 1)
	assert.Equal(t, 404, events[0].ResponseStatus)
}

func TestLookupIgnoresStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record, err := f.svc.Register(ctx, registerInput())
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, record.Token))

	got, err := f.svc.Lookup(ctx, record.Token)
	require.NoError(t, err)
	assert.Equal(t, consent.StatusRevoked, got.Status)
	assert.Equal(t, record.PseudoID, got.PseudoID)
}
