package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailguard/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingStore struct {
	mu       sync.Mutex
	attempts int
}

func (s *failingStore) Append(context.Context, Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return errors.New("store unavailable")
}

func (s *failingStore) ListRecent(context.Context, int) ([]Event, error) {
	return nil, errors.New("store unavailable")
}

func TestPublisher_SyncMode(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, discardLogger(), nil)
	defer pub.Close()

	pub.Emit(context.Background(), Success(context.Background(), ActionConsentRegistered, "pseudo-1"))

	events := store.All()
	require.Len(t, events, 1)
	assert.Equal(t, ActionConsentRegistered, events[0].Action)
	assert.Equal(t, StatusSuccess, events[0].Status)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, discardLogger(), nil)
	defer pub.Close()

	before := time.Now()
	pub.Emit(context.Background(), Success(context.Background(), ActionDataCollected, "pseudo-1"))
	after := time.Now()

	events := store.All()
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, discardLogger(), nil)
	defer pub.Close()

	custom := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	event := Success(context.Background(), ActionDataCollected, "pseudo-1")
	event.Timestamp = custom
	pub.Emit(context.Background(), event)

	events := store.All()
	require.Len(t, events, 1)
	assert.Equal(t, custom, events[0].Timestamp)
}

func TestPublisher_StoreFailureDoesNotPropagate(t *testing.T) {
	store := &failingStore{}
	pub := NewPublisher(store, discardLogger(), nil)
	defer pub.Close()

	// Emit must stay silent toward the caller even when every write fails.
	pub.Emit(context.Background(), Success(context.Background(), ActionConsentRevoked, "pseudo-1"))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.attempts, "the attempt itself is mandatory")
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, discardLogger(), nil, WithAsyncBuffer(100))

	for range 10 {
		pub.Emit(context.Background(), Success(context.Background(), ActionDataCollected, "pseudo-1"))
	}
	pub.Close()

	assert.Len(t, store.All(), 10, "all events should be drained on close")
}

func TestPublisher_CloseTwice(t *testing.T) {
	pub := NewPublisher(NewInMemoryStore(), discardLogger(), nil, WithAsyncBuffer(4))
	pub.Close()
	pub.Close()
}

func TestEventBuilders_CaptureActorContext(t *testing.T) {
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.9", "test-agent")
	ctx = requestcontext.WithEndpoint(ctx, "POST /api/tmt-data")
	ctx = requestcontext.WithRequestData(ctx, `{"method":"POST"}`)

	event := Failure(ctx, ActionDataCollectionError, "pseudo-2", 500, "insert failed")

	assert.Equal(t, "203.0.113.9", event.IPAddress)
	assert.Equal(t, "test-agent", event.UserAgent)
	assert.Equal(t, "POST /api/tmt-data", event.Endpoint)
	assert.Equal(t, "anonymous", event.UserID)
	assert.Equal(t, "participant", event.UserRole)
	assert.Equal(t, StatusFailed, event.Status)
	assert.Equal(t, 500, event.ResponseStatus)
	assert.Equal(t, "insert failed", event.ErrorMessage)
}

func TestEventBuilders_AuthenticatedActor(t *testing.T) {
	ctx := requestcontext.WithActor(context.Background(), "researcher-7", "researcher")

	event := Success(ctx, ActionDataAccessRequest, "pseudo-3")

	assert.Equal(t, "researcher-7", event.UserID)
	assert.Equal(t, "researcher", event.UserRole)
}
