package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(eventID string) *Event {
	return &Event{
		EventID:     eventID,
		EventType:   "souvenirs.purged",
		AggregateID: "purge-1",
		Version:     EnvelopeVersion,
	}
}

// countingHandler records how often it ran and returns err.
type countingHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *countingHandler) handle(context.Context, *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type brokenStore struct{ adds int }

func (b *brokenStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func (b *brokenStore) Add(context.Context, string) error {
	b.adds++
	return errors.New("store unavailable")
}

// ==== MemoryIdempotencyStore ====

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(time.Minute)

	seen, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "evt-1"))
	require.NoError(t, s.Add(ctx, "evt-1"))

	seen, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Add(ctx, "old"))
	clock = clock.Add(2 * time.Minute)

	seen, err := s.Contains(ctx, "old")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Zero(t, s.Len())
}

func TestMemoryIdempotencyStore_AddSweepsExpired(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Add(ctx, "a"))
	require.NoError(t, s.Add(ctx, "b"))
	clock = clock.Add(90 * time.Second)
	require.NoError(t, s.Add(ctx, "c"))

	assert.Equal(t, 1, s.Len())
}

func TestMemoryIdempotencyStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(ctx, "evt-shared")
			_, _ = s.Contains(ctx, "evt-shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.Len())
}

// ==== RedisIdempotencyStore ====

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, "souvenir:dedup:", ttl), mr
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)

	seen, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "evt-1"))
	assert.True(t, mr.Exists("souvenir:dedup:evt-1"))
	assert.Equal(t, time.Hour, mr.TTL("souvenir:dedup:evt-1"))

	seen, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisIdempotencyStore_ServerGone(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	mr.Close()

	_, err := s.Contains(context.Background(), "evt-1")
	assert.ErrorContains(t, err, "dedup lookup evt-1")
	assert.ErrorContains(t, s.Add(context.Background(), "evt-1"), "dedup record evt-1")
}

// ==== IdempotentHandler ====

func TestIdempotentHandler_SkipsRedelivery(t *testing.T) {
	s, _ := newRedisStore(t, time.Hour)
	inner := &countingHandler{}
	h := IdempotentHandler(s, inner.handle, testLogger())

	require.NoError(t, h(context.Background(), testEvent("evt-a")))
	require.NoError(t, h(context.Background(), testEvent("evt-a")))
	require.NoError(t, h(context.Background(), testEvent("evt-b")))

	assert.Equal(t, 2, inner.count())
}

func TestIdempotentHandler_NoEventID(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Minute)
	inner := &countingHandler{}
	h := IdempotentHandler(s, inner.handle, testLogger())

	for i := 0; i < 3; i++ {
		require.NoError(t, h(context.Background(), testEvent("")))
	}

	assert.Equal(t, 3, inner.count())
	assert.Zero(t, s.Len())
}

func TestIdempotentHandler_FailureNotRecorded(t *testing.T) {
	s := NewMemoryIdempotencyStore(time.Minute)
	boom := errors.New("reconcile failed")
	inner := &countingHandler{err: boom}
	h := IdempotentHandler(s, inner.handle, testLogger())

	assert.ErrorIs(t, h(context.Background(), testEvent("evt-err")), boom)
	assert.ErrorIs(t, h(context.Background(), testEvent("evt-err")), boom)

	assert.Equal(t, 2, inner.count())
	seen, err := s.Contains(context.Background(), "evt-err")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotentHandler_StoreDownFailsOpen(t *testing.T) {
	store := &brokenStore{}
	inner := &countingHandler{}
	h := IdempotentHandler(store, inner.handle, testLogger())

	require.NoError(t, h(context.Background(), testEvent("evt-1")))

	assert.Equal(t, 1, inner.count())
	assert.Equal(t, 1, store.adds)
}
