package hitl

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/askflow/internal/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPending(threadID string, clock *testClock, ttl time.Duration) *PendingClarification {
	return &PendingClarification{
		ID:            "p-" + threadID,
		ThreadID:      threadID,
		TurnID:        "turn-" + threadID,
		OriginalQuery: "help me",
		Question:      "Which topic?",
		Options:       []string{"Eligibility", "Locations"},
		Trigger:       TriggerClarifyRoute,
		PartialState:  []byte(`{"route":"clarify"}`),
		CreatedAt:     clock.Now(),
		ExpiresAt:     clock.Now().Add(ttl),
	}
}

func newRedisStore(t *testing.T, clock *testClock) (*miniredis.Miniredis, *RedisPendingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	manager, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	store := NewRedisPendingStore(manager)
	store.now = clock.Now
	return mr, store
}

// 两种实现共享的行为
func testPendingStore(t *testing.T, store PendingStore, clock *testClock) {
	ctx := context.Background()

	t.Run("take returns saved record once", func(t *testing.T) {
		in := newPending("t1", clock, time.Minute)
		require.NoError(t, store.Save(ctx, in))

		out, err := store.Take(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, in.TurnID, out.TurnID)
		assert.Equal(t, in.Options, out.Options)
		assert.JSONEq(t, `{"route":"clarify"}`, string(out.PartialState))
		assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))

		_, err = store.Take(ctx, "t1")
		assert.True(t, IsNotFound(err))
	})

	t.Run("save replaces previous record", func(t *testing.T) {
		first := newPending("t2", clock, time.Minute)
		second := newPending("t2", clock, time.Minute)
		second.TurnID = "turn-newer"
		require.NoError(t, store.Save(ctx, first))
		require.NoError(t, store.Save(ctx, second))

		out, err := store.Take(ctx, "t2")
		require.NoError(t, err)
		assert.Equal(t, "turn-newer", out.TurnID)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newPending("t3", clock, time.Minute)))
		require.NoError(t, store.Delete(ctx, "t3"))
		require.NoError(t, store.Delete(ctx, "t3"))
		_, err := store.Take(ctx, "t3")
		assert.True(t, IsNotFound(err))
	})

	t.Run("missing thread", func(t *testing.T) {
		_, err := store.Take(ctx, "nobody")
		assert.True(t, IsNotFound(err))
	})

	t.Run("concurrent take consumes once", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newPending("t4", clock, time.Minute)))
		var taken atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Take(ctx, "t4"); err == nil {
					taken.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), taken.Load())
	})
}

func TestInMemoryPendingStore(t *testing.T) {
	clock := newTestClock()
	testPendingStore(t, NewInMemoryPendingStore(clock.Now), clock)
}

func TestRedisPendingStore(t *testing.T) {
	clock := newTestClock()
	_, store := newRedisStore(t, clock)
	testPendingStore(t, store, clock)
}

func TestInMemoryPendingStore_Expiry(t *testing.T) {
	t.Parallel()
	clock := newTestClock()
	store := NewInMemoryPendingStore(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newPending("old", clock, time.Minute)))
	clock.Advance(2 * time.Minute)

	_, err := store.Take(ctx, "old")
	assert.True(t, IsNotFound(err))

	require.NoError(t, store.Save(ctx, newPending("stale", clock, time.Minute)))
	clock.Advance(2 * time.Minute)
	require.NoError(t, store.Save(ctx, newPending("fresh", clock, time.Minute)))
	assert.Equal(t, 1, store.Len(), "expired records are swept on save")
}

func TestInMemoryPendingStore_CancelledContext(t *testing.T) {
	t.Parallel()
	store := NewInMemoryPendingStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, &PendingClarification{ThreadID: "t"}), context.Canceled)
	_, err := store.Take(ctx, "t")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisPendingStore_KeyTTL(t *testing.T) {
	clock := newTestClock()
	mr, store := newRedisStore(t, clock)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newPending("t", clock, 30*time.Minute)))
	key := "askflow:clarification:t"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Minute, mr.TTL(key))

	mr.FastForward(31 * time.Minute)
	_, err := store.Take(ctx, "t")
	assert.True(t, IsNotFound(err))
}

func TestRedisPendingStore_SkipsAlreadyExpired(t *testing.T) {
	clock := newTestClock()
	mr, store := newRedisStore(t, clock)

	p := newPending("t", clock, time.Minute)
	clock.Advance(2 * time.Minute)
	require.NoError(t, store.Save(context.Background(), p))
	assert.False(t, mr.Exists("askflow:clarification:t"))
}

func TestRedisPendingStore_BackendUnavailable(t *testing.T) {
	clock := newTestClock()
	mr, store := newRedisStore(t, clock)
	mr.Close()

	err := store.Save(context.Background(), newPending("t", clock, time.Minute))
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}
