package infra

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// backendHarness expõe um backend e uma forma de avançar o tempo dele.
type backendHarness struct {
	backend domain.Backend
	advance func(time.Duration)
}

func runBackendContract(t *testing.T, newHarness func(t *testing.T) backendHarness) {
	ctx := context.Background()

	t.Run("EnqueueKeepsArrivalScore", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		added, err := b.Enqueue(ctx, "a", 1)
		require.NoError(t, err)
		assert.True(t, added)
		_, err = b.Enqueue(ctx, "b", 2)
		require.NoError(t, err)

		added, err = b.Enqueue(ctx, "a", 3)
		require.NoError(t, err)
		assert.False(t, added, "re-join must not create a second entry")

		rank, ok, err := b.RankOf(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(0), rank)
	})

	t.Run("RankTiesBrokenByID", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		_, _ = b.Enqueue(ctx, "zeta", 5)
		_, _ = b.Enqueue(ctx, "alpha", 5)

		rank, ok, err := b.RankOf(ctx, "alpha")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(0), rank)

		rank, _, _ = b.RankOf(ctx, "zeta")
		assert.Equal(t, int64(1), rank)

		_, ok, err = b.RankOf(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PopLowestInArrivalOrder", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		for i := 1; i <= 5; i++ {
			_, err := b.Enqueue(ctx, domain.ClientID(fmt.Sprintf("c%d", i)), float64(i))
			require.NoError(t, err)
		}

		got, err := b.PopLowest(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []domain.ClientID{"c1", "c2"}, got)

		got, err = b.PopLowest(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []domain.ClientID{"c3", "c4", "c5"}, got)

		got, err = b.PopLowest(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = b.PopLowest(ctx, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ConcurrentPopsNeverOverlap", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		const total = 120
		for i := 0; i < total; i++ {
			_, err := b.Enqueue(ctx, domain.ClientID(fmt.Sprintf("c%03d", i)), float64(i))
			require.NoError(t, err)
		}

		var (
			mu   sync.Mutex
			seen = make(map[domain.ClientID]int)
			wg   sync.WaitGroup
		)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					ids, err := b.PopLowest(ctx, 7)
					if err != nil || len(ids) == 0 {
						return
					}
					mu.Lock()
					for _, id := range ids {
						seen[id]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Len(t, seen, total)
		for id, n := range seen {
			assert.Equal(t, 1, n, "client %s popped %d times", id, n)
		}
	})

	t.Run("RemoveAndListRange", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		for i, id := range []domain.ClientID{"a", "b", "c", "d"} {
			_, _ = b.Enqueue(ctx, id, float64(i))
		}

		all, err := b.ListRange(ctx, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, []domain.ClientID{"a", "b", "c", "d"}, all)

		mid, err := b.ListRange(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []domain.ClientID{"b", "c"}, mid)

		removed, err := b.Remove(ctx, "b")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = b.Remove(ctx, "b")
		require.NoError(t, err)
		assert.False(t, removed)

		rank, _, _ := b.RankOf(ctx, "c")
		assert.Equal(t, int64(1), rank)

		empty, err := b.ListRange(ctx, 10, 20)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("WaitingLivenessExpires", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		require.NoError(t, b.TouchWaiting(ctx, "a", 10*time.Second))
		alive, err := b.IsAliveWaiting(ctx, "a")
		require.NoError(t, err)
		assert.True(t, alive)

		h.advance(6 * time.Second)
		require.NoError(t, b.TouchWaiting(ctx, "a", 10*time.Second))
		h.advance(6 * time.Second)
		alive, _ = b.IsAliveWaiting(ctx, "a")
		assert.True(t, alive, "touch must reset the ttl")

		h.advance(5 * time.Second)
		alive, _ = b.IsAliveWaiting(ctx, "a")
		assert.False(t, alive)

		require.NoError(t, b.TouchWaiting(ctx, "b", time.Minute))
		require.NoError(t, b.DropWaiting(ctx, "b"))
		alive, _ = b.IsAliveWaiting(ctx, "b")
		assert.False(t, alive)
	})

	t.Run("ActiveSlotsExpireLazily", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		require.NoError(t, b.Admit(ctx, "a", time.Minute))
		require.NoError(t, b.Admit(ctx, "b", 3*time.Minute))
		require.NoError(t, b.Admit(ctx, "a", time.Minute))

		n, err := b.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		h.advance(50 * time.Second)
		ok, err := b.TouchActive(ctx, "a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		h.advance(50 * time.Second)
		alive, err := b.IsAliveActive(ctx, "a")
		require.NoError(t, err)
		assert.True(t, alive, "touch must extend the slot")

		h.advance(time.Minute)
		alive, _ = b.IsAliveActive(ctx, "a")
		assert.False(t, alive)

		ok, err = b.TouchActive(ctx, "a", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "touch must not resurrect an expired slot")

		n, _ = b.Count(ctx)
		assert.Equal(t, 1, n)
		ids, err := b.ListActive(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.ClientID{"b"}, ids)
	})

	t.Run("ReleaseAndDropActive", func(t *testing.T) {
		h := newHarness(t)
		b := h.backend

		require.NoError(t, b.Admit(ctx, "a", time.Minute))
		require.NoError(t, b.Admit(ctx, "b", time.Minute))

		removed, err := b.Release(ctx, "a")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = b.Release(ctx, "a")
		require.NoError(t, err)
		assert.False(t, removed)

		require.NoError(t, b.DropActive(ctx, "b"))
		n, _ := b.Count(ctx)
		assert.Equal(t, 0, n)

		ok, _ := b.TouchActive(ctx, "never", time.Minute)
		assert.False(t, ok)
	})
}
