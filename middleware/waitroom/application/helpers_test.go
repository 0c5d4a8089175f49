package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"
	"waitroom-gateway/middleware/waitroom/infra"

	"github.com/rs/zerolog"
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

type fixture struct {
	clock   *testClock
	backend *infra.MemoryBackend
	stats   *infra.MemoryStatsStore
	queue   Queue
	cycle   Cycle
}

func newFixture(t *testing.T, maxActive int) *fixture {
	t.Helper()
	clock := newTestClock()
	backend := infra.NewMemoryBackend(infra.WithMemoryClock(clock.Now))
	stats := infra.NewMemoryStatsStore()
	return &fixture{
		clock:   clock,
		backend: backend,
		stats:   stats,
		queue: Queue{
			Backend:    backend,
			Stats:      stats,
			Log:        zerolog.Nop(),
			Retry:      Retry{Attempts: 3},
			WaitingTTL: 10 * time.Second,
			ActiveTTL:  10 * time.Minute,
			Now:        clock.Now,
		},
		cycle: Cycle{
			Backend:   backend,
			Stats:     stats,
			Guard:     infra.NewChanGuard(),
			Log:       zerolog.Nop(),
			MaxActive: maxActive,
			ActiveTTL: 10 * time.Minute,
			Now:       clock.Now,
		},
	}
}

// join avança o relógio antes, para que cada cliente tenha score de chegada maior.
func (f *fixture) join(t *testing.T, id domain.ClientID) domain.Status {
	t.Helper()
	f.clock.Advance(time.Millisecond)
	st, err := f.queue.Join(context.Background(), id)
	if err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return st
}

func (f *fixture) status(t *testing.T, id domain.ClientID) domain.Status {
	t.Helper()
	st, err := f.queue.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("status %s: %v", id, err)
	}
	return st
}

var errStoreDown = errors.New("store down")

// flakyBackend falha as primeiras `fails` leituras de liveness ativa e
// qualquer Admit do cliente `poison`.
type flakyBackend struct {
	domain.Backend
	fails  atomic.Int32
	calls  atomic.Int32
	poison domain.ClientID
}

func (b *flakyBackend) IsAliveActive(ctx context.Context, id domain.ClientID) (bool, error) {
	b.calls.Add(1)
	if b.fails.Add(-1) >= 0 {
		return false, errStoreDown
	}
	return b.Backend.IsAliveActive(ctx, id)
}

func (b *flakyBackend) Admit(ctx context.Context, id domain.ClientID, ttl time.Duration) error {
	if id == b.poison {
		return errStoreDown
	}
	return b.Backend.Admit(ctx, id, ttl)
}

// promoteOnEnqueue simula um ciclo que promove o cliente entre a checagem de
// ACTIVE do join e o Enqueue.
type promoteOnEnqueue struct {
	domain.Backend
}

func (b promoteOnEnqueue) Enqueue(ctx context.Context, id domain.ClientID, arrival float64) (bool, error) {
	if err := b.Backend.Admit(ctx, id, time.Minute); err != nil {
		return false, err
	}
	return b.Backend.Enqueue(ctx, id, arrival)
}

// recordingStats guarda os eventos na ordem em que chegam.
type recordingStats struct {
	mu     sync.Mutex
	events []domain.QueueEvent
}

func (s *recordingStats) Record(_ context.Context, ev domain.QueueEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingStats) Totals(context.Context) (map[domain.EventKind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.EventKind]int64)
	for _, ev := range s.events {
		out[ev.Kind]++
	}
	return out, nil
}

func (s *recordingStats) snapshot() []domain.QueueEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.QueueEvent(nil), s.events...)
}
