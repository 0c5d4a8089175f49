package waitroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"waitroom-gateway/middleware/waitroom/application"
	"waitroom-gateway/middleware/waitroom/domain"
	"waitroom-gateway/middleware/waitroom/infra"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
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

type room struct {
	clock   *testClock
	backend *infra.MemoryBackend
	stats   *infra.MemoryStatsStore
	queue   application.Queue
	cycle   application.Cycle
}

func newRoom(t *testing.T, maxActive int) *room {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	backend := infra.NewMemoryBackend(infra.WithMemoryClock(clock.Now))
	stats := infra.NewMemoryStatsStore()
	return &room{
		clock:   clock,
		backend: backend,
		stats:   stats,
		queue: application.Queue{
			Backend:    backend,
			Stats:      stats,
			Log:        zerolog.Nop(),
			Retry:      application.Retry{Attempts: 2},
			WaitingTTL: 10 * time.Second,
			ActiveTTL:  10 * time.Minute,
			Now:        clock.Now,
		},
		cycle: application.Cycle{
			Backend:   backend,
			Stats:     stats,
			Log:       zerolog.Nop(),
			MaxActive: maxActive,
			ActiveTTL: 10 * time.Minute,
			Now:       clock.Now,
		},
	}
}

func (rm *room) join(t *testing.T, id domain.ClientID) {
	t.Helper()
	rm.clock.Advance(time.Millisecond)
	_, err := rm.queue.Join(context.Background(), id)
	require.NoError(t, err)
}

func (rm *room) status(t *testing.T, id domain.ClientID) domain.Status {
	t.Helper()
	st, err := rm.queue.Status(context.Background(), id)
	require.NoError(t, err)
	return st
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var got statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	return got
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// downQueue responde UNAVAILABLE para tudo.
type downQueue struct{}

func (downQueue) Join(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) Poll(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) HeartbeatWait(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) HeartbeatActive(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) Status(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) Rank(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) Leave(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) LeaveWaiting(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
func (downQueue) LeaveActive(context.Context, domain.ClientID) (domain.Status, error) {
	return domain.Unavailable(), nil
}
