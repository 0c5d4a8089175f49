package waitroom

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"
	"waitroom-gateway/middleware/waitroom/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_AllowsThenRejectsSameKey(t *testing.T) {
	lim := infra.NewLimiter(0.02, 1)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Throttle(ThrottleOptions{
		Limiter:             lim,
		RetryAfter:          1 * time.Second,
		AddRateLimitHeaders: true,
	})(next)

	// 1) primeira passa
	w1 := do(h, http.MethodPost, "http://example/api/v1/queue/poll?userId=a")
	require.Equal(t, http.StatusOK, w1.Code)
	assert.NotEmpty(t, w1.Header().Get("X-RateLimit-RPS"))
	assert.Equal(t, "1", w1.Header().Get("X-RateLimit-Burst"))

	// 2) segunda bloqueia (burst=1 e rps bem baixo)
	w2 := do(h, http.MethodPost, "http://example/api/v1/queue/poll?userId=a")
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "1", w2.Header().Get("Retry-After"))

	assert.Equal(t, 1, calls)
}

func TestThrottle_KeyByHeader(t *testing.T) {
	lim := infra.NewLimiter(0.02, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Throttle(ThrottleOptions{Limiter: lim, KeyHeader: "X-Api-Key"})(next)

	// chaves diferentes têm limiters próprios
	for _, key := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", key)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, key)
	}
	assert.Equal(t, 2, lim.Len())
}

func TestThrottle_RetryAfterUsesSeconds(t *testing.T) {
	lim := infra.NewLimiter(0.02, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Throttle(ThrottleOptions{Limiter: lim, RetryAfter: 2500 * time.Millisecond})(next)

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "http://example/").Code)
	w := do(h, http.MethodGet, "http://example/")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	// int(2.5s.Seconds()) == 2
	assert.Equal(t, "2", strings.TrimSpace(w.Header().Get("Retry-After")))
}

func TestThrottle_RecordsRejections(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Throttle(ThrottleOptions{Limiter: infra.NewLimiter(0.02, 1), Stats: stats})(next)

	for i := 0; i < 3; i++ {
		do(h, http.MethodGet, "http://example/")
	}
	assert.Equal(t, int64(2), stats.Get(domain.EventThrottled))
}

func TestThrottle_NilLimiterIsPassthrough(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	h := Throttle(ThrottleOptions{})(next)

	for i := 0; i < 5; i++ {
		do(h, http.MethodGet, "http://example/")
	}
	assert.Equal(t, 5, calls)
}

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	assert.Equal(t, "client-123", fn(r))
}

func TestDefaultKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	assert.Equal(t, "1.2.3.4", fn(r))
}

func TestDefaultKeyFunc_FallbacksToRemoteAddrHost(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"

	assert.Equal(t, "10.0.0.9", fn(r))
}
