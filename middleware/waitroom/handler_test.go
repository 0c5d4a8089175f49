package waitroom

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_JoinStatusAndPromotion(t *testing.T) {
	rm := newRoom(t, 1)
	h := NewHandler(HandlerOptions{Queue: rm.queue, Log: zerolog.Nop()})

	w := do(h, http.MethodPost, "/api/v1/queue/join?userId=a")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, statusResponse{ClientID: "a", State: "WAITING", Rank: 0}, decodeStatus(t, w))

	rm.clock.Advance(time.Millisecond)
	w = do(h, http.MethodPost, "/api/v1/queue/join?userId=b")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-Queue-Rank"))

	rm.cycle.RunOnce(context.Background())

	w = do(h, http.MethodGet, "/api/v1/queue/status?userId=a")
	assert.Equal(t, statusResponse{ClientID: "a", State: "ACTIVE", Rank: -1}, decodeStatus(t, w))
	w = do(h, http.MethodGet, "/api/v1/queue/rank?userId=b")
	assert.Equal(t, statusResponse{ClientID: "b", State: "WAITING", Rank: 0}, decodeStatus(t, w))

	w = do(h, http.MethodPost, "/api/v1/queue/heartbeat-active?userId=a")
	assert.Equal(t, "ACTIVE", decodeStatus(t, w).State)

	w = do(h, http.MethodPost, "/api/v1/queue/leave-active?userId=a")
	assert.Equal(t, "ABSENT", decodeStatus(t, w).State)

	rm.cycle.RunOnce(context.Background())
	w = do(h, http.MethodPost, "/api/v1/queue/poll?userId=b")
	assert.Equal(t, "ACTIVE", decodeStatus(t, w).State)
}

func TestHandler_HeartbeatAndLeave(t *testing.T) {
	rm := newRoom(t, 1)
	h := NewHandler(HandlerOptions{Queue: rm.queue})

	do(h, http.MethodPost, "/api/v1/queue/join?userId=a")

	w := do(h, http.MethodPost, "/api/v1/queue/heartbeat?userId=a")
	assert.Equal(t, statusResponse{ClientID: "a", State: "WAITING", Rank: 0}, decodeStatus(t, w))

	w = do(h, http.MethodPost, "/api/v1/queue/leave?userId=a")
	assert.Equal(t, "ABSENT", decodeStatus(t, w).State)
	assert.Equal(t, domain.Absent(), rm.status(t, "a"))

	w = do(h, http.MethodPost, "/api/v1/queue/heartbeat?userId=a")
	assert.Equal(t, "ABSENT", decodeStatus(t, w).State)
}

func TestHandler_MintsSessionIDWhenMissing(t *testing.T) {
	rm := newRoom(t, 1)
	h := NewHandler(HandlerOptions{Queue: rm.queue})

	w := do(h, http.MethodPost, "/api/v1/queue/join")
	require.Equal(t, http.StatusOK, w.Code)

	cookie := w.Header().Get("Set-Cookie")
	require.True(t, strings.HasPrefix(cookie, "wr_client="), cookie)
	got := decodeStatus(t, w)
	assert.NotEmpty(t, got.ClientID)
	assert.Equal(t, "WAITING", got.State)
}

func TestHandler_MissingIDWithoutMintIsBadRequest(t *testing.T) {
	rm := newRoom(t, 1)
	h := NewHandler(HandlerOptions{
		Queue:    rm.queue,
		ClientID: DefaultClientIDFunc(IdentityOptions{}),
	})

	w := do(h, http.MethodPost, "/api/v1/queue/join")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_UnavailableIs503(t *testing.T) {
	h := NewHandler(HandlerOptions{Queue: downQueue{}})

	w := do(h, http.MethodGet, "/api/v1/queue/status?userId=a")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", decodeStatus(t, w).State)
}

func TestHandler_WrongMethod(t *testing.T) {
	rm := newRoom(t, 1)
	h := NewHandler(HandlerOptions{Queue: rm.queue})

	w := do(h, http.MethodGet, "/api/v1/queue/join?userId=a")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, domain.Absent(), rm.status(t, "a"))
}
