package waitroom

import (
	"encoding/json"
	"net/http"

	"waitroom-gateway/middleware/waitroom/domain"
)

type statusResponse struct {
	ClientID string `json:"clientId"`
	State    string `json:"state"`
	Rank     int64  `json:"rank"`
}

func newStatusResponse(id domain.ClientID, st domain.Status) statusResponse {
	return statusResponse{ClientID: string(id), State: st.State.String(), Rank: st.Rank}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeStatus responde 503 para UNAVAILABLE e 200 para os demais estados.
func writeStatus(w http.ResponseWriter, id domain.ClientID, st domain.Status) {
	w.Header().Set("X-Queue-State", st.State.String())
	if st.State == domain.StateWaiting {
		w.Header().Set("X-Queue-Rank", formatInt64(st.Rank))
	}
	code := http.StatusOK
	if st.State == domain.StateUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, newStatusResponse(id, st))
}
