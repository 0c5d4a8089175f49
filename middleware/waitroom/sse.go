package waitroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"
)

// subscribe entra na fila e empurra o estado via SSE a cada PushInterval.
//
// Enquanto o stream está aberto cada envio vale como heartbeat (Poll).
// O stream termina depois de enviar ACTIVE. Se o cliente desconectar antes
// disso, ele sai da fila.
func (h *handler) subscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.opts.ClientID(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing client id")
		return
	}

	rc := http.NewResponseController(w)
	ctx := r.Context()

	st, err := h.opts.Queue.Join(ctx, id)
	if errors.Is(err, domain.ErrInvalidClientID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// o stream não pode herdar o ReadTimeout/WriteTimeout do servidor: o
	// deadline de leitura vencido cancela r.Context() e tiraria o cliente
	// da fila no meio da espera
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(st domain.Status) error {
		if err := writeEvent(w, id, st); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(st); err != nil {
		h.opts.Log.Debug().Err(err).Str("client", string(id)).Msg("sse write failed")
		return
	}
	if st.State == domain.StateActive {
		return
	}

	t := time.NewTicker(h.opts.PushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.leaveOnDisconnect(ctx, id)
			return
		case <-t.C:
			st, _ = h.opts.Queue.Poll(ctx, id)
			if err := send(st); err != nil {
				h.leaveOnDisconnect(ctx, id)
				return
			}
			if st.State == domain.StateActive {
				return
			}
		}
	}
}

func (h *handler) leaveOnDisconnect(ctx context.Context, id domain.ClientID) {
	leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	// uma vaga ativa conquistada no meio da desconexão não é liberada aqui
	st, _ := h.opts.Queue.LeaveWaiting(leaveCtx, id)
	if st.State == domain.StateUnavailable {
		h.opts.Log.Warn().Str("client", string(id)).Msg("leave on disconnect failed")
		return
	}
	h.opts.Log.Debug().Str("client", string(id)).Msg("sse disconnected")
}

func writeEvent(w io.Writer, id domain.ClientID, st domain.Status) error {
	data, err := json.Marshal(newStatusResponse(id, st))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: queue-status\ndata: %s\n\n", id, data)
	return err
}
