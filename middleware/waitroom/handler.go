package waitroom

import (
	"context"
	"errors"
	"net/http"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
)

// Facade é o que os handlers precisam da fila (application.Queue implementa).
type Facade interface {
	Join(ctx context.Context, id domain.ClientID) (domain.Status, error)
	Poll(ctx context.Context, id domain.ClientID) (domain.Status, error)
	HeartbeatWait(ctx context.Context, id domain.ClientID) (domain.Status, error)
	HeartbeatActive(ctx context.Context, id domain.ClientID) (domain.Status, error)
	Status(ctx context.Context, id domain.ClientID) (domain.Status, error)
	Rank(ctx context.Context, id domain.ClientID) (domain.Status, error)
	Leave(ctx context.Context, id domain.ClientID) (domain.Status, error)
	LeaveWaiting(ctx context.Context, id domain.ClientID) (domain.Status, error)
	LeaveActive(ctx context.Context, id domain.ClientID) (domain.Status, error)
}

type HandlerOptions struct {
	Queue    Facade
	ClientID ClientIDFunc
	Log      zerolog.Logger

	// Prefix padrão: "/api/v1/queue".
	Prefix string
	// PushInterval é o intervalo de envio do SSE (padrão 1s).
	PushInterval time.Duration
}

// NewHandler monta as rotas da API de clientes:
//
//	POST {prefix}/join              entra na fila
//	POST {prefix}/poll              join + heartbeat num passo só
//	POST {prefix}/heartbeat         renova o lugar na fila
//	POST {prefix}/heartbeat-active  renova a vaga ativa
//	GET  {prefix}/status            estado atual (não altera nada)
//	GET  {prefix}/rank              posição na fila
//	POST {prefix}/leave             sai da fila ou da vaga
//	POST {prefix}/leave-active      libera a vaga ativa
//	GET  {prefix}/subscribe         SSE com o estado a cada PushInterval
func NewHandler(opts HandlerOptions) http.Handler {
	if opts.Prefix == "" {
		opts.Prefix = "/api/v1/queue"
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	if opts.ClientID == nil {
		opts.ClientID = DefaultClientIDFunc(IdentityOptions{Mint: true})
	}

	h := &handler{opts: opts}
	mux := http.NewServeMux()
	p := opts.Prefix
	mux.HandleFunc("POST "+p+"/join", h.op(opts.Queue.Join))
	mux.HandleFunc("POST "+p+"/poll", h.op(opts.Queue.Poll))
	mux.HandleFunc("POST "+p+"/heartbeat", h.op(opts.Queue.HeartbeatWait))
	mux.HandleFunc("POST "+p+"/heartbeat-active", h.op(opts.Queue.HeartbeatActive))
	mux.HandleFunc("GET "+p+"/status", h.op(opts.Queue.Status))
	mux.HandleFunc("GET "+p+"/rank", h.op(opts.Queue.Rank))
	mux.HandleFunc("POST "+p+"/leave", h.op(opts.Queue.Leave))
	mux.HandleFunc("POST "+p+"/leave-active", h.op(opts.Queue.LeaveActive))
	mux.HandleFunc("GET "+p+"/subscribe", h.subscribe)
	return mux
}

type handler struct {
	opts HandlerOptions
}

type queueOp func(ctx context.Context, id domain.ClientID) (domain.Status, error)

func (h *handler) op(fn queueOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.opts.ClientID(w, r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing client id")
			return
		}

		st, err := fn(r.Context(), id)
		if errors.Is(err, domain.ErrInvalidClientID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			h.opts.Log.Error().Err(err).Str("path", r.URL.Path).Msg("queue operation failed")
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}
		writeStatus(w, id, st)
	}
}
