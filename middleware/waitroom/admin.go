package waitroom

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
)

// AdminFacade é a parte administrativa da fila (application.Queue implementa).
type AdminFacade interface {
	ListWaiting(ctx context.Context, start, end int64) ([]domain.ClientID, error)
	ListActive(ctx context.Context) ([]domain.ClientID, error)
	ForceRemove(ctx context.Context, id domain.ClientID, kind domain.State) (bool, error)
}

type AdminOptions struct {
	Queue AdminFacade
	// Stats é opcional; sem ele /stats responde 404.
	Stats domain.StatsStore
	Log   zerolog.Logger

	// Prefix padrão: "/api/v1/admin".
	Prefix string
	// PageSize é o tamanho padrão da listagem de espera (padrão 50).
	PageSize int64
}

// NewAdminHandler monta as rotas de operação:
//
//	GET    {prefix}/waiting?start=0&end=49
//	GET    {prefix}/active
//	DELETE {prefix}/remove?userId=...&type=WAITING|ACTIVE
//	GET    {prefix}/stats
//
// Não há autenticação aqui: exponha apenas em rede interna ou atrás de
// outro middleware.
func NewAdminHandler(opts AdminOptions) http.Handler {
	if opts.Prefix == "" {
		opts.Prefix = "/api/v1/admin"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}

	a := &admin{opts: opts}
	mux := http.NewServeMux()
	p := opts.Prefix
	mux.HandleFunc("GET "+p+"/waiting", a.waiting)
	mux.HandleFunc("GET "+p+"/active", a.active)
	mux.HandleFunc("DELETE "+p+"/remove", a.remove)
	mux.HandleFunc("GET "+p+"/stats", a.stats)
	return mux
}

type admin struct {
	opts AdminOptions
}

type listResponse struct {
	Clients []string `json:"clients"`
	Count   int      `json:"count"`
}

func newListResponse(ids []domain.ClientID) listResponse {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return listResponse{Clients: out, Count: len(out)}
}

func (a *admin) waiting(w http.ResponseWriter, r *http.Request) {
	start, err := queryInt64(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := queryInt64(r, "end", start+a.opts.PageSize-1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}

	ids, err := a.opts.Queue.ListWaiting(r.Context(), start, end)
	if err != nil {
		a.unavailable(w, "list waiting", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(ids))
}

func (a *admin) active(w http.ResponseWriter, r *http.Request) {
	ids, err := a.opts.Queue.ListActive(r.Context())
	if err != nil {
		a.unavailable(w, "list active", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(ids))
}

type removeResponse struct {
	ClientID string `json:"clientId"`
	Type     string `json:"type"`
	Removed  bool   `json:"removed"`
}

func (a *admin) remove(w http.ResponseWriter, r *http.Request) {
	id := domain.ClientID(strings.TrimSpace(r.URL.Query().Get("userId")))
	kind, ok := domain.ParseState(r.URL.Query().Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be WAITING or ACTIVE")
		return
	}

	removed, err := a.opts.Queue.ForceRemove(r.Context(), id, kind)
	switch {
	case errors.Is(err, domain.ErrInvalidClientID):
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	case err != nil && !errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		a.unavailable(w, "force remove", err)
		return
	}
	writeJSON(w, http.StatusOK, removeResponse{ClientID: string(id), Type: kind.String(), Removed: removed})
}

func (a *admin) stats(w http.ResponseWriter, r *http.Request) {
	if a.opts.Stats == nil {
		writeError(w, http.StatusNotFound, "stats disabled")
		return
	}
	totals, err := a.opts.Stats.Totals(r.Context())
	if err != nil {
		a.unavailable(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (a *admin) unavailable(w http.ResponseWriter, op string, err error) {
	a.opts.Log.Warn().Err(err).Str("op", op).Msg("admin backend call failed")
	writeError(w, http.StatusServiceUnavailable, "backend unavailable")
}

func queryInt64(r *http.Request, key string, def int64) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
