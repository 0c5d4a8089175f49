package waitroom

import (
	"net/http"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
)

// ClientHeader é repassado ao upstream com o id do cliente admitido.
const ClientHeader = "X-Waitroom-Client"

type GateOptions struct {
	Queue    Facade
	ClientID ClientIDFunc
	Log      zerolog.Logger

	// WaitURL, se definido, recebe um redirect (303) para GETs de clientes
	// que ainda não estão ACTIVE. Caso contrário responde 403 com o estado.
	WaitURL string
}

// Gate só deixa passar clientes ACTIVE. Cada requisição admitida conta como
// heartbeat-active (estende a vaga).
func Gate(opts GateOptions) func(next http.Handler) http.Handler {
	if opts.ClientID == nil {
		opts.ClientID = DefaultClientIDFunc(IdentityOptions{})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := opts.ClientID(nil, r)
			var st domain.Status
			if ok {
				st, _ = opts.Queue.HeartbeatActive(r.Context(), id)
			} else {
				st = domain.Absent()
			}

			switch st.State {
			case domain.StateActive:
				r.Header.Set(ClientHeader, string(id))
				next.ServeHTTP(w, r)
				return
			case domain.StateUnavailable:
				writeStatus(w, id, st)
				return
			}

			opts.Log.Debug().Str("client", string(id)).Stringer("state", st.State).Str("path", r.URL.Path).Msg("gate rejected")
			if opts.WaitURL != "" && r.Method == http.MethodGet {
				http.Redirect(w, r, opts.WaitURL, http.StatusSeeOther)
				return
			}
			w.Header().Set("X-Queue-State", st.State.String())
			writeJSON(w, http.StatusForbidden, newStatusResponse(id, st))
		})
	}
}
