package waitroom

import (
	"net/http"
	"strings"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/google/uuid"
)

// ClientIDFunc extrai o identificador do cliente da requisição.
// Pode gravar um cookie em w quando gera um id novo.
type ClientIDFunc func(w http.ResponseWriter, r *http.Request) (domain.ClientID, bool)

type IdentityOptions struct {
	// QueryParam padrão: "userId".
	QueryParam string
	// Header opcional (ex: "X-Client-Id").
	Header string
	// Cookie padrão: "wr_client".
	Cookie string
	// Mint gera um UUID e grava o cookie quando nada foi informado.
	Mint         bool
	CookieSecure bool
}

func (o IdentityOptions) withDefaults() IdentityOptions {
	if o.QueryParam == "" {
		o.QueryParam = "userId"
	}
	if o.Cookie == "" {
		o.Cookie = "wr_client"
	}
	return o
}

// DefaultClientIDFunc procura nesta ordem: query, header, cookie.
// Sem nada e com Mint=true, cria um id de sessão.
func DefaultClientIDFunc(opts IdentityOptions) ClientIDFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) (domain.ClientID, bool) {
		if v := strings.TrimSpace(r.URL.Query().Get(opts.QueryParam)); v != "" {
			return domain.ClientID(v), true
		}
		if opts.Header != "" {
			if v := strings.TrimSpace(r.Header.Get(opts.Header)); v != "" {
				return domain.ClientID(v), true
			}
		}
		if c, err := r.Cookie(opts.Cookie); err == nil {
			if v := strings.TrimSpace(c.Value); v != "" {
				return domain.ClientID(v), true
			}
		}
		if !opts.Mint || w == nil {
			return "", false
		}

		id := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     opts.Cookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   opts.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		return domain.ClientID(id), true
	}
}
