package waitroom

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
)

// KeyFunc escolhe a chave de rate limit (IP, header, ...).
type KeyFunc func(r *http.Request) string

// Allower decide se a chave ainda tem crédito (infra.Limiter implementa).
type Allower interface {
	Allow(key string) bool
}

type ThrottleOptions struct {
	Limiter             Allower
	// Stats é opcional; recusas viram domain.EventThrottled (best-effort).
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Log                 zerolog.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Throttle limita a frequência de chamadas por chave nos endpoints da fila,
// para que polling agressivo não sobrecarregue o backend.
func Throttle(opts ThrottleOptions) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				if ri, ok := opts.Limiter.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			if !opts.Limiter.Allow(key) {
				opts.Log.Debug().Str("key", key).Str("path", r.URL.Path).Msg("throttled")
				if opts.Stats != nil {
					ev := domain.QueueEvent{Kind: domain.EventThrottled, At: time.Now()}
					_ = opts.Stats.Record(context.WithoutCancel(r.Context()), ev)
				}
				w.Header().Set("Retry-After", formatInt(int(opts.RetryAfter.Seconds())))
				writeError(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
