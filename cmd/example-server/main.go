package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitroom-gateway/internal/logging"
	"waitroom-gateway/middleware/waitroom"
	"waitroom-gateway/middleware/waitroom/application"
	"waitroom-gateway/middleware/waitroom/infra"
)

func main() {
	// Exemplo: sala de espera embutida no próprio webserver (sem proxy e sem
	// Redis). Só 2 clientes usam /app ao mesmo tempo; o resto espera na fila.
	log, err := logging.New(os.Getenv("LOG_LEVEL"), "console", os.Stderr)
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend := infra.NewMemoryBackend()
	stats := infra.NewMemoryStatsStore()

	queue := application.Queue{
		Backend:    backend,
		Stats:      stats,
		Log:        log,
		WaitingTTL: 10 * time.Second,
		ActiveTTL:  2 * time.Minute,
	}
	cycle := application.Cycle{
		Backend:   backend,
		Stats:     stats,
		Guard:     infra.NewChanGuard(),
		Log:       log,
		MaxActive: 2,
		ActiveTTL: 2 * time.Minute,
		Interval:  2 * time.Second,
	}
	cycle.Start(ctx)

	limiter := infra.NewLimiter(5, 10)
	limiter.StartJanitor(ctx)

	clientID := waitroom.DefaultClientIDFunc(waitroom.IdentityOptions{Mint: true})

	mux := http.NewServeMux()
	mux.Handle("/api/v1/queue/", waitroom.Throttle(waitroom.ThrottleOptions{
		Limiter:             limiter,
		AddRateLimitHeaders: true,
		Log:                 log,
	})(waitroom.NewHandler(waitroom.HandlerOptions{
		Queue:    queue,
		ClientID: clientID,
		Log:      log,
	})))
	mux.Handle("/api/v1/admin/", waitroom.NewAdminHandler(waitroom.AdminOptions{
		Queue: queue,
		Stats: stats,
		Log:   log,
	}))

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok " + r.Header.Get(waitroom.ClientHeader) + "\n"))
	})
	mux.Handle("/app/", waitroom.Gate(waitroom.GateOptions{
		Queue:    queue,
		ClientID: clientID,
		Log:      log,
	})(app))

	addr := ":8082"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Int("maxActive", cycle.MaxActive).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
