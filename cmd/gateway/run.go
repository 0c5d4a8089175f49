package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"waitroom-gateway/internal/config"
	"waitroom-gateway/internal/logging"
	"waitroom-gateway/middleware/waitroom"
	"waitroom-gateway/middleware/waitroom/application"
	"waitroom-gateway/middleware/waitroom/domain"
	"waitroom-gateway/middleware/waitroom/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, err = rdb.Ping(pingCtx).Result()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}

	backend := infra.NewRedisBackend(rdb, infra.WithQueuePrefix(cfg.KeyPrefix()))

	var stats domain.StatsStore
	if cfg.Stats.Enabled {
		stats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.KeyPrefix()+":stats"),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
		)
	} else {
		// contadores só do processo, ainda visíveis no /stats
		stats = infra.NewMemoryStatsStore()
	}

	queue := application.Queue{
		Backend: backend,
		Stats:   stats,
		Log:     log.With().Str("component", "queue").Logger(),
		Retry: application.Retry{
			Attempts: cfg.Queue.StoreAttempts,
			Timeout:  cfg.Queue.StoreTimeout,
			Backoff:  50 * time.Millisecond,
		},
		WaitingTTL: cfg.Queue.WaitingTTL,
		ActiveTTL:  cfg.Queue.ActiveTTL,
	}

	cycle := application.Cycle{
		Backend:       backend,
		Stats:         stats,
		Guard:         infra.NewChanGuard(),
		Log:           log.With().Str("component", "cycle").Logger(),
		MaxActive:     cfg.Queue.MaxActive,
		ActiveTTL:     cfg.Queue.ActiveTTL,
		Interval:      cfg.Queue.CycleInterval,
		Timeout:       cfg.Queue.StoreTimeout,
		AdmitAttempts: cfg.Queue.StoreAttempts,
	}

	h, err := newMux(ctx, cfg, log, queue, stats, backend)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("upstream", cfg.UpstreamURL).
		Str("redis", cfg.Redis.Addr).
		Str("prefix", cfg.KeyPrefix()).
		Int("maxActive", cfg.Queue.MaxActive).
		Dur("waitingTTL", cfg.Queue.WaitingTTL).
		Dur("activeTTL", cfg.Queue.ActiveTTL).
		Float64("throttleRPS", cfg.Throttle.RPS).
		Int("throttleBurst", cfg.Throttle.Burst).
		Bool("stats", cfg.Stats.Enabled).
		Msg("gateway listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cycle.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("gateway stopped")
		return err
	}
	log.Info().Msg("gateway stopped")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newMux(ctx context.Context, cfg config.Config, log zerolog.Logger, queue application.Queue, stats domain.StatsStore, health pinger) (http.Handler, error) {
	clientID := waitroom.DefaultClientIDFunc(waitroom.IdentityOptions{
		Header:       cfg.ClientIDHeader,
		Mint:         true,
		CookieSecure: cfg.CookieSecure,
	})

	var limiter waitroom.Allower
	if cfg.Throttle.RPS > 0 {
		l := infra.NewLimiter(cfg.Throttle.RPS, cfg.Throttle.Burst)
		l.StartJanitor(ctx)
		limiter = l
	}

	mux := http.NewServeMux()

	api := waitroom.NewHandler(waitroom.HandlerOptions{
		Queue:        queue,
		ClientID:     clientID,
		Log:          log.With().Str("component", "api").Logger(),
		PushInterval: cfg.Queue.PushInterval,
	})
	mux.Handle("/api/v1/queue/", waitroom.Throttle(waitroom.ThrottleOptions{
		Limiter:             limiter,
		Stats:               stats,
		KeyHeader:           cfg.ClientIDHeader,
		TrustXForwardedFor:  cfg.Throttle.TrustXFF,
		RetryAfter:          cfg.Throttle.RetryAfter,
		AddRateLimitHeaders: true,
		Log:                 log,
	})(api))

	if cfg.AdminEnabled {
		mux.Handle("/api/v1/admin/", waitroom.NewAdminHandler(waitroom.AdminOptions{
			Queue: queue,
			Stats: stats,
			Log:   log.With().Str("component", "admin").Logger(),
		}))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := health.Ping(pingCtx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})

	if cfg.UpstreamURL == "" {
		return mux, nil
	}

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("proxy error")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	mux.Handle("/", waitroom.Gate(waitroom.GateOptions{
		Queue:    queue,
		ClientID: clientID,
		Log:      log.With().Str("component", "gate").Logger(),
		WaitURL:  cfg.WaitURL,
	})(proxy))
	return mux, nil
}
