package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv sobrepõe as variáveis de ambiente definidas. Valores inválidos são
// ignorados (fica o valor anterior).
func FromEnv(cfg *Config) {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.WaitURL = getenvDefault("WAIT_URL", cfg.WaitURL)

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Queue.Name = getenvDefault("QUEUE_NAME", cfg.Queue.Name)
	cfg.Queue.MaxActive = getenvIntDefault("MAX_ACTIVE", cfg.Queue.MaxActive)
	cfg.Queue.WaitingTTL = getenvDurationDefault("WAITING_TTL", cfg.Queue.WaitingTTL)
	cfg.Queue.ActiveTTL = getenvDurationDefault("ACTIVE_TTL", cfg.Queue.ActiveTTL)
	cfg.Queue.CycleInterval = getenvDurationDefault("CYCLE_INTERVAL", cfg.Queue.CycleInterval)
	cfg.Queue.PushInterval = getenvDurationDefault("PUSH_INTERVAL", cfg.Queue.PushInterval)
	cfg.Queue.StoreTimeout = getenvDurationDefault("STORE_TIMEOUT", cfg.Queue.StoreTimeout)
	cfg.Queue.StoreAttempts = getenvIntDefault("STORE_ATTEMPTS", cfg.Queue.StoreAttempts)

	cfg.Throttle.RPS = getenvFloatDefault("THROTTLE_RPS", cfg.Throttle.RPS)
	// com RPS < 1 e sem burst explícito, o burst padrão deixaria passar uma
	// rajada inicial grande demais.
	if burst, ok := getenvInt("THROTTLE_BURST"); ok {
		cfg.Throttle.Burst = burst
	} else if getenvIsSet("THROTTLE_RPS") && cfg.Throttle.RPS > 0 && cfg.Throttle.RPS < 1 {
		cfg.Throttle.Burst = 1
	}
	cfg.Throttle.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.Throttle.TrustXFF)
	cfg.Throttle.RetryAfter = getenvDurationDefault("RETRY_AFTER", cfg.Throttle.RetryAfter)

	cfg.Stats.Enabled = getenvBoolDefault("STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.TTL = getenvDurationDefault("STATS_TTL", cfg.Stats.TTL)
	cfg.Stats.Bucket = getenvDefault("STATS_BUCKET", cfg.Stats.Bucket)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.ClientIDHeader = getenvDefault("CLIENT_ID_HEADER", cfg.ClientIDHeader)
	cfg.CookieSecure = getenvBoolDefault("COOKIE_SECURE", cfg.CookieSecure)
	cfg.AdminEnabled = getenvBoolDefault("ADMIN_ENABLED", cfg.AdminEnabled)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
