package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string `yaml:"listenAddr"`
	UpstreamURL string `yaml:"upstreamURL"`
	// WaitURL recebe o redirect do gate para GETs de quem ainda não entrou.
	WaitURL string `yaml:"waitURL"`

	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Stats    StatsConfig    `yaml:"stats"`
	Log      LogConfig      `yaml:"log"`

	ClientIDHeader string `yaml:"clientIdHeader"`
	CookieSecure   bool   `yaml:"cookieSecure"`
	AdminEnabled   bool   `yaml:"adminEnabled"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	// Name vira o prefixo das chaves: queue:<name>.
	Name      string `yaml:"name"`
	MaxActive int    `yaml:"maxActive"`

	WaitingTTL    time.Duration `yaml:"waitingTTL"`
	ActiveTTL     time.Duration `yaml:"activeTTL"`
	CycleInterval time.Duration `yaml:"cycleInterval"`
	PushInterval  time.Duration `yaml:"pushInterval"`

	StoreTimeout  time.Duration `yaml:"storeTimeout"`
	StoreAttempts int           `yaml:"storeAttempts"`
}

type ThrottleConfig struct {
	// RPS <= 0 desliga o throttle.
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
	TrustXFF   bool          `yaml:"trustXFF"`
	RetryAfter time.Duration `yaml:"retryAfter"`
}

type StatsConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Bucket  string        `yaml:"bucket"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			Name:          "default",
			MaxActive:     100,
			WaitingTTL:    10 * time.Second,
			ActiveTTL:     10 * time.Minute,
			CycleInterval: 2 * time.Second,
			PushInterval:  1 * time.Second,
			StoreTimeout:  500 * time.Millisecond,
			StoreAttempts: 3,
		},
		Throttle: ThrottleConfig{
			RPS:        5,
			Burst:      10,
			RetryAfter: 1 * time.Second,
		},
		Stats: StatsConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
			Bucket:  "minute",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		AdminEnabled: true,
	}
}

// Load lê um arquivo YAML por cima dos defaults. path vazio = só defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// KeyPrefix é o prefixo das chaves Redis da fila.
func (c Config) KeyPrefix() string {
	return "queue:" + c.Queue.Name
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("LISTEN_ADDR is required"))
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if strings.TrimSpace(c.Queue.Name) == "" || strings.Contains(c.Queue.Name, ":") {
		errs = append(errs, errors.New("QUEUE_NAME must be non-empty and must not contain ':'"))
	}
	if c.Queue.MaxActive <= 0 {
		errs = append(errs, errors.New("MAX_ACTIVE must be > 0"))
	}
	if c.Queue.WaitingTTL <= 0 {
		errs = append(errs, errors.New("WAITING_TTL must be > 0"))
	}
	if c.Queue.ActiveTTL <= 0 {
		errs = append(errs, errors.New("ACTIVE_TTL must be > 0"))
	}
	if c.Queue.CycleInterval <= 0 {
		errs = append(errs, errors.New("CYCLE_INTERVAL must be > 0"))
	}
	// um marcador que vence antes do próximo ciclo expulsa quem está em dia
	if c.Queue.CycleInterval > 0 && c.Queue.WaitingTTL > 0 && c.Queue.WaitingTTL <= c.Queue.CycleInterval {
		errs = append(errs, errors.New("WAITING_TTL must be greater than CYCLE_INTERVAL"))
	}
	if c.Queue.PushInterval <= 0 {
		errs = append(errs, errors.New("PUSH_INTERVAL must be > 0"))
	}
	if c.Queue.StoreAttempts <= 0 {
		errs = append(errs, errors.New("STORE_ATTEMPTS must be > 0"))
	}
	if c.Throttle.RPS > 0 && c.Throttle.Burst <= 0 {
		errs = append(errs, errors.New("THROTTLE_BURST must be > 0 when THROTTLE_RPS > 0"))
	}
	if c.Stats.Bucket != "minute" && c.Stats.Bucket != "none" {
		errs = append(errs, fmt.Errorf("STATS_BUCKET must be minute or none, got %q", c.Stats.Bucket))
	}
	return errors.Join(errs...)
}
