package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"waitroom-gateway/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Waiting room gateway",
		Long: "Gateway de sala de espera: mantém a fila de clientes no Redis, admite até " +
			"MAX_ACTIVE clientes por vez e só deixa os ativos chegarem ao upstream.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.String("config", os.Getenv("WAITROOM_CONFIG"), "YAML config file")
	f.String("listen", "", "listen address (LISTEN_ADDR)")
	f.String("upstream", "", "protected upstream URL (UPSTREAM_URL)")
	f.String("redis-addr", "", "redis address (REDIS_ADDR)")
	f.String("queue", "", "queue name, key prefix queue:<name> (QUEUE_NAME)")
	f.Int("max-active", 0, "max simultaneous active clients (MAX_ACTIVE)")
	f.String("log-level", "", "debug|info|warn|error (LOG_LEVEL)")
	f.String("log-format", "", "json|console (LOG_FORMAT)")
	return cmd
}

// loadConfig aplica defaults < arquivo < env < flags e valida.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()

	path, _ := f.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	config.FromEnv(&cfg)

	strFlags := map[string]*string{
		"listen":     &cfg.ListenAddr,
		"upstream":   &cfg.UpstreamURL,
		"redis-addr": &cfg.Redis.Addr,
		"queue":      &cfg.Queue.Name,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
	}
	for name, dst := range strFlags {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	if f.Changed("max-active") {
		cfg.Queue.MaxActive, _ = f.GetInt("max-active")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
