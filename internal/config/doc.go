// Package config carrega a configuração do gateway da sala de espera.
//
// Precedência: Default() < arquivo YAML (Load) < variáveis de ambiente
// (FromEnv) < flags do cmd/gateway.
//
//	cfg, err := config.Load(os.Getenv("WAITROOM_CONFIG"))
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { ... }
package config
