package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

type Config struct {
	Port string `env:"SERVICE_PORT" envDefault:"8090"`
	// ServiceToken, when set, is the bearer token the platform gateway must present.
	ServiceToken string `env:"SERVICE_TOKEN"`

	StoreBackend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	MongoURL      string `env:"MONGO_URL"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"relationships"`
	// SeedFile is a JSON memstore.Seed loaded by the memory backend.
	SeedFile string `env:"SEED_FILE"`

	DirectoryURL     string        `env:"DIRECTORY_URL" envDefault:"http://localhost:9090"`
	DirectoryToken   string        `env:"DIRECTORY_TOKEN"`
	DirectoryTimeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"10s"`
	DirectoryRetries uint          `env:"DIRECTORY_RETRIES" envDefault:"3"`

	AgentURL               string        `env:"AGENT_URL" envDefault:"http://localhost:9091"`
	AgentSecret            string        `env:"AGENT_SECRET"`
	AgentTimeout           time.Duration `env:"AGENT_TIMEOUT" envDefault:"10s"`
	GatewayPushConcurrency int           `env:"GATEWAY_PUSH_CONCURRENCY" envDefault:"8"`

	// ReconcileInterval of zero disables the background sweep.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10m"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendMongo:
		if strings.TrimSpace(c.MongoURL) == "" {
			return fmt.Errorf("MONGO_URL is required for the %s backend", c.StoreBackend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.GatewayPushConcurrency <= 0 {
		return fmt.Errorf("GATEWAY_PUSH_CONCURRENCY must be positive")
	}
	if c.DirectoryRetries == 0 {
		return fmt.Errorf("DIRECTORY_RETRIES must be at least 1")
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
