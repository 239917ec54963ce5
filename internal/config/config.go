package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config stores all configuration of the service. Values are read by viper
// from environment variables, with defaults suitable for local development.
type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	Env         string `mapstructure:"ENV"`
	ListenAddr  string `mapstructure:"LISTEN_ADDR"`

	// Store selects the persistence backend: "memory" or "postgres".
	Store string `mapstructure:"STORE"`

	// PostgreSQL configuration, used when Store is "postgres".
	DBHost        string `mapstructure:"DB_HOST"`
	DBPort        int    `mapstructure:"DB_PORT"`
	DBUser        string `mapstructure:"DB_USER"`
	DBPassword    string `mapstructure:"DB_PASSWORD"`
	DBName        string `mapstructure:"DB_NAME"`
	DBSSLMode     string `mapstructure:"DB_SSL_MODE"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	// Payment gateway configuration.
	GatewayAPIKey      string        `mapstructure:"GATEWAY_API_KEY"`
	GatewayFailureRate float64       `mapstructure:"GATEWAY_FAILURE_RATE"`
	GatewayLatency     time.Duration `mapstructure:"GATEWAY_LATENCY"`

	// CatalogSeedPath points at an optional JSON file of products loaded into
	// the memory store at startup.
	CatalogSeedPath string `mapstructure:"CATALOG_SEED_PATH"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVICE_NAME", "storefront")
	v.SetDefault("ENV", "dev")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("STORE", StoreMemory)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "storefront")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("GATEWAY_API_KEY", "sk_test_local")
	v.SetDefault("GATEWAY_FAILURE_RATE", 0.0)
	v.SetDefault("GATEWAY_LATENCY", 50*time.Millisecond)
	v.SetDefault("CATALOG_SEED_PATH", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	switch strings.ToLower(cfg.Store) {
	case StoreMemory, StorePostgres:
		cfg.Store = strings.ToLower(cfg.Store)
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", cfg.Store)
	}
	return &cfg, nil
}
