// Package config provides environment-based configuration for kcasbin.
//
// Configuration is loaded from environment variables using Viper, with sensible
// defaults for development.
//
// # Environment Variables
//
//   - DB_TYPE: Store provider (sqlite, postgres, mysql, redis, memory). Default: sqlite
//   - DSN: Connection string for the provider. Default: kcasbin.db
//   - TABLE_NAME: Rule table, or key prefix for redis. Default: casbin_rule
//   - SKIP_AUTO_MIGRATE: Skip creating the rule table. Default: false
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: HTTP port for the admin API. Default: 8080
//   - TELEMETRY_ENABLED: Enable OpenTelemetry traces and metrics. Default: false
//   - OTLP_ENDPOINT: OTLP gRPC endpoint for traces. Default: empty (no export)
//
// # Example Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a, err := kcasbin.NewAdapter(cfg)
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	DBType           string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql, redis, memory
	DSN              string `mapstructure:"DSN"`
	TableName        string `mapstructure:"TABLE_NAME"`
	SkipAutoMigrate  bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	Port             int    `mapstructure:"PORT"`
	TelemetryEnabled bool   `mapstructure:"TELEMETRY_ENABLED"`
	OTLPEndpoint     string `mapstructure:"OTLP_ENDPOINT"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DSN", "kcasbin.db")
	v.SetDefault("TABLE_NAME", "casbin_rule")
	v.SetDefault("SKIP_AUTO_MIGRATE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	v.SetDefault("TELEMETRY_ENABLED", false)
	v.SetDefault("OTLP_ENDPOINT", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
