// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	DBURL    string `mapstructure:"DB_URL"`

	// GithubToken is optional: without it requests run against the anonymous
	// quota, which GitHub rate-limits much sooner.
	GithubToken  string `mapstructure:"GITHUB_TOKEN"`
	GithubAPIURL string `mapstructure:"GITHUB_API_URL"`

	IngestPerPage  int `mapstructure:"INGEST_PER_PAGE"`
	IngestMaxPages int `mapstructure:"INGEST_MAX_PAGES"`

	// SyncInterval drives the background refresher; zero disables it and
	// leaves re-ingestion entirely to operators or an external scheduler.
	SyncInterval time.Duration `mapstructure:"SYNC_INTERVAL"`
}

// LoadConfig reads configuration from an optional .env file and the
// environment.
func LoadConfig() (*Config, error) {
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("INGEST_PER_PAGE", 30)
	viper.SetDefault("INGEST_MAX_PAGES", 10)
	viper.SetDefault("SYNC_INTERVAL", "0")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // a missing .env file is fine

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.IngestPerPage < 1 || cfg.IngestPerPage > 100 {
		return nil, errors.New("INGEST_PER_PAGE must be between 1 and 100")
	}
	if cfg.IngestMaxPages < 1 {
		return nil, errors.New("INGEST_MAX_PAGES must be at least 1")
	}

	return &cfg, nil
}
