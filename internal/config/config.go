// Package config loads the gateway configuration from environment
// variables.
package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the application configuration loaded from environment
// variables.
type Config struct {
	// Port is the HTTP listen port of the gateway.
	// Environment variable: KAKEIBO_PORT
	Port string `koanf:"KAKEIBO_PORT"`

	// BackendURL is the base URL of the extraction backend.
	// Environment variable: KAKEIBO_BACKEND_URL
	BackendURL string `koanf:"KAKEIBO_BACKEND_URL"`

	// SessionSecret is the HS256 key the session provider signs tokens with.
	// Environment variable: KAKEIBO_SESSION_SECRET
	SessionSecret string `koanf:"KAKEIBO_SESSION_SECRET"`

	// Store selects the record store backend: "bigquery" or "postgres".
	// Environment variable: KAKEIBO_STORE
	Store string `koanf:"KAKEIBO_STORE"`

	// GCPProject is the project hosting the BigQuery dataset.
	// Environment variable: KAKEIBO_GCP_PROJECT
	GCPProject string `koanf:"KAKEIBO_GCP_PROJECT"`

	// BQDataset is the BigQuery dataset holding the tables.
	// Environment variable: KAKEIBO_BQ_DATASET
	BQDataset string `koanf:"KAKEIBO_BQ_DATASET"`

	// PreviewBucket is the GCS bucket for receipt image previews.
	// Empty disables the archive; previews fall back to in-memory refs.
	// Environment variable: KAKEIBO_PREVIEW_BUCKET
	PreviewBucket string `koanf:"KAKEIBO_PREVIEW_BUCKET"`

	// SettingsCache is the path of the local settings cache file.
	// Environment variable: KAKEIBO_SETTINGS_CACHE
	SettingsCache string `koanf:"KAKEIBO_SETTINGS_CACHE"`

	// AuthRevokeURL is the provider endpoint that revokes sessions on
	// logout. Empty disables revocation.
	// Environment variable: KAKEIBO_AUTH_REVOKE_URL
	AuthRevokeURL string `koanf:"KAKEIBO_AUTH_REVOKE_URL"`

	// Postgres holds the connection settings for the postgres store.
	Postgres PostgresConfig `koanf:",squash"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"KAKEIBO_POSTGRES_HOST"`
	Port     int    `koanf:"KAKEIBO_POSTGRES_PORT"`
	Database string `koanf:"KAKEIBO_POSTGRES_DB"`
	User     string `koanf:"KAKEIBO_POSTGRES_USER"`
	Password string `koanf:"KAKEIBO_POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"KAKEIBO_POSTGRES_SSLMODE"`
}

// Load reads the configuration from the environment and applies
// defaults.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Store == "" {
		cfg.Store = "bigquery"
	}
	if cfg.SettingsCache == "" {
		cfg.SettingsCache = "data/settings_cache.json"
	}
	return &cfg, nil
}

// Validate checks the settings the selected store and backend require.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("config: KAKEIBO_BACKEND_URL is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("config: KAKEIBO_SESSION_SECRET is required")
	}
	switch c.Store {
	case "bigquery":
		if c.GCPProject == "" || c.BQDataset == "" {
			return fmt.Errorf("config: bigquery store needs KAKEIBO_GCP_PROJECT and KAKEIBO_BQ_DATASET")
		}
	case "postgres":
		if c.Postgres.Host == "" || c.Postgres.Database == "" || c.Postgres.User == "" {
			return fmt.Errorf("config: postgres store needs KAKEIBO_POSTGRES_HOST, KAKEIBO_POSTGRES_DB and KAKEIBO_POSTGRES_USER")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	return nil
}
