package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("default port: got %q, want 8080", cfg.Port)
	}
	if cfg.Store != "bigquery" {
		t.Errorf("default store: got %q, want bigquery", cfg.Store)
	}
	if cfg.SettingsCache == "" {
		t.Error("default settings cache path missing")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAKEIBO_PORT", "9090")
	t.Setenv("KAKEIBO_BACKEND_URL", "https://backend.example.com")
	t.Setenv("KAKEIBO_STORE", "postgres")
	t.Setenv("KAKEIBO_POSTGRES_HOST", "db.internal")
	t.Setenv("KAKEIBO_POSTGRES_PORT", "5433")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port: got %q", cfg.Port)
	}
	if cfg.BackendURL != "https://backend.example.com" {
		t.Errorf("backend url: got %q", cfg.BackendURL)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 5433 {
		t.Errorf("postgres config: got %+v", cfg.Postgres)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		BackendURL:    "https://backend.example.com",
		SessionSecret: "secret",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"bigquery complete", func(c *Config) {
			c.Store = "bigquery"
			c.GCPProject = "proj"
			c.BQDataset = "kakeibo"
		}, false},
		{"bigquery missing dataset", func(c *Config) {
			c.Store = "bigquery"
			c.GCPProject = "proj"
		}, true},
		{"postgres complete", func(c *Config) {
			c.Store = "postgres"
			c.Postgres = PostgresConfig{Host: "db", Database: "kakeibo", User: "app"}
		}, false},
		{"postgres missing user", func(c *Config) {
			c.Store = "postgres"
			c.Postgres = PostgresConfig{Host: "db", Database: "kakeibo"}
		}, true},
		{"unknown store", func(c *Config) {
			c.Store = "redis"
		}, true},
		{"missing backend url", func(c *Config) {
			c.Store = "bigquery"
			c.GCPProject = "proj"
			c.BQDataset = "kakeibo"
			c.BackendURL = ""
		}, true},
		{"missing session secret", func(c *Config) {
			c.Store = "bigquery"
			c.GCPProject = "proj"
			c.BQDataset = "kakeibo"
			c.SessionSecret = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: got %v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
