package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "@every 5m", cfg.Sweep.Schedule)
	assert.Equal(t, 30*time.Second, cfg.Sweep.SettleTimeout)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A config file selecting postgres with a 1m schedule
	// AND: An env var overriding the schedule
	// WHEN: Loading
	// THEN: File values apply, env wins where both are set

	path := writeFile(t, `
store:
  driver: postgres
  postgres_dsn: postgres://localhost/invest
sweep:
  schedule: "@every 1m"
  settle_timeout: 10s
events:
  driver: kafka
  kafka_brokers: ["k1:9092", "k2:9092"]
`)
	t.Setenv("INVEST_SWEEP_SCHEDULE", "@every 30s")
	t.Setenv("INVEST_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/invest", cfg.Store.PostgresDSN)
	assert.Equal(t, "@every 30s", cfg.Sweep.Schedule)
	assert.Equal(t, 10*time.Second, cfg.Sweep.SettleTimeout)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	// untouched keys keep their defaults
	assert.Equal(t, 4, cfg.Sweep.Concurrency)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"memory store", func(c *Config) { c.Store.Driver = "memory" }, ""},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "postgres_dsn"},
		{"kafka without brokers", func(c *Config) { c.Events.Driver = "kafka" }, "kafka_brokers"},
		{"all without brokers", func(c *Config) { c.Events.Driver = "all" }, "kafka_brokers"},
		{"unknown events", func(c *Config) { c.Events.Driver = "nats" }, "unknown events driver"},
		{"negative concurrency", func(c *Config) { c.Sweep.Concurrency = -1 }, "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
