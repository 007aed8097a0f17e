package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "./data/settlex.db", cfg.DBPath)
	assert.Equal(t, "settlex.payments", cfg.NATSSubject)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlex.yaml")
	content := []byte("store: memory\naddr: \":9090\"\ntoken_ttl: 2h\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("SETTLEX_ADDR", ":7070")
	t.Setenv("SETTLEX_JWT_SECRET", "from-env")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ":7070", cfg.Addr, "env overrides file")
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Store: StoreSQLite, DBPath: "x.db", TokenTTL: time.Hour, SweepInterval: time.Hour}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid sqlite", func(*Config) {}, false},
		{"memory needs nothing", func(c *Config) { c.Store = StoreMemory; c.DBPath = "" }, false},
		{"unknown store", func(c *Config) { c.Store = "postgres" }, true},
		{"sqlite without path", func(c *Config) { c.DBPath = "" }, true},
		{"redis without url", func(c *Config) { c.Store = StoreRedis }, true},
		{"zero token ttl", func(c *Config) { c.TokenTTL = 0 }, true},
		{"sweeper disabled", func(c *Config) { c.SweepInterval = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
