// Package config loads settlex settings from defaults, an optional YAML file
// and SETTLEX_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. SETTLEX_DB_PATH.
const EnvPrefix = "SETTLEX"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds the settings for both the server and the CLI client.
type Config struct {
	Addr          string        `mapstructure:"addr"`
	Store         string        `mapstructure:"store"`
	DBPath        string        `mapstructure:"db_path"`
	RedisURL      string        `mapstructure:"redis_url"`
	NATSURL       string        `mapstructure:"nats_url"`
	NATSSubject   string        `mapstructure:"nats_subject"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ServerURL     string        `mapstructure:"server_url"`
	Token         string        `mapstructure:"token"`
}

var defaults = map[string]any{
	"addr":           ":8080",
	"store":          StoreSQLite,
	"db_path":        "./data/settlex.db",
	"redis_url":      "redis://localhost:6379/0",
	"nats_url":       "",
	"nats_subject":   "settlex.payments",
	"jwt_secret":     "",
	"token_ttl":      24 * time.Hour,
	"log_level":      "info",
	"log_format":     "tint",
	"sweep_interval": time.Hour,
	"server_url":     "http://localhost:8080",
	"token":          "",
}

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return errors.New("db_path is required for the sqlite store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required for the redis store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want sqlite, redis or memory)", c.Store)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative, got %s", c.SweepInterval)
	}
	return nil
}
