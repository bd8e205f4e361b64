// Package config loads the bot configuration from, in order of
// precedence: defaults, a YAML file, RECALL_-prefixed environment
// variables, and command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "RECALL_"

// Config is the full runtime configuration.
type Config struct {
	Telegram struct {
		Token string `koanf:"token" validate:"required"`
	} `koanf:"telegram"`

	Database struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"database"`

	Review struct {
		// Batch caps how many due cards one session takes on; 0 means
		// no cap.
		Batch int `koanf:"batch" validate:"gte=0"`
	} `koanf:"review"`

	Sync struct {
		// Repos is the checkout directory for git deck sources.
		Repos string `koanf:"repos" validate:"required"`
		// Interval between background sync runs; 0 disables them.
		Interval time.Duration `koanf:"interval" validate:"gte=0"`
	} `koanf:"sync"`

	// Timezone is the location used for every due-date calculation.
	Timezone string `koanf:"timezone" validate:"required"`

	Log struct {
		Level string `koanf:"level" validate:"oneof=debug info warn error"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"database.path": "recall.db",
		"review.batch":  20,
		"sync.repos":    "repos",
		"sync.interval": time.Hour,
		"timezone":      "UTC",
		"log.level":     "info",
	}
}

// Load builds the configuration. flags may carry overrides for any
// dotted key plus a "config" flag naming a YAML file.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		path := f.Value.String()
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps the configured level name to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
