package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "path to config file")
	flags.String("database.path", "", "path to the sqlite database")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RECALL_TELEGRAM_TOKEN", "test-token")

	cfg, err := Load(newFlags())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Telegram.Token != "test-token" {
		t.Errorf("token = %q, want test-token", cfg.Telegram.Token)
	}
	if cfg.Database.Path != "recall.db" {
		t.Errorf("database path = %q, want recall.db", cfg.Database.Path)
	}
	if cfg.Review.Batch != 20 {
		t.Errorf("review batch = %d, want 20", cfg.Review.Batch)
	}
	if cfg.Sync.Interval != time.Hour {
		t.Errorf("sync interval = %v, want 1h", cfg.Sync.Interval)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("timezone = %q, want UTC", cfg.Timezone)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadMissingTokenFails(t *testing.T) {
	if _, err := Load(newFlags()); err == nil {
		t.Fatal("expected validation to reject a missing telegram token")
	}
}

func TestLoadFromFileAndEnvPrecedence(t *testing.T) {
	t.Setenv("RECALL_TELEGRAM_TOKEN", "env-token")
	t.Setenv("RECALL_REVIEW_BATCH", "5")

	confPath := filepath.Join(t.TempDir(), "recall.yml")
	content := "telegram:\n  token: file-token\nreview:\n  batch: 50\ntimezone: Europe/Dublin\n"
	if err := os.WriteFile(confPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	flags := newFlags()
	if err := flags.Parse([]string{"--config", confPath}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Env beats the file, the file beats defaults.
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Telegram.Token)
	}
	if cfg.Review.Batch != 5 {
		t.Errorf("review batch = %d, want 5", cfg.Review.Batch)
	}
	if cfg.Timezone != "Europe/Dublin" {
		t.Errorf("timezone = %q, want Europe/Dublin", cfg.Timezone)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location failed: %v", err)
	}
	if loc.String() != "Europe/Dublin" {
		t.Errorf("location = %q, want Europe/Dublin", loc)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Setenv("RECALL_TELEGRAM_TOKEN", "x")
	t.Setenv("RECALL_LOG_LEVEL", "loud")

	if _, err := Load(newFlags()); err == nil {
		t.Fatal("expected validation to reject an unknown log level")
	}
}
