package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/bot"
	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/dialog"
	"github.com/conorfennell/recall/internal/review"
	"github.com/conorfennell/recall/internal/storage"
	decksync "github.com/conorfennell/recall/internal/sync"
)

func main() {
	// .env is optional; secrets usually arrive through it in dev.
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("recall", pflag.ExitOnError)
	flags.String("config", "", "path to a YAML config file")
	flags.String("database.path", "", "path to the SQLite database file")
	flags.String("timezone", "", "IANA timezone for due-date calculations")
	flags.String("log.level", "", "log level: debug, info, warn or error")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("failed to resolve timezone", "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	states, err := dialog.NewStore(db.Conn())
	if err != nil {
		slog.Error("failed to init conversation store", "error", err)
		os.Exit(1)
	}

	engine := review.NewEngine(db, states, loc, cfg.Review.Batch)
	syncer := decksync.New(db, cfg.Sync.Repos, loc)

	b, err := bot.New(cfg.Telegram.Token, db, engine, syncer, loc)
	if err != nil {
		slog.Error("failed to start bot", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sync.Interval > 0 {
		go func() {
			syncer.RunAll()
			ticker := time.NewTicker(cfg.Sync.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					syncer.RunAll()
				}
			}
		}()
	}

	if err := b.Start(ctx); err != nil && err != context.Canceled {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
