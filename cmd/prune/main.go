package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brelok-the-pok/summary-bot/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	days := flag.Int("days", cfg.RetentionDays, "delete records created more than this many days ago")
	flag.Parse()
	cfg.RetentionDays = *days

	if err := cfg.ValidateStore(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open message store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}

	n, err := store.PruneOlderThan(ctx, cfg.RetentionDays)
	store.Close()
	if err != nil {
		slog.Error("prune failed", "days", cfg.RetentionDays, "err", err)
		os.Exit(1)
	}
	slog.Info("prune finished", "days", cfg.RetentionDays, "deleted", n)
}
