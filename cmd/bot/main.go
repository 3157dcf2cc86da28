package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/brelok-the-pok/summary-bot/internal/api"
	"github.com/brelok-the-pok/summary-bot/internal/app"
	"github.com/brelok-the-pok/summary-bot/internal/bot"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open message store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	journal, err := app.NewJournal(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to create journal service", "err", err)
		os.Exit(1)
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint, app.TelegramHTTPClient(cfg))
	if err != nil {
		slog.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}
	slog.Info("authorized", "bot", botAPI.Self.UserName)

	dispatcher, err := bot.NewDispatcher(botAPI, journal, bot.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	if err != nil {
		slog.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}

	var health *api.Server
	if cfg.HealthPort > 0 {
		health = api.NewServer(store, cfg.HealthPort)
		go func() {
			if err := health.Start(); err != nil {
				slog.Error("health API stopped", "err", err)
			}
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = app.LongPollSeconds
	updates := botAPI.GetUpdatesChan(u)

	slog.Info("bot started", "store", cfg.StoreBackend, "llm", cfg.LLMProvider)
	go func() {
		<-ctx.Done()
		botAPI.StopReceivingUpdates()
	}()
	dispatcher.Run(ctx, updates)

	if health != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := health.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("health API shutdown failed", "err", err)
		}
	}
	slog.Info("bot stopped")
}
