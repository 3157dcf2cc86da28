package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/brelok-the-pok/summary-bot/handler"
	"github.com/brelok-the-pok/summary-bot/internal/app"
	"github.com/brelok-the-pok/summary-bot/internal/bot"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open message store", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	journal, err := app.NewJournal(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to create journal service", "err", err)
		os.Exit(1)
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.HTTPTimeout})
	if err != nil {
		slog.Error("failed to create telegram client", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	dispatcher, err := bot.NewDispatcher(api, journal, bot.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	if err != nil {
		slog.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}
	h, err := handler.NewHandler(dispatcher, cfg.WebhookSecret)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
