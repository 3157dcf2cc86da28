package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const (
	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
	correlationHeader = "X-Correlation-Id"
)

// UpdateHandler processes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update) error
}

// Handler serves Telegram webhook deliveries behind API Gateway.
type Handler struct {
	updates UpdateHandler
	secret  string
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds a webhook handler. An empty secret disables the secret
// token check.
func NewHandler(updates UpdateHandler, secret string) (*Handler, error) {
	if updates == nil {
		return nil, errors.New("handler: update handler must not be nil")
	}
	return &Handler{updates: updates, secret: secret}, nil
}

// Handle answers 200 for every authenticated, well-formed delivery, including
// ones that failed downstream, so Telegram does not redeliver them.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlation_id", correlationID)

	if h.secret != "" {
		got := header(event.Headers, secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Warn("webhook secret mismatch")
			return jsonResponse(http.StatusUnauthorized, correlationID, errorResponse{Error: "unauthorized"}), nil
		}
	}

	var u tgbotapi.Update
	if err := json.Unmarshal([]byte(event.Body), &u); err != nil {
		log.Warn("malformed update body", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: "invalid_body"}), nil
	}

	if err := h.updates.HandleUpdate(ctx, u); err != nil {
		log.Error("update handling failed", "update_id", u.UpdateID, "err", err)
	}
	return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
}

// header looks a key up case-insensitively; API Gateway keeps client casing.
func header(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal_error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}
