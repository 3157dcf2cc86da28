package yandexgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

const (
	DefaultURL   = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	DefaultModel = "yandexgpt"

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []message         `json:"messages"`
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	// The API accepts maxTokens as a string or a number.
	MaxTokens int `json:"maxTokens"`
}

// message is the foundation-models message shape; it names the body "text".
type message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionResponse struct {
	Result *struct {
		Alternatives []struct {
			Message message `json:"message"`
			Status  string  `json:"status"`
		} `json:"alternatives"`
	} `json:"result"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("yandexgpt: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the YandexGPT synchronous completion endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	folderID   string
	model      string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u := strings.TrimSpace(baseURL); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func NewClient(apiKey, folderID string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("yandexgpt: api key must not be empty")
	}
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, errors.New("yandexgpt: folder id must not be empty")
	}
	c := &Client{
		baseURL:    DefaultURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		folderID:   folderID,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) modelURI() string {
	return fmt.Sprintf("gpt://%s/%s", c.folderID, c.model)
}

// Complete returns the text of the first alternative.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("yandexgpt: messages must not be empty")
	}

	msgs := make([]message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, message{Role: m.Role, Text: m.Content})
	}
	body, err := json.Marshal(completionRequest{
		ModelURI: c.modelURI(),
		CompletionOptions: completionOptions{
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		},
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("yandexgpt: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("yandexgpt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("x-folder-id", c.folderID)

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return "", fmt.Errorf("yandexgpt: request failed: %w", err)
	}

	var payload completionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("yandexgpt: decode response: %w", err)
	}
	if payload.Result == nil || len(payload.Result.Alternatives) == 0 {
		return "", errors.New("yandexgpt: no alternatives in response")
	}
	return payload.Result.Alternatives[0].Message.Text, nil
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.baseURL, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
