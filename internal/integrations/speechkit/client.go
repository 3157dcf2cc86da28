package speechkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultURL      = "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize"
	DefaultLanguage = "ru-RU"

	// Telegram voice notes are OGG/Opus.
	formatOggOpus = "oggopus"
)

// recognizeResponse is the SpeechKit v1 short-audio response. A failed
// recognition carries error_code instead of result.
type recognizeResponse struct {
	Result       *string `json:"result"`
	ErrorCode    string  `json:"error_code"`
	ErrorMessage string  `json:"error_message"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("speechkit: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client recognizes short voice messages with Yandex SpeechKit.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	folderID   string
	language   string
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

func WithLanguage(lang string) Option {
	return func(c *Client) {
		if l := strings.TrimSpace(lang); l != "" {
			c.language = l
		}
	}
}

func NewClient(apiKey, folderID string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("speechkit: api key must not be empty")
	}
	c := &Client{
		baseURL:    DefaultURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		folderID:   strings.TrimSpace(folderID),
		language:   DefaultLanguage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Recognize sends OGG/Opus audio and returns the recognized text, which may be
// empty when the audio held no speech.
func (c *Client) Recognize(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("speechkit: audio must not be empty")
	}

	endpoint, err := c.recognizeURL()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("speechkit: create request: %w", err)
	}
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("speechkit: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: c.baseURL, Body: string(buf)}
	}

	var payload recognizeResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("speechkit: decode response: %w", err)
	}
	if payload.ErrorCode != "" {
		return "", fmt.Errorf("speechkit: recognition failed: %s: %s", payload.ErrorCode, payload.ErrorMessage)
	}
	if payload.Result == nil {
		return "", errors.New("speechkit: no result in response")
	}
	return *payload.Result, nil
}

func (c *Client) recognizeURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("speechkit: parse url: %w", err)
	}
	q := u.Query()
	q.Set("lang", c.language)
	q.Set("format", formatOggOpus)
	if c.folderID != "" {
		q.Set("folderId", c.folderID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
