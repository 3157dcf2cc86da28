package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderYandex = "yandex"
	ProviderOpenAI = "openai"

	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	TelegramToken string

	LLMProvider    string
	YandexAPIKey   string
	YandexFolderID string
	YandexGPTURL   string
	YandexGPTModel string
	YandexSTTURL   string
	STTLanguage    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string

	// S3AccessKeyID and S3SecretAccessKey sign object storage requests only.
	// DynamoDB and SSM use the default AWS credential chain.
	S3AccessKeyID     string
	S3SecretAccessKey string
	AWSRegion         string
	S3Bucket          string
	S3Endpoint        string

	StoreBackend   string
	DatabaseURL    string
	DynamoTable    string
	DynamoEndpoint string

	ParamPrefix   string
	Timezone      string
	HTTPTimeout   time.Duration
	HealthPort    int
	WebhookSecret string
	RetentionDays int
	LogLevel      string
}

var defaults = map[string]any{
	"LLM_PROVIDER":         ProviderYandex,
	"YANDEX_GPT_URL":       "https://llm.api.cloud.yandex.net/foundationModels/v1/completion",
	"YANDEX_GPT_MODEL":     "yandexgpt",
	"YANDEX_STT_URL":       "https://stt.api.cloud.yandex.net/speech/v1/stt:recognize",
	"STT_LANGUAGE":         "ru-RU",
	"OPENAI_MODEL":         "gpt-4o-mini",
	"OPENAI_BASE_URL":      "https://api.openai.com/v1",
	"AWS_REGION":           "us-east-1",
	"S3_ENDPOINT":          "https://storage.yandexcloud.net",
	"STORE_BACKEND":        BackendPostgres,
	"DYNAMODB_TABLE":       "summary-bot-messages",
	"TIMEZONE":             "Local",
	"HTTP_TIMEOUT_SECONDS": 30,
	"HEALTH_PORT":          8080,
	"RETENTION_DAYS":       30,
	"LOG_LEVEL":            "info",
}

// LoadDotEnv loads a local .env file into the environment when one exists.
// Variables already set are left alone.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not load .env file", "err", err)
		}
	}
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	cfg := Config{
		TelegramToken:     str(v, "TELEGRAM_TOKEN"),
		LLMProvider:       strings.ToLower(str(v, "LLM_PROVIDER")),
		YandexAPIKey:      str(v, "YANDEX_API_KEY"),
		YandexFolderID:    str(v, "YANDEX_FOLDER_ID"),
		YandexGPTURL:      str(v, "YANDEX_GPT_URL"),
		YandexGPTModel:    str(v, "YANDEX_GPT_MODEL"),
		YandexSTTURL:      str(v, "YANDEX_STT_URL"),
		STTLanguage:       str(v, "STT_LANGUAGE"),
		OpenAIAPIKey:      str(v, "OPENAI_API_KEY"),
		OpenAIModel:       str(v, "OPENAI_MODEL"),
		OpenAIBaseURL:     str(v, "OPENAI_BASE_URL"),
		S3AccessKeyID:     str(v, "S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: str(v, "S3_SECRET_ACCESS_KEY"),
		AWSRegion:         str(v, "AWS_REGION"),
		S3Bucket:          str(v, "S3_BUCKET_NAME"),
		S3Endpoint:        str(v, "S3_ENDPOINT"),
		StoreBackend:      strings.ToLower(str(v, "STORE_BACKEND")),
		DatabaseURL:       str(v, "DATABASE_URL"),
		DynamoTable:       str(v, "DYNAMODB_TABLE"),
		DynamoEndpoint:    str(v, "DYNAMODB_ENDPOINT"),
		ParamPrefix:       str(v, "PARAM_PREFIX"),
		Timezone:          str(v, "TIMEZONE"),
		WebhookSecret:     str(v, "WEBHOOK_SECRET"),
		LogLevel:          strings.ToLower(str(v, "LOG_LEVEL")),
	}

	// Older .env files keep the object storage pair in AWS_*. With a parameter
	// prefix AWS_* belongs to the runtime role and is never borrowed.
	if cfg.S3AccessKeyID == "" && cfg.S3SecretAccessKey == "" && cfg.ParamPrefix == "" {
		cfg.S3AccessKeyID = str(v, "AWS_ACCESS_KEY_ID")
		cfg.S3SecretAccessKey = str(v, "AWS_SECRET_ACCESS_KEY")
	}

	var err error
	var timeoutSeconds int
	if timeoutSeconds, err = integer(v, "HTTP_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second
	if cfg.HealthPort, err = integer(v, "HEALTH_PORT"); err != nil {
		return Config{}, err
	}
	if cfg.RetentionDays, err = integer(v, "RETENTION_DAYS"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// integer rejects malformed numbers instead of silently reading them as 0.
func integer(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n := v.GetInt(key)
	if raw != "" && raw != "0" && n == 0 {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, raw)
	}
	return n, nil
}

// ValidateStore checks the keys needed to open the message store.
func (c Config) ValidateStore() error {
	var missing []string
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendDynamoDB:
		if c.DynamoTable == "" {
			missing = append(missing, "DYNAMODB_TABLE")
		}
	default:
		return fmt.Errorf("config: STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendDynamoDB, c.StoreBackend)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("config: RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	return missingError(missing)
}

// Validate checks every key the bot needs and reports all missing ones at once.
func (c Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}

	var missing []string
	require := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}
	require("TELEGRAM_TOKEN", c.TelegramToken)
	require("YANDEX_API_KEY", c.YandexAPIKey)
	require("YANDEX_FOLDER_ID", c.YandexFolderID)
	require("S3_ACCESS_KEY_ID", c.S3AccessKeyID)
	require("S3_SECRET_ACCESS_KEY", c.S3SecretAccessKey)
	require("AWS_REGION", c.AWSRegion)
	require("S3_BUCKET_NAME", c.S3Bucket)

	switch c.LLMProvider {
	case ProviderYandex:
	case ProviderOpenAI:
		require("OPENAI_API_KEY", c.OpenAIAPIKey)
	default:
		return fmt.Errorf("config: LLM_PROVIDER must be %q or %q, got %q", ProviderYandex, ProviderOpenAI, c.LLMProvider)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: HTTP_TIMEOUT_SECONDS must be positive, got %s", c.HTTPTimeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return missingError(missing)
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
}

// Location resolves TIMEZONE; "Local" or empty means the process time zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: TIMEZONE: %w", err)
	}
	return loc, nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SecretSource returns a named secret.
type SecretSource interface {
	Secret(ctx context.Context, name string) (string, error)
}

// ResolveSecrets fills secrets left empty by the environment from src.
func (c *Config) ResolveSecrets(ctx context.Context, src SecretSource) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{"telegram-token", &c.TelegramToken},
		{"yandex-api-key", &c.YandexAPIKey},
		{"s3-secret-access-key", &c.S3SecretAccessKey},
	}
	if c.LLMProvider == ProviderOpenAI {
		targets = append(targets, struct {
			name string
			dst  *string
		}{"openai-api-key", &c.OpenAIAPIKey})
	}

	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		v, err := src.Secret(ctx, t.name)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", t.name, err)
		}
		*t.dst = v
	}
	return nil
}

// AWSConfig loads the default AWS configuration chain for DynamoDB and SSM.
func (c Config) AWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("config: load aws config: %w", err)
	}
	return cfg, nil
}

// ObjectStorageAWSConfig returns AWS configuration with the static object
// storage credentials.
func (c Config) ObjectStorageAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.AWSRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.S3AccessKeyID, c.S3SecretAccessKey, "")),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("config: load object storage config: %w", err)
	}
	return cfg, nil
}
