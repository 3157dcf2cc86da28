// Package app wires configuration, storage and integrations for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/brelok-the-pok/summary-bot/internal/config"
	"github.com/brelok-the-pok/summary-bot/internal/integrations/blobstore"
	"github.com/brelok-the-pok/summary-bot/internal/integrations/openai"
	"github.com/brelok-the-pok/summary-bot/internal/integrations/paramstore"
	"github.com/brelok-the-pok/summary-bot/internal/integrations/speechkit"
	"github.com/brelok-the-pok/summary-bot/internal/integrations/yandexgpt"
	"github.com/brelok-the-pok/summary-bot/internal/repository"
	"github.com/brelok-the-pok/summary-bot/internal/usecase"
)

// LongPollSeconds is how long getUpdates waits on Telegram's side.
const LongPollSeconds = 60

// TelegramHTTPClient bounds Bot API calls in polling mode. getUpdates holds
// its request open for the long poll, so the timeout covers that on top of
// the regular request budget.
func TelegramHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: LongPollSeconds*time.Second + cfg.HTTPTimeout}
}

// SetupLogger installs a JSON slog handler at level as the default logger.
func SetupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// LoadConfig reads .env and the environment, then fills empty secrets from
// Parameter Store when PARAM_PREFIX is set.
func LoadConfig(ctx context.Context) (config.Config, error) {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	SetupLogger(cfg.SlogLevel())

	if cfg.ParamPrefix == "" {
		return cfg, nil
	}
	awsCfg, err := cfg.AWSConfig(ctx)
	if err != nil {
		return config.Config{}, err
	}
	client, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return config.Config{}, err
	}
	secrets, err := paramstore.NewSecrets(client, cfg.ParamPrefix)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ResolveSecrets(ctx, secrets); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// OpenStore opens the configured message store. Callers own Close.
func OpenStore(ctx context.Context, cfg config.Config) (repository.MessageStore, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendDynamoDB:
		awsCfg, err := cfg.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		store, err := repository.NewDynamoStore(client, cfg.DynamoTable, nil)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("app: unknown store backend %q", cfg.StoreBackend)
	}
}

// NewCompleter builds the LLM client selected by LLM_PROVIDER.
func NewCompleter(cfg config.Config, httpClient *http.Client) (usecase.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderYandex:
		c, err := yandexgpt.NewClient(cfg.YandexAPIKey, cfg.YandexFolderID,
			yandexgpt.WithBaseURL(cfg.YandexGPTURL),
			yandexgpt.WithModel(cfg.YandexGPTModel),
			yandexgpt.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOpenAI:
		c, err := openai.NewClient(cfg.OpenAIAPIKey,
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("app: unknown llm provider %q", cfg.LLMProvider)
	}
}

// NewJournal builds the journal service on top of store.
func NewJournal(ctx context.Context, cfg config.Config, store usecase.Store) (*usecase.JournalService, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	s3Cfg, err := cfg.ObjectStorageAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	uploader, err := blobstore.New(blobstore.NewS3Client(s3Cfg, cfg.S3Endpoint), cfg.S3Bucket)
	if err != nil {
		return nil, err
	}

	stt, err := speechkit.NewClient(cfg.YandexAPIKey, cfg.YandexFolderID,
		speechkit.WithBaseURL(cfg.YandexSTTURL),
		speechkit.WithLanguage(cfg.STTLanguage),
		speechkit.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, err
	}

	llm, err := NewCompleter(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	summarizer, err := usecase.NewSummarizer(llm)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return usecase.NewJournalService(store, stt, uploader, summarizer, usecase.WithLocation(loc))
}
