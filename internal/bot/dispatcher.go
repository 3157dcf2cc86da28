package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
	"github.com/brelok-the-pok/summary-bot/internal/usecase"
)

// Sender is the part of *tgbotapi.BotAPI the dispatcher uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Journal is the message journal behind the chat commands.
type Journal interface {
	RecordVoice(ctx context.Context, in usecase.VoiceInput) (usecase.VoiceOutput, error)
	RecordText(ctx context.Context, userID string, messageID int64, text string) (domain.Record, error)
	TodayContent(ctx context.Context, userID string) (usecase.DayContent, error)
	TodayMessages(ctx context.Context, userID string) (string, []domain.Record, error)
	Summarize(ctx context.Context, kind usecase.SummaryKind, contents []string) (string, error)
}

// Dispatcher routes chat updates to the journal and renders the replies.
type Dispatcher struct {
	api        Sender
	journal    Journal
	httpClient *http.Client

	maxAudioBytes int64
	updateTimeout time.Duration
}

type Option func(*Dispatcher)

// WithHTTPClient sets the client used to download voice files.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.httpClient = c
		}
	}
}

// WithUpdateTimeout bounds the handling of one update in Run.
func WithUpdateTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.updateTimeout = t
		}
	}
}

func NewDispatcher(api Sender, journal Journal, opts ...Option) (*Dispatcher, error) {
	if api == nil {
		return nil, errors.New("bot: sender must not be nil")
	}
	if journal == nil {
		return nil, errors.New("bot: journal must not be nil")
	}
	d := &Dispatcher{
		api:           api,
		journal:       journal,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		maxAudioBytes: 20 << 20,
		updateTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run handles updates until ctx is done or updates is closed. Each update runs
// in its own goroutine; Run returns after in-flight updates finish.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				// In-flight updates finish even after shutdown starts.
				uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.updateTimeout)
				defer cancel()
				if err := d.HandleUpdate(uctx, u); err != nil {
					slog.Error("update handling failed", "update_id", u.UpdateID, "err", err)
				}
			}(u)
		}
	}
}

// HandleUpdate processes one update. Updates the bot does not act on are
// ignored without error.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	log := slog.With("update_id", u.UpdateID, "event_id", uuid.NewString())

	switch {
	case u.CallbackQuery != nil:
		return d.handleCallback(ctx, log, u.CallbackQuery)
	case u.Message != nil:
		return d.handleMessage(ctx, log, u.Message)
	default:
		log.Debug("update ignored")
		return nil
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, log *slog.Logger, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		log.Debug("message without sender ignored")
		return nil
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	log = log.With("user_id", userID, "message_id", msg.MessageID)
	t := target{chatID: msg.Chat.ID}

	switch {
	case msg.IsCommand():
		log.Info("command received", "command", msg.Command())
		return d.handleCommand(ctx, log, t, userID, msg.Command())
	case msg.Voice != nil:
		log.Info("voice message received", "duration", msg.Voice.Duration)
		return d.handleVoice(ctx, log, t.withMenu(), userID, msg)
	case msg.Text != "":
		log.Info("text message received")
		return d.handleText(ctx, log, t.withMenu(), userID, msg)
	default:
		log.Debug("unsupported message ignored")
		return nil
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, log *slog.Logger, t target, userID, command string) error {
	switch command {
	case "start":
		return d.respond(log, t.withMenu(), textWelcome)
	case "help":
		return d.respond(log, t.withMenu(), textHelp)
	case "transcribe":
		return d.transcriptions(ctx, log, t, userID)
	case "summary":
		return d.summary(ctx, log, t, userID, usecase.SummaryPersonal)
	case "work_summary":
		return d.summary(ctx, log, t, userID, usecase.SummaryWork)
	case "messages":
		return d.messages(ctx, log, t, userID)
	default:
		return d.respond(log, t, noticeUnknownCommand)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, log *slog.Logger, q *tgbotapi.CallbackQuery) error {
	if _, err := d.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		log.Warn("callback answer failed", "err", err)
	}
	if q.From == nil || q.Message == nil || q.Message.Chat == nil {
		log.Debug("callback without message ignored")
		return nil
	}
	userID := strconv.FormatInt(q.From.ID, 10)
	log = log.With("user_id", userID, "callback", q.Data)
	t := target{chatID: q.Message.Chat.ID, editID: q.Message.MessageID, menu: true}

	switch q.Data {
	case callbackVoiceInfo:
		return d.respond(log, t, textVoiceInfo)
	case callbackTranscribe:
		return d.transcriptions(ctx, log, t, userID)
	case callbackPersonalSummary, callbackSummaryAlias:
		return d.summary(ctx, log, t, userID, usecase.SummaryPersonal)
	case callbackWorkSummary:
		return d.summary(ctx, log, t, userID, usecase.SummaryWork)
	case callbackMessages:
		return d.messages(ctx, log, t, userID)
	case callbackHelp:
		return d.respond(log, t, textHelp)
	default:
		log.Warn("unknown callback data")
		return nil
	}
}
