package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

// TranscriptionFailed is stored as the transcription of a voice message that
// could not be recognized.
const TranscriptionFailed = "Could not recognize the voice message."

// Store is the part of the message store the journal needs.
type Store interface {
	Insert(ctx context.Context, rec domain.Record) (string, error)
	ListByUserDay(ctx context.Context, userID, day string) ([]domain.Record, error)
	ListContentByUserDay(ctx context.Context, userID, day string) ([]string, error)
	Exists(ctx context.Context, userID, day string) (bool, error)
}

type Transcriber interface {
	Recognize(ctx context.Context, audio []byte) (string, error)
}

type AudioUploader interface {
	UploadVoice(ctx context.Context, audio []byte, userID string, messageID int64, day string) (string, error)
}

// JournalService records a user's messages per day and reads them back for
// listings and summaries.
type JournalService struct {
	store      Store
	stt        Transcriber
	uploader   AudioUploader
	summarizer *Summarizer

	loc *time.Location
	now func() time.Time
}

type JournalOption func(*JournalService)

// WithLocation sets the time zone that decides which day "today" is.
func WithLocation(loc *time.Location) JournalOption {
	return func(s *JournalService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithNow(now func() time.Time) JournalOption {
	return func(s *JournalService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewJournalService(store Store, stt Transcriber, uploader AudioUploader, summarizer *Summarizer, opts ...JournalOption) (*JournalService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if stt == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	if uploader == nil {
		return nil, errors.New("usecase: uploader must not be nil")
	}
	if summarizer == nil {
		return nil, errors.New("usecase: summarizer must not be nil")
	}
	s := &JournalService{
		store:      store,
		stt:        stt,
		uploader:   uploader,
		summarizer: summarizer,
		loc:        time.Local,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *JournalService) clock() time.Time {
	return s.now().In(s.loc)
}

// Today returns the current partition day.
func (s *JournalService) Today() string {
	return domain.DayOf(s.clock())
}

type VoiceInput struct {
	UserID    string
	MessageID int64
	// Audio is nil when the download failed; the message is still recorded.
	Audio []byte
}

type VoiceOutput struct {
	Record     domain.Record
	Uploaded   bool
	Recognized bool
}

// RecordVoice backs up and transcribes the audio, both best-effort, and then
// stores a voice record. A storage failure returns the built record together
// with an ErrorStorage error.
func (s *JournalService) RecordVoice(ctx context.Context, in VoiceInput) (VoiceOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return VoiceOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	now := s.clock()
	day := domain.DayOf(now)
	log := slog.With("user_id", userID, "message_id", in.MessageID, "day", day)

	var out VoiceOutput
	s3Key := ""
	transcription := TranscriptionFailed
	if len(in.Audio) > 0 {
		key, err := s.uploader.UploadVoice(ctx, in.Audio, userID, in.MessageID, day)
		if err != nil {
			log.Error("voice upload failed", "err", err)
		} else {
			s3Key = key
			out.Uploaded = true
		}

		text, err := s.stt.Recognize(ctx, in.Audio)
		if err != nil {
			log.Error("voice recognition failed", "err", err)
		} else {
			transcription = text
			out.Recognized = true
		}
	}

	out.Record = domain.NewVoiceRecord(userID, in.MessageID, now, s3Key, transcription)
	id, err := s.store.Insert(ctx, out.Record)
	if err != nil {
		log.Error("voice record insert failed", "err", err)
		return out, newError(ErrorStorage, "insert_failed", err)
	}
	out.Record.ID = id
	return out, nil
}

// RecordText stores a text record with the literal text.
func (s *JournalService) RecordText(ctx context.Context, userID string, messageID int64, text string) (domain.Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Record{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}

	rec := domain.NewTextRecord(userID, messageID, s.clock(), text)
	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		slog.Error("text record insert failed", "user_id", userID, "message_id", messageID, "err", err)
		return rec, newError(ErrorStorage, "insert_failed", err)
	}
	rec.ID = id
	return rec, nil
}

// DayContent is what a user has stored for one day.
type DayContent struct {
	Day         string
	HasMessages bool
	// Contents holds canonical contents in conversation order.
	Contents []string
}

// TodayContent reports whether the user has messages today and their
// canonical contents.
func (s *JournalService) TodayContent(ctx context.Context, userID string) (DayContent, error) {
	day := s.Today()
	out := DayContent{Day: day}

	ok, err := s.store.Exists(ctx, userID, day)
	if err != nil {
		return out, newError(ErrorStorage, "exists_failed", err)
	}
	if !ok {
		return out, nil
	}
	out.HasMessages = true

	contents, err := s.store.ListContentByUserDay(ctx, userID, day)
	if err != nil {
		return out, newError(ErrorStorage, "list_content_failed", err)
	}
	out.Contents = contents
	return out, nil
}

// TodayMessages returns today's records in conversation order.
func (s *JournalService) TodayMessages(ctx context.Context, userID string) (string, []domain.Record, error) {
	day := s.Today()
	recs, err := s.store.ListByUserDay(ctx, userID, day)
	if err != nil {
		return day, nil, newError(ErrorStorage, "list_failed", err)
	}
	return day, recs, nil
}

// Summarize delegates to the summarizer; see Summarizer.Summarize.
func (s *JournalService) Summarize(ctx context.Context, kind SummaryKind, contents []string) (string, error) {
	return s.summarizer.Summarize(ctx, kind, contents)
}
