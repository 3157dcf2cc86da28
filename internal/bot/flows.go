package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/brelok-the-pok/summary-bot/internal/usecase"
)

func (d *Dispatcher) handleVoice(ctx context.Context, log *slog.Logger, t target, userID string, msg *tgbotapi.Message) error {
	t = d.beginProgress(log, t, textProcessingVoice)

	audio, dlErr := d.download(ctx, msg.Voice.FileID)
	if dlErr != nil {
		log.Error("voice download failed", "err", dlErr)
	}

	out, err := d.journal.RecordVoice(ctx, usecase.VoiceInput{
		UserID:    userID,
		MessageID: int64(msg.MessageID),
		Audio:     audio,
	})

	var text string
	switch {
	case err != nil && usecase.CodeOf(err) != usecase.ErrorStorage:
		log.Error("voice message failed", "err", err)
		return d.respond(log, t, noticeTryAgain)
	case dlErr != nil:
		text = noticeVoiceError
	case !out.Recognized:
		text = usecase.TranscriptionFailed
	case strings.TrimSpace(out.Record.Transcription) == "":
		text = noticeNoSpeech
	default:
		text = out.Record.Transcription
	}
	if err != nil {
		text += "\n\n" + noticeStorageError
	} else {
		log.Info("voice message stored", "record_id", out.Record.ID, "uploaded", out.Uploaded, "recognized", out.Recognized)
	}
	return d.respond(log, t, text)
}

func (d *Dispatcher) handleText(ctx context.Context, log *slog.Logger, t target, userID string, msg *tgbotapi.Message) error {
	rec, err := d.journal.RecordText(ctx, userID, int64(msg.MessageID), msg.Text)
	if err != nil {
		log.Error("text message failed", "code", usecase.CodeOf(err), "err", err)
		if usecase.CodeOf(err) == usecase.ErrorStorage {
			return d.respond(log, t, noticeStorageError)
		}
		return d.respond(log, t, noticeTryAgain)
	}
	log.Info("text message stored", "record_id", rec.ID)
	return d.respond(log, t, fmt.Sprintf(textTextSaved, msg.Text))
}

func (d *Dispatcher) transcriptions(ctx context.Context, log *slog.Logger, t target, userID string) error {
	content, err := d.journal.TodayContent(ctx, userID)
	if err != nil {
		log.Error("load transcriptions failed", "err", err)
		return d.respond(log, t, noticeTryAgain)
	}
	switch {
	case !content.HasMessages:
		return d.respond(log, t, noticeNoMessagesToday)
	case len(content.Contents) == 0:
		return d.respond(log, t, noticeNoTranscriptions)
	default:
		return d.respond(log, t, renderTranscriptions(content.Contents))
	}
}

func (d *Dispatcher) summary(ctx context.Context, log *slog.Logger, t target, userID string, kind usecase.SummaryKind) error {
	content, err := d.journal.TodayContent(ctx, userID)
	if err != nil {
		log.Error("load summary input failed", "err", err)
		return d.respond(log, t, noticeTryAgain)
	}
	switch {
	case !content.HasMessages:
		return d.respond(log, t, noticeNoMessagesForSummary)
	case len(content.Contents) == 0:
		return d.respond(log, t, noticeNoTranscriptionsForSummary)
	}

	t = d.beginProgress(log, t, textGeneratingSummary)
	summary, err := d.journal.Summarize(ctx, kind, content.Contents)
	if err != nil {
		// summary holds the notice to show instead.
		log.Error("summary degraded", "kind", string(kind), "code", usecase.CodeOf(err), "err", err)
		return d.respond(log, t, summary)
	}
	return d.respond(log, t, renderSummary(content.Day, summary))
}

func (d *Dispatcher) messages(ctx context.Context, log *slog.Logger, t target, userID string) error {
	day, recs, err := d.journal.TodayMessages(ctx, userID)
	if err != nil {
		log.Error("load messages failed", "err", err)
		return d.respond(log, t, noticeTryAgain)
	}
	if len(recs) == 0 {
		return d.respond(log, t, noticeNoMessagesForDisplay)
	}
	return d.respond(log, t, renderMessages(day, recs))
}
