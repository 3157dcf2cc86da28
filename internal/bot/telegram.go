package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// target is where a reply goes: a new message in chatID, or an edit of
// message editID when it is set.
type target struct {
	chatID int64
	editID int
	menu   bool
}

func (t target) withMenu() target {
	t.menu = true
	return t
}

// respond delivers text, splitting it when it exceeds Telegram's limit. The
// first chunk edits the target message if there is one; the menu goes on
// the last chunk.
func (d *Dispatcher) respond(log *slog.Logger, t target, text string) error {
	chunks := splitMessage(text, maxMessageLen)
	if len(chunks) == 0 {
		log.Warn("blank reply replaced with notice", "len", len(text))
		chunks = []string{noticeTryAgain}
	}
	for i, chunk := range chunks {
		last := i == len(chunks)-1
		menu := t.menu && last

		var err error
		if i == 0 && t.editID != 0 {
			err = d.edit(t.chatID, t.editID, chunk, menu)
		} else {
			err = d.send(t.chatID, chunk, menu)
		}
		if err != nil {
			log.Error("reply failed", "chunk", i, "chunks", len(chunks), "err", err)
			return err
		}
	}
	return nil
}

func (d *Dispatcher) send(chatID int64, text string, menu bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if menu {
		msg.ReplyMarkup = mainMenu()
	}
	if _, err := d.api.Send(msg); err != nil {
		return fmt.Errorf("bot: send message: %w", err)
	}
	return nil
}

func (d *Dispatcher) edit(chatID int64, messageID int, text string, menu bool) error {
	var cfg tgbotapi.EditMessageTextConfig
	if menu {
		cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, mainMenu())
	} else {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := d.api.Request(cfg); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("bot: edit message: %w", err)
	}
	return nil
}

// isNotModified reports Telegram's rejection of an edit that changes nothing.
func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Message, "message is not modified")
}

// beginProgress shows a transient indicator and returns the target that
// replaces it. A failed indicator is logged and the original target kept.
func (d *Dispatcher) beginProgress(log *slog.Logger, t target, text string) target {
	if t.editID != 0 {
		if err := d.edit(t.chatID, t.editID, text, t.menu); err != nil {
			log.Warn("progress indicator failed", "err", err)
		}
		return t
	}
	sent, err := d.api.Send(tgbotapi.NewMessage(t.chatID, text))
	if err != nil {
		log.Warn("progress indicator failed", "err", err)
		return t
	}
	t.editID = sent.MessageID
	return t
}

// download fetches a Telegram file by id.
func (d *Dispatcher) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := d.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("bot: resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("bot: create download request: %w", err)
	}
	res, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot: download file: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bot: download file: unexpected status %d", res.StatusCode)
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, d.maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("bot: read file: %w", err)
	}
	if int64(len(buf)) > d.maxAudioBytes {
		return nil, fmt.Errorf("bot: file exceeds %d bytes", d.maxAudioBytes)
	}
	if len(buf) == 0 {
		return nil, errors.New("bot: downloaded file is empty")
	}
	return buf, nil
}
