package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar-day format used as the partition key.
const DayLayout = "2006-01-02"

// MessageType tags which content field of a Record is canonical.
type MessageType string

const (
	MessageTypeVoice MessageType = "voice"
	MessageTypeText  MessageType = "text"
)

// ParseMessageType maps a stored tag to a MessageType. Rows written before the
// tag existed carry no value and are voice messages.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(strings.TrimSpace(s)) {
	case "", MessageTypeVoice:
		return MessageTypeVoice, nil
	case MessageTypeText:
		return MessageTypeText, nil
	default:
		return "", fmt.Errorf("domain: unknown message type %q", s)
	}
}

// Record is one inbound chat message persisted per user and day.
type Record struct {
	ID        string
	UserID    string
	MessageID int64
	Day       string
	// Timestamp is the ISO 8601 insertion time kept for display.
	Timestamp string
	Type      MessageType

	// TextContent is set for text messages only.
	TextContent string
	// S3Key and Transcription are set for voice messages only. S3Key is empty
	// when the audio backup failed.
	S3Key         string
	Transcription string

	CreatedAt time.Time
}

// NewVoiceRecord builds a voice Record stamped with now.
func NewVoiceRecord(userID string, messageID int64, now time.Time, s3Key, transcription string) Record {
	r := newRecord(userID, messageID, now, MessageTypeVoice)
	r.S3Key = s3Key
	r.Transcription = transcription
	return r
}

// NewTextRecord builds a text Record stamped with now.
func NewTextRecord(userID string, messageID int64, now time.Time, text string) Record {
	r := newRecord(userID, messageID, now, MessageTypeText)
	r.TextContent = text
	return r
}

func newRecord(userID string, messageID int64, now time.Time, t MessageType) Record {
	return Record{
		UserID:    userID,
		MessageID: messageID,
		Day:       DayOf(now),
		Timestamp: now.Format(time.RFC3339),
		Type:      t,
		CreatedAt: now.UTC(),
	}
}

// CanonicalContent returns the content field selected by the message type.
// ok is false when that field is empty.
func (r Record) CanonicalContent() (content string, ok bool) {
	switch r.Type {
	case MessageTypeText:
		content = r.TextContent
	case MessageTypeVoice, "":
		content = r.Transcription
	default:
		return "", false
	}
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}

// Validate checks the fields every store relies on.
func (r Record) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("domain: user id must not be empty")
	}
	if _, err := ParseDay(r.Day); err != nil {
		return err
	}
	if _, err := ParseMessageType(string(r.Type)); err != nil {
		return err
	}
	if r.Type == "" {
		return errors.New("domain: message type must be set")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("domain: created_at must be set")
	}
	return nil
}

// DayOf formats t as a partition day in t's location.
func DayOf(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD day string.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("domain: invalid day %q: %w", day, err)
	}
	return t, nil
}

// Contents projects records to their canonical content, skipping empty ones
// and keeping order.
func Contents(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if c, ok := r.CanonicalContent(); ok {
			out = append(out, c)
		}
	}
	return out
}
