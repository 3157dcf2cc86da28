package bot

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

// maxMessageLen is Telegram's limit on message text, in UTF-16 code units.
const maxMessageLen = 4096

func renderTranscriptions(contents []string) string {
	items := make([]string, 0, len(contents))
	for _, c := range contents {
		items = append(items, fmt.Sprintf(textTranscriptionItem, c))
	}
	return textTranscriptionsHeader + strings.Join(items, "\n\n")
}

func renderSummary(day, summary string) string {
	return fmt.Sprintf(textSummaryHeader, day) + summary
}

// renderMessages lists records as "<n>. <timestamp>\n<marker> <content>".
func renderMessages(day string, recs []domain.Record) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(textMessagesHeader, day))
	for i, r := range recs {
		marker, content := "🎵", r.Transcription
		placeholder := placeholderNotRecognized
		if r.Type == domain.MessageTypeText {
			marker, content = "📝", r.TextContent
			placeholder = placeholderEmptyMessage
		}
		if strings.TrimSpace(content) == "" {
			content = placeholder
		}
		fmt.Fprintf(&b, "%d. %s\n%s %s\n\n", i+1, r.Timestamp, marker, content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func textLen(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// splitMessage cuts text into chunks of at most limit UTF-16 code units,
// breaking on newlines where possible. Blank text yields no chunks.
func splitMessage(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if textLen(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := textLen(line)
		if curLen+n <= limit {
			cur.WriteString(line)
			curLen += n
			continue
		}
		flush()
		for n > limit {
			head, rest := cutAt(line, limit)
			chunks = append(chunks, head)
			line = rest
			n = textLen(line)
		}
		cur.WriteString(line)
		curLen = n
	}
	flush()

	var out []string
	for _, c := range chunks {
		if c = strings.TrimRight(c, "\n"); strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// cutAt splits s after the last rune that keeps the head within limit.
func cutAt(s string, limit int) (string, string) {
	n := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if n+w > limit {
			return s[:i], s[i:]
		}
		n += w
	}
	return s, ""
}
