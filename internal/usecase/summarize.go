package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

const (
	NoticeNothingToSummarize = "There are no messages to summarize."
	NoticeGenerationError    = "Sorry, the summary could not be generated right now. Please try again later."
	NoticeRateLimited        = "The summary service is busy right now. Please try again in a minute."
)

// Completer is a text-generation backend.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type Summarizer struct {
	llm Completer
}

func NewSummarizer(llm Completer) (*Summarizer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	return &Summarizer{llm: llm}, nil
}

// Summarize turns ordered contents into a summary using kind's template.
//
// The returned text is always fit to show the user: on failure it is one of
// the Notice strings and err carries the cause. Empty contents short-circuit
// without calling the backend.
func (s *Summarizer) Summarize(ctx context.Context, kind SummaryKind, contents []string) (string, error) {
	tmpl, err := kind.template()
	if err != nil {
		return NoticeGenerationError, newError(ErrorInvalidInput, "unknown_summary_kind", err)
	}
	if len(contents) == 0 {
		return NoticeNothingToSummarize, nil
	}

	out, err := s.llm.Complete(ctx, buildSummaryMessages(tmpl, contents))
	if err != nil {
		slog.Error("summary generation failed", "kind", string(kind), "inputs", len(contents), "err", err)
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return NoticeRateLimited, newError(ErrorUpstream, "llm_rate_limited", err)
		}
		return NoticeGenerationError, newError(ErrorUpstream, "llm_error", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return NoticeGenerationError, newError(ErrorUpstream, "llm_empty_response", nil)
	}
	return out, nil
}
