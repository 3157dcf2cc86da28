package usecase

import (
	"fmt"
	"strings"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

// SummaryKind selects the prompt template used for a summary.
type SummaryKind string

const (
	SummaryPersonal SummaryKind = "personal"
	SummaryWork     SummaryKind = "work"
)

const messagesPlaceholder = "{messages}"

const systemPrompt = "You are an assistant that summarizes a person's voice and text messages. " +
	"Answer in the language the messages are written in."

var personalTemplate = strings.Join([]string{
	"Below are the messages a person recorded today, in order.",
	"Write a short personal summary of the day: main events, thoughts, feelings and plans.",
	"Keep it warm and concise, and use bullet points where it helps.",
	"",
	"Messages:",
	messagesPlaceholder,
}, "\n")

var workTemplate = strings.Join([]string{
	"Below are the messages a person recorded today, in order.",
	"Write a work report from them: what was done, what is in progress, blockers and next steps.",
	"Leave out anything not related to work. Use short bullet points.",
	"",
	"Messages:",
	messagesPlaceholder,
}, "\n")

func (k SummaryKind) template() (string, error) {
	switch k {
	case SummaryPersonal:
		return personalTemplate, nil
	case SummaryWork:
		return workTemplate, nil
	default:
		return "", fmt.Errorf("unknown summary kind %q", k)
	}
}

// formatContents renders contents as numbered lines starting at 1.
func formatContents(contents []string) string {
	lines := make([]string, 0, len(contents))
	for i, c := range contents {
		lines = append(lines, fmt.Sprintf("Message #%d: %s", i+1, strings.TrimSpace(c)))
	}
	return strings.Join(lines, "\n")
}

func buildSummaryMessages(template string, contents []string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: strings.ReplaceAll(template, messagesPlaceholder, formatContents(contents))},
	}
}
