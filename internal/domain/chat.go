package domain

// ChatMessage is the provider-agnostic prompt message shape used by the
// summarizer and the text-generation integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
