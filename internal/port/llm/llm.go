// Package llm defines the backend chat port: the only contract the council
// needs from a model provider.
package llm

import "context"

// Backend identifies a model provider.
type Backend string

const (
	BackendGroq       Backend = "groq"
	BackendOpenRouter Backend = "openrouter"
	BackendOllama     Backend = "ollama"
	BackendAnthropic  Backend = "anthropic"
	BackendOpenAI     Backend = "openai"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a uniform chat request. Adapters translate it to each vendor's wire format.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is the text answer plus token usage when the vendor reports it.
type Response struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// ChatClient sends one chat request and returns the answer text.
type ChatClient interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

// UserPrompt wraps a single prompt as a one-message conversation.
func UserPrompt(prompt string) []Message {
	return []Message{{Role: RoleUser, Content: prompt}}
}
