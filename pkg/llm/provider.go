// Package llm talks to OpenAI-compatible chat-completion endpoints.
package llm

import (
	"context"
	"net/http"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single non-streaming completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Usage is the token usage reported by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the first choice of a completion.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Completer is the interface every backend implements.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// HTTPClient interface for HTTP requests (enables testing)
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Verify http.Client implements HTTPClient
var _ HTTPClient = (*http.Client)(nil)
