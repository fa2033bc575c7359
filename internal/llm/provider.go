// Package llm provides a provider-agnostic completion interface and a
// gateway that routes "provider/model" identifiers to registered providers.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is a completion request. Model is the provider-local model name
// once it reaches a Provider.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a completed reply.
type Response struct {
	Provider   string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Provider is an LLM API backend.
type Provider interface {
	// Name is the routing prefix, e.g. "anthropic".
	Name() string
	// Complete sends a request and blocks until the full reply is available.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ErrUnknownProvider is returned when a model names an unregistered provider.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// ProviderError is returned when a provider's API responds with an error.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: %s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRateLimited reports an HTTP 429.
func (e *ProviderError) IsRateLimited() bool { return e.StatusCode == 429 }

// IsOverloaded reports an HTTP 529.
func (e *ProviderError) IsOverloaded() bool { return e.StatusCode == 529 }

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}
