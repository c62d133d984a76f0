// Package adapter defines the provider-facing capability interface
// (SPEC_FULL.md §9 "dynamic polymorphism over providers") and a registry
// keyed by provider tag, generalized from the teacher's llm/registry.go
// ProviderRegistry.
package adapter

import (
	"context"

	"github.com/BaSui01/llmgateway/credential"
)

// ChatRequest is the gateway's internal, provider-agnostic chat request.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Extra       map[string]any `json:"-"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the gateway's internal, provider-agnostic chat response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Raw     []byte       `json:"-"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

// EmbeddingsRequest is the gateway's internal embeddings request.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingsResponse is the gateway's internal embeddings response.
type EmbeddingsResponse struct {
	Model string      `json:"model"`
	Data  []Embedding `json:"data"`
}

// Embedding is one input's resulting vector.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// SpeechRequest is the gateway's internal text-to-speech request.
type SpeechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice,omitempty"`
}

// SpeechResponse carries the synthesized audio bytes and their MIME type.
type SpeechResponse struct {
	ContentType string `json:"-"`
	Audio       []byte `json:"-"`
}

// Adapter is the fixed capability set every provider-specific
// implementation must satisfy (SPEC_FULL.md §9). A tagged variant of
// request/response types keeps the router type-homogeneous across
// providers.
type Adapter interface {
	// Call performs one upstream HTTP call using cred, returning the raw
	// HTTP status and body alongside a decoded response on success. It
	// never touches the credential pool directly (SPEC_FULL.md §5).
	Call(ctx context.Context, baseURL string, cred *credential.Record, request any) (response any, httpStatus int, body string, err error)

	// Name returns the adapter's provider tag.
	Name() string
}
