// Package llm provides the chat-completion gateway used by every agent.
// It is the only package that speaks to a model provider.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/apperrors"
	"github.com/trialsight/trialsql-engine/pkg/retry"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes a single chat completion.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a JSON object response where the
	// provider supports it; otherwise the backend falls back to a
	// system-prompt instruction.
	JSONMode bool
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Completion is the gateway's response envelope.
type Completion struct {
	Content string
	Usage   Usage
}

// Gateway is the chat-completion abstraction the agents depend on.
// Implementations retry empty responses and accumulate usage into the
// process-wide counter.
type Gateway interface {
	// Complete generates a chat completion.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// CreateEmbeddings generates embedding vectors for multiple inputs.
	// Backends without a configured embedding model return an error;
	// callers fall back to deterministic encodings.
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)

	// Usage returns the process-wide usage counter.
	Usage() *UsageCounter
}

// Config holds provider configuration for the gateway factory.
type Config struct {
	Provider       string // "openai" or "anthropic"
	BaseURL        string // optional endpoint override
	APIKey         string
	EmbeddingModel string // empty disables learned embeddings
	MaxRetries     int    // empty-content retries, default 3
}

// NewGateway builds the configured provider backend.
func NewGateway(cfg *Config, logger *zap.Logger) (Gateway, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIGateway(cfg, logger)
	case "anthropic":
		return NewAnthropicGateway(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// completeRetrying wraps a provider call with the gateway's
// empty-content policy: up to maxRetries extra attempts with linear
// back-off when the provider returns no text.
func completeRetrying(ctx context.Context, logger *zap.Logger, maxRetries int, fn func(ctx context.Context) (*Completion, error)) (*Completion, error) {
	if maxRetries < 1 {
		maxRetries = 3
	}

	cfg := retry.LinearConfig(maxRetries, 500*time.Millisecond)
	result, err := retry.DoWithResult(ctx, cfg, func() (*Completion, error) {
		completion, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if completion.Content == "" {
			logger.Warn("provider returned empty content, retrying")
			return nil, apperrors.ErrEmptyResponse
		}
		return completion, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
