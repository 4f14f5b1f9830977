package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicGateway speaks to the Anthropic Messages API.
type AnthropicGateway struct {
	client     *anthropic.Client
	maxRetries int
	usage      *UsageCounter
	logger     *zap.Logger
}

// NewAnthropicGateway creates a gateway backed by the Anthropic API.
func NewAnthropicGateway(cfg *Config, logger *zap.Logger) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for the anthropic provider")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	return &AnthropicGateway{
		client:     anthropic.NewClient(cfg.APIKey, opts...),
		maxRetries: cfg.MaxRetries,
		usage:      &UsageCounter{},
		logger:     logger.Named("llm"),
	}, nil
}

// Complete implements Gateway.
func (g *AnthropicGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	return completeRetrying(ctx, g.logger, g.maxRetries, func(ctx context.Context) (*Completion, error) {
		return g.completeOnce(ctx, req)
	})
}

func (g *AnthropicGateway) completeOnce(ctx context.Context, req Request) (*Completion, error) {
	var system string
	var messages []anthropic.Message
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantTextMessage(m.Content))
		default:
			messages = append(messages, anthropic.NewUserTextMessage(m.Content))
		}
	}

	// The Messages API has no response_format; JSON mode becomes a
	// system instruction and the extractor handles the rest.
	if req.JSONMode {
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single JSON object and nothing else."
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	msgReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		msgReq.System = system
	}
	temp := float32(req.Temperature)
	msgReq.Temperature = &temp

	g.logger.Debug("LLM request",
		zap.String("model", req.Model),
		zap.Float64("temperature", req.Temperature),
		zap.Bool("json_mode", req.JSONMode))

	start := time.Now()

	resp, err := g.client.CreateMessages(ctx, msgReq)
	if err != nil {
		g.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		classified := ClassifyError(err)
		classified.Model = req.Model
		return nil, classified
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Text != nil {
			content.WriteString(*block.Text)
		}
	}

	usage := Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	g.usage.Add(usage)

	g.logger.Debug("LLM request completed",
		zap.Int("prompt_tokens", usage.InputTokens),
		zap.Int("completion_tokens", usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Completion{
		Content: content.String(),
		Usage:   usage,
	}, nil
}

// CreateEmbeddings implements Gateway. Anthropic has no embeddings
// endpoint; the description index falls back to feature vectors.
func (g *AnthropicGateway) CreateEmbeddings(_ context.Context, _ []string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic provider does not support embeddings")
}

// Usage implements Gateway.
func (g *AnthropicGateway) Usage() *UsageCounter { return g.usage }

var _ Gateway = (*AnthropicGateway)(nil)
