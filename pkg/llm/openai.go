package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIGateway speaks to any OpenAI-compatible chat-completion endpoint.
type OpenAIGateway struct {
	client         *openai.Client
	embeddingModel string
	maxRetries     int
	usage          *UsageCounter
	logger         *zap.Logger
}

// NewOpenAIGateway creates a gateway backed by an OpenAI-compatible
// endpoint. BaseURL is optional; an empty value uses the public API.
func NewOpenAIGateway(cfg *Config, logger *zap.Logger) (*OpenAIGateway, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("api key is required for the openai provider")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &OpenAIGateway{
		client:         openai.NewClientWithConfig(clientConfig),
		embeddingModel: cfg.EmbeddingModel,
		maxRetries:     cfg.MaxRetries,
		usage:          &UsageCounter{},
		logger:         logger.Named("llm"),
	}, nil
}

// Complete implements Gateway.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	return completeRetrying(ctx, g.logger, g.maxRetries, func(ctx context.Context) (*Completion, error) {
		return g.completeOnce(ctx, req)
	})
}

func (g *OpenAIGateway) completeOnce(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	g.logger.Debug("LLM request",
		zap.String("model", req.Model),
		zap.Float64("temperature", req.Temperature),
		zap.Bool("json_mode", req.JSONMode))

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		g.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		classified := ClassifyError(err)
		classified.Model = req.Model
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEmpty, "no choices in response", true, nil)
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	g.usage.Add(usage)

	g.logger.Debug("LLM request completed",
		zap.Int("prompt_tokens", usage.InputTokens),
		zap.Int("completion_tokens", usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Usage:   usage,
	}, nil
}

// CreateEmbeddings implements Gateway.
func (g *OpenAIGateway) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if g.embeddingModel == "" {
		return nil, fmt.Errorf("no embedding model configured")
	}

	resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(g.embeddingModel),
		Input: inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// Usage implements Gateway.
func (g *OpenAIGateway) Usage() *UsageCounter { return g.usage }

var _ Gateway = (*OpenAIGateway)(nil)
