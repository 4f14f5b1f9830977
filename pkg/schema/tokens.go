package schema

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter measures prompt text against the model's tokenizer.
// When the cl100k_base encoding cannot be loaded it degrades to a
// characters-over-four estimate, which overshoots slightly on SQL-ish
// text and therefore stays inside the budget.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter backed by the cl100k_base encoding.
func NewTokenCounter(logger *zap.Logger) *TokenCounter {
	encoding, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		if logger != nil {
			logger.Warn("tokenizer unavailable, falling back to character estimate", zap.Error(err))
		}
		return &TokenCounter{}
	}
	return &TokenCounter{encoding: encoding}
}

// Count returns the token count of text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding == nil {
		return len(text)/4 + 1
	}
	return len(c.encoding.Encode(text, nil, nil))
}
