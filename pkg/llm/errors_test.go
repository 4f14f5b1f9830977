package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"nil", nil, "", false},
		{"auth", errors.New("HTTP 401 unauthorized"), ErrorTypeAuth, false},
		{"model missing", errors.New("model gpt-5x does not exist"), ErrorTypeModel, false},
		{"endpoint 404", errors.New("status 404 from provider"), ErrorTypeEndpoint, false},
		{"refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limit", errors.New("429 too many requests"), ErrorTypeUnknown, true},
		{"server", errors.New("HTTP 503 service unavailable"), ErrorTypeEndpoint, true},
		{"unknown", errors.New("weird provider failure"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.IsRetryable())
		})
	}
}

func TestClassifyError_PassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeEmpty, "empty after retries", true, nil)
	wrapped := fmt.Errorf("stage failed: %w", orig)
	assert.Same(t, orig, ClassifyError(wrapped))
}

func TestErrorString(t *testing.T) {
	e := NewError(ErrorTypeAuth, "authentication failed", false, errors.New("bad key"))
	e.StatusCode = 401
	e.Model = "gpt-4o"
	s := e.Error()
	assert.Contains(t, s, "auth")
	assert.Contains(t, s, "HTTP 401")
	assert.Contains(t, s, "model=gpt-4o")
	assert.Contains(t, s, "bad key")
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.Equal(t, ErrorTypeEmpty, GetErrorType(NewError(ErrorTypeEmpty, "", true, nil)))
}
