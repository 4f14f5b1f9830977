package llm

import (
	"context"
	"sync"
)

// MockGateway is a configurable Gateway for tests. Responses are
// returned in order; set CompleteFunc for full control.
type MockGateway struct {
	mu sync.Mutex

	// CompleteFunc, when set, handles every Complete call.
	CompleteFunc func(ctx context.Context, req Request) (*Completion, error)

	// Responses are returned sequentially when CompleteFunc is nil.
	// When exhausted, Complete returns an empty JSON object.
	Responses []string

	// CreateEmbeddingsFunc, when set, handles embedding calls;
	// otherwise CreateEmbeddings reports no embedding support.
	CreateEmbeddingsFunc func(ctx context.Context, inputs []string) ([][]float32, error)

	// Requests records every Complete request for verification.
	Requests []Request

	usage UsageCounter
}

// NewMockGateway creates a mock that replies with the given responses
// in order.
func NewMockGateway(responses ...string) *MockGateway {
	return &MockGateway{Responses: responses}
}

// Complete implements Gateway.
func (m *MockGateway) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	fn := m.CompleteFunc
	var content string
	if fn == nil {
		if len(m.Responses) > 0 {
			content = m.Responses[0]
			m.Responses = m.Responses[1:]
		} else {
			content = "{}"
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	usage := Usage{InputTokens: 10, OutputTokens: 10}
	m.usage.Add(usage)
	return &Completion{Content: content, Usage: usage}, nil
}

// CreateEmbeddings implements Gateway.
func (m *MockGateway) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if m.CreateEmbeddingsFunc != nil {
		return m.CreateEmbeddingsFunc(ctx, inputs)
	}
	return nil, NewError(ErrorTypeModel, "mock has no embedding model", false, nil)
}

// Usage implements Gateway.
func (m *MockGateway) Usage() *UsageCounter { return &m.usage }

// CallCount returns the number of Complete calls observed.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

var _ Gateway = (*MockGateway)(nil)
