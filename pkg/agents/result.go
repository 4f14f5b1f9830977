// Package agents implements the pipeline stages: information
// retrieval, schema selection, candidate generation, unit testing,
// and result explanation. Each agent is an interface with one entry
// point returning a typed Result envelope.
package agents

import (
	"time"

	"github.com/trialsight/trialsql-engine/pkg/llm"
)

// ToolCall records one tool invocation made during an agent run, for
// the pipeline trace.
type ToolCall struct {
	Tool    string `json:"tool"`
	Detail  string `json:"detail,omitempty"`
	Success bool   `json:"success"`
}

// Result is the envelope every agent returns. When Success is false,
// Data is the zero value and Error is set.
type Result[T any] struct {
	Success    bool       `json:"success"`
	Data       T          `json:"data,omitempty"`
	Error      string     `json:"error,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
	TokensUsed int        `json:"tokens_used"`
	ElapsedMS  int64      `json:"execution_time_ms"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// trace accumulates usage and tool calls over one agent run.
type trace struct {
	start  time.Time
	tokens int
	calls  []ToolCall
}

func newTrace() *trace {
	return &trace{start: time.Now()}
}

func (t *trace) addUsage(u llm.Usage) {
	t.tokens += u.Total()
}

func (t *trace) tool(name, detail string, success bool) {
	t.calls = append(t.calls, ToolCall{Tool: name, Detail: detail, Success: success})
}

func succeed[T any](t *trace, data T, reasoning string) Result[T] {
	return Result[T]{
		Success:    true,
		Data:       data,
		Reasoning:  reasoning,
		TokensUsed: t.tokens,
		ElapsedMS:  time.Since(t.start).Milliseconds(),
		ToolCalls:  t.calls,
	}
}

func fail[T any](t *trace, err error) Result[T] {
	return Result[T]{
		Error:      err.Error(),
		TokensUsed: t.tokens,
		ElapsedMS:  time.Since(t.start).Milliseconds(),
		ToolCalls:  t.calls,
	}
}
