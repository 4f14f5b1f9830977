package llm

import "sync/atomic"

// UsageCounter accumulates token usage across the whole process. The
// pipeline is re-entrant, so updates use atomic addition.
type UsageCounter struct {
	input  atomic.Int64
	output atomic.Int64
	calls  atomic.Int64
}

// Add records the usage of one completion.
func (c *UsageCounter) Add(u Usage) {
	c.input.Add(int64(u.InputTokens))
	c.output.Add(int64(u.OutputTokens))
	c.calls.Add(1)
}

// UsageSnapshot is a point-in-time read of the counter.
type UsageSnapshot struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	Calls        int64 `json:"calls"`
}

// Total returns input plus output tokens.
func (s UsageSnapshot) Total() int64 { return s.InputTokens + s.OutputTokens }

// Snapshot reads the current totals.
func (c *UsageCounter) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		InputTokens:  c.input.Load(),
		OutputTokens: c.output.Load(),
		Calls:        c.calls.Load(),
	}
}
