// Package pipeline runs the agents end to end: retrieval, selection,
// generation, unit testing, execution, and explanation.
package pipeline

import (
	"github.com/trialsight/trialsql-engine/pkg/agents"
	"github.com/trialsight/trialsql-engine/pkg/database"
)

// Options tune a single pipeline run.
type Options struct {
	// SkipExecution stops after the winning SQL is chosen.
	SkipExecution bool
	// SkipExplanation suppresses the result explanation stage.
	SkipExplanation bool
	// DisableUnitTest picks the first verified candidate without the
	// test-based evaluation.
	DisableUnitTest bool
}

// Result is the JSON-serializable outcome of one run, with the full
// per-stage trace.
type Result struct {
	RunID    string `json:"run_id"`
	Question string `json:"question"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`

	Retrieval   agents.Result[agents.RetrievalData]   `json:"retrieval"`
	Selection   agents.Result[agents.SelectionData]   `json:"selection"`
	Generation  agents.Result[agents.GenerationData]  `json:"generation"`
	UnitTest    agents.Result[agents.UnitTestData]    `json:"unit_test"`
	Explanation agents.Result[agents.ExplanationData] `json:"explanation"`

	SQL       string                `json:"sql,omitempty"`
	Strategy  string                `json:"strategy,omitempty"`
	Execution *database.QueryResult `json:"execution,omitempty"`

	TotalTokens int   `json:"total_tokens"`
	ElapsedMS   int64 `json:"elapsed_ms"`
}

func (r *Result) addTokens() {
	r.TotalTokens = r.Retrieval.TokensUsed +
		r.Selection.TokensUsed +
		r.Generation.TokensUsed +
		r.UnitTest.TokensUsed +
		r.Explanation.TokensUsed
}
