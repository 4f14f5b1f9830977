package agents

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/database"
	"github.com/trialsight/trialsql-engine/pkg/llm"
)

func smallResult(rows int) *database.QueryResult {
	r := &database.QueryResult{Success: true, Columns: []string{"term", "n"}, RowCount: rows}
	for i := 0; i < rows; i++ {
		r.Rows = append(r.Rows, []any{fmt.Sprintf("term-%02d", i), int64(i)})
	}
	return r
}

func TestExplainerEmptyResultSkipsModel(t *testing.T) {
	gw := llm.NewMockGateway()
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "q", "SELECT 1", &database.QueryResult{Success: true, RowCount: 0})
	require.True(t, result.Success)
	assert.Contains(t, result.Data.Explanation, "no rows")
	assert.Equal(t, 0, gw.CallCount())
}

func TestExplainerSmallResult(t *testing.T) {
	gw := llm.NewMockGateway("Ten adverse event terms were reported, led by term-00.")
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "Which terms?", "SELECT term, n FROM t", smallResult(10))
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Data.Explanation, "Ten adverse event terms")
	assert.Equal(t, 10, result.Data.RowCount)
	assert.False(t, result.Data.IsSampled, "all ten rows were shown")

	prompt := gw.Requests[0].Messages[1].Content
	assert.Contains(t, prompt, "term-00 | 0")
	assert.Contains(t, prompt, "(10 rows)")
}

func TestExplainerLargeResultUsesStatistics(t *testing.T) {
	gw := llm.NewMockGateway("The 80 rows cover 80 distinct terms.")
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "q", "SELECT term, n FROM t", smallResult(80))
	require.True(t, result.Success, result.Error)

	prompt := gw.Requests[0].Messages[1].Content
	assert.Contains(t, prompt, "Column Statistics (80 rows total)")
	assert.Contains(t, prompt, "term (text): 80 non-null, 80 distinct")
	assert.Contains(t, prompt, "e.g. term-00, term-01, term-02, term-03, term-04")
	assert.Contains(t, prompt, "n (numeric): 80 non-null")
	assert.Contains(t, prompt, "range 0 .. 79")
	assert.Contains(t, prompt, "mean 39.5")
	assert.Contains(t, prompt, "## First Rows")
	assert.Contains(t, prompt, "## Last Rows")
	assert.Contains(t, prompt, "term-79", "tail sample present")

	assert.Equal(t, 80, result.Data.RowCount)
	assert.True(t, result.Data.IsSampled)
	require.Len(t, result.Data.Statistics, 2)
	assert.Equal(t, "39.5", result.Data.Statistics[1].Mean)
	assert.Len(t, result.Data.Statistics[0].Samples, 5)
}

func TestExplainerSplitsMultiJoinQuery(t *testing.T) {
	multiJoin := "SELECT s.status, count(*) FROM subjects s JOIN adverse_events ae ON ae.subject_id = s.subject_id JOIN sites st ON st.site_id = s.site_id GROUP BY s.status"
	gw := &llm.MockGateway{
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Completion, error) {
			prompt := req.Messages[len(req.Messages)-1].Content
			if strings.Contains(prompt, "splitting it into simpler sub-queries") {
				return &llm.Completion{Content: `{"should_split": true, "sub_queries": [
					{"purpose": "events per subject", "sql": "SELECT subject_id, count(*) FROM adverse_events GROUP BY subject_id"}
				]}`}, nil
			}
			return &llm.Completion{Content: "Combined answer from the sub-queries."}, nil
		},
	}
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "q", multiJoin, smallResult(5))
	require.True(t, result.Success, result.Error)
	assert.True(t, result.Data.Split)
	assert.Equal(t, 5, result.Data.RowCount)
	require.Len(t, result.Data.SubResults, 1)
	assert.Equal(t, "events per subject", result.Data.SubResults[0].Purpose)
	assert.Empty(t, result.Data.SubResults[0].Error)
	assert.Equal(t, "Combined answer from the sub-queries.", result.Data.Explanation)
}

func TestExplainerNoSplitFallsThrough(t *testing.T) {
	multiJoin := "SELECT 1 FROM a JOIN b ON a.id = b.id JOIN c ON c.id = b.id"
	gw := llm.NewMockGateway(
		`{"should_split": false, "sub_queries": []}`,
		"Direct explanation.",
	)
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "q", multiJoin, smallResult(5))
	require.True(t, result.Success, result.Error)
	assert.False(t, result.Data.Split)
	assert.Equal(t, "Direct explanation.", result.Data.Explanation)
}

func TestExplainerSingleJoinNeverSplits(t *testing.T) {
	oneJoin := "SELECT 1 FROM a JOIN b ON a.id = b.id"
	gw := llm.NewMockGateway("Direct explanation.")
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "q", oneJoin, smallResult(3))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, 1, gw.CallCount(), "no split attempt for a single join")
}

func TestExplainerRejectsUnexecutedResult(t *testing.T) {
	gw := llm.NewMockGateway()
	e := NewResultExplainer(gw, &mockDB{}, "m", zap.NewNop())

	result := e.Explain(context.Background(), "q", "SELECT 1", &database.QueryResult{Success: false, Error: "boom"})
	assert.False(t, result.Success)

	result = e.Explain(context.Background(), "q", "SELECT 1", nil)
	assert.False(t, result.Success)
}

func TestCountJoins(t *testing.T) {
	assert.Equal(t, 0, countJoins("SELECT 1"))
	assert.Equal(t, 1, countJoins("SELECT 1 FROM a JOIN b ON x"))
	assert.Equal(t, 2, countJoins("SELECT 1 FROM a LEFT JOIN b ON x INNER JOIN c ON y"))
	assert.Equal(t, 0, countJoins("SELECT joined_date FROM a"), "word boundary respected")
}

func TestRenderPreviewCapsRows(t *testing.T) {
	preview := renderPreview([]string{"a"}, [][]any{{1}, {2}, {3}}, 2)
	assert.Contains(t, preview, "... 1 more rows")
	assert.Contains(t, preview, "a\n")

	withNil := renderPreview([]string{"a"}, [][]any{{nil}}, 5)
	assert.Contains(t, withNil, "NULL")
}
