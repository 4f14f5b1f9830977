package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/database"
	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/prompts"
	sqlutil "github.com/trialsight/trialsql-engine/pkg/sql"
)

const (
	smallResultRows = 50
	explainPreview  = 20
	headPreviewRows = 10
	tailPreviewRows = 5
	maxSubQueries   = 4
	subQueryTimeout = 30 * time.Second

	// Distinct values quoted per text column in large-result summaries.
	sampleValueCount = 5
)

var joinPattern = regexp.MustCompile(`(?i)\bJOIN\b`)

// ExplanationData is the result explainer's output.
type ExplanationData struct {
	Explanation string               `json:"explanation"`
	RowCount    int                  `json:"row_count"`
	IsSampled   bool                 `json:"is_sampled,omitempty"`
	Statistics  []prompts.ColumnStat `json:"statistics,omitempty"`
	Split       bool                 `json:"split,omitempty"`
	SubResults  []prompts.SubResult  `json:"sub_results,omitempty"`
}

// ResultExplainer turns an executed result into a plain-language
// answer.
type ResultExplainer interface {
	Explain(ctx context.Context, question, sqlQuery string, result *database.QueryResult) Result[ExplanationData]
}

type resultExplainer struct {
	gateway llm.Gateway
	db      Database
	model   string
	logger  *zap.Logger
}

// NewResultExplainer builds the explainer agent.
func NewResultExplainer(gateway llm.Gateway, db Database, model string, logger *zap.Logger) ResultExplainer {
	return &resultExplainer{
		gateway: gateway,
		db:      db,
		model:   model,
		logger:  logger.Named("explainer"),
	}
}

func (e *resultExplainer) Explain(ctx context.Context, question, sqlQuery string, result *database.QueryResult) Result[ExplanationData] {
	t := newTrace()
	if result == nil || !result.Success {
		return fail[ExplanationData](t, fmt.Errorf("no executed result to explain"))
	}

	// An empty result needs no model call; the answer is the absence.
	if result.RowCount == 0 {
		return succeed(t, ExplanationData{
			Explanation: "The query ran successfully but returned no rows, so no records in the database match the question's criteria.",
		}, "empty result explained without a model call")
	}

	if countJoins(sqlQuery) >= 2 {
		if data, ok := e.explainSplit(ctx, t, question, sqlQuery); ok {
			data.RowCount = result.RowCount
			return succeed(t, data, "explained through executed sub-queries")
		}
	}

	if result.RowCount <= smallResultRows {
		return e.explainSmall(ctx, t, question, sqlQuery, result)
	}
	return e.explainLarge(ctx, t, question, sqlQuery, result)
}

func (e *resultExplainer) explainSmall(ctx context.Context, t *trace, question, sqlQuery string, result *database.QueryResult) Result[ExplanationData] {
	preview := renderPreview(result.Columns, result.Rows, explainPreview)
	text, err := e.complete(ctx, t, "explain_results",
		prompts.BuildExplainPrompt(question, sqlQuery, preview, result.RowCount))
	if err != nil {
		return fail[ExplanationData](t, err)
	}
	return succeed(t, ExplanationData{
		Explanation: text,
		RowCount:    result.RowCount,
		IsSampled:   result.RowCount > explainPreview,
	}, "explained the full result")
}

func (e *resultExplainer) explainLarge(ctx context.Context, t *trace, question, sqlQuery string, result *database.QueryResult) Result[ExplanationData] {
	stats := columnStats(result.Columns, result.Rows)
	head := renderPreview(result.Columns, result.Rows, headPreviewRows)
	tail := renderPreview(result.Columns, lastRows(result.Rows, tailPreviewRows), tailPreviewRows)

	text, err := e.complete(ctx, t, "summarize_large_results",
		prompts.BuildSummaryPrompt(question, sqlQuery, result.RowCount, stats, head, tail))
	if err != nil {
		return fail[ExplanationData](t, err)
	}
	return succeed(t, ExplanationData{
		Explanation: text,
		RowCount:    result.RowCount,
		IsSampled:   true,
		Statistics:  stats,
	}, "summarized a large result from column statistics")
}

// explainSplit tries the sub-query route for multi-join SQL. Any
// failure falls back to the regular explanation path.
func (e *resultExplainer) explainSplit(ctx context.Context, t *trace, question, sqlQuery string) (ExplanationData, bool) {
	completion, err := e.gateway.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.ExplainSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildSplitPrompt(question, sqlQuery)},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		t.tool("split_complex_query", question, false)
		return ExplanationData{}, false
	}
	t.addUsage(completion.Usage)

	parsed, err := llm.ParseJSONResponse[prompts.SplitResponse](completion.Content)
	if err != nil || !parsed.ShouldSplit || len(parsed.SubQueries) == 0 {
		t.tool("split_complex_query", question, err == nil)
		return ExplanationData{}, false
	}
	t.tool("split_complex_query", question, true)

	subs := parsed.SubQueries
	if len(subs) > maxSubQueries {
		subs = subs[:maxSubQueries]
	}

	results := make([]prompts.SubResult, 0, len(subs))
	executed := 0
	for _, sub := range subs {
		sr := e.runSubQuery(ctx, t, sub)
		if sr.Error == "" {
			executed++
		}
		results = append(results, sr)
	}
	if executed == 0 {
		return ExplanationData{}, false
	}

	text, err := e.complete(ctx, t, "explain_split_results",
		prompts.BuildSplitExplainPrompt(question, sqlQuery, results))
	if err != nil {
		return ExplanationData{}, false
	}
	return ExplanationData{Explanation: text, Split: true, SubResults: results}, true
}

func (e *resultExplainer) runSubQuery(ctx context.Context, t *trace, sub prompts.SubQuery) prompts.SubResult {
	sr := prompts.SubResult{Purpose: sub.Purpose, SQL: sub.SQL}

	validation := sqlutil.ValidateAndNormalize(sub.SQL)
	if validation.Error != nil || validation.NormalizedSQL == "" {
		sr.Error = "sub-query is not a single SELECT statement"
		t.tool("safe_execute", sub.Purpose, false)
		return sr
	}
	sr.SQL = validation.NormalizedSQL

	result := e.db.SafeExecute(ctx, sr.SQL, subQueryTimeout)
	t.tool("safe_execute", sub.Purpose, result.Success)
	if !result.Success {
		sr.Error = result.Error
		return sr
	}
	sr.RowCount = result.RowCount
	sr.Preview = renderPreview(result.Columns, result.Rows, headPreviewRows)
	return sr
}

func (e *resultExplainer) complete(ctx context.Context, t *trace, tool, prompt string) (string, error) {
	completion, err := e.gateway.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.ExplainSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		t.tool(tool, "", false)
		return "", err
	}
	t.addUsage(completion.Usage)
	t.tool(tool, "", true)
	return strings.TrimSpace(completion.Content), nil
}

func countJoins(sqlQuery string) int {
	return len(joinPattern.FindAllStringIndex(sqlQuery, -1))
}

// renderPreview formats rows as a pipe-separated table capped at
// maxRows.
func renderPreview(columns []string, rows [][]any, maxRows int) string {
	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")

	n := len(rows)
	if n > maxRows {
		n = maxRows
	}
	for _, row := range rows[:n] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = renderCell(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(rows) > maxRows {
		fmt.Fprintf(&b, "... %d more rows\n", len(rows)-maxRows)
	}
	return b.String()
}

func renderCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func lastRows(rows [][]any, n int) [][]any {
	if len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}

// columnStats summarizes each column of a large result: non-null and
// distinct counts, plus min, max, and mean for numeric columns or a
// few sample values for text ones. Ranges compare numerically when
// every value parses as a number, lexicographically otherwise.
func columnStats(columns []string, rows [][]any) []prompts.ColumnStat {
	stats := make([]prompts.ColumnStat, len(columns))
	for i, name := range columns {
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			values = append(values, renderCell(row[i]))
		}

		distinct := make(map[string]bool, len(values))
		var firstSeen []string
		for _, v := range values {
			if !distinct[v] {
				distinct[v] = true
				if len(firstSeen) < sampleValueCount {
					firstSeen = append(firstSeen, v)
				}
			}
		}

		stat := prompts.ColumnStat{
			Name:     name,
			Type:     columnKind(values),
			NonNull:  len(values),
			Distinct: len(distinct),
		}
		if len(values) > 0 {
			if stat.Type == "numeric" {
				stat.Min, stat.Max = valueRange(values, true)
				stat.Mean = meanOf(values)
			} else {
				stat.Min, stat.Max = valueRange(values, false)
				stat.Samples = firstSeen
			}
		}
		stats[i] = stat
	}
	return stats
}

func meanOf(values []string) string {
	sum := 0.0
	for _, v := range values {
		f, _ := strconv.ParseFloat(v, 64)
		sum += f
	}
	return strconv.FormatFloat(sum/float64(len(values)), 'g', 6, 64)
}

func columnKind(values []string) string {
	if len(values) == 0 {
		return "empty"
	}
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return "text"
		}
	}
	return "numeric"
}

func valueRange(values []string, numeric bool) (string, string) {
	sorted := make([]string, len(values))
	copy(sorted, values)
	if numeric {
		sort.Slice(sorted, func(i, j int) bool {
			a, _ := strconv.ParseFloat(sorted[i], 64)
			b, _ := strconv.ParseFloat(sorted[j], 64)
			return a < b
		})
	} else {
		sort.Strings(sorted)
	}
	return sorted[0], sorted[len(sorted)-1]
}

var _ ResultExplainer = (*resultExplainer)(nil)
