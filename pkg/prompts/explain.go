package prompts

import (
	"fmt"
	"strings"
)

// ExplainSystemPrompt frames the result explanation calls.
const ExplainSystemPrompt = `You are a clinical data analyst explaining query results to trial operations staff. Be concrete and cite the numbers in the result. Never invent values that are not shown.`

// BuildExplainPrompt asks for a plain-language explanation of a small
// result set. rowsPreview is the pre-rendered table, already capped by
// the caller.
func BuildExplainPrompt(question, sql, rowsPreview string, totalRows int) string {
	var b strings.Builder

	b.WriteString("Explain what the result says as an answer to the question, in two or three sentences.\n\n")
	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	fmt.Fprintf(&b, "## SQL\n\n```sql\n%s\n```\n\n", sql)
	fmt.Fprintf(&b, "## Result (%d rows)\n\n%s\n", totalRows, rowsPreview)
	return b.String()
}

// ColumnStat is a per-column summary of a large result. Numeric
// columns carry min, max, and mean; text columns carry sample values.
type ColumnStat struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	NonNull  int      `json:"non_null"`
	Distinct int      `json:"distinct"`
	Min      string   `json:"min,omitempty"`
	Max      string   `json:"max,omitempty"`
	Mean     string   `json:"mean,omitempty"`
	Samples  []string `json:"samples,omitempty"`
}

// BuildSummaryPrompt asks for an explanation of a large result from
// per-column statistics and edge samples instead of the full rows.
func BuildSummaryPrompt(question, sql string, totalRows int, stats []ColumnStat, headPreview, tailPreview string) string {
	var b strings.Builder

	b.WriteString("The result is too large to show in full. Explain what it says as an answer to the question using the column statistics and the sampled rows, in three or four sentences.\n\n")
	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	fmt.Fprintf(&b, "## SQL\n\n```sql\n%s\n```\n\n", sql)

	fmt.Fprintf(&b, "## Column Statistics (%d rows total)\n\n", totalRows)
	for _, s := range stats {
		fmt.Fprintf(&b, "- %s (%s): %d non-null, %d distinct", s.Name, s.Type, s.NonNull, s.Distinct)
		if s.Min != "" || s.Max != "" {
			fmt.Fprintf(&b, ", range %s .. %s", s.Min, s.Max)
		}
		if s.Mean != "" {
			fmt.Fprintf(&b, ", mean %s", s.Mean)
		}
		if len(s.Samples) > 0 {
			fmt.Fprintf(&b, ", e.g. %s", strings.Join(s.Samples, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## First Rows\n\n%s\n\n", headPreview)
	fmt.Fprintf(&b, "## Last Rows\n\n%s\n", tailPreview)
	return b.String()
}

// BuildSplitPrompt asks whether a multi-join query decomposes into
// simpler sub-queries whose results explain the whole.
func BuildSplitPrompt(question, sql string) string {
	var b strings.Builder

	b.WriteString("The query below joins several tables. Decide whether splitting it into simpler sub-queries would make its result easier to explain. Only split when each sub-query is meaningful on its own.\n\n")
	b.WriteString("Respond with JSON: {\"should_split\": true|false, \"sub_queries\": [{\"purpose\": \"...\", \"sql\": \"...\"}]}\n\n")
	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	fmt.Fprintf(&b, "## SQL\n\n```sql\n%s\n```\n", sql)
	return b.String()
}

// SubResult is one executed sub-query with its rendered rows, for the
// combined explanation of a split query.
type SubResult struct {
	Purpose  string
	SQL      string
	RowCount int
	Preview  string
	Error    string
}

// BuildSplitExplainPrompt asks for one combined explanation from the
// executed sub-queries of a split query.
func BuildSplitExplainPrompt(question, sql string, subs []SubResult) string {
	var b strings.Builder

	b.WriteString("The query was split into simpler sub-queries and each was executed. Explain what they together say as an answer to the question, in three or four sentences.\n\n")
	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	fmt.Fprintf(&b, "## Full SQL\n\n```sql\n%s\n```\n\n", sql)

	for i, s := range subs {
		fmt.Fprintf(&b, "## Sub-query %d: %s\n\n```sql\n%s\n```\n\n", i+1, s.Purpose, s.SQL)
		if s.Error != "" {
			fmt.Fprintf(&b, "Failed: %s\n\n", s.Error)
			continue
		}
		fmt.Fprintf(&b, "Result (%d rows):\n\n%s\n\n", s.RowCount, s.Preview)
	}
	return b.String()
}

// SubQuery is one piece of a split query.
type SubQuery struct {
	Purpose string `json:"purpose"`
	SQL     string `json:"sql"`
}

// SplitResponse is the split decision contract.
type SplitResponse struct {
	ShouldSplit bool       `json:"should_split"`
	SubQueries  []SubQuery `json:"sub_queries"`
}
