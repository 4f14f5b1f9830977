package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trialsight/trialsql-engine/pkg/jsonutil"
)

// SelectionSystemPrompt frames the schema selection calls.
const SelectionSystemPrompt = `You are an expert at mapping analytical questions onto a clinical trial database schema. Respond with JSON only.`

// TableHint carries retrieval evidence for one candidate table.
type TableHint struct {
	Table  string
	Reason string
}

// BuildTableSelectionPrompt asks which tables a question needs, with
// a role tag per table.
func BuildTableSelectionPrompt(question, compactSchema string, hints []TableHint, maxTables int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Select the tables needed to answer the question, at most %d. Tag each with its role: \"primary\" holds the asked-about rows, \"join\" links tables, \"filter\" only constrains. When two selected tables join, name the key columns as \"table1.col1 = table2.col2\".\n\n", maxTables)
	b.WriteString("Respond with JSON: {\"tables\": [{\"name\": \"...\", \"role\": \"primary|join|filter\", \"reason\": \"...\"}], \"join_hints\": [\"table1.col1 = table2.col2\"]}\n\n")

	b.WriteString("## Candidate Tables\n\n")
	b.WriteString(compactSchema)
	b.WriteString("\n\n")

	if len(hints) > 0 {
		b.WriteString("## Retrieval Evidence\n\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s: %s\n", h.Table, h.Reason)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Question\n\n%s\n", question)
	return b.String()
}

// TableSelectionResponse is the table selection contract.
type TableSelectionResponse struct {
	Tables    []SelectedTable     `json:"tables"`
	JoinHints jsonutil.StringList `json:"join_hints"`
}

// SelectedTable is one chosen table with its role tag.
type SelectedTable struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Reason string `json:"reason,omitempty"`
}

// BuildColumnSelectionPrompt asks which columns of one table the
// question needs.
func BuildColumnSelectionPrompt(question, tableSchema string) string {
	var b strings.Builder

	b.WriteString("From the table below, select the columns needed to answer the question, including join keys and filter columns. Tag each with the clause it serves in the final query.\n\n")
	b.WriteString("Respond with JSON: {\"columns\": [{\"name\": \"...\", \"clause\": \"SELECT|WHERE|JOIN|GROUP BY\"}]}\n\n")
	b.WriteString("## Table\n\n")
	b.WriteString(tableSchema)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "## Question\n\n%s\n", question)
	return b.String()
}

// ColumnSelectionResponse is the column selection contract.
type ColumnSelectionResponse struct {
	Columns []SelectedColumn `json:"columns"`
}

// SelectedColumn is one chosen column tagged with the query clause it
// serves. Models sometimes answer with bare column names, so it also
// decodes from a plain string.
type SelectedColumn struct {
	Name   string `json:"name"`
	Clause string `json:"clause,omitempty"`
}

func (c *SelectedColumn) UnmarshalJSON(data []byte) error {
	var obj struct {
		Name   string `json:"name"`
		Clause string `json:"clause"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Name != "" {
		c.Name, c.Clause = obj.Name, obj.Clause
		return nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Name = jsonutil.FlexibleString(raw)
	c.Clause = ""
	return nil
}
