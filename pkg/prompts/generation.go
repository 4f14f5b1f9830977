package prompts

import (
	"fmt"
	"strings"
)

// Strategy names a SQL generation approach. Each candidate is prefixed
// with its strategy so downstream stages can trace where it came from.
type Strategy string

const (
	StrategyStandard       Strategy = "standard"
	StrategyChainOfThought Strategy = "cot"
	StrategyDecomposition  Strategy = "decomposition"
)

// AllStrategies is the generation order; it also breaks score ties in
// candidate selection.
var AllStrategies = []Strategy{StrategyStandard, StrategyChainOfThought, StrategyDecomposition}

// Temperature returns the sampling temperature tuned for the strategy.
func (s Strategy) Temperature() float32 {
	switch s {
	case StrategyChainOfThought:
		return 0.20
	case StrategyDecomposition:
		return 0.15
	default:
		return 0.10
	}
}

// GenerationSystemPrompt frames every SQL generation call.
const GenerationSystemPrompt = `You are an expert PostgreSQL analyst working with clinical trial data. You write a single read-only SELECT statement that answers the question. Use only the tables and columns provided. Never invent names.`

// EntityMatch is one database value hit surfaced to the generator so
// it filters on values that actually exist.
type EntityMatch struct {
	Keyword string
	Value   string
	Table   string
	Column  string
}

// BuildGenerationPrompt assembles the candidate generation prompt for
// one strategy over the selected schema context.
func BuildGenerationPrompt(strategy Strategy, question, schemaContext string, matches []EntityMatch) string {
	var b strings.Builder

	b.WriteString("## Database Schema\n\n")
	b.WriteString(schemaContext)
	b.WriteString("\n\n")

	if len(matches) > 0 {
		b.WriteString("## ENTITY MATCHES FROM DATABASE\n\n")
		b.WriteString("These literal values exist in the database and likely correspond to terms in the question. Prefer them over guessed spellings:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "- %q matches %s.%s = '%s'\n", m.Keyword, m.Table, m.Column, m.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Domain Rules\n\n")
	b.WriteString("- Country columns store ISO three-letter codes (e.g. USA, DEU, JPN), not country names.\n")
	b.WriteString("- When a subject_level_metric column covers the asked measure, prefer it over recomputing the measure from raw records.\n")
	b.WriteString("- Join through the documented foreign keys; do not join on name-alike columns.\n")
	b.WriteString("- Dates are compared as dates, never as strings.\n\n")

	switch strategy {
	case StrategyChainOfThought:
		b.WriteString("## Approach\n\nThink step by step: identify the tables involved, the join path, the filters, and the aggregation, then write the final query. End with exactly one SQL statement in a ```sql fence.\n\n")
	case StrategyDecomposition:
		b.WriteString("## Approach\n\nDecompose the question into sub-questions, sketch the SQL fragment for each, then combine the fragments into one final query using CTEs. End with exactly one SQL statement in a ```sql fence.\n\n")
	default:
		b.WriteString("## Approach\n\nWrite one SQL statement answering the question directly, in a ```sql fence.\n\n")
	}

	fmt.Fprintf(&b, "## Question\n\n%s\n", question)
	return b.String()
}

// BuildRevisePrompt asks the model to repair a candidate that failed
// validation or execution.
func BuildRevisePrompt(question, schemaContext, sql, failure string) string {
	var b strings.Builder

	b.WriteString("The SQL below failed. Fix it, keeping the intent of the question. Respond with exactly one corrected SQL statement in a ```sql fence.\n\n")
	b.WriteString("## Database Schema\n\n")
	b.WriteString(schemaContext)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	fmt.Fprintf(&b, "## Failing SQL\n\n```sql\n%s\n```\n\n", sql)
	fmt.Fprintf(&b, "## Error\n\n%s\n", failure)
	return b.String()
}
