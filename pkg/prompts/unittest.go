package prompts

import (
	"fmt"
	"strings"

	"github.com/trialsight/trialsql-engine/pkg/jsonutil"
)

// UnitTestSystemPrompt frames test generation and evaluation calls.
const UnitTestSystemPrompt = `You are an expert SQL reviewer for clinical trial analytics. You judge whether SQL candidates satisfy behavioral checks derived from the question. Respond with JSON only.`

// CandidateSQL pairs a candidate with its generation strategy and the
// shape of its executed preview, for prompt rendering.
type CandidateSQL struct {
	Strategy string
	SQL      string
	Columns  []string
	RowCount int
}

// BuildUnitTestGenerationPrompt asks for behavioral checks that
// discriminate between the candidates.
func BuildUnitTestGenerationPrompt(question string, candidates []CandidateSQL, numTests int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write %d unit tests for SQL answering the question below. Each test states one behavior a correct query must show. Prefer tests that distinguish the candidates from each other.\n\n", numTests)
	b.WriteString("Respond with JSON: {\"tests\": [{\"description\": \"...\", \"expected_behavior\": \"...\", \"test_type\": \"structure|filter|aggregation|join|output\"}]}\n\n")

	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	b.WriteString("## Candidates\n\n")
	writeCandidates(&b, candidates)
	return b.String()
}

// UnitTest is one behavioral check of a candidate query.
type UnitTest struct {
	Description      string `json:"description"`
	ExpectedBehavior string `json:"expected_behavior"`
	TestType         string `json:"test_type"`
}

// UnitTestResponse is the test generation contract.
type UnitTestResponse struct {
	Tests []UnitTest `json:"tests"`
}

// BuildEvaluatePrompt asks which candidates pass one unit test.
func BuildEvaluatePrompt(question string, test UnitTest, candidates []CandidateSQL) string {
	var b strings.Builder

	b.WriteString("Evaluate each SQL candidate against the unit test. A candidate passes when its result would show the expected behavior.\n\n")
	b.WriteString("Respond with JSON: {\"passes\": [true, false, ...]} with one entry per candidate, in order.\n\n")

	fmt.Fprintf(&b, "## Question\n\n%s\n\n", question)
	fmt.Fprintf(&b, "## Unit Test\n\nType: %s\n%s\nExpected: %s\n\n", test.TestType, test.Description, test.ExpectedBehavior)
	b.WriteString("## Candidates\n\n")
	writeCandidates(&b, candidates)
	return b.String()
}

// EvaluateResponse is the evaluation contract. Verdicts decode
// leniently since models sometimes quote the booleans.
type EvaluateResponse struct {
	Passes jsonutil.BoolList `json:"passes"`
}

func writeCandidates(b *strings.Builder, candidates []CandidateSQL) {
	for i, c := range candidates {
		fmt.Fprintf(b, "### Candidate %d (%s)\n\n```sql\n%s\n```\n\n", i+1, c.Strategy, c.SQL)
		if len(c.Columns) > 0 {
			fmt.Fprintf(b, "Preview: returns columns [%s], %d rows\n\n", strings.Join(c.Columns, ", "), c.RowCount)
		}
	}
}
