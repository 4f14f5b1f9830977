// Package prompts builds the LLM prompts used across the pipeline.
// Builders are pure string assembly so they stay trivially testable;
// every prompt that expects structured output states its JSON contract
// explicitly.
package prompts

import (
	"fmt"
	"strings"

	"github.com/trialsight/trialsql-engine/pkg/jsonutil"
)

// KeywordSystemPrompt frames the keyword extraction call.
const KeywordSystemPrompt = `You are an expert at analyzing questions about clinical trial data. You extract the key entities, values, and concepts a database search would need. Respond with JSON only.`

// BuildKeywordExtractionPrompt asks for the searchable keywords and
// keyphrases of a question, few-shot anchored so the model returns
// literal values (drug names, country codes, statuses) rather than
// question words.
func BuildKeywordExtractionPrompt(question string) string {
	var b strings.Builder

	b.WriteString("Extract the searchable parts of the question: keywords and keyphrases, named entities and literal values, clinical-domain terms, and filter conditions. Ignore filler words.\n\n")
	b.WriteString("Respond with JSON: {\"keywords\": [\"...\"], \"entities\": [\"...\"], \"clinical_terms\": [\"...\"], \"filters\": [\"...\"]}\n\n")

	b.WriteString("## Examples\n\n")
	b.WriteString("Question: How many subjects in study ABC-123 reported severe headache?\n")
	b.WriteString(`{"keywords": ["subjects", "study", "severe headache"], "entities": ["ABC-123", "headache"], "clinical_terms": ["subject", "adverse event"], "filters": ["study = ABC-123", "severity = severe"]}` + "\n\n")
	b.WriteString("Question: List sites in Germany with more than 10 open queries.\n")
	b.WriteString(`{"keywords": ["sites", "open queries"], "entities": ["Germany", "DEU"], "clinical_terms": ["site", "query"], "filters": ["country = Germany", "open query count > 10"]}` + "\n\n")
	b.WriteString("Question: What is the screen failure rate per visit?\n")
	b.WriteString(`{"keywords": ["screen failure", "rate"], "entities": ["screen failure"], "clinical_terms": ["visit", "subject"], "filters": []}` + "\n\n")

	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// KeywordResponse is the contract of the keyword extraction call.
// Models occasionally answer with bare strings or numeric keywords,
// so every list decodes leniently.
type KeywordResponse struct {
	Keywords      jsonutil.StringList `json:"keywords"`
	Entities      jsonutil.StringList `json:"entities"`
	ClinicalTerms jsonutil.StringList `json:"clinical_terms"`
	Filters       jsonutil.StringList `json:"filters"`
}
