package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/preprocess"
	"github.com/trialsight/trialsql-engine/pkg/prompts"
	"github.com/trialsight/trialsql-engine/pkg/schema"
)

const (
	valueMatchesPerKeyword = 5
	contextMatchCount      = 10
)

// ValueMatch is one database value hit attributed to the keyword that
// found it.
type ValueMatch struct {
	Keyword string  `json:"keyword"`
	Value   string  `json:"value"`
	Table   string  `json:"table"`
	Column  string  `json:"column"`
	Score   float64 `json:"score"`
}

// RetrievalData is the information retriever's output.
type RetrievalData struct {
	Keywords       []string              `json:"keywords"`
	Entities       []string              `json:"entities,omitempty"`
	ClinicalTerms  []string              `json:"clinical_terms,omitempty"`
	Filters        []string              `json:"filters,omitempty"`
	ValueMatches   []ValueMatch          `json:"value_matches,omitempty"`
	ContextMatches []preprocess.DocMatch `json:"context_matches,omitempty"`
	RelevantTables []string              `json:"relevant_tables"`
}

// InformationRetriever maps a question onto the database: keywords,
// matching cell values, and candidate tables.
type InformationRetriever interface {
	Retrieve(ctx context.Context, question string) Result[RetrievalData]
}

type informationRetriever struct {
	gateway      llm.Gateway
	preprocessor *preprocess.Preprocessor
	catalog      *schema.Catalog
	model        string
	logger       *zap.Logger
}

// NewInformationRetriever builds the retriever agent.
func NewInformationRetriever(gateway llm.Gateway, preprocessor *preprocess.Preprocessor, catalog *schema.Catalog, model string, logger *zap.Logger) InformationRetriever {
	return &informationRetriever{
		gateway:      gateway,
		preprocessor: preprocessor,
		catalog:      catalog,
		model:        model,
		logger:       logger.Named("retriever"),
	}
}

func (r *informationRetriever) Retrieve(ctx context.Context, question string) Result[RetrievalData] {
	t := newTrace()

	bundle, err := r.extractKeywords(ctx, t, question)
	if err != nil {
		// A failed or empty extraction degrades to plain tokenization of
		// the question, never to a failed stage.
		r.logger.Warn("keyword extraction failed, tokenizing the question", zap.Error(err))
		bundle = keywordBundle{keywords: tokenizeQuestion(question)}
		t.tool("tokenize_question", question, len(bundle.keywords) > 0)
	}
	if len(bundle.keywords) == 0 {
		return fail[RetrievalData](t, fmt.Errorf("no searchable terms in question"))
	}

	data := RetrievalData{
		Keywords:      bundle.keywords,
		Entities:      bundle.entities,
		ClinicalTerms: bundle.clinicalTerms,
		Filters:       bundle.filters,
	}
	tables := newOrderedSet()

	searchTerms := newOrderedSet()
	for _, kw := range bundle.keywords {
		searchTerms.add(kw)
	}
	for _, e := range bundle.entities {
		searchTerms.add(e)
	}

	for _, kw := range searchTerms.values() {
		if len(kw) < 2 {
			continue
		}
		matches := r.preprocessor.Values.Query(kw, valueMatchesPerKeyword)
		t.tool("value_index", kw, len(matches) > 0)
		for _, m := range matches {
			data.ValueMatches = append(data.ValueMatches, ValueMatch{
				Keyword: kw,
				Value:   m.Value,
				Table:   m.Table,
				Column:  m.Column,
				Score:   m.Score,
			})
			tables.add(m.Table)
		}
	}

	contextMatches, err := r.preprocessor.Descriptions.Search(ctx, question, contextMatchCount)
	t.tool("description_index", question, err == nil)
	if err != nil {
		r.logger.Warn("description search failed, continuing on value and column matches", zap.Error(err))
	}
	data.ContextMatches = contextMatches
	for _, m := range contextMatches {
		tables.add(m.Table)
	}

	for _, kw := range searchTerms.values() {
		for _, ref := range r.catalog.SearchColumns(kw) {
			tables.add(ref.Table)
		}
	}

	for _, term := range bundle.clinicalTerms {
		cat, ok := clinicalTermCategories[strings.ToLower(strings.TrimSpace(term))]
		if !ok {
			continue
		}
		for _, name := range r.catalog.TablesByCategory(cat) {
			tables.add(name)
		}
	}

	if wantsMetadata(question) {
		for _, name := range []string{"_studies", "_table_metadata"} {
			if r.catalog.Has(name) {
				tables.add(name)
			}
		}
	}

	data.RelevantTables = tables.values()
	r.logger.Info("retrieval complete",
		zap.Int("keywords", len(bundle.keywords)),
		zap.Int("value_matches", len(data.ValueMatches)),
		zap.Int("tables", len(data.RelevantTables)))
	return succeed(t, data, fmt.Sprintf("found %d value matches and %d candidate tables for %d keywords",
		len(data.ValueMatches), len(data.RelevantTables), len(bundle.keywords)))
}

// keywordBundle is the parsed output of the keyword extraction call.
type keywordBundle struct {
	keywords      []string
	entities      []string
	clinicalTerms []string
	filters       []string
}

func (r *informationRetriever) extractKeywords(ctx context.Context, t *trace, question string) (keywordBundle, error) {
	completion, err := r.gateway.Complete(ctx, llm.Request{
		Model: r.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.KeywordSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildKeywordExtractionPrompt(question)},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		t.tool("extract_keywords", question, false)
		return keywordBundle{}, err
	}
	t.addUsage(completion.Usage)

	parsed, err := llm.ParseJSONResponse[prompts.KeywordResponse](completion.Content)
	if err != nil {
		t.tool("extract_keywords", question, false)
		return keywordBundle{}, err
	}

	bundle := keywordBundle{
		keywords:      dedupeTerms(parsed.Keywords),
		entities:      dedupeTerms(parsed.Entities),
		clinicalTerms: dedupeTerms(parsed.ClinicalTerms),
		filters:       dedupeTerms(parsed.Filters),
	}
	t.tool("extract_keywords", question, len(bundle.keywords) > 0)
	if len(bundle.keywords) == 0 {
		return keywordBundle{}, fmt.Errorf("no keywords extracted from question")
	}
	return bundle, nil
}

func dedupeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]bool)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, term)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// tokenizeQuestion is the degraded keyword source when the model call
// fails: whitespace tokens with edge punctuation stripped.
func tokenizeQuestion(question string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(question) {
		tok := strings.Trim(field, ".,;:!?\"'()[]")
		key := strings.ToLower(tok)
		if len(tok) < 2 || seen[key] {
			continue
		}
		seen[key] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// clinicalTermCategories maps extracted clinical vocabulary onto the
// catalog's table categories, so a term hit pulls in the whole table
// family even when no cell value matches.
var clinicalTermCategories = map[string]string{
	"visit":          "visit",
	"visits":         "visit",
	"query":          "query",
	"queries":        "query",
	"data query":     "query",
	"adverse event":  "safety",
	"adverse events": "safety",
	"ae":             "safety",
	"sae":            "safety",
	"safety":         "safety",
	"coding":         "coding",
	"meddra":         "coding",
	"whodrug":        "coding",
	"site":           "site",
	"sites":          "site",
	"subject":        "subject",
	"subjects":       "subject",
	"patient":        "subject",
	"patients":       "subject",
	"enrollment":     "subject",
	"metric":         "metric",
	"metrics":        "metric",
	"kpi":            "metric",
}

// metadataPhrases mark questions about the warehouse itself rather
// than the clinical data in it.
var metadataPhrases = []string{
	"which studies", "what studies", "list studies", "available studies",
	"how many studies", "number of studies",
	"what data", "which tables", "what tables", "how many tables",
	"data available", "database structure",
}

func wantsMetadata(question string) bool {
	lower := strings.ToLower(question)
	for _, p := range metadataPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// orderedSet keeps first-seen insertion order for deterministic table
// lists.
type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.order = append(s.order, v)
}

func (s *orderedSet) values() []string {
	return s.order
}

var _ InformationRetriever = (*informationRetriever)(nil)
