package agents

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/database"
	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/prompts"
	sqlutil "github.com/trialsight/trialsql-engine/pkg/sql"
)

const previewTimeout = 15 * time.Second

// Database is the slice of the adapter the generation and explanation
// agents need.
type Database interface {
	Validate(ctx context.Context, sqlQuery string) (*database.ValidationStatus, error)
	SafeExecute(ctx context.Context, sqlQuery string, timeout time.Duration) *database.QueryResult
}

// Candidate is one generated SQL candidate with its verification
// trail.
type Candidate struct {
	Strategy    string                `json:"strategy"`
	SQL         string                `json:"sql"`
	Valid       bool                  `json:"valid"`
	Error       string                `json:"error,omitempty"`
	Revisions   int                   `json:"revisions"`
	EmptyResult bool                  `json:"empty_result,omitempty"`
	Preview     *database.QueryResult `json:"preview,omitempty"`
}

// GenerationData is the candidate generator's output. Candidates are
// ordered valid-first, then by strategy order.
type GenerationData struct {
	Candidates []Candidate `json:"candidates"`
}

// ValidCount returns how many candidates passed verification.
func (d GenerationData) ValidCount() int {
	n := 0
	for _, c := range d.Candidates {
		if c.Valid {
			n++
		}
	}
	return n
}

// CandidateGenerator produces verified SQL candidates for a question
// over the selected schema.
type CandidateGenerator interface {
	Generate(ctx context.Context, question string, selection SelectionData, retrieval RetrievalData) Result[GenerationData]
}

type candidateGenerator struct {
	gateway        llm.Gateway
	db             Database
	generatorModel string
	refinerModel   string
	numCandidates  int
	maxRevisions   int
	logger         *zap.Logger
}

// GeneratorOptions configures the candidate generator.
type GeneratorOptions struct {
	GeneratorModel string
	RefinerModel   string
	NumCandidates  int
	MaxRevisions   int
}

// NewCandidateGenerator builds the generator agent.
func NewCandidateGenerator(gateway llm.Gateway, db Database, opts GeneratorOptions, logger *zap.Logger) CandidateGenerator {
	if opts.NumCandidates < 1 {
		opts.NumCandidates = len(prompts.AllStrategies)
	}
	return &candidateGenerator{
		gateway:        gateway,
		db:             db,
		generatorModel: opts.GeneratorModel,
		refinerModel:   opts.RefinerModel,
		numCandidates:  opts.NumCandidates,
		maxRevisions:   opts.MaxRevisions,
		logger:         logger.Named("generator"),
	}
}

func (g *candidateGenerator) Generate(ctx context.Context, question string, selection SelectionData, retrieval RetrievalData) Result[GenerationData] {
	t := newTrace()

	matches := entityMatches(retrieval)
	candidates := make([]Candidate, 0, g.numCandidates)
	for i := 0; i < g.numCandidates; i++ {
		strategy := prompts.AllStrategies[i%len(prompts.AllStrategies)]
		candidate := g.generateOne(ctx, t, strategy, question, selection.SchemaContext, matches)
		candidates = append(candidates, candidate)
	}

	// Stable sort keeps strategy order within the valid and invalid
	// groups, which later stages use as the tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Valid && !candidates[j].Valid
	})

	data := GenerationData{Candidates: candidates}
	if len(candidates) == 0 || allEmpty(candidates) {
		return fail[GenerationData](t, fmt.Errorf("no SQL candidates could be generated"))
	}

	g.logger.Info("candidates generated",
		zap.Int("total", len(candidates)),
		zap.Int("valid", data.ValidCount()))
	return succeed(t, data, fmt.Sprintf("%d of %d candidates verified against the database",
		data.ValidCount(), len(candidates)))
}

func allEmpty(candidates []Candidate) bool {
	for _, c := range candidates {
		if c.SQL != "" {
			return false
		}
	}
	return true
}

// generateOne produces and verifies a single candidate, revising it on
// verification failure up to the revision budget.
func (g *candidateGenerator) generateOne(ctx context.Context, t *trace, strategy prompts.Strategy, question, schemaContext string, matches []prompts.EntityMatch) Candidate {
	candidate := Candidate{Strategy: string(strategy)}

	completion, err := g.gateway.Complete(ctx, llm.Request{
		Model: g.generatorModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.GenerationSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildGenerationPrompt(strategy, question, schemaContext, matches)},
		},
		Temperature: float64(strategy.Temperature()),
	})
	if err != nil {
		t.tool("generate_sql", string(strategy), false)
		candidate.Error = err.Error()
		return candidate
	}
	t.addUsage(completion.Usage)
	t.tool("generate_sql", string(strategy), true)

	candidate.SQL = llm.ExtractSQL(completion.Content)
	if candidate.SQL == "" {
		candidate.Error = "response contained no SQL statement"
		return candidate
	}

	for {
		verifyErr := g.verify(ctx, t, &candidate)
		if verifyErr == "" {
			candidate.Valid = true
			candidate.Error = ""
			return candidate
		}
		candidate.Error = verifyErr
		if candidate.Revisions >= g.maxRevisions {
			return candidate
		}
		revised, err := g.revise(ctx, t, question, schemaContext, candidate.SQL, verifyErr)
		if err != nil || revised == "" {
			return candidate
		}
		candidate.SQL = revised
		candidate.Revisions++
	}
}

// verify runs the static checks, the injection screen, an EXPLAIN, and
// a capped preview execution. It returns the failure message, empty on
// success. An empty preview is a warning, not a failure.
func (g *candidateGenerator) verify(ctx context.Context, t *trace, candidate *Candidate) string {
	validation := sqlutil.ValidateAndNormalize(candidate.SQL)
	if validation.Error != nil {
		t.tool("validate_sql", candidate.Strategy, false)
		return validation.Error.Error()
	}
	if validation.NormalizedSQL == "" {
		t.tool("validate_sql", candidate.Strategy, false)
		return "empty SQL statement"
	}
	candidate.SQL = validation.NormalizedSQL

	for _, check := range sqlutil.ScreenLiterals(candidate.SQL) {
		if check.IsSQLi {
			t.tool("screen_literals", candidate.Strategy, false)
			return fmt.Sprintf("string literal %q matches an injection pattern", check.Literal)
		}
	}

	status, err := g.db.Validate(ctx, candidate.SQL)
	if err != nil {
		t.tool("explain", candidate.Strategy, false)
		return fmt.Sprintf("validation unavailable: %v", err)
	}
	if !status.Valid {
		t.tool("explain", candidate.Strategy, false)
		return status.Error
	}
	t.tool("explain", candidate.Strategy, true)

	preview := g.db.SafeExecute(ctx, candidate.SQL, previewTimeout)
	t.tool("safe_execute", candidate.Strategy, preview.Success)
	if !preview.Success {
		return preview.Error
	}
	candidate.Preview = preview
	if preview.RowCount == 0 {
		candidate.EmptyResult = true
		g.logger.Warn("candidate returned no rows", zap.String("strategy", candidate.Strategy))
	}
	return ""
}

func (g *candidateGenerator) revise(ctx context.Context, t *trace, question, schemaContext, badSQL, failure string) (string, error) {
	completion, err := g.gateway.Complete(ctx, llm.Request{
		Model: g.refinerModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.GenerationSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildRevisePrompt(question, schemaContext, badSQL, failure)},
		},
		Temperature: 0,
	})
	if err != nil {
		t.tool("revise_sql", failure, false)
		return "", err
	}
	t.addUsage(completion.Usage)
	t.tool("revise_sql", failure, true)
	return llm.ExtractSQL(completion.Content), nil
}

func entityMatches(retrieval RetrievalData) []prompts.EntityMatch {
	matches := make([]prompts.EntityMatch, 0, len(retrieval.ValueMatches))
	for _, m := range retrieval.ValueMatches {
		matches = append(matches, prompts.EntityMatch{
			Keyword: m.Keyword,
			Value:   m.Value,
			Table:   m.Table,
			Column:  m.Column,
		})
	}
	return matches
}

var _ CandidateGenerator = (*candidateGenerator)(nil)
