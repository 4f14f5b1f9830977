package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/prompts"
)

const maxEvalWorkers = 4

// Selection methods reported by the unit tester.
const (
	MethodUnitTest    = "unit_test"
	MethodSingleValid = "single_valid"
	MethodBestEffort  = "best_effort"
)

// UnitTestData is the unit tester's output: which candidate won and
// how.
type UnitTestData struct {
	Method    string             `json:"method"`
	BestIndex int                `json:"best_index"`
	Scores    []int              `json:"scores,omitempty"`
	Tests     []prompts.UnitTest `json:"tests,omitempty"`
	CacheHit  bool               `json:"cache_hit,omitempty"`
}

// UnitTester picks the best candidate by generating behavioral tests
// and scoring every valid candidate against them.
type UnitTester interface {
	Evaluate(ctx context.Context, question string, generation GenerationData) Result[UnitTestData]
}

type unitTester struct {
	gateway  llm.Gateway
	model    string
	numTests int
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]UnitTestData
}

// NewUnitTester builds the unit tester agent.
func NewUnitTester(gateway llm.Gateway, model string, numTests int, logger *zap.Logger) UnitTester {
	if numTests < 1 {
		numTests = 5
	}
	return &unitTester{
		gateway:  gateway,
		model:    model,
		numTests: numTests,
		logger:   logger.Named("unit_tester"),
		cache:    make(map[string]UnitTestData),
	}
}

func (u *unitTester) Evaluate(ctx context.Context, question string, generation GenerationData) Result[UnitTestData] {
	t := newTrace()
	candidates := generation.Candidates
	if len(candidates) == 0 {
		return fail[UnitTestData](t, fmt.Errorf("no candidates to evaluate"))
	}

	validIdx := validIndexes(candidates)
	switch len(validIdx) {
	case 0:
		// Nothing verified; hand back the first candidate so the
		// pipeline can still report its best effort.
		return succeed(t, UnitTestData{Method: MethodBestEffort, BestIndex: 0},
			"no candidate passed verification, returning the first as best effort")
	case 1:
		return succeed(t, UnitTestData{Method: MethodSingleValid, BestIndex: validIdx[0]},
			"only one candidate passed verification, no tests needed")
	}

	// Invalid candidates never reach the model; tests are generated
	// from and scored against the valid set only.
	valid := make([]Candidate, 0, len(validIdx))
	for _, i := range validIdx {
		valid = append(valid, candidates[i])
	}

	key := cacheKey(question, u.numTests, valid)
	if cached, ok := u.lookup(key); ok {
		t.tool("evaluation_cache", key[:12], true)
		cached.CacheHit = true
		return succeed(t, cached, "reused cached evaluation for identical candidates")
	}

	tests, err := u.generateTests(ctx, t, question, valid)
	if err != nil {
		return fail[UnitTestData](t, fmt.Errorf("test generation: %w", err))
	}

	scores := u.runTests(ctx, t, question, tests, candidateSQL(valid), validIdx, len(candidates))

	best := bestCandidate(validIdx, scores)
	data := UnitTestData{
		Method:    MethodUnitTest,
		BestIndex: best,
		Scores:    scores,
		Tests:     tests,
	}
	u.store(key, data)

	u.logger.Info("candidates evaluated",
		zap.Int("tests", len(tests)),
		zap.Ints("scores", scores),
		zap.Int("best", best))
	return succeed(t, data, fmt.Sprintf("candidate %d passed %d of %d tests", best+1, scores[best], len(tests)))
}

func validIndexes(candidates []Candidate) []int {
	var idx []int
	for i, c := range candidates {
		if c.Valid {
			idx = append(idx, i)
		}
	}
	return idx
}

func (u *unitTester) generateTests(ctx context.Context, t *trace, question string, candidates []Candidate) ([]prompts.UnitTest, error) {
	completion, err := u.gateway.Complete(ctx, llm.Request{
		Model: u.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.UnitTestSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildUnitTestGenerationPrompt(question, candidateSQL(candidates), u.numTests)},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		t.tool("generate_tests", question, false)
		return nil, err
	}
	t.addUsage(completion.Usage)

	parsed, err := llm.ParseJSONResponse[prompts.UnitTestResponse](completion.Content)
	if err != nil {
		t.tool("generate_tests", question, false)
		return nil, err
	}
	tests := parsed.Tests
	if len(tests) == 0 {
		t.tool("generate_tests", question, false)
		return nil, fmt.Errorf("no tests generated")
	}
	if len(tests) > u.numTests {
		tests = tests[:u.numTests]
	}
	t.tool("generate_tests", question, true)
	return tests, nil
}

// runTests evaluates every test in parallel and reduces pass counts
// per candidate. Verdict j of an evaluation maps back to candidate
// validIdx[j]. A failed evaluation call contributes no passes.
func (u *unitTester) runTests(ctx context.Context, t *trace, question string, tests []prompts.UnitTest, sqls []prompts.CandidateSQL, validIdx []int, total int) []int {
	workers := maxEvalWorkers
	if len(tests) < workers {
		workers = len(tests)
	}
	pool := llm.NewWorkerPool(workers, u.logger)

	tasks := make([]llm.Task[evalOutcome], 0, len(tests))
	for i, test := range tests {
		test := test
		tasks = append(tasks, llm.Task[evalOutcome]{
			ID: strconv.Itoa(i),
			Run: func(ctx context.Context) (evalOutcome, error) {
				return u.evaluateOne(ctx, question, test, sqls)
			},
		})
	}

	// Workers only write to the results channel; usage and scores are
	// folded here in the coordinator.
	scores := make([]int, total)
	for _, result := range llm.RunAll(ctx, pool, tasks) {
		if result.Err != nil {
			t.tool("evaluate_test", result.ID, false)
			u.logger.Warn("test evaluation failed", zap.String("test", result.ID), zap.Error(result.Err))
			continue
		}
		t.tool("evaluate_test", result.ID, true)
		t.addUsage(result.Result.usage)
		for j, pass := range result.Result.passes {
			if j < len(validIdx) && pass {
				scores[validIdx[j]]++
			}
		}
	}
	return scores
}

type evalOutcome struct {
	passes []bool
	usage  llm.Usage
}

func (u *unitTester) evaluateOne(ctx context.Context, question string, test prompts.UnitTest, candidates []prompts.CandidateSQL) (evalOutcome, error) {
	completion, err := u.gateway.Complete(ctx, llm.Request{
		Model: u.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.UnitTestSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildEvaluatePrompt(question, test, candidates)},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return evalOutcome{}, err
	}

	parsed, err := llm.ParseJSONResponse[prompts.EvaluateResponse](completion.Content)
	if err != nil {
		return evalOutcome{}, err
	}
	return evalOutcome{passes: []bool(parsed.Passes), usage: completion.Usage}, nil
}

// bestCandidate returns the valid candidate with the highest score;
// ties go to the earlier candidate, which preserves strategy order.
func bestCandidate(validIdx []int, scores []int) int {
	best := validIdx[0]
	for _, i := range validIdx[1:] {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

func candidateSQL(candidates []Candidate) []prompts.CandidateSQL {
	out := make([]prompts.CandidateSQL, 0, len(candidates))
	for _, c := range candidates {
		cs := prompts.CandidateSQL{Strategy: c.Strategy, SQL: c.SQL}
		if c.Preview != nil {
			cs.Columns = c.Preview.Columns
			cs.RowCount = c.Preview.RowCount
		}
		out = append(out, cs)
	}
	return out
}

// cacheKey hashes the normalized question, the test count, and the
// exact valid candidate set, so a rerun with identical inputs reuses
// the previous evaluation. Whitespace and casing differences in the
// question do not miss the cache.
func cacheKey(question string, numTests int, candidates []Candidate) string {
	var b strings.Builder
	b.WriteString(normalizeQuestion(question))
	b.WriteString("\n")
	b.WriteString(strconv.Itoa(numTests))
	b.WriteString("\n")
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, c.Strategy+"\x1f"+c.SQL)
	}
	b.WriteString(strings.Join(parts, "\x1e"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalizeQuestion(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}

func (u *unitTester) lookup(key string) (UnitTestData, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	data, ok := u.cache[key]
	return data, ok
}

// store replaces the map wholesale so concurrent readers holding the
// old map are never mutated under.
func (u *unitTester) store(key string, data UnitTestData) {
	u.mu.Lock()
	defer u.mu.Unlock()
	next := make(map[string]UnitTestData, len(u.cache)+1)
	for k, v := range u.cache {
		next[k] = v
	}
	next[key] = data
	u.cache = next
}

var _ UnitTester = (*unitTester)(nil)
