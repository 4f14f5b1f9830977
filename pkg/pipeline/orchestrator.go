package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/agents"
	"github.com/trialsight/trialsql-engine/pkg/logging"
)

const executionTimeout = 60 * time.Second

// Orchestrator wires the five agents into one question-to-answer run.
type Orchestrator struct {
	retriever agents.InformationRetriever
	selector  agents.SchemaSelector
	generator agents.CandidateGenerator
	tester    agents.UnitTester
	explainer agents.ResultExplainer
	db        agents.Database
	logger    *zap.Logger
}

// New builds the orchestrator over already-constructed agents.
func New(
	retriever agents.InformationRetriever,
	selector agents.SchemaSelector,
	generator agents.CandidateGenerator,
	tester agents.UnitTester,
	explainer agents.ResultExplainer,
	db agents.Database,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		selector:  selector,
		generator: generator,
		tester:    tester,
		explainer: explainer,
		db:        db,
		logger:    logger.Named("pipeline"),
	}
}

// Run answers one question. Retrieval, selection, and generation are
// load-bearing: their failure fails the run. Unit testing falls back
// to the generator's best candidate, and explanation never fails the
// run.
func (o *Orchestrator) Run(ctx context.Context, question string, opts Options) *Result {
	start := time.Now()
	result := &Result{RunID: uuid.NewString(), Question: question}
	defer func() {
		result.addTokens()
		result.ElapsedMS = time.Since(start).Milliseconds()
	}()

	o.logger.Info("pipeline started",
		zap.String("run_id", result.RunID),
		zap.String("question", logging.TruncateString(question, 120)))

	result.Retrieval = o.retriever.Retrieve(ctx, question)
	if !result.Retrieval.Success {
		return o.fatal(result, "information retrieval failed: "+result.Retrieval.Error)
	}

	result.Selection = o.selector.Select(ctx, question, result.Retrieval.Data)
	if !result.Selection.Success {
		return o.fatal(result, "schema selection failed: "+result.Selection.Error)
	}

	result.Generation = o.generator.Generate(ctx, question, result.Selection.Data, result.Retrieval.Data)
	if !result.Generation.Success {
		return o.fatal(result, "candidate generation failed: "+result.Generation.Error)
	}

	chosen := o.pickCandidate(ctx, question, result, opts)
	if chosen.SQL == "" {
		return o.fatal(result, "no usable SQL candidate")
	}
	result.SQL = chosen.SQL
	result.Strategy = chosen.Strategy
	result.Success = true

	if opts.SkipExecution {
		return result
	}

	result.Execution = o.db.SafeExecute(ctx, result.SQL, executionTimeout)
	if !result.Execution.Success {
		o.logger.Warn("final execution failed",
			zap.String("kind", string(result.Execution.Kind)),
			zap.String("error", result.Execution.Error))
		return result
	}

	if opts.SkipExplanation {
		return result
	}
	result.Explanation = o.explainer.Explain(ctx, question, result.SQL, result.Execution)
	if !result.Explanation.Success {
		o.logger.Warn("explanation failed, returning raw result", zap.String("error", result.Explanation.Error))
	}
	return result
}

// pickCandidate selects the winning candidate, preferring the unit
// tester's verdict and degrading to the first verified candidate.
func (o *Orchestrator) pickCandidate(ctx context.Context, question string, result *Result, opts Options) agents.Candidate {
	candidates := result.Generation.Data.Candidates

	if !opts.DisableUnitTest {
		result.UnitTest = o.tester.Evaluate(ctx, question, result.Generation.Data)
		if result.UnitTest.Success {
			return candidates[result.UnitTest.Data.BestIndex]
		}
		o.logger.Warn("unit testing failed, falling back to first verified candidate",
			zap.String("error", result.UnitTest.Error))
	}

	// Candidates are ordered valid-first, so the first one is the best
	// the generator could verify.
	return candidates[0]
}

func (o *Orchestrator) fatal(result *Result, msg string) *Result {
	result.Error = msg
	o.logger.Error("pipeline failed", zap.String("error", msg))
	return result
}

// UsageSummary formats end-of-run token accounting for the CLI.
func (r *Result) UsageSummary() string {
	return fmt.Sprintf("tokens: retrieval=%d selection=%d generation=%d unit_test=%d explanation=%d total=%d",
		r.Retrieval.TokensUsed, r.Selection.TokensUsed, r.Generation.TokensUsed,
		r.UnitTest.TokensUsed, r.Explanation.TokensUsed, r.TotalTokens)
}
