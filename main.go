// Command trialsql-engine answers natural language questions about a
// clinical trial warehouse by generating, testing, and executing SQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/agents"
	"github.com/trialsight/trialsql-engine/pkg/config"
	"github.com/trialsight/trialsql-engine/pkg/database"
	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/logging"
	"github.com/trialsight/trialsql-engine/pkg/pipeline"
	"github.com/trialsight/trialsql-engine/pkg/preprocess"
	"github.com/trialsight/trialsql-engine/pkg/schema"
)

func main() {
	var (
		configPath      = flag.String("config", "", "path to config.yaml")
		skipExecution   = flag.Bool("skip-execution", false, "stop after the winning SQL is chosen")
		skipExplanation = flag.Bool("skip-explanation", false, "execute but do not explain the result")
		noUnitTest      = flag.Bool("no-unit-test", false, "pick the first verified candidate without test-based selection")
	)
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: trialsql-engine [flags] <question>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg, logger, question, pipeline.Options{
		SkipExecution:   *skipExecution,
		SkipExplanation: *skipExplanation,
		DisableUnitTest: *noUnitTest,
	})
	if err != nil {
		logger.Fatal("pipeline setup failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("encoding result", zap.Error(err))
	}
	fmt.Println(string(out))
	fmt.Fprintln(os.Stderr, result.UsageSummary())

	if !result.Success {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, question string, opts pipeline.Options) (*pipeline.Result, error) {
	adapter, err := database.New(ctx, database.Config{
		ConnString: cfg.Database.ConnectionString(),
		PoolSize:   cfg.Database.PoolSize,
		RowCap:     cfg.Database.RowCap,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer adapter.Close()

	catalog := schema.NewCatalog(adapter, cfg.Cache.SchemaPath, logger)
	if err := catalog.Refresh(ctx, true); err != nil {
		return nil, fmt.Errorf("loading schema catalog: %w", err)
	}

	gateway, err := llm.NewGateway(&llm.Config{
		Provider:       cfg.LLM.Provider,
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		MaxRetries:     cfg.LLM.MaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building llm gateway: %w", err)
	}

	pre, err := preprocess.BuildOrLoad(ctx, adapter, catalog, gateway, cfg.Cache.PreprocessorPath, logger)
	if err != nil {
		return nil, fmt.Errorf("building value indexes: %w", err)
	}
	defer func() {
		if err := pre.Save(cfg.Cache.PreprocessorPath, catalog.Fingerprint()); err != nil {
			logger.Warn("saving preprocessor cache", zap.Error(err))
		}
	}()

	orchestrator := pipeline.New(
		agents.NewInformationRetriever(gateway, pre, catalog, cfg.Models.SchemaSelector, logger),
		agents.NewSchemaSelector(gateway, catalog, cfg.Models.SchemaSelector, cfg.Budgets.MaxSchemaTokens, logger),
		agents.NewCandidateGenerator(gateway, adapter, agents.GeneratorOptions{
			GeneratorModel: cfg.Models.SQLGenerator,
			RefinerModel:   cfg.Models.SQLRefiner,
			NumCandidates:  cfg.Agents.TopCandidates,
			MaxRevisions:   cfg.Agents.MaxRevisions,
		}, logger),
		agents.NewUnitTester(gateway, cfg.Models.Evaluator, cfg.Agents.NumUnitTests, logger),
		agents.NewResultExplainer(gateway, adapter, cfg.Models.Evaluator, logger),
		adapter,
		logger,
	)

	return orchestrator.Run(ctx, question, opts), nil
}
