// Package config loads trialsql-engine configuration from config.yaml
// with environment variable overrides. Secrets (API keys, database
// passwords) must only come from environment variables.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	LLM      LLMConfig      `yaml:"llm"`
	Models   ModelsConfig   `yaml:"models"`
	Budgets  BudgetConfig   `yaml:"budgets"`
	Agents   AgentConfig    `yaml:"agents"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
}

// LLMConfig holds provider-level settings for the gateway.
type LLMConfig struct {
	// Provider selects the gateway backend: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	// BaseURL overrides the provider endpoint, e.g. a vLLM deployment.
	BaseURL string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	APIKey  string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	// EmbeddingModel, when set, enables learned embeddings for the
	// description index; empty falls back to the feature-vector encoder.
	EmbeddingModel string `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL" env-default:""`
	MaxRetries     int    `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"3"`
}

// ModelsConfig names the model used for each pipeline role.
type ModelsConfig struct {
	SchemaSelector string `yaml:"schema_selector" env:"MODEL_SCHEMA_SELECTOR" env-default:"gpt-4o-mini"`
	SQLGenerator   string `yaml:"sql_generator" env:"MODEL_SQL_GENERATOR" env-default:"gpt-4o"`
	SQLRefiner     string `yaml:"sql_refiner" env:"MODEL_SQL_REFINER" env-default:"gpt-4o-mini"`
	Evaluator      string `yaml:"evaluator" env:"MODEL_EVALUATOR" env-default:"gpt-4o-mini"`
}

// BudgetConfig holds token budgets for prompt assembly.
type BudgetConfig struct {
	MaxSchemaTokens   int `yaml:"max_schema_tokens" env:"MAX_SCHEMA_TOKENS" env-default:"4000"`
	MaxExamplesTokens int `yaml:"max_examples_tokens" env:"MAX_EXAMPLES_TOKENS" env-default:"1500"`
	TotalContextLimit int `yaml:"total_context_limit" env:"TOTAL_CONTEXT_LIMIT" env-default:"16000"`
}

// AgentConfig holds per-agent defaults.
type AgentConfig struct {
	Temperature   float64 `yaml:"temperature" env:"AGENT_TEMPERATURE" env-default:"0.1"`
	MaxRetries    int     `yaml:"max_retries" env:"AGENT_MAX_RETRIES" env-default:"2"`
	TopCandidates int     `yaml:"top_candidates" env:"AGENT_TOP_CANDIDATES" env-default:"3"`
	NumUnitTests  int     `yaml:"num_unit_tests" env:"AGENT_NUM_UNIT_TESTS" env-default:"5"`
	MaxRevisions  int     `yaml:"max_revisions" env:"AGENT_MAX_REVISIONS" env-default:"2"`
}

// DatabaseConfig holds the clinical database connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"trials"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"clinical_trials"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	// PoolSize is the fixed connection pool size protecting the driver.
	PoolSize int32 `yaml:"pool_size" env:"PGPOOL_SIZE" env-default:"8"`
	// RowCap bounds the rows any single safe execution may return.
	RowCap int `yaml:"row_cap" env:"PGROW_CAP" env-default:"1000"`
}

// CacheConfig holds on-disk cache locations.
type CacheConfig struct {
	SchemaPath       string `yaml:"schema_path" env:"SCHEMA_CACHE_PATH" env-default:"cache/schema.json"`
	PreprocessorPath string `yaml:"preprocessor_path" env:"PREPROCESSOR_CACHE_PATH" env-default:"cache/preprocessor.bin"`
}

// Load reads configuration from path with environment variable
// overrides. An empty path defaults to config.yaml in the working
// directory; a missing file is not an error, env and defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		// Fall back to env-only configuration when the file is absent.
		if envErr := cleanenv.ReadEnv(cfg); envErr != nil {
			return nil, fmt.Errorf("read config: %w", envErr)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("database pool_size must be at least 1, got %d", c.Database.PoolSize)
	}
	if c.Database.RowCap < 1 {
		return fmt.Errorf("database row_cap must be at least 1, got %d", c.Database.RowCap)
	}
	if c.Agents.TopCandidates < 1 {
		return fmt.Errorf("agents top_candidates must be at least 1, got %d", c.Agents.TopCandidates)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
