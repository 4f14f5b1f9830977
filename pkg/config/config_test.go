package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Agents.TopCandidates)
	assert.Equal(t, 5, cfg.Agents.NumUnitTests)
	assert.Equal(t, 2, cfg.Agents.MaxRevisions)
	assert.Equal(t, int32(8), cfg.Database.PoolSize)
	assert.Equal(t, 1000, cfg.Database.RowCap)
	assert.Equal(t, 4000, cfg.Budgets.MaxSchemaTokens)
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
llm:
  provider: anthropic
models:
  sql_generator: claude-sonnet-4-20250514
database:
  host: db.internal
  row_cap: 500
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("PGHOST", "overridden.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Models.SQLGenerator)
	assert.Equal(t, "overridden.internal", cfg.Database.Host)
	assert.Equal(t, 500, cfg.Database.RowCap)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: bedrock\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestConnectionString_RedactableShape(t *testing.T) {
	db := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "trials",
		Password: "secret", Database: "edc", SSLMode: "disable",
	}
	got := db.ConnectionString()
	assert.Contains(t, got, "host=localhost")
	assert.Contains(t, got, "dbname=edc")
}
