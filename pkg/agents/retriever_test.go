package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/llm"
)

func newTestRetriever(gw llm.Gateway) InformationRetriever {
	catalog := testCatalog()
	return NewInformationRetriever(gw, testPreprocessor(catalog), catalog, "test-model", zap.NewNop())
}

func TestRetrieverFindsValueAndColumnMatches(t *testing.T) {
	gw := llm.NewMockGateway(keywordResponse("headache", "subjects", "status"))
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "How many subjects reported headache?")
	require.True(t, result.Success, result.Error)

	assert.Equal(t, []string{"headache", "subjects", "status"}, result.Data.Keywords)

	require.NotEmpty(t, result.Data.ValueMatches)
	assert.Equal(t, "Headache", result.Data.ValueMatches[0].Value)
	assert.Equal(t, "headache", result.Data.ValueMatches[0].Keyword)

	assert.Contains(t, result.Data.RelevantTables, "adverse_events", "value match source")
	assert.Contains(t, result.Data.RelevantTables, "subjects", "column name match on status")

	assert.Greater(t, result.TokensUsed, 0)
	assert.NotEmpty(t, result.ToolCalls)
}

func TestRetrieverForcesMetadataTables(t *testing.T) {
	gw := llm.NewMockGateway(keywordResponse("studies"))
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "What studies are available in the database?")
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Data.RelevantTables, "_studies")
}

func TestRetrieverTokenizesOnGatewayError(t *testing.T) {
	gw := &llm.MockGateway{
		CompleteFunc: func(context.Context, llm.Request) (*llm.Completion, error) {
			return nil, errors.New("provider down")
		},
	}
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "How many subjects reported headache?")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"How", "many", "subjects", "reported", "headache"}, result.Data.Keywords)
	assert.Contains(t, result.Data.RelevantTables, "adverse_events", "tokenized keyword still hits the value index")
}

func TestRetrieverTokenizesOnEmptyKeywords(t *testing.T) {
	gw := llm.NewMockGateway(`{"keywords": []}`)
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "headache counts by site")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"headache", "counts", "by", "site"}, result.Data.Keywords)
}

func TestRetrieverFailsOnEmptyQuestion(t *testing.T) {
	gw := llm.NewMockGateway(`{"keywords": []}`)
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "  ")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no searchable terms")
}

func TestRetrieverDeduplicatesKeywords(t *testing.T) {
	gw := llm.NewMockGateway(keywordResponse("Headache", "headache", "sites"))
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "headache by site")
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{"Headache", "sites"}, result.Data.Keywords)
}

func TestRetrieverPoolsTablesFromClinicalTerms(t *testing.T) {
	gw := llm.NewMockGateway(`{"keywords": ["serious events"], "entities": [], "clinical_terms": ["SAE", "site"], "filters": ["serious = true"]}`)
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "Serious events by site?")
	require.True(t, result.Success, result.Error)

	assert.Equal(t, []string{"SAE", "site"}, result.Data.ClinicalTerms)
	assert.Equal(t, []string{"serious = true"}, result.Data.Filters)
	assert.Contains(t, result.Data.RelevantTables, "adverse_events", "safety category via SAE")
	assert.Contains(t, result.Data.RelevantTables, "sites", "site category")
}

func TestRetrieverSearchesEntities(t *testing.T) {
	gw := llm.NewMockGateway(`{"keywords": ["sites"], "entities": ["Germany", "DEU"], "clinical_terms": [], "filters": []}`)
	r := newTestRetriever(gw)

	result := r.Retrieve(context.Background(), "Sites in Germany?")
	require.True(t, result.Success, result.Error)

	assert.Equal(t, []string{"Germany", "DEU"}, result.Data.Entities)
	require.NotEmpty(t, result.Data.ValueMatches)
	assert.Contains(t, result.Data.RelevantTables, "sites", "entity DEU matched a cell value")
}

func TestWantsMetadata(t *testing.T) {
	assert.True(t, wantsMetadata("Which studies have data loaded?"))
	assert.True(t, wantsMetadata("what tables exist?"))
	assert.True(t, wantsMetadata("How many studies are in the database?"))
	assert.True(t, wantsMetadata("Describe the database structure."))
	assert.False(t, wantsMetadata("How many subjects enrolled?"))
}
