package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	input := `{"keywords": ["site", "query"], "entities": ["Site 18"]}`
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, input, result)
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	input := "Here is the extraction:\n```json\n{\"keywords\": [\"sae\"]}\n```\nDone."
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"keywords": ["sae"]}`, result)
}

func TestExtractJSON_UnlabeledFence(t *testing.T) {
	input := "```\n[{\"table\": \"sites\"}]\n```"
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `[{"table": "sites"}]`, result)
}

func TestExtractJSON_EmbeddedSpan(t *testing.T) {
	input := `The selected tables are {"tables": [{"name": "data_queries"}]} as requested.`
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"tables": [{"name": "data_queries"}]}`, result)
}

func TestExtractJSON_NestedBracesInStrings(t *testing.T) {
	input := `{"sql": "SELECT '{' FROM t", "note": "quoted \" brace }"}`
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, input, result)
}

func TestExtractJSON_ThinkTags(t *testing.T) {
	input := "<think>\nreason about it\n</think>\n{\"ok\": true}"
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, result)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I cannot answer that question.")
	assert.Error(t, err)
}

func TestParseJSONResponse(t *testing.T) {
	type extraction struct {
		Keywords []string `json:"keywords"`
	}
	got, err := ParseJSONResponse[extraction]("```json\n{\"keywords\": [\"visit\", \"sae\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"visit", "sae"}, got.Keywords)
}

func TestParseJSONResponse_WrongShape(t *testing.T) {
	type extraction struct {
		Keywords []string `json:"keywords"`
	}
	_, err := ParseJSONResponse[extraction](`{"keywords": "not-a-list"}`)
	assert.Error(t, err)
}
