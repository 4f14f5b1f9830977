package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL_LabeledFence(t *testing.T) {
	input := "Here is the query:\n```sql\nSELECT COUNT(*) FROM _studies;\n```"
	assert.Equal(t, "SELECT COUNT(*) FROM _studies;", ExtractSQL(input))
}

func TestExtractSQL_LabeledFenceWins(t *testing.T) {
	input := "```\nSELECT 1;\n```\n```sql\nSELECT 2;\n```"
	assert.Equal(t, "SELECT 2;", ExtractSQL(input))
}

func TestExtractSQL_UnlabeledFenceWithSelect(t *testing.T) {
	input := "```\nSELECT site_number FROM sites\n```"
	assert.Equal(t, "SELECT site_number FROM sites", ExtractSQL(input))
}

func TestExtractSQL_CTEInFence(t *testing.T) {
	input := "```\nWITH open_queries AS (SELECT * FROM data_queries) SELECT COUNT(*) FROM open_queries\n```"
	assert.Contains(t, ExtractSQL(input), "WITH open_queries")
}

func TestExtractSQL_BareStatement(t *testing.T) {
	input := "The answer can be computed with SELECT AVG(days_open) FROM data_queries WHERE query_status = 'OPEN'; which returns one row."
	assert.Equal(t, "SELECT AVG(days_open) FROM data_queries WHERE query_status = 'OPEN';", ExtractSQL(input))
}

func TestExtractSQL_WholeResponseIsStatement(t *testing.T) {
	input := "SELECT subject_id FROM subjects WHERE country = 'JPN'"
	assert.Equal(t, input, ExtractSQL(input))
}

func TestExtractSQL_Nothing(t *testing.T) {
	assert.Equal(t, "", ExtractSQL("I am unable to produce a query for that."))
}
