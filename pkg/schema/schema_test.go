package schema

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCatalog() *Catalog {
	c := &Catalog{
		logger:  zap.NewNop(),
		counter: NewTokenCounter(zap.NewNop()),
	}
	c.install(testTables(), "test-fp")
	return c
}

func testTables() []*TableInfo {
	return []*TableInfo{
		{
			Name: "subjects",
			Columns: []ColumnInfo{
				{Name: "subject_id", Type: TypeInteger, Nullable: false},
				{Name: "study_id", Type: TypeText, Nullable: false},
				{Name: "status", Type: TypeText, Nullable: true, Samples: []string{"enrolled", "screened"}},
				{Name: "enrolled_on", Type: TypeTemporal, Nullable: true},
			},
			RowCount:    1200,
			PrimaryKeys: []string{"subject_id"},
			Category:    "subject",
		},
		{
			Name: "adverse_events",
			Columns: []ColumnInfo{
				{Name: "event_id", Type: TypeInteger, Nullable: false},
				{Name: "subject_id", Type: TypeInteger, Nullable: false},
				{Name: "preferred_term", Type: TypeText, Nullable: true},
			},
			RowCount:    5400,
			PrimaryKeys: []string{"event_id"},
			ForeignKeys: []ForeignKey{{Column: "subject_id", RefTable: "subjects", RefColumn: "subject_id"}},
			Category:    "safety",
		},
		{
			Name: "_studies",
			Columns: []ColumnInfo{
				{Name: "study_id", Type: TypeText, Nullable: false},
				{Name: "protocol_name", Type: TypeText, Nullable: true},
			},
			RowCount:    12,
			Category:    "metadata",
			Description: "System table listing every study.",
		},
	}
}

func TestSemanticTypeOf(t *testing.T) {
	tests := []struct {
		dataType string
		want     SemanticType
	}{
		{"character varying", TypeText},
		{"TEXT", TypeText},
		{"uuid", TypeText},
		{"integer", TypeInteger},
		{"bigint", TypeInteger},
		{"numeric", TypeNumeric},
		{"double precision", TypeNumeric},
		{"timestamp with time zone", TypeTemporal},
		{"date", TypeTemporal},
		{"boolean", TypeBoolean},
		{"jsonb", TypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SemanticTypeOf(tt.dataType), tt.dataType)
	}
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "metadata", inferCategory("_table_metadata"))
	assert.Equal(t, "visit", inferCategory("subject_visits"))
	assert.Equal(t, "query", inferCategory("open_queries"))
	assert.Equal(t, "safety", inferCategory("sae_reports"))
	assert.Equal(t, "coding", inferCategory("meddra_coding"))
	assert.Equal(t, "subject", inferCategory("enrollment_log"))
	assert.Equal(t, "", inferCategory("lab_results"))
}

func TestTableLookupsAndIndexes(t *testing.T) {
	c := testCatalog()

	tbl, err := c.Table("subjects")
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("status"))
	assert.Equal(t, []string{"study_id", "status"}, tbl.TextColumns())

	_, err = c.Table("nope")
	require.Error(t, err)

	assert.Equal(t, []string{"adverse_events"}, c.TablesByCategory("safety"))
	assert.Equal(t, []string{"subjects", "_studies"}, c.TablesByStudyKey("study_id"))

	data := c.DataTables()
	require.Len(t, data, 2)
	assert.Equal(t, "subjects", data[0].Name)
}

func TestProjectMedium(t *testing.T) {
	c := testCatalog()

	out, err := c.Project([]string{"subjects", "adverse_events"}, 100000, DetailMedium)
	require.NoError(t, err)

	assert.Contains(t, out, "CREATE TABLE subjects (")
	assert.Contains(t, out, "  subject_id integer NOT NULL")
	assert.Contains(t, out, "  PRIMARY KEY (subject_id)")
	assert.Contains(t, out, "-- rows: 1200")
	assert.Contains(t, out, "-- JOIN: adverse_events.subject_id = subjects.subject_id")
	assert.NotContains(t, out, "e.g. enrolled", "medium detail omits samples")
}

func TestProjectDetailedIncludesSamples(t *testing.T) {
	c := testCatalog()

	out, err := c.Project([]string{"subjects"}, 100000, DetailDetailed)
	require.NoError(t, err)
	assert.Contains(t, out, "e.g. enrolled, screened")
}

func TestProjectCompact(t *testing.T) {
	c := testCatalog()

	out, err := c.Project([]string{"adverse_events"}, 100000, DetailCompact)
	require.NoError(t, err)
	assert.Contains(t, out, "adverse_events[event_id:integer,subject_id:integer,preferred_term:text]")
	assert.NotContains(t, out, "CREATE TABLE")
}

func TestProjectTightBudgetDowngrades(t *testing.T) {
	c := testCatalog()

	full, err := c.Project([]string{"subjects"}, 100000, DetailMedium)
	require.NoError(t, err)
	budget := c.counter.Count(full) - 1

	out, err := c.Project([]string{"subjects"}, budget, DetailMedium)
	require.NoError(t, err)
	assert.NotContains(t, out, "CREATE TABLE", "should fall back to compact form")
	assert.Contains(t, out, "subjects[")
}

func TestProjectBudgetReservesNoticeTokens(t *testing.T) {
	c := testCatalog()
	subjects, err := c.Table("subjects")
	require.NoError(t, err)
	adverse, err := c.Table("adverse_events")
	require.NoError(t, err)

	// Exactly enough for both medium blocks, but not for the truncation
	// notice on top. The reserve must force the second table down to
	// compact form instead of spending the whole budget on full blocks.
	budget := c.counter.Count(renderTable(subjects, DetailMedium)) +
		c.counter.Count(renderTable(adverse, DetailMedium))

	out, err := c.Project([]string{"subjects", "adverse_events"}, budget, DetailMedium)
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE subjects (")
	assert.Contains(t, out, "adverse_events[")
	assert.NotContains(t, out, "CREATE TABLE adverse_events")
}

func TestProjectTruncation(t *testing.T) {
	c := testCatalog()

	out, err := c.Project([]string{"subjects", "adverse_events"}, 1, DetailMedium)
	require.NoError(t, err)
	assert.Contains(t, out, "subjects[", "first table is always emitted")
	assert.NotContains(t, out, "adverse_events[")
	assert.Contains(t, out, "schema truncated")
	assert.NotContains(t, out, "-- JOIN:", "join lines only cover projected tables")
}

func TestProjectDeterministic(t *testing.T) {
	c := testCatalog()

	first, err := c.Project([]string{"subjects", "adverse_events", "_studies"}, 2000, DetailDetailed)
	require.NoError(t, err)
	second, err := c.Project([]string{"subjects", "adverse_events", "_studies"}, 2000, DetailDetailed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProjectUnknownTable(t *testing.T) {
	c := testCatalog()
	_, err := c.Project([]string{"subjects", "missing"}, 1000, DetailMedium)
	require.Error(t, err)
}

func TestSearchColumns(t *testing.T) {
	c := testCatalog()

	refs := c.SearchColumns("subject_id")
	require.Len(t, refs, 2)
	assert.Equal(t, ColumnRef{Table: "subjects", Column: "subject_id", Type: TypeInteger}, refs[0])
	assert.Equal(t, "adverse_events", refs[1].Table)

	assert.Empty(t, c.SearchColumns(""))
	assert.Empty(t, c.SearchColumns("zzz"))
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "schema.json")
	tables := testTables()

	require.NoError(t, saveCache(path, "fp-1", tables))

	loaded, err := loadCache(path, "fp-1")
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "subjects", loaded[0].Name)
	assert.Equal(t, int64(5400), loaded[1].RowCount)

	_, err = loadCache(path, "fp-2")
	require.Error(t, err, "fingerprint mismatch must force reintrospection")
}

func TestCacheMissingFile(t *testing.T) {
	loaded, err := loadCache(filepath.Join(t.TempDir(), "absent.json"), "fp")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMetadataDescriptions(t *testing.T) {
	descriptions, err := loadMetadataDescriptions()
	require.NoError(t, err)
	assert.Contains(t, descriptions["_studies"], "study")

	generic := metadataDescription(descriptions, "_unlisted")
	assert.True(t, strings.HasPrefix(generic, "System table _unlisted"))
}
