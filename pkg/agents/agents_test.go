package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/database"
	"github.com/trialsight/trialsql-engine/pkg/preprocess"
	"github.com/trialsight/trialsql-engine/pkg/prompts"
	"github.com/trialsight/trialsql-engine/pkg/schema"
)

// mockDB stubs the database surface the agents touch.
type mockDB struct {
	validateFunc func(sqlQuery string) (*database.ValidationStatus, error)
	executeFunc  func(sqlQuery string) *database.QueryResult
}

func (m *mockDB) Validate(_ context.Context, sqlQuery string) (*database.ValidationStatus, error) {
	if m.validateFunc != nil {
		return m.validateFunc(sqlQuery)
	}
	return &database.ValidationStatus{Valid: true}, nil
}

func (m *mockDB) SafeExecute(_ context.Context, sqlQuery string, _ time.Duration) *database.QueryResult {
	if m.executeFunc != nil {
		return m.executeFunc(sqlQuery)
	}
	return &database.QueryResult{
		Success:  true,
		Columns:  []string{"n"},
		Rows:     [][]any{{int64(1)}},
		RowCount: 1,
	}
}

func testCatalog() *schema.Catalog {
	tables := []*schema.TableInfo{
		{
			Name: "subjects",
			Columns: []schema.ColumnInfo{
				{Name: "subject_id", Type: schema.TypeInteger},
				{Name: "study_id", Type: schema.TypeText},
				{Name: "status", Type: schema.TypeText},
				{Name: "country", Type: schema.TypeText},
			},
			RowCount:    1000,
			PrimaryKeys: []string{"subject_id"},
			Category:    "subject",
		},
		{
			Name: "adverse_events",
			Columns: []schema.ColumnInfo{
				{Name: "event_id", Type: schema.TypeInteger},
				{Name: "subject_id", Type: schema.TypeInteger},
				{Name: "preferred_term", Type: schema.TypeText},
			},
			RowCount:    5000,
			PrimaryKeys: []string{"event_id"},
			ForeignKeys: []schema.ForeignKey{{Column: "subject_id", RefTable: "subjects", RefColumn: "subject_id"}},
			Category:    "safety",
		},
		{
			Name: "sites",
			Columns: []schema.ColumnInfo{
				{Name: "site_id", Type: schema.TypeInteger},
				{Name: "country", Type: schema.TypeText},
			},
			RowCount:    80,
			PrimaryKeys: []string{"site_id"},
			Category:    "site",
		},
		{
			Name: "_studies",
			Columns: []schema.ColumnInfo{
				{Name: "study_id", Type: schema.TypeText},
				{Name: "protocol_name", Type: schema.TypeText},
			},
			RowCount:    5,
			Category:    "metadata",
			Description: "System table listing every study.",
		},
	}
	return schema.NewStaticCatalog(tables, zap.NewNop())
}

func testCatalogEmpty() *schema.Catalog {
	return schema.NewStaticCatalog(nil, zap.NewNop())
}

func testPreprocessor(catalog *schema.Catalog) *preprocess.Preprocessor {
	values := preprocess.NewIndex()
	values.Add("Headache", "adverse_events", "preferred_term")
	values.Add("Nausea", "adverse_events", "preferred_term")
	values.Add("DEU", "sites", "country")
	values.Add("enrolled", "subjects", "status")

	descriptions, err := preprocess.BuildDescIndex(context.Background(), nil, catalog, zap.NewNop())
	if err != nil {
		panic(err)
	}
	return &preprocess.Preprocessor{Values: values, Descriptions: descriptions}
}

func keywordResponse(keywords ...string) string {
	out := `{"keywords": [`
	for i, kw := range keywords {
		if i > 0 {
			out += ", "
		}
		out += `"` + kw + `"`
	}
	return out + `]}`
}

func testRetrieval() RetrievalData {
	return RetrievalData{
		Keywords: []string{"headache", "subjects"},
		ValueMatches: []ValueMatch{
			{Keyword: "headache", Value: "Headache", Table: "adverse_events", Column: "preferred_term", Score: 1},
		},
		RelevantTables: []string{"adverse_events", "subjects"},
	}
}

func testSelection() SelectionData {
	return SelectionData{
		Tables: []prompts.SelectedTable{
			{Name: "adverse_events", Role: "primary"},
			{Name: "subjects", Role: "join"},
		},
		Columns: map[string][]prompts.SelectedColumn{
			"adverse_events": {{Name: "event_id"}, {Name: "subject_id"}, {Name: "preferred_term", Clause: "SELECT"}},
			"subjects":       {{Name: "subject_id", Clause: "JOIN"}, {Name: "status", Clause: "WHERE"}},
		},
		JoinHints:     []string{"adverse_events.subject_id = subjects.subject_id"},
		PrimaryTable:  "adverse_events",
		SchemaContext: "adverse_events[event_id:integer,subject_id:integer,preferred_term:text]\n\nsubjects[subject_id:integer,status:text]",
	}
}

var _ Database = (*mockDB)(nil)
