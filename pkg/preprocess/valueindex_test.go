package preprocess

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/schema"
)

type fakeValueSource struct {
	values map[string][]string
}

func (f *fakeValueSource) DistinctValues(_ context.Context, table, column string, limit int) ([]string, error) {
	v := f.values[table+"."+column]
	if len(v) > limit {
		v = v[:limit]
	}
	return v, nil
}

func valueIndexCatalog() *schema.Catalog {
	tables := []*schema.TableInfo{
		{
			Name: "adverse_events",
			Columns: []schema.ColumnInfo{
				{Name: "event_id", Type: schema.TypeInteger},
				{Name: "preferred_term", Type: schema.TypeText},
			},
		},
	}
	return schema.NewStaticCatalog(tables, zap.NewNop())
}

func TestBuildValueIndexTruncatesHighCardinalityColumns(t *testing.T) {
	terms := make([]string, 1500)
	for i := range terms {
		terms[i] = fmt.Sprintf("term-%04d", i)
	}
	source := &fakeValueSource{values: map[string][]string{
		"adverse_events.preferred_term": terms,
	}}

	index, err := BuildValueIndex(context.Background(), source, valueIndexCatalog(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1000, index.Len(), "column capped at the first thousand values, not dropped")

	hits := index.Query("term-0999", 1)
	require.NotEmpty(t, hits)
	assert.Equal(t, "term-0999", hits[0].Value)
}

func TestBuildValueIndexFiltersByLength(t *testing.T) {
	source := &fakeValueSource{values: map[string][]string{
		"adverse_events.preferred_term": {"a", "Headache", "Nausea"},
	}}

	index, err := BuildValueIndex(context.Background(), source, valueIndexCatalog(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len(), "single-character values are noise")
}
