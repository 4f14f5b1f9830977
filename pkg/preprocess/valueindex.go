package preprocess

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/schema"
)

const (
	// Per-column cap on indexed distinct values. High-cardinality
	// columns are truncated to this many, not dropped.
	maxDistinctPerColumn = 1000

	minValueLen = 2
	maxValueLen = 200
)

// ValueSource is the slice of the database adapter the value index
// builder needs.
type ValueSource interface {
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}

// BuildValueIndex scans every text column of the non-system tables and
// indexes up to maxDistinctPerColumn distinct non-null values each.
// High-cardinality columns are truncated to the cap, not dropped.
func BuildValueIndex(ctx context.Context, source ValueSource, catalog *schema.Catalog, logger *zap.Logger) (*Index, error) {
	log := logger.Named("value_index")
	index := NewIndex()

	columnsIndexed := 0
	for _, table := range catalog.DataTables() {
		for _, column := range table.TextColumns() {
			values, err := source.DistinctValues(ctx, table.Name, column, maxDistinctPerColumn)
			if err != nil {
				return nil, fmt.Errorf("reading distinct values of %s.%s: %w", table.Name, column, err)
			}
			if len(values) > maxDistinctPerColumn {
				values = values[:maxDistinctPerColumn]
			}

			for _, v := range values {
				if len(v) < minValueLen || len(v) > maxValueLen {
					continue
				}
				index.Add(v, table.Name, column)
			}
			columnsIndexed++
		}
	}

	log.Info("value index built",
		zap.Int("values", index.Len()),
		zap.Int("columns", columnsIndexed))
	return index, nil
}
