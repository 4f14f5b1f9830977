package schema

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/apperrors"
	"github.com/trialsight/trialsql-engine/pkg/database"
)

const (
	sampleRowCount    = 5
	maxSamplesPerCol  = 3
	maxSampleValueLen = 80
)

// Introspector is the slice of the database adapter the catalog needs.
type Introspector interface {
	ListTables(ctx context.Context) ([]database.TableMeta, error)
	ColumnsOf(ctx context.Context, table string) ([]database.ColumnMeta, error)
	SampleRows(ctx context.Context, table string, limit int) ([]string, [][]any, error)
	PrimaryKeys(ctx context.Context, table string) ([]string, error)
	ForeignKeys(ctx context.Context, table string) ([]database.ForeignKeyMeta, error)
}

// Catalog holds the introspected shape of the clinical database. It is
// built once by Refresh and read-only afterwards, so agents share it
// without locking.
type Catalog struct {
	introspector Introspector
	cachePath    string
	logger       *zap.Logger
	counter      *TokenCounter

	tables     map[string]*TableInfo
	order      []string
	byCategory map[string][]string
	byStudyKey map[string][]string
	fp         string
}

// NewCatalog builds an empty catalog. Call Refresh before use.
func NewCatalog(introspector Introspector, cachePath string, logger *zap.Logger) *Catalog {
	return &Catalog{
		introspector: introspector,
		cachePath:    cachePath,
		logger:       logger.Named("schema"),
		counter:      NewTokenCounter(logger),
		tables:       make(map[string]*TableInfo),
		byCategory:   make(map[string][]string),
		byStudyKey:   make(map[string][]string),
	}
}

// NewStaticCatalog builds a catalog from pre-built table descriptions,
// for tests and offline tooling that have no database behind them.
func NewStaticCatalog(tables []*TableInfo, logger *zap.Logger) *Catalog {
	c := &Catalog{
		logger:     logger.Named("schema"),
		counter:    NewTokenCounter(logger),
		tables:     make(map[string]*TableInfo),
		byCategory: make(map[string][]string),
		byStudyKey: make(map[string][]string),
	}
	lines := make([]string, 0, len(tables))
	for _, t := range tables {
		lines = append(lines, t.Name+":"+strconv.FormatInt(t.RowCount, 10))
	}
	sort.Strings(lines)
	c.install(tables, hashLines(lines))
	return c
}

// Refresh loads the catalog, from the on-disk cache when the database
// fingerprint still matches and by full introspection otherwise. With
// includeSamples false the per-column sample values are skipped, which
// keeps refresh cheap on very large tables.
func (c *Catalog) Refresh(ctx context.Context, includeSamples bool) error {
	metas, err := c.introspector.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}

	fp := fingerprint(metas)
	if cached, err := loadCache(c.cachePath, fp); err != nil {
		c.logger.Debug("schema cache unusable", zap.String("path", c.cachePath), zap.Error(err))
	} else if cached != nil {
		c.install(cached, fp)
		c.logger.Info("schema catalog loaded from cache", zap.Int("tables", len(c.order)))
		return nil
	}

	descriptions, err := loadMetadataDescriptions()
	if err != nil {
		return err
	}

	tables := make([]*TableInfo, 0, len(metas))
	for _, meta := range metas {
		table, err := c.introspectTable(ctx, meta, includeSamples, descriptions)
		if err != nil {
			return fmt.Errorf("introspecting %s: %w", meta.Name, err)
		}
		tables = append(tables, table)
	}

	c.install(tables, fp)
	if err := saveCache(c.cachePath, fp, tables); err != nil {
		c.logger.Warn("failed to persist schema cache", zap.Error(err))
	}
	c.logger.Info("schema catalog refreshed",
		zap.Int("tables", len(c.order)),
		zap.Bool("samples", includeSamples))
	return nil
}

func (c *Catalog) introspectTable(ctx context.Context, meta database.TableMeta, includeSamples bool, descriptions map[string]string) (*TableInfo, error) {
	table := &TableInfo{
		Name:     meta.Name,
		RowCount: meta.RowCount,
		Category: inferCategory(meta.Name),
	}

	cols, err := c.introspector.ColumnsOf(ctx, meta.Name)
	if err != nil {
		return nil, err
	}
	for _, col := range cols {
		table.Columns = append(table.Columns, ColumnInfo{
			Name:     col.Name,
			Type:     SemanticTypeOf(col.DataType),
			Nullable: col.IsNullable,
		})
	}

	table.PrimaryKeys, err = c.introspector.PrimaryKeys(ctx, meta.Name)
	if err != nil {
		return nil, err
	}
	fks, err := c.introspector.ForeignKeys(ctx, meta.Name)
	if err != nil {
		return nil, err
	}
	for _, fk := range fks {
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Column:    fk.SourceColumn,
			RefTable:  fk.TargetTable,
			RefColumn: fk.TargetColumn,
		})
	}

	if table.IsMetadata() {
		table.Description = metadataDescription(descriptions, meta.Name)
		return table, nil
	}

	if includeSamples {
		if err := c.attachSamples(ctx, table); err != nil {
			c.logger.Warn("sampling failed, continuing without samples",
				zap.String("table", meta.Name), zap.Error(err))
		}
	}
	return table, nil
}

// attachSamples reads a handful of rows and keeps up to three distinct,
// truncated values per column.
func (c *Catalog) attachSamples(ctx context.Context, table *TableInfo) error {
	columns, rows, err := c.introspector.SampleRows(ctx, table.Name, sampleRowCount)
	if err != nil {
		return err
	}
	for i, name := range columns {
		col := table.Column(name)
		if col == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, row := range rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			v := renderSample(row[i])
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			col.Samples = append(col.Samples, v)
			if len(col.Samples) == maxSamplesPerCol {
				break
			}
		}
	}
	return nil
}

func renderSample(v any) string {
	s := fmt.Sprintf("%v", v)
	s = strings.TrimSpace(s)
	if len(s) > maxSampleValueLen {
		s = s[:maxSampleValueLen] + "..."
	}
	return s
}

func (c *Catalog) install(tables []*TableInfo, fp string) {
	c.tables = make(map[string]*TableInfo, len(tables))
	c.order = c.order[:0]
	c.byCategory = make(map[string][]string)
	c.byStudyKey = make(map[string][]string)
	c.fp = fp

	for _, t := range tables {
		c.tables[t.Name] = t
		c.order = append(c.order, t.Name)
		if t.Category != "" {
			c.byCategory[t.Category] = append(c.byCategory[t.Category], t.Name)
		}
		if key := studyKeyOf(t); key != "" {
			c.byStudyKey[key] = append(c.byStudyKey[key], t.Name)
		}
	}
}

// fingerprint is stable across introspection order so the cache check
// is not sensitive to catalog query ordering.
func fingerprint(metas []database.TableMeta) string {
	lines := make([]string, 0, len(metas))
	for _, m := range metas {
		lines = append(lines, m.Name+":"+strconv.FormatInt(m.RowCount, 10))
	}
	sort.Strings(lines)
	return hashLines(lines)
}

// Table returns the named table or apperrors.ErrNotFound.
func (c *Catalog) Table(name string) (*TableInfo, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", name, apperrors.ErrNotFound)
	}
	return t, nil
}

// Has reports whether the catalog knows the table.
func (c *Catalog) Has(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// TableNames returns all table names in introspection order.
func (c *Catalog) TableNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Tables returns all tables in introspection order.
func (c *Catalog) Tables() []*TableInfo {
	out := make([]*TableInfo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tables[name])
	}
	return out
}

// DataTables returns the non-system tables in introspection order.
func (c *Catalog) DataTables() []*TableInfo {
	var out []*TableInfo
	for _, name := range c.order {
		if t := c.tables[name]; !t.IsMetadata() {
			out = append(out, t)
		}
	}
	return out
}

// TablesByCategory returns the names of tables tagged with category.
func (c *Catalog) TablesByCategory(category string) []string {
	out := make([]string, len(c.byCategory[category]))
	copy(out, c.byCategory[category])
	return out
}

// TablesByStudyKey returns the names of tables carrying the given
// study identifier column, e.g. "study_id".
func (c *Catalog) TablesByStudyKey(key string) []string {
	out := make([]string, len(c.byStudyKey[key]))
	copy(out, c.byStudyKey[key])
	return out
}

// Fingerprint returns the database fingerprint the catalog was built
// against.
func (c *Catalog) Fingerprint() string {
	return c.fp
}
