package database

import (
	"context"
	"fmt"
)

// TableMeta is one user table discovered by introspection.
type TableMeta struct {
	Name     string
	RowCount int64
}

// ColumnMeta is one column of a table.
type ColumnMeta struct {
	Name       string
	DataType   string
	IsNullable bool
}

// ForeignKeyMeta is one outgoing foreign-key edge.
type ForeignKeyMeta struct {
	SourceColumn string
	TargetTable  string
	TargetColumn string
}

// ListTables returns all user tables in the public schema with
// estimated row counts.
func (a *Adapter) ListTables(ctx context.Context) ([]TableMeta, error) {
	const query = `
		SELECT
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema = 'public'
		ORDER BY t.table_name
	`

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", classifyError(err))
	}
	defer rows.Close()

	var tables []TableMeta
	for rows.Next() {
		var t TableMeta
		if err := rows.Scan(&t.Name, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", classifyError(err))
	}

	return tables, nil
}

// ColumnsOf returns the ordered columns of a table.
func (a *Adapter) ColumnsOf(ctx context.Context, table string) ([]ColumnMeta, error) {
	const query = `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, classifyError(err))
	}
	defer rows.Close()

	var columns []ColumnMeta
	for rows.Next() {
		var c ColumnMeta
		if err := rows.Scan(&c.Name, &c.DataType, &c.IsNullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", classifyError(err))
	}

	return columns, nil
}

// RowCount returns the exact row count of a table.
func (a *Adapter) RowCount(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteIdentifier(table))

	var count int64
	if err := a.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, classifyError(err))
	}
	return count, nil
}

// SampleRows returns up to n rows of a table as column-ordered values.
func (a *Adapter) SampleRows(ctx context.Context, table string, n int) ([]string, [][]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", QuoteIdentifier(table), n)

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("sample rows of %s: %w", table, classifyError(err))
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	var data [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("read sample row: %w", err)
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate sample rows: %w", classifyError(err))
	}

	return columns, data, nil
}

// PrimaryKeys returns the primary-key columns of a table.
func (a *Adapter) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	const query = `
		SELECT a.attname
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE ix.indisprimary
		  AND n.nspname = 'public'
		  AND t.relname = $1
		ORDER BY a.attnum
	`

	rows, err := a.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query primary keys of %s: %w", table, classifyError(err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", classifyError(err))
	}

	return keys, nil
}

// ForeignKeys returns the outgoing foreign-key edges of a table.
func (a *Adapter) ForeignKeys(ctx context.Context, table string) ([]ForeignKeyMeta, error) {
	const query = `
		SELECT
			kcu.column_name,
			ccu.table_name AS target_table,
			ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'
		  AND kcu.table_name = $1
	`

	rows, err := a.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys of %s: %w", table, classifyError(err))
	}
	defer rows.Close()

	var fks []ForeignKeyMeta
	for rows.Next() {
		var fk ForeignKeyMeta
		if err := rows.Scan(&fk.SourceColumn, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", classifyError(err))
	}

	return fks, nil
}

// DistinctValues returns up to limit distinct non-null values of a
// column rendered as text; the preprocessor's value index is built
// from these.
func (a *Adapter) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %s::text
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY 1
		LIMIT $1
	`, QuoteIdentifier(column), QuoteIdentifier(table), QuoteIdentifier(column))

	rows, err := a.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("distinct values of %s.%s: %w", table, column, classifyError(err))
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", classifyError(err))
	}

	return values, nil
}
