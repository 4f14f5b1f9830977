// Package schema maintains the persistent catalog of the clinical
// database: tables, columns, sample values, relationships, and
// categories, with token-budgeted projection into prompt context.
package schema

import "strings"

// SemanticType is the coarse column type the generator reasons about.
type SemanticType string

const (
	TypeText     SemanticType = "text"
	TypeInteger  SemanticType = "integer"
	TypeNumeric  SemanticType = "numeric"
	TypeTemporal SemanticType = "temporal"
	TypeBoolean  SemanticType = "boolean"
	TypeUnknown  SemanticType = "unknown"
)

// SemanticTypeOf maps a PostgreSQL data type to its semantic type.
func SemanticTypeOf(dataType string) SemanticType {
	switch strings.ToLower(dataType) {
	case "text", "character varying", "character", "varchar", "char", "uuid", "name", "bpchar":
		return TypeText
	case "smallint", "integer", "bigint", "int2", "int4", "int8", "serial", "bigserial":
		return TypeInteger
	case "numeric", "decimal", "real", "double precision", "float4", "float8", "money":
		return TypeNumeric
	case "date", "time", "timestamp", "timestamp without time zone", "timestamp with time zone", "interval":
		return TypeTemporal
	case "boolean", "bool":
		return TypeBoolean
	default:
		return TypeUnknown
	}
}

// ColumnInfo describes one column.
type ColumnInfo struct {
	Name        string       `json:"name"`
	Type        SemanticType `json:"type"`
	Nullable    bool         `json:"nullable"`
	Samples     []string     `json:"samples,omitempty"` // at most three
	Description string       `json:"description,omitempty"`
}

// ForeignKey is one outgoing edge, by name rather than by reference so
// the catalog graph stays acyclic at the object level.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// TableInfo describes one table.
type TableInfo struct {
	Name        string       `json:"name"`
	Columns     []ColumnInfo `json:"columns"`
	RowCount    int64        `json:"row_count"`
	PrimaryKeys []string     `json:"primary_keys,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Category    string       `json:"category,omitempty"`
	Description string       `json:"description,omitempty"`
}

// IsMetadata reports whether this is a system table describing the
// database itself. Metadata tables carry curated descriptions and are
// never value-indexed.
func (t *TableInfo) IsMetadata() bool {
	return strings.HasPrefix(t.Name, "_")
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableInfo) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Column returns the named column, or nil.
func (t *TableInfo) Column(name string) *ColumnInfo {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// TextColumns returns the names of text-typed columns, the ones the
// value index covers.
func (t *TableInfo) TextColumns() []string {
	var cols []string
	for _, c := range t.Columns {
		if c.Type == TypeText {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// inferCategory tags a table by name heuristics. The clinical-term map
// in the information retriever resolves through these tags.
func inferCategory(name string) string {
	if strings.HasPrefix(name, "_") {
		return "metadata"
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "visit"):
		return "visit"
	case strings.Contains(lower, "quer"):
		return "query"
	case strings.Contains(lower, "sae"), strings.Contains(lower, "adverse"), strings.Contains(lower, "safety"):
		return "safety"
	case strings.Contains(lower, "coding"), strings.Contains(lower, "meddra"), strings.Contains(lower, "whodrug"):
		return "coding"
	case strings.Contains(lower, "site"):
		return "site"
	case strings.Contains(lower, "subject"), strings.Contains(lower, "patient"), strings.Contains(lower, "enroll"):
		return "subject"
	case strings.Contains(lower, "metric"):
		return "metric"
	default:
		return ""
	}
}

// studyKeyColumns are the column names that mark a table as
// study-scoped; the catalog's by-study index is keyed by them.
var studyKeyColumns = []string{"study_id", "study_number", "studyid"}

func studyKeyOf(t *TableInfo) string {
	for _, key := range studyKeyColumns {
		if t.HasColumn(key) {
			return key
		}
	}
	return ""
}
