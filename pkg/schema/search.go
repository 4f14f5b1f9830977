package schema

import "strings"

// ColumnRef locates a column in the catalog.
type ColumnRef struct {
	Table  string       `json:"table"`
	Column string       `json:"column"`
	Type   SemanticType `json:"type"`
}

// SearchColumns returns every column whose name contains the term,
// case-insensitively, in catalog order. The information retriever uses
// it to map question keywords onto concrete columns.
func (c *Catalog) SearchColumns(term string) []ColumnRef {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	var refs []ColumnRef
	for _, name := range c.order {
		t := c.tables[name]
		for _, col := range t.Columns {
			if strings.Contains(strings.ToLower(col.Name), term) {
				refs = append(refs, ColumnRef{Table: t.Name, Column: col.Name, Type: col.Type})
			}
		}
	}
	return refs
}
