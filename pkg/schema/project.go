package schema

import (
	"fmt"
	"strings"
)

// DetailLevel controls how much of each table a projection carries.
type DetailLevel string

const (
	// DetailCompact renders one line per table: name[col:type,...].
	DetailCompact DetailLevel = "compact"
	// DetailMedium renders DDL-like blocks without sample values.
	DetailMedium DetailLevel = "medium"
	// DetailDetailed adds column descriptions and sample values.
	DetailDetailed DetailLevel = "detailed"
)

const truncationNotice = "-- NOTE: schema truncated to fit the context budget; further tables omitted."

// Project renders the named tables as prompt context, spending at most
// tokenBudget tokens. Tables are emitted greedily in the given order;
// a table whose block would overflow the budget is retried at compact
// detail, and when even that does not fit a truncation notice replaces
// the remainder. Join lines for foreign keys between projected tables
// come last. Output is deterministic for identical inputs.
func (c *Catalog) Project(names []string, tokenBudget int, detail DetailLevel) (string, error) {
	tables := make([]*TableInfo, 0, len(names))
	for _, name := range names {
		t, err := c.Table(name)
		if err != nil {
			return "", err
		}
		tables = append(tables, t)
	}

	projected := make(map[string]bool, len(tables))
	var blocks []string
	spent := 0
	truncated := false
	// Reserve room for the truncation notice up front, so emitting it
	// never overflows the budget.
	limit := tokenBudget - c.counter.Count(truncationNotice)

	for i, t := range tables {
		block := renderTable(t, detail)
		cost := c.counter.Count(block)
		if spent+cost > limit && detail != DetailCompact {
			block = renderTable(t, DetailCompact)
			cost = c.counter.Count(block)
		}
		if spent+cost > limit {
			// The first table is always emitted so the projection is
			// never empty.
			if i == 0 {
				blocks = append(blocks, block)
				projected[t.Name] = true
				spent += cost
				continue
			}
			truncated = true
			break
		}
		blocks = append(blocks, block)
		projected[t.Name] = true
		spent += cost
	}

	if truncated {
		blocks = append(blocks, truncationNotice)
	}

	joins := renderJoins(tables, projected)
	if len(joins) > 0 {
		blocks = append(blocks, strings.Join(joins, "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func renderTable(t *TableInfo, detail DetailLevel) string {
	if detail == DetailCompact {
		return renderCompact(t)
	}

	var b strings.Builder
	if t.Description != "" {
		b.WriteString("-- " + collapseWhitespace(t.Description) + "\n")
	}
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)
	for _, col := range t.Columns {
		b.WriteString("  " + col.Name + " " + string(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if hint := columnHint(col, detail); hint != "" {
			b.WriteString(" -- " + hint)
		}
		b.WriteString("\n")
	}
	if len(t.PrimaryKeys) > 0 {
		fmt.Fprintf(&b, "  PRIMARY KEY (%s)\n", strings.Join(t.PrimaryKeys, ", "))
	}
	b.WriteString(");\n")
	fmt.Fprintf(&b, "-- rows: %d", t.RowCount)
	return b.String()
}

func renderCompact(t *TableInfo) string {
	parts := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		parts = append(parts, col.Name+":"+string(col.Type))
	}
	return t.Name + "[" + strings.Join(parts, ",") + "]"
}

func columnHint(col ColumnInfo, detail DetailLevel) string {
	if detail != DetailDetailed {
		return ""
	}
	var parts []string
	if col.Description != "" {
		parts = append(parts, collapseWhitespace(col.Description))
	}
	if len(col.Samples) > 0 {
		parts = append(parts, "e.g. "+strings.Join(col.Samples, ", "))
	}
	return strings.Join(parts, "; ")
}

// renderJoins emits one line per foreign key whose both ends were
// projected, so the generator only sees joins it can actually use.
func renderJoins(tables []*TableInfo, projected map[string]bool) []string {
	var lines []string
	for _, t := range tables {
		if !projected[t.Name] {
			continue
		}
		for _, fk := range t.ForeignKeys {
			if !projected[fk.RefTable] {
				continue
			}
			lines = append(lines, fmt.Sprintf("-- JOIN: %s.%s = %s.%s",
				t.Name, fk.Column, fk.RefTable, fk.RefColumn))
		}
	}
	return lines
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
