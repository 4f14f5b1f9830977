package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/prompts"
	"github.com/trialsight/trialsql-engine/pkg/schema"
)

const (
	maxCandidateTables = 15
	maxSelectedTables  = 5
	compactBudget      = 2000
)

// SelectionData is the schema selector's output: the chosen tables
// with role tags, proposed join keys, the chosen columns per table
// with their clause tags, and the rendered schema context handed to
// the generator.
type SelectionData struct {
	Tables        []prompts.SelectedTable             `json:"selected_tables"`
	JoinHints     []string                            `json:"join_hints,omitempty"`
	PrimaryTable  string                              `json:"primary_table"`
	Columns       map[string][]prompts.SelectedColumn `json:"columns"`
	SchemaContext string                              `json:"schema_context"`
}

// SchemaSelector narrows the catalog to the tables and columns one
// question needs.
type SchemaSelector interface {
	Select(ctx context.Context, question string, retrieval RetrievalData) Result[SelectionData]
}

type schemaSelector struct {
	gateway      llm.Gateway
	catalog      *schema.Catalog
	model        string
	schemaBudget int
	logger       *zap.Logger
}

// NewSchemaSelector builds the selector agent. schemaBudget caps the
// tokens of the rendered schema context.
func NewSchemaSelector(gateway llm.Gateway, catalog *schema.Catalog, model string, schemaBudget int, logger *zap.Logger) SchemaSelector {
	return &schemaSelector{
		gateway:      gateway,
		catalog:      catalog,
		model:        model,
		schemaBudget: schemaBudget,
		logger:       logger.Named("selector"),
	}
}

func (s *schemaSelector) Select(ctx context.Context, question string, retrieval RetrievalData) Result[SelectionData] {
	t := newTrace()

	candidates := s.candidateTables(retrieval)
	if len(candidates) == 0 {
		return fail[SelectionData](t, fmt.Errorf("no candidate tables for selection"))
	}

	selected, joinHints, usedModel, reasoning := s.selectTables(ctx, t, question, candidates, retrieval)

	columns := make(map[string][]prompts.SelectedColumn, len(selected))
	names := make([]string, 0, len(selected))
	for _, st := range selected {
		names = append(names, st.Name)
		// The fallback already failed one model call; keep every column
		// rather than spending more calls on a degraded selection.
		if usedModel {
			columns[st.Name] = s.selectColumns(ctx, t, question, st.Name)
		} else {
			columns[st.Name] = s.allColumns(st.Name)
		}
	}

	schemaContext, err := s.renderContext(names, columns, joinHints)
	if err != nil {
		return fail[SelectionData](t, fmt.Errorf("rendering schema context: %w", err))
	}

	s.logger.Info("schema selected",
		zap.Int("candidates", len(candidates)),
		zap.Strings("tables", names))
	return succeed(t, SelectionData{
		Tables:        selected,
		JoinHints:     joinHints,
		PrimaryTable:  primaryTable(selected),
		Columns:       columns,
		SchemaContext: schemaContext,
	}, reasoning)
}

// primaryTable is the first table tagged primary, or the first table
// when the model tagged none.
func primaryTable(selected []prompts.SelectedTable) string {
	for _, st := range selected {
		if st.Role == "primary" {
			return st.Name
		}
	}
	if len(selected) > 0 {
		return selected[0].Name
	}
	return ""
}

// candidateTables merges retrieval evidence with the rest of the
// catalog, keeping retrieval hits first, capped at fifteen.
func (s *schemaSelector) candidateTables(retrieval RetrievalData) []string {
	set := newOrderedSet()
	for _, name := range retrieval.RelevantTables {
		if s.catalog.Has(name) {
			set.add(name)
		}
	}
	for _, table := range s.catalog.DataTables() {
		if len(set.values()) >= maxCandidateTables {
			break
		}
		set.add(table.Name)
	}
	out := set.values()
	if len(out) > maxCandidateTables {
		out = out[:maxCandidateTables]
	}
	return out
}

// selectTables asks the model to pick and tag tables, falling back to
// the first candidates when the call or the parse fails. The returned
// flag reports whether the model's answer was used.
func (s *schemaSelector) selectTables(ctx context.Context, t *trace, question string, candidates []string, retrieval RetrievalData) ([]prompts.SelectedTable, []string, bool, string) {
	compact, err := s.catalog.Project(candidates, compactBudget, schema.DetailCompact)
	if err != nil {
		compact = ""
	}

	hints := retrievalHints(retrieval)
	completion, err := s.gateway.Complete(ctx, llm.Request{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.SelectionSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildTableSelectionPrompt(question, compact, hints, maxSelectedTables)},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		t.tool("select_tables", question, false)
		s.logger.Warn("table selection call failed, using first candidates", zap.Error(err))
		return fallbackTables(candidates), nil, false, "selection unavailable, kept the strongest retrieval candidates"
	}
	t.addUsage(completion.Usage)

	parsed, err := llm.ParseJSONResponse[prompts.TableSelectionResponse](completion.Content)
	if err != nil {
		t.tool("select_tables", question, false)
		s.logger.Warn("table selection response unparseable, using first candidates", zap.Error(err))
		return fallbackTables(candidates), nil, false, "selection unavailable, kept the strongest retrieval candidates"
	}

	var selected []prompts.SelectedTable
	seen := make(map[string]bool)
	for _, st := range parsed.Tables {
		if !s.catalog.Has(st.Name) || seen[st.Name] {
			continue
		}
		seen[st.Name] = true
		selected = append(selected, st)
		if len(selected) == maxSelectedTables {
			break
		}
	}
	t.tool("select_tables", question, len(selected) > 0)
	if len(selected) == 0 {
		return fallbackTables(candidates), nil, false, "selection returned no usable tables, kept the strongest retrieval candidates"
	}
	joinHints := validJoinHints(parsed.JoinHints, seen)
	return selected, joinHints, true, fmt.Sprintf("selected %d of %d candidate tables", len(selected), len(candidates))
}

var joinHintPattern = regexp.MustCompile(`^(\w+)\.(\w+)\s*=\s*(\w+)\.(\w+)$`)

// validJoinHints keeps the model's "t1.c1 = t2.c2" hints whose tables
// were both selected, normalized to single spacing.
func validJoinHints(hints []string, selected map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, h := range hints {
		m := joinHintPattern.FindStringSubmatch(strings.TrimSpace(h))
		if m == nil || !selected[m[1]] || !selected[m[3]] {
			continue
		}
		normalized := fmt.Sprintf("%s.%s = %s.%s", m[1], m[2], m[3], m[4])
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func fallbackTables(candidates []string) []prompts.SelectedTable {
	n := len(candidates)
	if n > maxSelectedTables {
		n = maxSelectedTables
	}
	out := make([]prompts.SelectedTable, 0, n)
	for _, name := range candidates[:n] {
		out = append(out, prompts.SelectedTable{Name: name, Role: "primary"})
	}
	return out
}

// selectColumns asks which columns of one table matter and which query
// clause each serves; any failure keeps all columns, which costs
// tokens but never drops information.
func (s *schemaSelector) selectColumns(ctx context.Context, t *trace, question, table string) []prompts.SelectedColumn {
	info, err := s.catalog.Table(table)
	if err != nil {
		return nil
	}
	all := s.allColumns(table)

	rendered, err := s.catalog.Project([]string{table}, compactBudget, schema.DetailDetailed)
	if err != nil {
		return all
	}

	completion, err := s.gateway.Complete(ctx, llm.Request{
		Model: s.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.SelectionSystemPrompt},
			{Role: llm.RoleUser, Content: prompts.BuildColumnSelectionPrompt(question, rendered)},
		},
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		t.tool("select_columns", table, false)
		return all
	}
	t.addUsage(completion.Usage)

	parsed, err := llm.ParseJSONResponse[prompts.ColumnSelectionResponse](completion.Content)
	if err != nil {
		t.tool("select_columns", table, false)
		return all
	}

	var cols []prompts.SelectedColumn
	seen := make(map[string]bool)
	for _, col := range parsed.Columns {
		if !info.HasColumn(col.Name) || seen[col.Name] {
			continue
		}
		seen[col.Name] = true
		col.Clause = normalizeClause(col.Clause)
		cols = append(cols, col)
	}
	t.tool("select_columns", table, len(cols) > 0)
	if len(cols) == 0 {
		return all
	}
	return cols
}

func (s *schemaSelector) allColumns(table string) []prompts.SelectedColumn {
	info, err := s.catalog.Table(table)
	if err != nil {
		return nil
	}
	out := make([]prompts.SelectedColumn, 0, len(info.Columns))
	for _, c := range info.Columns {
		out = append(out, prompts.SelectedColumn{Name: c.Name})
	}
	return out
}

var knownClauses = map[string]bool{
	"SELECT": true, "WHERE": true, "JOIN": true, "GROUP BY": true,
}

func normalizeClause(clause string) string {
	upper := strings.ToUpper(strings.TrimSpace(clause))
	if knownClauses[upper] {
		return upper
	}
	return ""
}

// renderContext projects the selected tables restricted to the chosen
// columns, with the model's join hints appended. Key columns are
// always kept so joins stay expressible.
func (s *schemaSelector) renderContext(names []string, columns map[string][]prompts.SelectedColumn, joinHints []string) (string, error) {
	filtered := make([]*schema.TableInfo, 0, len(names))
	for _, name := range names {
		info, err := s.catalog.Table(name)
		if err != nil {
			return "", err
		}
		keep := make([]string, 0, len(columns[name]))
		for _, col := range columns[name] {
			keep = append(keep, col.Name)
		}
		filtered = append(filtered, filterTable(info, keep))
	}

	derived := schema.NewStaticCatalog(filtered, s.logger)
	out, err := derived.Project(names, s.schemaBudget, schema.DetailMedium)
	if err != nil || len(joinHints) == 0 {
		return out, err
	}

	var b strings.Builder
	b.WriteString(out)
	b.WriteString("\n\n-- JOIN RELATIONSHIPS:")
	for _, h := range joinHints {
		b.WriteString("\n-- " + h)
	}
	return b.String(), nil
}

func filterTable(info *schema.TableInfo, keep []string) *schema.TableInfo {
	wanted := make(map[string]bool, len(keep))
	for _, c := range keep {
		wanted[c] = true
	}
	for _, pk := range info.PrimaryKeys {
		wanted[pk] = true
	}
	for _, fk := range info.ForeignKeys {
		wanted[fk.Column] = true
	}

	out := *info
	out.Columns = nil
	for _, c := range info.Columns {
		if len(keep) == 0 || wanted[c.Name] {
			out.Columns = append(out.Columns, c)
		}
	}
	return &out
}

func retrievalHints(retrieval RetrievalData) []prompts.TableHint {
	byTable := newOrderedSet()
	reasons := make(map[string]string)
	for _, m := range retrieval.ValueMatches {
		byTable.add(m.Table)
		if _, ok := reasons[m.Table]; !ok {
			reasons[m.Table] = fmt.Sprintf("holds value %q matching %q", m.Value, m.Keyword)
		}
	}
	for _, m := range retrieval.ContextMatches {
		byTable.add(m.Table)
		if _, ok := reasons[m.Table]; !ok {
			reasons[m.Table] = "description similar to the question"
		}
	}

	var hints []prompts.TableHint
	for _, table := range byTable.values() {
		hints = append(hints, prompts.TableHint{Table: table, Reason: reasons[table]})
	}
	return hints
}

var _ SchemaSelector = (*schemaSelector)(nil)
