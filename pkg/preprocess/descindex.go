package preprocess

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/schema"
)

// Doc kind markers.
const (
	DocTable  = "table"
	DocColumn = "column"
)

// Encoder kinds recorded in the index so queries are encoded the same
// way the corpus was.
const (
	encoderEmbedding = "embedding"
	encoderFeature   = "feature"
)

// Doc is one description document, either a table or a single column.
type Doc struct {
	Kind   string
	Table  string
	Column string
	Text   string
}

// DocMatch is a description search hit.
type DocMatch struct {
	Kind   string  `json:"kind"`
	Table  string  `json:"table"`
	Column string  `json:"column,omitempty"`
	Score  float64 `json:"score"`
}

// DescIndex ranks tables and columns against a question by description
// similarity. Vectors come from the embedding backend when one is
// configured, otherwise from a deterministic lexical feature encoding,
// and the query is always encoded the same way as the corpus.
type DescIndex struct {
	docs    []Doc
	vectors [][]float32
	encoder string

	gateway llm.Gateway
	logger  *zap.Logger
}

// BuildDescIndex builds description documents for every table and
// column in the catalog and encodes them.
func BuildDescIndex(ctx context.Context, gateway llm.Gateway, catalog *schema.Catalog, logger *zap.Logger) (*DescIndex, error) {
	ix := &DescIndex{
		gateway: gateway,
		logger:  logger.Named("desc_index"),
	}
	ix.docs = buildDocs(catalog)

	texts := make([]string, len(ix.docs))
	for i, d := range ix.docs {
		texts[i] = d.Text
	}

	if gateway != nil {
		vectors, err := gateway.CreateEmbeddings(ctx, texts)
		if err == nil && len(vectors) == len(texts) {
			ix.vectors = vectors
			ix.encoder = encoderEmbedding
			ix.logger.Info("description index built with embeddings", zap.Int("docs", len(ix.docs)))
			return ix, nil
		}
		if err != nil {
			ix.logger.Warn("embedding backend unavailable, using feature vectors", zap.Error(err))
		}
	}

	ix.vectors = make([][]float32, len(texts))
	for i, t := range texts {
		ix.vectors[i] = featureVector(t)
	}
	ix.encoder = encoderFeature
	ix.logger.Info("description index built with feature vectors", zap.Int("docs", len(ix.docs)))
	return ix, nil
}

func buildDocs(catalog *schema.Catalog) []Doc {
	var docs []Doc
	for _, t := range catalog.Tables() {
		var b strings.Builder
		b.WriteString("table " + readableName(t.Name))
		if t.Category != "" {
			b.WriteString(" (" + t.Category + ")")
		}
		if t.Description != "" {
			b.WriteString(": " + t.Description)
		}
		if cols := columnNames(t); len(cols) > 0 {
			b.WriteString(". columns: " + strings.Join(cols, ", "))
		}
		docs = append(docs, Doc{Kind: DocTable, Table: t.Name, Text: b.String()})

		for _, col := range t.Columns {
			text := fmt.Sprintf("column %s of %s (%s)",
				readableName(col.Name), readableName(t.Name), col.Type)
			if col.Description != "" {
				text += ": " + col.Description
			}
			docs = append(docs, Doc{Kind: DocColumn, Table: t.Name, Column: col.Name, Text: text})
		}
	}
	return docs
}

func columnNames(t *schema.TableInfo) []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, readableName(c.Name))
	}
	return names
}

// readableName turns snake_case identifiers into singular prose, e.g.
// "adverse_events" becomes "adverse event".
func readableName(ident string) string {
	words := strings.Split(strings.ToLower(ident), "_")
	cleaned := words[:0]
	for _, w := range words {
		if w != "" {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		return ident
	}
	cleaned[len(cleaned)-1] = inflection.Singular(cleaned[len(cleaned)-1])
	return strings.Join(cleaned, " ")
}

// Search returns the topK documents most similar to the query.
func (ix *DescIndex) Search(ctx context.Context, query string, topK int) ([]DocMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 || len(ix.docs) == 0 {
		return nil, nil
	}

	var qv []float32
	if ix.encoder == encoderEmbedding {
		vectors, err := ix.gateway.CreateEmbeddings(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		qv = vectors[0]
	} else {
		qv = featureVector(query)
	}

	matches := make([]DocMatch, 0, len(ix.docs))
	for i, d := range ix.docs {
		matches = append(matches, DocMatch{
			Kind:   d.Kind,
			Table:  d.Table,
			Column: d.Column,
			Score:  cosine(qv, ix.vectors[i]),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Table != matches[j].Table {
			return matches[i].Table < matches[j].Table
		}
		return matches[i].Column < matches[j].Column
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Docs returns the number of indexed documents.
func (ix *DescIndex) Docs() int {
	return len(ix.docs)
}

// clinicalKeywords are the domain terms flagged in the lexical feature
// encoding, one dimension each.
var clinicalKeywords = []string{
	"subject", "patient", "visit", "adverse", "event", "query",
	"site", "study", "dose", "lab", "enroll", "coding", "term",
}

const featureDim = 6 + 26 + 13

// featureVector is the deterministic lexical encoding used when no
// embedding backend is available: six word-shape statistics, 26 letter
// frequencies, and one flag per clinical keyword.
func featureVector(text string) []float32 {
	v := make([]float32, featureDim)
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return v
	}

	totalLen := 0
	maxLen := 0
	minLen := math.MaxInt32
	distinct := make(map[string]bool, len(words))
	for _, w := range words {
		totalLen += len(w)
		if len(w) > maxLen {
			maxLen = len(w)
		}
		if len(w) < minLen {
			minLen = len(w)
		}
		distinct[w] = true
	}
	v[0] = float32(len(words)) / 50
	v[1] = float32(totalLen) / 300
	v[2] = float32(totalLen) / float32(len(words)) / 15
	v[3] = float32(maxLen) / 25
	v[4] = float32(minLen) / 25
	v[5] = float32(len(distinct)) / float32(len(words))

	letters := 0
	for _, r := range lower {
		if r >= 'a' && r <= 'z' {
			v[6+int(r-'a')]++
			letters++
		}
	}
	if letters > 0 {
		for i := 6; i < 6+26; i++ {
			v[i] /= float32(letters)
		}
	}

	for i, kw := range clinicalKeywords {
		if strings.Contains(lower, kw) {
			v[6+26+i] = 1
		}
	}
	return v
}

// cosine computes cosine similarity, zero-padding the shorter vector
// so mixed dimensionalities compare instead of panicking.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		var av, bv float64
		if i < len(a) {
			av = float64(a[i])
		}
		if i < len(b) {
			bv = float64(b[i])
		}
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
