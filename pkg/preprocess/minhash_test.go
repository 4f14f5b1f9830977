package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"", "xy", 2},
		{"kitten", "sitting", 3},
		{"aspirin", "asprin", 1},
		{"völkermarkt", "volkermarkt", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshteinDistance(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestShingleSet(t *testing.T) {
	s := shingleSet("Aspirin")
	assert.Len(t, s, 5, "7 runes give 5 trigrams")

	short := shingleSet("ab")
	assert.Len(t, short, 1, "short values shingle to themselves")

	assert.Equal(t, shingleSet("ASPIRIN"), shingleSet("aspirin"))
}

func TestJaccard(t *testing.T) {
	a := shingleSet("aspirin")
	assert.InDelta(t, 1.0, jaccard(a, a), 1e-9)
	assert.Equal(t, 0.0, jaccard(a, shingleSet("xyzqw")))
	assert.Equal(t, 0.0, jaccard(a, map[uint32]bool{}))
}

func TestSignatureStability(t *testing.T) {
	s1 := signature(shingleSet("metformin"))
	s2 := signature(shingleSet("metformin"))
	require.Len(t, s1, numPermutations)
	assert.Equal(t, s1, s2)
}

func buildTestIndex() *Index {
	ix := NewIndex()
	ix.Add("Aspirin", "medications", "drug_name")
	ix.Add("Aspirin 100mg", "medications", "drug_name")
	ix.Add("Metformin", "medications", "drug_name")
	ix.Add("Headache", "adverse_events", "preferred_term")
	ix.Add("Severe headache", "adverse_events", "preferred_term")
	ix.Add("Nausea", "adverse_events", "preferred_term")
	return ix
}

func TestIndexQueryFindsNearMatch(t *testing.T) {
	ix := buildTestIndex()

	matches := ix.Query("headachee", 3)
	require.NotEmpty(t, matches, "trailing-character typo should still collide in some band")
	assert.Equal(t, "Headache", matches[0].Value)
	assert.Equal(t, "adverse_events", matches[0].Table)
	assert.Equal(t, "preferred_term", matches[0].Column)
	assert.Greater(t, matches[0].Score, 0.7)
}

func TestIndexQueryExactMatchScoresHighest(t *testing.T) {
	ix := buildTestIndex()

	matches := ix.Query("headache", 5)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Headache", matches[0].Value)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9, "case-insensitive exact match")
}

func TestIndexQueryRespectsTopK(t *testing.T) {
	ix := buildTestIndex()
	matches := ix.Query("aspirin", 1)
	assert.Len(t, matches, 1)
}

func TestIndexQueryEdgeCases(t *testing.T) {
	ix := buildTestIndex()
	assert.Nil(t, ix.Query("", 5))
	assert.Nil(t, ix.Query("aspirin", 0))
	assert.Nil(t, NewIndex().Query("aspirin", 5))
	assert.Nil(t, ix.Query("zzzzzqqqqq", 5), "no band collision yields no matches")
}

func TestIndexQueryDeterministic(t *testing.T) {
	ix := buildTestIndex()
	first := ix.Query("head ache", 5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ix.Query("head ache", 5))
	}
}
