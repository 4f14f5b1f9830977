// Package preprocess builds the offline lookup structures consulted at
// question time: a MinHash-LSH index over distinct cell values and an
// embedding index over table and column descriptions.
package preprocess

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
)

const (
	numPermutations = 128
	numBands        = 32
	rowsPerBand     = 4
	shingleSize     = 3

	// First prime above 2^32; keeps (a*h+b) mod p collision-free enough
	// for 32-bit shingle hashes without 128-bit arithmetic.
	minhashPrime = 4294967311

	// Fixed seed so indexes built on different hosts agree and the
	// on-disk cache stays valid across restarts.
	permutationSeed = 42
)

// permutation coefficients, generated once per process.
var permA, permB = newPermutations()

func newPermutations() ([]uint64, []uint64) {
	rng := rand.New(rand.NewSource(permutationSeed))
	a := make([]uint64, numPermutations)
	b := make([]uint64, numPermutations)
	for i := 0; i < numPermutations; i++ {
		a[i] = uint64(rng.Int63n(1<<32-1)) + 1
		b[i] = uint64(rng.Int63n(1 << 32))
	}
	return a, b
}

// shingleSet returns the set of lowercased k-character shingles. Values
// shorter than k shingle to themselves so they still index.
func shingleSet(s string) map[uint32]bool {
	s = strings.ToLower(s)
	runes := []rune(s)
	set := make(map[uint32]bool)
	if len(runes) < shingleSize {
		set[hash32(s)] = true
		return set
	}
	for i := 0; i+shingleSize <= len(runes); i++ {
		set[hash32(string(runes[i:i+shingleSize]))] = true
	}
	return set
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// signature computes the MinHash signature of a shingle set.
func signature(shingles map[uint32]bool) []uint64 {
	sig := make([]uint64, numPermutations)
	for i := range sig {
		sig[i] = minhashPrime
	}
	for sh := range shingles {
		h := uint64(sh)
		for i := 0; i < numPermutations; i++ {
			v := (permA[i]*h + permB[i]) % minhashPrime
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

func bandKey(sig []uint64, band int) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for r := 0; r < rowsPerBand; r++ {
		binary.LittleEndian.PutUint64(buf[:], sig[band*rowsPerBand+r])
		h.Write(buf[:])
	}
	return h.Sum64()
}

// jaccard is the exact similarity of two shingle sets.
func jaccard(a, b map[uint32]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for sh := range small {
		if large[sh] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Entry is one indexed cell value and where it came from.
type Entry struct {
	Value  string
	Table  string
	Column string
}

// Match is a query hit with its combined similarity score.
type Match struct {
	Value  string  `json:"value"`
	Table  string  `json:"table"`
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// Index is the MinHash-LSH structure over distinct cell values. Build
// it with Add then query it concurrently; Add is not safe alongside
// Query.
type Index struct {
	entries    []Entry
	signatures [][]uint64
	bands      []map[uint64][]int32
}

// NewIndex returns an empty value index.
func NewIndex() *Index {
	bands := make([]map[uint64][]int32, numBands)
	for i := range bands {
		bands[i] = make(map[uint64][]int32)
	}
	return &Index{bands: bands}
}

// Len returns the number of indexed values.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Add indexes one cell value.
func (ix *Index) Add(value, table, column string) {
	sig := signature(shingleSet(value))
	id := int32(len(ix.entries))
	ix.entries = append(ix.entries, Entry{Value: value, Table: table, Column: column})
	ix.signatures = append(ix.signatures, sig)
	for band := 0; band < numBands; band++ {
		key := bandKey(sig, band)
		ix.bands[band][key] = append(ix.bands[band][key], id)
	}
}

// Query returns up to topK indexed values similar to text. Candidates
// come from LSH band collisions and are rescored with the mean of
// exact shingle Jaccard and normalized edit-distance similarity, so a
// near-exact short value outranks a long value sharing a few shingles.
func (ix *Index) Query(text string, topK int) []Match {
	text = strings.TrimSpace(text)
	if text == "" || topK <= 0 || len(ix.entries) == 0 {
		return nil
	}

	shingles := shingleSet(text)
	sig := signature(shingles)

	candidates := make(map[int32]bool)
	for band := 0; band < numBands; band++ {
		for _, id := range ix.bands[band][bandKey(sig, band)] {
			candidates[id] = true
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	lowered := strings.ToLower(text)
	matches := make([]Match, 0, len(candidates))
	for id := range candidates {
		entry := ix.entries[id]
		matches = append(matches, Match{
			Value:  entry.Value,
			Table:  entry.Table,
			Column: entry.Column,
			Score:  rescore(lowered, shingles, entry.Value),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Value != matches[j].Value {
			return matches[i].Value < matches[j].Value
		}
		if matches[i].Table != matches[j].Table {
			return matches[i].Table < matches[j].Table
		}
		return matches[i].Column < matches[j].Column
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func rescore(loweredQuery string, queryShingles map[uint32]bool, value string) float64 {
	loweredValue := strings.ToLower(value)
	j := jaccard(queryShingles, shingleSet(value))

	maxLen := len([]rune(loweredQuery))
	if l := len([]rune(loweredValue)); l > maxLen {
		maxLen = l
	}
	editSim := 1.0
	if maxLen > 0 {
		editSim = 1 - float64(levenshteinDistance(loweredQuery, loweredValue))/float64(maxLen)
	}
	return 0.5 * (j + editSim)
}
