package preprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/schema"
)

func testDescIndex(t *testing.T) *DescIndex {
	t.Helper()
	catalog := schema.NewStaticCatalog(testTables(), zap.NewNop())
	ix, err := BuildDescIndex(context.Background(), nil, catalog, zap.NewNop())
	require.NoError(t, err)
	return ix
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache", "preprocessor.bin")
	values := buildTestIndex()
	descriptions := testDescIndex(t)

	require.NoError(t, saveIndexCache(path, "fp-1", values, descriptions))

	blob, err := loadIndexCache(path, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, blob)

	restored := indexFromBlob(blob)
	assert.Equal(t, values.Len(), restored.Len())
	assert.Equal(t, values.Query("headache", 3), restored.Query("headache", 3))

	_, err = loadIndexCache(path, "fp-2")
	require.Error(t, err, "fingerprint mismatch must force a rebuild")
}

func TestCacheRejectsUnknownHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preprocessor.bin")
	require.NoError(t, os.WriteFile(path, []byte("NOTACACHE"), 0o644))

	_, err := loadIndexCache(path, "fp")
	require.Error(t, err)
}

func TestCacheMissingFile(t *testing.T) {
	blob, err := loadIndexCache(filepath.Join(t.TempDir(), "absent.bin"), "fp")
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestCacheBytesDeterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.bin")
	second := filepath.Join(dir, "second.bin")
	values := buildTestIndex()
	descriptions := testDescIndex(t)

	require.NoError(t, saveIndexCache(first, "fp", values, descriptions))

	blob, err := loadIndexCache(first, "fp")
	require.NoError(t, err)
	restored := indexFromBlob(blob)
	require.NoError(t, saveIndexCache(second, "fp", restored, &DescIndex{
		docs:    blob.Docs,
		vectors: blob.Vectors,
		encoder: blob.Encoder,
	}))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "save, load, save must produce identical bytes")
}
