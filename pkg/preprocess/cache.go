package preprocess

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trialsight/trialsql-engine/pkg/apperrors"
)

// cacheMagic versions the on-disk blob; bump the trailing byte when
// the layout or the index parameters change.
const cacheMagic = "TSQLPP\x01"

// cacheBlob is the serialized form. Only slices, no maps, so encoding
// the same indexes always yields the same bytes; LSH bands are
// rebuilt from the signatures on load.
type cacheBlob struct {
	Fingerprint string
	Entries     []Entry
	Signatures  [][]uint64
	Docs        []Doc
	Vectors     [][]float32
	Encoder     string
}

func saveIndexCache(path, fp string, values *Index, descriptions *DescIndex) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(cacheMagic)
	blob := cacheBlob{
		Fingerprint: fp,
		Entries:     values.entries,
		Signatures:  values.signatures,
		Docs:        descriptions.docs,
		Vectors:     descriptions.vectors,
		Encoder:     descriptions.encoder,
	}
	if err := gob.NewEncoder(&buf).Encode(blob); err != nil {
		return fmt.Errorf("encoding preprocessor cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadIndexCache(path, fp string) (*cacheBlob, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(data) < len(cacheMagic) || string(data[:len(cacheMagic)]) != cacheMagic {
		return nil, fmt.Errorf("preprocessor cache header: %w", apperrors.ErrCacheVersion)
	}
	var blob cacheBlob
	if err := gob.NewDecoder(bytes.NewReader(data[len(cacheMagic):])).Decode(&blob); err != nil {
		return nil, fmt.Errorf("decoding preprocessor cache: %w", err)
	}
	if blob.Fingerprint != fp {
		return nil, errors.New("preprocessor cache fingerprint mismatch")
	}
	return &blob, nil
}

// indexFromBlob rebuilds the LSH bands from the persisted signatures.
func indexFromBlob(blob *cacheBlob) *Index {
	ix := NewIndex()
	ix.entries = blob.Entries
	ix.signatures = blob.Signatures
	for id, sig := range ix.signatures {
		for band := 0; band < numBands; band++ {
			key := bandKey(sig, band)
			ix.bands[band][key] = append(ix.bands[band][key], int32(id))
		}
	}
	return ix
}
