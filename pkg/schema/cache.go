package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/trialsight/trialsql-engine/pkg/apperrors"
)

const cacheFormatVersion = 1

type cacheFile struct {
	Version     int          `json:"version"`
	Fingerprint string       `json:"fingerprint"`
	Tables      []*TableInfo `json:"tables"`
}

// loadCache returns the cached tables when the file exists, parses, and
// matches the live database fingerprint. A missing file returns
// (nil, nil); a stale or unreadable one returns an error so the caller
// can log and fall through to full introspection.
func loadCache(path, fp string) ([]*TableInfo, error) {
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

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing schema cache: %w", err)
	}
	if file.Version != cacheFormatVersion {
		return nil, fmt.Errorf("schema cache version %d: %w", file.Version, apperrors.ErrCacheVersion)
	}
	if file.Fingerprint != fp {
		return nil, errors.New("schema cache fingerprint mismatch")
	}
	return file.Tables, nil
}

// saveCache writes atomically via a temp file so a crash mid-write
// never leaves a truncated cache.
func saveCache(path, fp string, tables []*TableInfo) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cacheFile{
		Version:     cacheFormatVersion,
		Fingerprint: fp,
		Tables:      tables,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hashLines(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
