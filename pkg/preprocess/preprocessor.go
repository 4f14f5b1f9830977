package preprocess

import (
	"context"

	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/llm"
	"github.com/trialsight/trialsql-engine/pkg/schema"
)

// Preprocessor bundles the offline indexes the information retriever
// consults. Build once at startup, share read-only.
type Preprocessor struct {
	Values       *Index
	Descriptions *DescIndex
}

// BuildOrLoad returns the preprocessor for the current database state,
// from the cache when its fingerprint matches the catalog's and by a
// full build otherwise. Cache write failures are logged, not fatal;
// the in-memory indexes are complete either way.
func BuildOrLoad(ctx context.Context, source ValueSource, catalog *schema.Catalog, gateway llm.Gateway, cachePath string, logger *zap.Logger) (*Preprocessor, error) {
	log := logger.Named("preprocess")
	fp := catalog.Fingerprint()

	if blob, err := loadIndexCache(cachePath, fp); err != nil {
		log.Debug("preprocessor cache unusable", zap.String("path", cachePath), zap.Error(err))
	} else if blob != nil {
		log.Info("preprocessor loaded from cache",
			zap.Int("values", len(blob.Entries)),
			zap.Int("docs", len(blob.Docs)),
			zap.String("encoder", blob.Encoder))
		return &Preprocessor{
			Values: indexFromBlob(blob),
			Descriptions: &DescIndex{
				docs:    blob.Docs,
				vectors: blob.Vectors,
				encoder: blob.Encoder,
				gateway: gateway,
				logger:  log.Named("desc_index"),
			},
		}, nil
	}

	values, err := BuildValueIndex(ctx, source, catalog, logger)
	if err != nil {
		return nil, err
	}
	descriptions, err := BuildDescIndex(ctx, gateway, catalog, logger)
	if err != nil {
		return nil, err
	}

	if err := saveIndexCache(cachePath, fp, values, descriptions); err != nil {
		log.Warn("failed to persist preprocessor cache", zap.Error(err))
	}
	return &Preprocessor{Values: values, Descriptions: descriptions}, nil
}

// Save rewrites the cache file, used at shutdown so a fresh build
// survives the next restart even if the startup write failed.
func (p *Preprocessor) Save(cachePath, fingerprint string) error {
	return saveIndexCache(cachePath, fingerprint, p.Values, p.Descriptions)
}
