// Package database provides the PostgreSQL execution adapter: a fixed
// connection pool, catalog introspection, EXPLAIN-based validation, and
// safe capped execution with statement timeouts.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/logging"
	"github.com/trialsight/trialsql-engine/pkg/retry"
)

// Config holds connection settings for the clinical database.
type Config struct {
	ConnString string
	PoolSize   int32 // fixed pool size protecting the driver
	RowCap     int   // hard bound on rows returned by SafeExecute
}

// Adapter is the only component that touches the clinical database.
// The pool itself acts as the borrow semaphore; every acquire pairs
// with a release on all exit paths.
type Adapter struct {
	pool   *pgxpool.Pool
	rowCap int
	logger *zap.Logger
}

// New connects to the database and verifies the connection. Connection
// establishment is retried with backoff since the database may still be
// starting when the pipeline boots.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 8
	}
	if cfg.RowCap < 1 {
		cfg.RowCap = 1000
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = cfg.PoolSize
	poolCfg.MinConns = cfg.PoolSize

	log := logger.Named("database")

	pool, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database %s: %w",
			logging.SanitizeConnectionString(cfg.ConnString), err)
	}

	log.Info("database connected",
		zap.String("conn", logging.SanitizeConnectionString(cfg.ConnString)),
		zap.Int32("pool_size", cfg.PoolSize),
		zap.Int("row_cap", cfg.RowCap))

	return &Adapter{pool: pool, rowCap: cfg.RowCap, logger: log}, nil
}

// RowCap returns the configured result cap.
func (a *Adapter) RowCap() int { return a.rowCap }

// Close releases the pool.
func (a *Adapter) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// QuoteIdentifier safely quotes a SQL identifier.
func QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
