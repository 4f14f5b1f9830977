package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/trialsight/trialsql-engine/pkg/logging"
)

// ValidationStatus is the outcome of an EXPLAIN syntax check.
type ValidationStatus struct {
	Valid bool
	Error string
}

// QueryResult is the outcome of a safe execution.
type QueryResult struct {
	Success  bool      `json:"success"`
	Columns  []string  `json:"columns"`
	Rows     [][]any   `json:"rows"`
	RowCount int       `json:"row_count"`
	Error    string    `json:"error,omitempty"`
	Kind     ErrorKind `json:"error_kind,omitempty"`
}

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// Validate issues EXPLAIN in a read-only transaction. The statement is
// planned but never executed.
func (a *Adapter) Validate(ctx context.Context, sqlQuery string) (*ValidationStatus, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", classifyError(err))
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin validation tx: %w", classifyError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only, rollback always

	if _, err := tx.Exec(ctx, "EXPLAIN "+stripSemicolon(sqlQuery)); err != nil {
		qe := classifyError(err)
		if qe.Kind == KindConnection {
			return nil, qe
		}
		return &ValidationStatus{Valid: false, Error: qe.Message}, nil
	}

	return &ValidationStatus{Valid: true}, nil
}

// SafeExecute runs a statement with a connection-level timeout and a
// hard row cap. Statements without a LIMIT are wrapped as
// SELECT * FROM (<sql>) AS q LIMIT <cap>. The transaction is rolled
// back on any error and a timed-out connection is discarded from the
// pool.
func (a *Adapter) SafeExecute(ctx context.Context, sqlQuery string, timeout time.Duration) *QueryResult {
	wrapped := a.wrapWithCap(sqlQuery)

	a.logger.Debug("safe execute",
		zap.String("sql", logging.SanitizeQuery(wrapped)),
		zap.Duration("timeout", timeout))

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return failedResult(classifyError(err))
	}
	defer conn.Release()

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := conn.BeginTx(execCtx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return failedResult(classifyError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only, rollback always

	if timeout > 0 {
		stmtTimeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())
		if _, err := tx.Exec(execCtx, stmtTimeout); err != nil {
			return failedResult(classifyError(err))
		}
	}

	rows, err := tx.Query(execCtx, wrapped)
	if err != nil {
		return a.failAndMaybeDiscard(conn.Conn(), classifyError(err))
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	data := make([][]any, 0)
	for rows.Next() {
		// The wrapper already applies the cap; this guards statements
		// that carried their own larger LIMIT.
		if len(data) >= a.rowCap {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return failedResult(classifyError(err))
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return a.failAndMaybeDiscard(conn.Conn(), classifyError(err))
	}

	return &QueryResult{
		Success:  true,
		Columns:  columns,
		Rows:     data,
		RowCount: len(data),
	}
}

// failAndMaybeDiscard closes the underlying connection when a
// statement was interrupted, so the pool replaces it instead of
// reusing a connection with an aborted statement in flight.
func (a *Adapter) failAndMaybeDiscard(conn *pgx.Conn, qe *QueryError) *QueryResult {
	if (qe.Kind == KindTimeout || qe.Kind == KindCancelled) && conn != nil {
		a.logger.Warn("discarding connection after interrupted statement",
			zap.String("kind", string(qe.Kind)))
		_ = conn.Close(context.Background())
	}
	return failedResult(qe)
}

func failedResult(qe *QueryError) *QueryResult {
	return &QueryResult{
		Success: false,
		Error:   qe.Message,
		Kind:    qe.Kind,
	}
}

// wrapWithCap applies the row cap to statements without their own LIMIT.
func (a *Adapter) wrapWithCap(sqlQuery string) string {
	trimmed := stripSemicolon(sqlQuery)
	if limitPattern.MatchString(trimmed) {
		return trimmed
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", trimmed, a.rowCap)
}

func stripSemicolon(sqlQuery string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(sqlQuery), " \t\n\r")
	return strings.TrimRight(strings.TrimSuffix(trimmed, ";"), " \t\n\r")
}
