package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind distinguishes the failures the pipeline reacts to
// differently: syntax errors drive the revise loop, timeouts discard
// the connection, connection errors are fatal at startup.
type ErrorKind string

const (
	KindSyntax     ErrorKind = "sql_syntax"
	KindTimeout    ErrorKind = "sql_timeout"
	KindCancelled  ErrorKind = "cancelled"
	KindRuntime    ErrorKind = "sql_runtime"
	KindConnection ErrorKind = "connection"
)

// QueryError wraps a database failure with its classification.
type QueryError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *QueryError) Unwrap() error { return e.Cause }

// classifyError maps a pgx error to a QueryError using SQLSTATE
// classes: 42xxx syntax/access, 57014 statement cancel, 08xxx
// connection exceptions.
func classifyError(err error) *QueryError {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}

	// Deadline expiry is a timeout; caller-driven cancellation is its
	// own kind so stopping a run never reads as a slow database.
	if errors.Is(err, context.DeadlineExceeded) {
		return &QueryError{Kind: KindTimeout, Message: "statement timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &QueryError{Kind: KindCancelled, Message: "operation cancelled", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "42"):
			return &QueryError{Kind: KindSyntax, Message: pgErr.Message, Cause: err}
		case pgErr.Code == "57014":
			return &QueryError{Kind: KindTimeout, Message: "statement timed out", Cause: err}
		case strings.HasPrefix(pgErr.Code, "08"):
			return &QueryError{Kind: KindConnection, Message: pgErr.Message, Cause: err}
		default:
			return &QueryError{Kind: KindRuntime, Message: pgErr.Message, Cause: err}
		}
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "broken pipe") {
		return &QueryError{Kind: KindConnection, Message: err.Error(), Cause: err}
	}

	return &QueryError{Kind: KindRuntime, Message: err.Error(), Cause: err}
}

// KindOf extracts the ErrorKind from an error, defaulting to runtime.
func KindOf(err error) ErrorKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindRuntime
}
