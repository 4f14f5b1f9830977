package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testAdapter(rowCap int) *Adapter {
	return &Adapter{rowCap: rowCap, logger: zap.NewNop()}
}

func TestWrapWithCap_AddsLimit(t *testing.T) {
	a := testAdapter(1000)
	got := a.wrapWithCap("SELECT * FROM subjects;")
	assert.Equal(t, "SELECT * FROM (SELECT * FROM subjects) AS q LIMIT 1000", got)
}

func TestWrapWithCap_KeepsExistingLimit(t *testing.T) {
	a := testAdapter(1000)
	sql := "SELECT * FROM subjects LIMIT 10"
	assert.Equal(t, sql, a.wrapWithCap(sql))
}

func TestWrapWithCap_LowercaseLimit(t *testing.T) {
	a := testAdapter(1000)
	sql := "select * from subjects limit 5"
	assert.Equal(t, sql, a.wrapWithCap(sql))
}

func TestWrapWithCap_ColumnNamedLimitStillWrapped(t *testing.T) {
	a := testAdapter(50)
	got := a.wrapWithCap("SELECT dose_limit FROM protocols")
	assert.Contains(t, got, "LIMIT 50")
}

func TestStripSemicolon(t *testing.T) {
	assert.Equal(t, "SELECT 1", stripSemicolon("SELECT 1; \n"))
	assert.Equal(t, "SELECT 1", stripSemicolon("SELECT 1"))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"syntax", &pgconn.PgError{Code: "42601", Message: "syntax error"}, KindSyntax},
		{"missing column", &pgconn.PgError{Code: "42703", Message: "column does not exist"}, KindSyntax},
		{"cancelled statement", &pgconn.PgError{Code: "57014", Message: "canceling statement"}, KindTimeout},
		{"connection", &pgconn.PgError{Code: "08006", Message: "connection failure"}, KindConnection},
		{"division by zero", &pgconn.PgError{Code: "22012", Message: "division by zero"}, KindRuntime},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"caller cancellation", context.Canceled, KindCancelled},
		{"wrapped cancellation", fmt.Errorf("run query: %w", context.Canceled), KindCancelled},
		{"plain", errors.New("something else"), KindRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassifyError_PreservesWrapped(t *testing.T) {
	orig := &QueryError{Kind: KindTimeout, Message: "statement timed out"}
	assert.Same(t, orig, classifyError(orig))
	assert.Equal(t, KindTimeout, KindOf(orig))
}

func TestFailedResult(t *testing.T) {
	r := failedResult(&QueryError{Kind: KindSyntax, Message: "bad sql"})
	assert.False(t, r.Success)
	assert.Equal(t, "bad sql", r.Error)
	assert.Equal(t, KindSyntax, r.Kind)
	assert.Empty(t, r.Rows)
}
