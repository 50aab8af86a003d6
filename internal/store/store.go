package store

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so every store can run inside a
// restore transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(...any) error }

// IsMissingTable reports whether err came from querying a table that does not
// exist in the current schema.
func IsMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
