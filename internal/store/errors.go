package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// StoreError is an unrecoverable local write failure. It aborts the current
// pipeline stage; writes committed before it stand.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for the given operation.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// fatalCodes are primary SQLite result codes after which further writes in
// the same run cannot succeed.
var fatalCodes = map[int]bool{
	sqlite3.SQLITE_FULL:     true,
	sqlite3.SQLITE_IOERR:    true,
	sqlite3.SQLITE_READONLY: true,
	sqlite3.SQLITE_CORRUPT:  true,
	sqlite3.SQLITE_NOTADB:   true,
	sqlite3.SQLITE_CANTOPEN: true,
	sqlite3.SQLITE_NOMEM:    true,
	sqlite3.SQLITE_PERM:     true,
}

// IsFatal reports whether err means the database can no longer be written,
// as opposed to a problem with a single record.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) {
		return true
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return fatalCodes[liteErr.Code()&0xff]
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}
