// Package store implements the durable repositories behind the license
// and usage planes: edge devices, camera licenses, feature entitlements,
// usage events, and billing sync status. Every repository is a thin model
// over database/sql and classifies driver errors into the storeerr kinds.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/brinkbyte/edgegw/internal/storeerr"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, letting every model run
// against either a plain connection or an open transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxBeginner is satisfied by *sql.DB; SaveBatch needs a real transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// classify maps a driver error to a storeerr kind. Unrecognized errors are
// treated as backend-unavailable since the caller cannot distinguish a
// transient network blip from a genuine driver bug.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storeerr.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23": // integrity_constraint_violation
			return storeerr.ErrConstraintViolation
		case "08": // connection_exception
			return storeerr.ErrBackendUnavailable
		}
	}
	return storeerr.ErrBackendUnavailable
}
