package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SQLWrapper guards a sqlx handle with a circuit breaker so a wedged
// database fails fast instead of stacking up blocked queries.
type SQLWrapper struct {
	db     *sqlx.DB
	cb     *Breaker
	name   string
	logger *zap.Logger
}

// NewSQLWrapper creates a database wrapper registered for metrics.
func NewSQLWrapper(db *sqlx.DB, name string, logger *zap.Logger) *SQLWrapper {
	cb := New(name, DatabaseProfile(), logger)
	DefaultRegistry.Register(name, "ledger", cb)
	return &SQLWrapper{db: db, cb: cb, name: name, logger: logger}
}

// ExecContext runs a statement through the breaker.
func (sw *SQLWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var execErr error

	cbErr := sw.cb.Execute(ctx, func() error {
		result, execErr = sw.db.ExecContext(ctx, query, args...)
		return execErr
	})

	DefaultRegistry.RecordRequest(sw.name, "ledger", sw.cb.State(), cbErr == nil && execErr == nil)

	if cbErr != nil {
		return nil, cbErr
	}
	return result, execErr
}

// GetContext scans a single row into dest through the breaker. sql.ErrNoRows
// is not a breaker failure.
func (sw *SQLWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var getErr error

	cbErr := sw.cb.Execute(ctx, func() error {
		getErr = sw.db.GetContext(ctx, dest, query, args...)
		if getErr == sql.ErrNoRows {
			return nil
		}
		return getErr
	})

	ok := cbErr == nil && (getErr == nil || getErr == sql.ErrNoRows)
	DefaultRegistry.RecordRequest(sw.name, "ledger", sw.cb.State(), ok)

	if cbErr != nil && cbErr != getErr {
		return cbErr
	}
	return getErr
}

// SelectContext scans all rows into dest through the breaker.
func (sw *SQLWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var selErr error

	cbErr := sw.cb.Execute(ctx, func() error {
		selErr = sw.db.SelectContext(ctx, dest, query, args...)
		return selErr
	})

	DefaultRegistry.RecordRequest(sw.name, "ledger", sw.cb.State(), cbErr == nil && selErr == nil)

	if cbErr != nil && cbErr != selErr {
		return cbErr
	}
	return selErr
}

// PingContext checks connectivity through the breaker.
func (sw *SQLWrapper) PingContext(ctx context.Context) error {
	var pingErr error

	cbErr := sw.cb.Execute(ctx, func() error {
		pingErr = sw.db.PingContext(ctx)
		return pingErr
	})

	DefaultRegistry.RecordRequest(sw.name, "ledger", sw.cb.State(), cbErr == nil && pingErr == nil)

	if cbErr != nil && cbErr != pingErr {
		return cbErr
	}
	return pingErr
}

// BeginTxx starts a transaction through the breaker. Statements inside the
// transaction run unguarded; the breaker accounts at transaction boundaries.
func (sw *SQLWrapper) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	var tx *sqlx.Tx
	var beginErr error

	cbErr := sw.cb.Execute(ctx, func() error {
		tx, beginErr = sw.db.BeginTxx(ctx, opts)
		return beginErr
	})

	DefaultRegistry.RecordRequest(sw.name, "ledger", sw.cb.State(), cbErr == nil && beginErr == nil)

	if cbErr != nil {
		return nil, cbErr
	}
	return tx, beginErr
}

// IsOpen reports whether the breaker is currently rejecting requests.
func (sw *SQLWrapper) IsOpen() bool {
	return sw.cb.State() == StateOpen
}

// DB exposes the underlying handle for operations the wrapper does not cover.
func (sw *SQLWrapper) DB() *sqlx.DB {
	return sw.db
}

// Close closes the underlying handle.
func (sw *SQLWrapper) Close() error {
	return sw.db.Close()
}
