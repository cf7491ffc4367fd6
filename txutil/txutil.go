// Package txutil provides the closure-style transaction helpers the
// canonical rewrite targets by default. The helper owns begin, commit and
// rollback; the closure only does the work.
package txutil

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx begins a transaction on db, runs fn, and commits. If fn returns an
// error or panics, the transaction is rolled back and the panic re-raised.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return run(tx, fn)
}

// WithTxOptions is WithTx with a context and explicit transaction options.
func WithTxOptions(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	return run(tx, fn)
}

func run(tx *sql.Tx, fn func(tx *sql.Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
