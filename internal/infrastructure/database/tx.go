package database

import (
	"context"
	"database/sql"
	"fmt"

	"payments/internal/domain"
)

// TxRunner runs a function inside one database transaction. The service
// layer depends on this instead of *sql.DB directly so the transition logic
// stays unit-testable without a database.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(querier domain.Querier) error) error
}

type SQLTxRunner struct {
	db *sql.DB
}

func NewSQLTxRunner(db *sql.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

func (r *SQLTxRunner) WithinTx(ctx context.Context, fn func(querier domain.Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed after error %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
