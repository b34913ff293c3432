package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the schema and (re)creates the row level security
// policies in one transaction. Safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, stmt := range PolicyStatements() {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply policy %q: %w", stmt, err)
		}
	}
	return tx.Commit(ctx)
}
