package migrations

import (
	"context"
	"fmt"
	"time"

	"sonic-stream/internal/observability"
	"sonic-stream/internal/storage/postgres"
)

const postgresLedgerDDL = `
	CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// RunPostgresMigrations applies the schema files not yet recorded in
// schema_migrations. Each file runs in its own transaction together with its
// ledger row. It returns the names applied by this call.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) (_ []string, err error) {
	defer func(start time.Time) {
		observability.RecordDBQuery("postgres", "migrate", time.Since(start).Seconds(), err)
	}(time.Now())

	all, err := load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresLedgerDDL); err != nil {
		return nil, fmt.Errorf("create %s: %w", ledgerTable, err)
	}

	rows, err := pool.Query(ctx, `SELECT name FROM `+ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ledgerTable, err)
	}

	var done []string
	for _, m := range pending(all, applied) {
		if err := applyPostgres(ctx, pool, m); err != nil {
			return done, err
		}
		done = append(done, m.Name)
	}
	return done, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, m Migration) (err error) {
	defer func(start time.Time) {
		observability.RecordDBQuery("postgres", "migrate_file", time.Since(start).Seconds(), err)
	}(time.Now())

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO `+ledgerTable+` (name) VALUES ($1)`, m.Name); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}
