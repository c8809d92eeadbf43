package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sonic-stream/internal/observability"
	chstore "sonic-stream/internal/storage/clickhouse"
)

const clickhouseLedgerDDL = `
	CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
		name       String,
		applied_at DateTime DEFAULT now()
	) ENGINE = MergeTree ORDER BY name`

// RunClickhouseMigrations creates the database named in dsn, applies the
// schema files not yet recorded in schema_migrations and returns a connection
// to that database. ClickHouse has no DDL transactions, so a file that fails
// halfway is retried from the top on the next run; the schema files only use
// IF NOT EXISTS statements for that reason.
func RunClickhouseMigrations(ctx context.Context, dsn string) (_ *chstore.Conn, err error) {
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "migrate", time.Since(start).Seconds(), err)
	}(time.Now())

	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	all, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", m.Name, err)
		}
	}

	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	if err := applyClickhouse(ctx, conn, all); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func applyClickhouse(ctx context.Context, conn *chstore.Conn, all []Migration) error {
	if err := conn.Exec(ctx, clickhouseLedgerDDL); err != nil {
		return fmt.Errorf("create %s: %w", ledgerTable, err)
	}

	rows, err := conn.Query(ctx, `SELECT DISTINCT name FROM `+ledgerTable)
	if err != nil {
		return fmt.Errorf("read %s: %w", ledgerTable, err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read %s: %w", ledgerTable, err)
	}

	for _, m := range pending(all, applied) {
		start := time.Now()
		for _, stmt := range splitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				observability.RecordDBQuery("clickhouse", "migrate_file", time.Since(start).Seconds(), err)
				return fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		err := conn.Exec(ctx, `INSERT INTO `+ledgerTable+` (name) VALUES (?)`, m.Name)
		observability.RecordDBQuery("clickhouse", "migrate_file", time.Since(start).Seconds(), err)
		if err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
	}
	return nil
}

// splitStatements splits a schema file into statements for the driver, which
// executes one statement per Exec. Blank lines and -- comment lines are
// dropped before splitting on semicolons, so schema files must not put a
// semicolon inside a string literal or a block comment.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects SQL with a semicolon inside a quoted
// literal, which splitStatements would cut in two.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
