package migrations

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sonic-stream/internal/storage/postgres"
)

func TestEmbeddedMigrations(t *testing.T) {
	for name, fsys := range map[string]fs.FS{"postgres": PostgresFS, "clickhouse": ClickhouseFS} {
		entries, err := fs.ReadDir(fsys, name)
		require.NoError(t, err, name)
		require.NotEmpty(t, entries, name)

		for _, e := range entries {
			data, err := fs.ReadFile(fsys, name+"/"+e.Name())
			require.NoError(t, err)
			assert.Contains(t, string(data), "account_updates", e.Name())
			assert.Contains(t, string(data), "slot_updates", e.Name())
		}
	}
}

func TestClickhouseMigrationsSplit(t *testing.T) {
	data, err := fs.ReadFile(ClickhouseFS, "clickhouse/001_account_updates.sql")
	require.NoError(t, err)
	require.NoError(t, validateNoSemicolonInStrings(string(data)))

	stmts := splitStatements(string(data))
	require.Len(t, stmts, 2)
	for _, stmt := range stmts {
		assert.True(t, strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS"), stmt)
	}
}

func TestSplitStatements(t *testing.T) {
	in := "-- comment; with semicolon\nCREATE TABLE a (x UInt8);\n\n  \nCREATE TABLE b (y UInt8)\n;\n"
	assert.Equal(t, []string{"CREATE TABLE a (x UInt8)", "CREATE TABLE b (y UInt8)"}, splitStatements(in))
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s fine'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/stream")
	require.NoError(t, err)
	assert.Equal(t, "stream", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestLoad_SortsAndSkipsEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":   {Data: []byte("CREATE TABLE b ();")},
		"pg/001_a.sql":   {Data: []byte("CREATE TABLE a ();")},
		"pg/003_nop.sql": {Data: []byte("  \n")},
		"pg/README.md":   {Data: []byte("docs")},
	}

	got, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a.sql", got[0].Name)
	assert.Equal(t, "002_b.sql", got[1].Name)
	assert.Equal(t, "CREATE TABLE a ();", got[0].SQL)

	_, err = load(fsys, "missing")
	assert.Error(t, err)
}

func TestPending(t *testing.T) {
	all := []Migration{{Name: "001.sql"}, {Name: "002.sql"}, {Name: "003.sql"}}

	got := pending(all, map[string]bool{"001.sql": true, "003.sql": true})
	assert.Equal(t, []Migration{{Name: "002.sql"}}, got)
	assert.Empty(t, pending(all, map[string]bool{"001.sql": true, "002.sql": true, "003.sql": true}))
	assert.Len(t, pending(all, nil), 3)
}

func TestRunPostgresMigrations_RecordsLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	applied, err := RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_account_updates.sql"}, applied)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM account_updates`).Scan(&n))
	assert.Equal(t, 0, n)

	applied, err = RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
