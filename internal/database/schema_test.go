package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- leading comment
CREATE TABLE a (id INTEGER);

-- only a comment;
CREATE INDEX i ON a (id);
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INTEGER)", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a (id)", stmts[1])
}

func TestSplitStatements_Embedded(t *testing.T) {
	assert.Len(t, splitStatements(schemaMySQL), 3)
	assert.Len(t, splitStatements(schemaSQLite), 7)
}

func TestMigrate_SQLiteIdempotent(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, DriverSQLite))
	require.NoError(t, Migrate(ctx, db, DriverSQLite))

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('halls', 'sessions', 'tickets')`,
	).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMigrate_UnknownDriver(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, Migrate(context.Background(), db, "postgres"))
}

func TestOpenDriver_SQLite(t *testing.T) {
	db, err := OpenDriver(Params{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`SELECT id FROM tickets LIMIT 1`)
	assert.NoError(t, err)
}

func TestOpenDriver_Unknown(t *testing.T) {
	_, err := OpenDriver(Params{Driver: "oracle"})
	assert.Error(t, err)
}
