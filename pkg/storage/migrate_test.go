package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

var testMigrations = []Migration{
	{
		Version:     2,
		Description: "add widgets.name",
		Postgres:    "ALTER TABLE widgets ADD COLUMN name VARCHAR(64)",
		SQLite:      "ALTER TABLE widgets ADD COLUMN name TEXT",
	},
	{
		Version:     1,
		Description: "create widgets",
		Postgres:    "CREATE TABLE widgets (id BIGSERIAL PRIMARY KEY)",
		SQLite:      "CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT)",
	},
}

func TestMigrate_AppliesInVersionOrder(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	ran, err := Migrate(ctx, db, DialectSQLite, testMigrations)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ran)

	_, err = db.Exec("INSERT INTO widgets (name) VALUES ('a')")
	require.NoError(t, err)

	ran, err = Migrate(ctx, db, DialectSQLite, testMigrations)
	require.NoError(t, err)
	assert.Empty(t, ran, "applied migrations are skipped")

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrate_MergesSets(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	extra := []Migration{{
		Version:     10,
		Description: "create gadgets",
		Postgres:    "CREATE TABLE gadgets (id INTEGER PRIMARY KEY)",
	}}

	ran, err := Migrate(ctx, db, DialectSQLite, extra, testMigrations)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 10}, ran)
}

func TestMigrate_DuplicateVersion(t *testing.T) {
	db := openSQLite(t)

	dup := []Migration{{Version: 1, Description: "again", Postgres: "SELECT 1"}}
	_, err := Migrate(context.Background(), db, DialectSQLite, testMigrations, dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

func TestMigrate_FailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	broken := []Migration{
		testMigrations[1],
		{Version: 2, Description: "broken", Postgres: "ALTER TABLE missing ADD COLUMN x TEXT"},
	}

	ran, err := Migrate(ctx, db, DialectSQLite, broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute migration 2")
	assert.Equal(t, []int{1}, ran)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = 2").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestMigrate_CreateTableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("permission denied for schema public"))

	_, err = Migrate(context.Background(), db, DialectPostgres, testMigrations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create migrations table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_CommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE widgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(1, "create widgets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err = Migrate(context.Background(), db, DialectPostgres, testMigrations[1:])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigration_SQLFallsBackToPostgres(t *testing.T) {
	m := Migration{Postgres: "CREATE INDEX IF NOT EXISTS i ON t(c)"}
	assert.Equal(t, m.Postgres, m.SQL(DialectSQLite))

	m.SQLite = "CREATE INDEX i ON t(c)"
	assert.Equal(t, m.SQLite, m.SQL(DialectSQLite))
	assert.Equal(t, m.Postgres, m.SQL(DialectPostgres))
}
