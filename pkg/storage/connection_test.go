package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = DriverSQLite
	cfg.DSN = ":memory:"

	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	assert.Equal(t, DialectSQLite, cfg.Dialect())
}

func TestOpen_RejectsMemoryDriver(t *testing.T) {
	_, err := Open(context.Background(), DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not use a database")
}

func TestOpen_RequiresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = DriverPostgres

	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
	assert.Equal(t, DialectPostgres, cfg.Dialect())
}

func TestConfig_UsesDatabase(t *testing.T) {
	assert.False(t, Config{Driver: DriverMemory}.UsesDatabase())
	assert.True(t, Config{Driver: DriverPostgres}.UsesDatabase())
	assert.True(t, Config{Driver: DriverSQLite}.UsesDatabase())
}
