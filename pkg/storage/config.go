package storage

import "time"

// Driver names accepted by Open
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config for the relational backend
type Config struct {
	Driver string // "memory", "postgres" or "sqlite3"
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultConfig returns the in-memory configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// UsesDatabase reports whether the configuration needs a *sql.DB
func (c Config) UsesDatabase() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverSQLite
}

// Dialect returns the SQL dialect for the configured driver
func (c Config) Dialect() Dialect {
	if c.Driver == DriverSQLite {
		return DialectSQLite
	}
	return DialectPostgres
}
