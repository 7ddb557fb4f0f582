// Package storage persists aircraft positions keyed by (hex, timestamp).
package storage

import (
	"context"
	"fmt"

	"adsb_history/internal/position"
	"adsb_history/internal/query"
)

// Supported backends.
const (
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"
)

// Store is the position store contract shared by every backend.
type Store interface {
	// CreateSchema creates the aircraft table and its indices if missing.
	CreateSchema(ctx context.Context) error
	// Upsert inserts each position or overwrites the existing row with the
	// same (hex, timestamp).
	Upsert(ctx context.Context, positions []position.Position) error
	// Query returns the positions matching the predicate set, ordered by
	// timestamp then hex.
	Query(ctx context.Context, p query.PredicateSet) ([]position.Position, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures the backend.
type Config struct {
	Driver     string
	Postgres   PostgresConfig
	SQLite     SQLiteConfig
	ClickHouse ClickHouseConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Driver: DriverPostgres,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "aircraft",
			User:     "aircraft",
			Password: "",
		},
		SQLite: SQLiteConfig{
			Path: "aircraft.db",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "default",
			User:     "default",
			Password: "",
		},
	}
}

// Open connects to the configured backend and creates the schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Driver {
	case DriverPostgres, "":
		s, err = OpenPostgres(ctx, cfg.Postgres)
	case DriverSQLite:
		s, err = OpenSQLite(cfg.SQLite)
	case DriverClickHouse:
		s, err = OpenClickHouse(ctx, cfg.ClickHouse)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.CreateSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// StoreError reports a failed store operation.
type StoreError struct {
	Op  string // "upsert", "query", "schema".
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// selectColumns is the column list every backend returns, in scan order.
const selectColumns = `hex, lat, lon, flight, squawk, altitude, timestamp, category, heading`

// selectSQL builds the history query for p. Only clause text produced by
// the query package reaches the statement; values stay in p.Args.
func selectSQL(from string, p query.PredicateSet) string {
	sql := "SELECT " + selectColumns + " FROM " + from
	if where := p.Where(); where != "" {
		sql += " WHERE " + where
	}
	return sql + " ORDER BY timestamp, hex"
}

// textOr maps a NULL text column to the missing marker.
func textOr(v *string) string {
	if v == nil {
		return position.Missing
	}
	return *v
}

// floatOr maps a NULL numeric column to zero.
func floatOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
