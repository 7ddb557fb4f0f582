package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"adsb_history/internal/position"
	"adsb_history/internal/query"
)

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string // ":memory:" for a private in-memory database.
}

// SQLiteStore wraps a SQLite database for position storage.
type SQLiteStore struct {
	db *sql.DB
}

var (
	sqliteSchema = fmt.Sprintf(sqlSchemaTemplate, "REAL")
	sqliteUpsert = fmt.Sprintf(upsertTemplate, "?, ?, ?, ?, ?, ?, ?, ?, ?")
)

// OpenSQLite opens or creates a SQLite database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	memory := cfg.Path == "" || cfg.Path == ":memory:"

	dsn := cfg.Path + "?_pragma=busy_timeout(5000)"
	if memory {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if memory {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an already open database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close closes the database connection.
func (d *SQLiteStore) Close() error {
	return d.db.Close()
}

func (d *SQLiteStore) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// CreateSchema creates the aircraft table and its indices.
func (d *SQLiteStore) CreateSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, sqliteSchema); err != nil {
		return &StoreError{Op: "schema", Err: err}
	}
	return nil
}

// Upsert writes all positions in one transaction.
func (d *SQLiteStore) Upsert(ctx context.Context, positions []position.Position) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "upsert", Err: fmt.Errorf("begin: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return &StoreError{Op: "upsert", Err: fmt.Errorf("prepare: %w", err)}
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range positions {
		_, err := stmt.ExecContext(ctx,
			p.Hex, p.Lat, p.Lon, p.Flight, p.Squawk, p.Altitude,
			p.ObservedAt.String(), p.Category, p.Heading)
		if err != nil {
			return &StoreError{Op: "upsert", Err: fmt.Errorf("%s at %s: %w", p.Hex, p.ObservedAt, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "upsert", Err: fmt.Errorf("commit: %w", err)}
	}

	return nil
}

// Query returns positions matching p.
func (d *SQLiteStore) Query(ctx context.Context, p query.PredicateSet) ([]position.Position, error) {
	rows, err := d.db.QueryContext(ctx, selectSQL("aircraft", p), p.Args...)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer func() { _ = rows.Close() }()

	results := []position.Position{}
	for rows.Next() {
		var (
			pos                         position.Position
			ts                          string
			lat, lon, altitude, heading sql.NullFloat64
			flight, squawk, category    sql.NullString
		)
		if err := rows.Scan(&pos.Hex, &lat, &lon, &flight, &squawk, &altitude, &ts, &category, &heading); err != nil {
			return nil, &StoreError{Op: "query", Err: fmt.Errorf("scan: %w", err)}
		}

		pos.ObservedAt, err = position.ParseTimestamp(ts)
		if err != nil {
			return nil, &StoreError{Op: "query", Err: err}
		}
		pos.Lat, pos.Lon = lat.Float64, lon.Float64
		pos.Altitude, pos.Heading = altitude.Float64, heading.Float64
		pos.Flight, pos.Squawk, pos.Category = nullText(flight), nullText(squawk), nullText(category)

		results = append(results, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	return results, nil
}

func nullText(v sql.NullString) string {
	if !v.Valid {
		return position.Missing
	}
	return v.String
}
