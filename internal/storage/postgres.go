package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adsb_history/internal/position"
	"adsb_history/internal/query"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN returns the connection URL for cfg.
func (cfg PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

// PostgresStore wraps a PostgreSQL connection pool for position storage.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	postgresSchema = fmt.Sprintf(sqlSchemaTemplate, "DOUBLE PRECISION")
	postgresUpsert = fmt.Sprintf(upsertTemplate, "$1, $2, $3, $4, $5, $6, $7, $8, $9")
)

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresStore) Close() error {
	d.pool.Close()
	return nil
}

// Ping checks the pool can reach the server.
func (d *PostgresStore) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// CreateSchema creates the aircraft table and its indices.
func (d *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, postgresSchema); err != nil {
		return &StoreError{Op: "schema", Err: err}
	}
	return nil
}

// Upsert writes positions in a single batch round trip.
func (d *PostgresStore) Upsert(ctx context.Context, positions []position.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(postgresUpsert,
			p.Hex, p.Lat, p.Lon, p.Flight, p.Squawk, p.Altitude,
			p.ObservedAt.String(), p.Category, p.Heading)
	}

	br := d.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for _, p := range positions {
		if _, err := br.Exec(); err != nil {
			return &StoreError{Op: "upsert", Err: fmt.Errorf("%s at %s: %w", p.Hex, p.ObservedAt, err)}
		}
	}

	return nil
}

// Query returns positions matching p.
func (d *PostgresStore) Query(ctx context.Context, p query.PredicateSet) ([]position.Position, error) {
	rows, err := d.pool.Query(ctx, query.Rebind(selectSQL("aircraft", p)), p.Args...)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer rows.Close()

	results := []position.Position{}
	for rows.Next() {
		var (
			pos                         position.Position
			ts                          string
			lat, lon, altitude, heading *float64
			flight, squawk, category    *string
		)
		if err := rows.Scan(&pos.Hex, &lat, &lon, &flight, &squawk, &altitude, &ts, &category, &heading); err != nil {
			return nil, &StoreError{Op: "query", Err: fmt.Errorf("scan: %w", err)}
		}

		pos.ObservedAt, err = position.ParseTimestamp(strings.TrimSpace(ts))
		if err != nil {
			return nil, &StoreError{Op: "query", Err: err}
		}
		pos.Lat, pos.Lon = floatOr(lat), floatOr(lon)
		pos.Altitude, pos.Heading = floatOr(altitude), floatOr(heading)
		pos.Flight, pos.Squawk, pos.Category = textOr(flight), textOr(squawk), textOr(category)

		results = append(results, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	return results, nil
}
