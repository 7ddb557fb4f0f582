package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"adsb_history/internal/position"
	"adsb_history/internal/query"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseStore wraps a ClickHouse connection for position storage.
//
// ClickHouse has no ON CONFLICT, so the table is a ReplacingMergeTree
// ordered by (hex, timestamp) and every read uses FINAL. Two writes of
// the same key collapse to the later one.
type ClickHouseStore struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseStore{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseStore) Close() error {
	return d.conn.Close()
}

func (d *ClickHouseStore) Ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

// CreateSchema creates the aircraft table. hex and timestamp lead the
// sorting key; the remaining filter columns get skip indices.
func (d *ClickHouseStore) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS aircraft (
			hex        String,
			lat        Float64,
			lon        Float64,
			flight     LowCardinality(String),
			squawk     LowCardinality(String),
			altitude   Float64,
			timestamp  DateTime('UTC'),
			category   LowCardinality(String),
			heading    Float64,
			INDEX idx_timestamp timestamp TYPE minmax GRANULARITY 4,
			INDEX idx_flight flight TYPE bloom_filter GRANULARITY 4,
			INDEX idx_category category TYPE set(0) GRANULARITY 4,
			INDEX idx_altitude altitude TYPE minmax GRANULARITY 4,
			INDEX idx_latlon (lat, lon) TYPE minmax GRANULARITY 4
		)
		ENGINE = ReplacingMergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (hex, timestamp)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return &StoreError{Op: "schema", Err: err}
		}
	}

	return nil
}

// Upsert appends positions in one batch. Replacement of existing keys
// happens at merge time and is hidden from readers by FINAL.
func (d *ClickHouseStore) Upsert(ctx context.Context, positions []position.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO aircraft (hex, lat, lon, flight, squawk, altitude, timestamp, category, heading)
	`)
	if err != nil {
		return &StoreError{Op: "upsert", Err: fmt.Errorf("prepare batch: %w", err)}
	}

	for _, p := range positions {
		err := batch.Append(p.Hex, p.Lat, p.Lon, p.Flight, p.Squawk, p.Altitude,
			p.ObservedAt.Time(), p.Category, p.Heading)
		if err != nil {
			_ = batch.Abort()
			return &StoreError{Op: "upsert", Err: fmt.Errorf("append %s: %w", p.Hex, err)}
		}
	}

	if err := batch.Send(); err != nil {
		return &StoreError{Op: "upsert", Err: fmt.Errorf("send batch: %w", err)}
	}

	return nil
}

// Query returns positions matching p.
func (d *ClickHouseStore) Query(ctx context.Context, p query.PredicateSet) ([]position.Position, error) {
	rows, err := d.conn.Query(ctx, selectSQL("aircraft FINAL", p), p.Args...)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	defer func() { _ = rows.Close() }()

	results := []position.Position{}
	for rows.Next() {
		var (
			pos position.Position
			ts  time.Time
		)
		err := rows.Scan(&pos.Hex, &pos.Lat, &pos.Lon, &pos.Flight, &pos.Squawk,
			&pos.Altitude, &ts, &pos.Category, &pos.Heading)
		if err != nil {
			return nil, &StoreError{Op: "query", Err: fmt.Errorf("scan: %w", err)}
		}
		pos.ObservedAt = position.NewTimestamp(ts)
		results = append(results, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}

	return results, nil
}
