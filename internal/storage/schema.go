package storage

// The aircraft table layout shared by PostgreSQL and SQLite. Every optional
// filter in the history query has an index so arbitrary combinations stay
// selective as the table grows.
//
// PostgreSQL stores coordinates and kinematics as DOUBLE PRECISION; SQLite's
// REAL is already 8 bytes.
const sqlSchemaTemplate = `
CREATE TABLE IF NOT EXISTS aircraft (
	hex        TEXT NOT NULL,
	lat        %[1]s,
	lon        %[1]s,
	flight     TEXT,
	squawk     TEXT,
	altitude   %[1]s,
	timestamp  TEXT NOT NULL,
	category   TEXT,
	heading    %[1]s,
	PRIMARY KEY (hex, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_timestamp ON aircraft(timestamp);
CREATE INDEX IF NOT EXISTS idx_hex ON aircraft(hex);
CREATE INDEX IF NOT EXISTS idx_flight ON aircraft(flight);
CREATE INDEX IF NOT EXISTS idx_category ON aircraft(category);
CREATE INDEX IF NOT EXISTS idx_altitude ON aircraft(altitude);
CREATE INDEX IF NOT EXISTS idx_latlon ON aircraft(lat, lon);
`

// upsertTemplate overwrites every non-key column on conflict. The
// placeholder style differs per backend.
const upsertTemplate = `
INSERT INTO aircraft (hex, lat, lon, flight, squawk, altitude, timestamp, category, heading)
VALUES (%s)
ON CONFLICT (hex, timestamp) DO UPDATE SET
	lat = excluded.lat,
	lon = excluded.lon,
	flight = excluded.flight,
	squawk = excluded.squawk,
	altitude = excluded.altitude,
	category = excluded.category,
	heading = excluded.heading
`
