package store

// schema is the on-disk contract shared with other consumers of the
// database. Timestamps are unix milliseconds.
const schema = `
-- Buildings mirrored from the remote graph
CREATE TABLE IF NOT EXISTS buildings (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    exact_type      TEXT NOT NULL DEFAULT '',
    street_address  TEXT NOT NULL DEFAULT '',
    locality        TEXT NOT NULL DEFAULT '',
    region          TEXT NOT NULL DEFAULT '',
    postal_code     TEXT NOT NULL DEFAULT '',
    country         TEXT NOT NULL DEFAULT '',
    latitude        REAL,
    longitude       REAL,
    date_created    INTEGER NOT NULL DEFAULT 0,
    date_updated    INTEGER NOT NULL DEFAULT 0,
    floors_count    INTEGER NOT NULL DEFAULT 0,
    spaces_count    INTEGER NOT NULL DEFAULT 0,
    sync_timestamp  INTEGER NOT NULL
);

-- Floors (building_id is checked by stats, not by a constraint)
CREATE TABLE IF NOT EXISTS floors (
    id              TEXT PRIMARY KEY,
    building_id     TEXT NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    level           INTEGER,
    date_created    INTEGER NOT NULL DEFAULT 0,
    date_updated    INTEGER NOT NULL DEFAULT 0,
    spaces_count    INTEGER NOT NULL DEFAULT 0,
    sync_timestamp  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS spaces (
    id              TEXT PRIMARY KEY,
    floor_id        TEXT NOT NULL,
    building_id     TEXT NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    exact_type      TEXT NOT NULL DEFAULT '',
    date_created    INTEGER NOT NULL DEFAULT 0,
    date_updated    INTEGER NOT NULL DEFAULT 0,
    sync_timestamp  INTEGER NOT NULL
);

-- Sensor definitions; floor_id/space_id are NULL for building-level points
CREATE TABLE IF NOT EXISTS points (
    id              TEXT PRIMARY KEY,
    building_id     TEXT NOT NULL,
    floor_id        TEXT,
    space_id        TEXT,
    name            TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    exact_type      TEXT NOT NULL DEFAULT '',
    unit_name       TEXT NOT NULL DEFAULT '',
    sync_timestamp  INTEGER NOT NULL
);

-- Raw readings; exactly one value column is populated per row
CREATE TABLE IF NOT EXISTS point_series (
    point_id        TEXT    NOT NULL,
    ts              INTEGER NOT NULL,
    float64_value   REAL,
    float32_value   REAL,
    string_value    TEXT,
    bool_value      INTEGER,
    PRIMARY KEY (point_id, ts)
) WITHOUT ROWID;

-- Derived consumption; '' marks a missing floor or space
CREATE TABLE IF NOT EXISTS energy_usage (
    building_id     TEXT    NOT NULL,
    floor_id        TEXT    NOT NULL DEFAULT '',
    space_id        TEXT    NOT NULL DEFAULT '',
    ts              INTEGER NOT NULL,
    total_watts     REAL    NOT NULL,
    total_kwh       REAL    NOT NULL,
    points_count    INTEGER NOT NULL,
    computed_at     INTEGER NOT NULL,
    PRIMARY KEY (building_id, floor_id, space_id, ts)
) WITHOUT ROWID;

-- Append-only sync history
CREATE TABLE IF NOT EXISTS sync_status (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT    NOT NULL,
    sync_type       TEXT    NOT NULL,
    status          TEXT    NOT NULL,
    records_synced  INTEGER NOT NULL,
    errors_count    INTEGER NOT NULL,
    error_message   TEXT,
    duration_ms     INTEGER NOT NULL,
    created_at      INTEGER NOT NULL
);

-- Secondary indexes
CREATE INDEX IF NOT EXISTS idx_floors_building ON floors(building_id);
CREATE INDEX IF NOT EXISTS idx_spaces_floor ON spaces(floor_id);
CREATE INDEX IF NOT EXISTS idx_points_unit ON points(unit_name);
CREATE INDEX IF NOT EXISTS idx_series_ts ON point_series(ts);
CREATE INDEX IF NOT EXISTS idx_energy_ts ON energy_usage(ts);
CREATE INDEX IF NOT EXISTS idx_sync_status_created ON sync_status(status, created_at);
`
