// Package store provides SQLite persistence for voltline.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store wraps a SQLite database for voltline data persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens or creates a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an already-open database without running migrations.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertBuilding inserts or updates a building. Child counts are owned by
// RefreshChildCounts and are left untouched on conflict.
func (s *Store) UpsertBuilding(ctx context.Context, b model.Building) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buildings (id, name, description, exact_type, street_address, locality,
			region, postal_code, country, latitude, longitude, date_created, date_updated, sync_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			exact_type = excluded.exact_type,
			street_address = excluded.street_address,
			locality = excluded.locality,
			region = excluded.region,
			postal_code = excluded.postal_code,
			country = excluded.country,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			date_created = excluded.date_created,
			date_updated = excluded.date_updated,
			sync_timestamp = excluded.sync_timestamp`,
		b.ID, b.Name, b.Description, b.ExactType, b.StreetAddress, b.Locality,
		b.Region, b.PostalCode, b.Country, b.Latitude, b.Longitude,
		b.DateCreated, b.DateUpdated, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting building %s: %w", b.ID, err)
	}
	return nil
}

// UpsertFloor inserts or updates a floor.
func (s *Store) UpsertFloor(ctx context.Context, f model.Floor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO floors (id, building_id, name, description, level, date_created, date_updated, sync_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			name = excluded.name,
			description = excluded.description,
			level = excluded.level,
			date_created = excluded.date_created,
			date_updated = excluded.date_updated,
			sync_timestamp = excluded.sync_timestamp`,
		f.ID, f.BuildingID, f.Name, f.Description, f.Level,
		f.DateCreated, f.DateUpdated, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting floor %s: %w", f.ID, err)
	}
	return nil
}

// UpsertSpace inserts or updates a space.
func (s *Store) UpsertSpace(ctx context.Context, sp model.Space) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, floor_id, building_id, name, description, exact_type,
			date_created, date_updated, sync_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			floor_id = excluded.floor_id,
			building_id = excluded.building_id,
			name = excluded.name,
			description = excluded.description,
			exact_type = excluded.exact_type,
			date_created = excluded.date_created,
			date_updated = excluded.date_updated,
			sync_timestamp = excluded.sync_timestamp`,
		sp.ID, sp.FloorID, sp.BuildingID, sp.Name, sp.Description, sp.ExactType,
		sp.DateCreated, sp.DateUpdated, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting space %s: %w", sp.ID, err)
	}
	return nil
}

// UpsertPoint inserts or updates a sensor point.
func (s *Store) UpsertPoint(ctx context.Context, p model.Point) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points (id, building_id, floor_id, space_id, name, description, exact_type, unit_name, sync_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			floor_id = excluded.floor_id,
			space_id = excluded.space_id,
			name = excluded.name,
			description = excluded.description,
			exact_type = excluded.exact_type,
			unit_name = excluded.unit_name,
			sync_timestamp = excluded.sync_timestamp`,
		p.ID, p.BuildingID, nullString(p.FloorID), nullString(p.SpaceID),
		p.Name, p.Description, p.ExactType, p.UnitName, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting point %s: %w", p.ID, err)
	}
	return nil
}

// UpsertReading writes one raw reading, overwriting any previous reading for
// the same point and timestamp. The unused value columns are reset to NULL.
func (s *Store) UpsertReading(ctx context.Context, r model.Reading) error {
	f64, f32, str, b := r.Value.Columns()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO point_series (point_id, ts, float64_value, float32_value, string_value, bool_value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(point_id, ts) DO UPDATE SET
			float64_value = excluded.float64_value,
			float32_value = excluded.float32_value,
			string_value = excluded.string_value,
			bool_value = excluded.bool_value`,
		r.PointID, r.Timestamp, f64, f32, str, b,
	)
	if err != nil {
		return fmt.Errorf("upserting reading %s@%d: %w", r.PointID, r.Timestamp, err)
	}
	return nil
}

// RefreshChildCounts recomputes the floor/space counters on buildings and
// floors from the stored rows.
func (s *Store) RefreshChildCounts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE buildings SET
			floors_count = (SELECT COUNT(*) FROM floors f WHERE f.building_id = buildings.id),
			spaces_count = (SELECT COUNT(*) FROM spaces sp WHERE sp.building_id = buildings.id)`); err != nil {
		return fmt.Errorf("refreshing building counts: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE floors SET
			spaces_count = (SELECT COUNT(*) FROM spaces sp WHERE sp.floor_id = floors.id)`); err != nil {
		return fmt.Errorf("refreshing floor counts: %w", err)
	}
	return nil
}

// Building returns a single building by id.
func (s *Store) Building(ctx context.Context, id string) (*model.Building, error) {
	var b model.Building
	var lat, lon sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, exact_type, street_address, locality, region, postal_code,
			country, latitude, longitude, date_created, date_updated, floors_count, spaces_count, sync_timestamp
		FROM buildings WHERE id = ?`, id).Scan(
		&b.ID, &b.Name, &b.Description, &b.ExactType, &b.StreetAddress, &b.Locality, &b.Region,
		&b.PostalCode, &b.Country, &lat, &lon, &b.DateCreated, &b.DateUpdated,
		&b.FloorsCount, &b.SpacesCount, &b.SyncTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("building %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying building %s: %w", id, err)
	}
	if lat.Valid {
		b.Latitude = &lat.Float64
	}
	if lon.Valid {
		b.Longitude = &lon.Float64
	}
	return &b, nil
}

// Point returns a single sensor point by id.
func (s *Store) Point(ctx context.Context, id string) (*model.Point, error) {
	var p model.Point
	var floorID, spaceID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, building_id, floor_id, space_id, name, description, exact_type, unit_name, sync_timestamp
		FROM points WHERE id = ?`, id).Scan(
		&p.ID, &p.BuildingID, &floorID, &spaceID, &p.Name, &p.Description,
		&p.ExactType, &p.UnitName, &p.SyncTimestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("point %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying point %s: %w", id, err)
	}
	p.FloorID = floorID.String
	p.SpaceID = spaceID.String
	return &p, nil
}

// Readings returns all stored readings of a point in timestamp order.
func (s *Store) Readings(ctx context.Context, pointID string) ([]model.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT point_id, ts, float64_value, float32_value, string_value, bool_value
		FROM point_series WHERE point_id = ?
		ORDER BY ts ASC`, pointID)
	if err != nil {
		return nil, fmt.Errorf("querying readings for %s: %w", pointID, err)
	}
	defer rows.Close()

	var out []model.Reading
	for rows.Next() {
		var r model.Reading
		var f64, f32 sql.NullFloat64
		var str sql.NullString
		var b sql.NullBool
		if err := rows.Scan(&r.PointID, &r.Timestamp, &f64, &f32, &str, &b); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		v, err := model.ValueFromColumns(nullFloatPtr(f64), nullFloatPtr(f32), nullStringPtr(str), nullBoolPtr(b))
		if err != nil {
			return nil, fmt.Errorf("reading %s@%d: %w", r.PointID, r.Timestamp, err)
		}
		r.Value = v
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats returns row counts per entity table plus the number of floors whose
// building is not stored.
func (s *Store) Stats(ctx context.Context) (model.DatabaseStats, error) {
	var st model.DatabaseStats
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM buildings", &st.Buildings},
		{"SELECT COUNT(*) FROM floors", &st.Floors},
		{"SELECT COUNT(*) FROM spaces", &st.Spaces},
		{"SELECT COUNT(*) FROM points", &st.Points},
		{"SELECT COUNT(*) FROM point_series", &st.PointSeries},
		{"SELECT COUNT(*) FROM energy_usage", &st.EnergyUsage},
		{"SELECT COUNT(*) FROM sync_status", &st.SyncRuns},
		{orphanFloorsQuery, &st.OrphanFloors},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return st, fmt.Errorf("counting rows: %w", err)
		}
	}
	return st, nil
}

const orphanFloorsQuery = `SELECT COUNT(*) FROM floors f
	LEFT JOIN buildings b ON b.id = f.building_id
	WHERE b.id IS NULL`

// OrphanFloors counts floors whose building is not stored.
func (s *Store) OrphanFloors(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, orphanFloorsQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orphan floors: %w", err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return &v.Bool
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
