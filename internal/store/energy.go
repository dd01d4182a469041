package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/darshan-rambhia/voltline/internal/model"
)

// PowerReading is a numeric reading joined to the location of its point.
type PowerReading struct {
	BuildingID string
	FloorID    string
	SpaceID    string
	PointID    string
	Timestamp  int64
	Value      model.Value
}

// PowerReadings returns readings in [from, to] of points whose unit name
// matches one of units (case-insensitive). String and bool readings are
// excluded. Rows are ordered by location, timestamp and point id so callers
// can aggregate deterministically.
func (s *Store) PowerReadings(ctx context.Context, units []string, from, to int64) ([]PowerReading, error) {
	if len(units) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(units)+2)
	for _, u := range units {
		args = append(args, strings.ToLower(u))
	}
	args = append(args, from, to)

	query := `
		SELECT p.building_id, COALESCE(p.floor_id, ''), COALESCE(p.space_id, ''),
			s.point_id, s.ts, s.float64_value, s.float32_value
		FROM point_series s
		JOIN points p ON p.id = s.point_id
		WHERE lower(p.unit_name) IN (` + placeholders(len(units)) + `)
			AND s.string_value IS NULL AND s.bool_value IS NULL
			AND s.ts >= ? AND s.ts <= ?
		ORDER BY 1, 2, 3, s.ts, s.point_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying power readings: %w", err)
	}
	defer rows.Close()

	var out []PowerReading
	for rows.Next() {
		var r PowerReading
		var f64, f32 sql.NullFloat64
		if err := rows.Scan(&r.BuildingID, &r.FloorID, &r.SpaceID, &r.PointID, &r.Timestamp, &f64, &f32); err != nil {
			return nil, fmt.Errorf("scanning power reading: %w", err)
		}
		v, err := model.ValueFromColumns(nullFloatPtr(f64), nullFloatPtr(f32), nil, nil)
		if err != nil {
			return nil, fmt.Errorf("power reading %s@%d: %w", r.PointID, r.Timestamp, err)
		}
		r.Value = v
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceEnergyUsage deletes every energy_usage row with ts in [from, to]
// and inserts rows in their place, atomically.
func (s *Store) ReplaceEnergyUsage(ctx context.Context, from, to int64, rows []model.EnergyUsage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning energy usage tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM energy_usage WHERE ts >= ? AND ts <= ?`, from, to); err != nil {
		return fmt.Errorf("clearing energy usage: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO energy_usage (building_id, floor_id, space_id, ts, total_watts, total_kwh, points_count, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(building_id, floor_id, space_id, ts) DO UPDATE SET
			total_watts = excluded.total_watts,
			total_kwh = excluded.total_kwh,
			points_count = excluded.points_count,
			computed_at = excluded.computed_at`)
	if err != nil {
		return fmt.Errorf("preparing energy usage insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range rows {
		if _, err := stmt.ExecContext(ctx, u.BuildingID, u.FloorID, u.SpaceID, u.Timestamp,
			u.TotalWatts, u.TotalKWh, u.PointsCount, u.ComputedAt); err != nil {
			return fmt.Errorf("inserting energy usage %s/%s/%s@%d: %w",
				u.BuildingID, u.FloorID, u.SpaceID, u.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing energy usage: %w", err)
	}
	return nil
}

// EnergyUsage returns the derived rows of a building ordered by location
// and timestamp.
func (s *Store) EnergyUsage(ctx context.Context, buildingID string) ([]model.EnergyUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT building_id, floor_id, space_id, ts, total_watts, total_kwh, points_count, computed_at
		FROM energy_usage WHERE building_id = ?
		ORDER BY floor_id, space_id, ts`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("querying energy usage: %w", err)
	}
	defer rows.Close()

	var out []model.EnergyUsage
	for rows.Next() {
		var u model.EnergyUsage
		if err := rows.Scan(&u.BuildingID, &u.FloorID, &u.SpaceID, &u.Timestamp,
			&u.TotalWatts, &u.TotalKWh, &u.PointsCount, &u.ComputedAt); err != nil {
			return nil, fmt.Errorf("scanning energy usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
