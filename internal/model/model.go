// Package model defines all shared domain types for voltline.
package model

import "time"

// SyncType identifies how a sync run was scoped.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
	SyncTest        SyncType = "test"
)

// RunStatus is the recorded outcome of a sync run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// Building is a physical building as mirrored from the remote graph.
// Timestamps are unix milliseconds; zero means the remote did not report one.
type Building struct {
	ID            string   `json:"id" validate:"required"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ExactType     string   `json:"exact_type"`
	StreetAddress string   `json:"street_address"`
	Locality      string   `json:"locality"`
	Region        string   `json:"region"`
	PostalCode    string   `json:"postal_code"`
	Country       string   `json:"country"`
	Latitude      *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	DateCreated   int64    `json:"date_created"`
	DateUpdated   int64    `json:"date_updated"`
	FloorsCount   int      `json:"floors_count"`
	SpacesCount   int      `json:"spaces_count"`
	SyncTimestamp int64    `json:"sync_timestamp"`
}

// Floor belongs to a building. The building reference is not enforced by
// the database; orphans are reported by the store's stats.
type Floor struct {
	ID            string `json:"id" validate:"required"`
	BuildingID    string `json:"building_id" validate:"required"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Level         *int   `json:"level,omitempty"`
	DateCreated   int64  `json:"date_created"`
	DateUpdated   int64  `json:"date_updated"`
	SpacesCount   int    `json:"spaces_count"`
	SyncTimestamp int64  `json:"sync_timestamp"`
}

// Space is a room or zone on a floor. BuildingID is denormalized.
type Space struct {
	ID            string `json:"id" validate:"required"`
	FloorID       string `json:"floor_id" validate:"required"`
	BuildingID    string `json:"building_id" validate:"required"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ExactType     string `json:"exact_type"`
	DateCreated   int64  `json:"date_created"`
	DateUpdated   int64  `json:"date_updated"`
	SyncTimestamp int64  `json:"sync_timestamp"`
}

// Point is a sensor definition. FloorID and SpaceID are empty for
// building-level points.
type Point struct {
	ID            string `json:"id" validate:"required"`
	BuildingID    string `json:"building_id" validate:"required"`
	FloorID       string `json:"floor_id,omitempty"`
	SpaceID       string `json:"space_id,omitempty"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ExactType     string `json:"exact_type"`
	UnitName      string `json:"unit_name"`
	SyncTimestamp int64  `json:"sync_timestamp"`
}

// Reading is one raw sample of a point, keyed by (PointID, Timestamp).
type Reading struct {
	PointID   string `json:"point_id" validate:"required"`
	Timestamp int64  `json:"ts" validate:"gt=0"`
	Value     Value  `json:"value"`
}

// EnergyUsage is a derived consumption record for one location and
// timestamp. FloorID and SpaceID are "" when the readings were not
// attached to a floor or space.
type EnergyUsage struct {
	BuildingID  string  `json:"building_id"`
	FloorID     string  `json:"floor_id"`
	SpaceID     string  `json:"space_id"`
	Timestamp   int64   `json:"ts"`
	TotalWatts  float64 `json:"total_watts"`
	TotalKWh    float64 `json:"total_kwh"`
	PointsCount int     `json:"points_count"`
	ComputedAt  int64   `json:"computed_at"`
}

// SyncRun is one immutable row of the sync history.
type SyncRun struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	SyncType      SyncType  `json:"sync_type"`
	Status        RunStatus `json:"status"`
	RecordsSynced int       `json:"records_synced"`
	ErrorsCount   int       `json:"errors_count"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     int64     `json:"created_at"`
}

// DatabaseStats holds row counts per entity table.
type DatabaseStats struct {
	Buildings    int64 `json:"buildings"`
	Floors       int64 `json:"floors"`
	Spaces       int64 `json:"spaces"`
	Points       int64 `json:"points"`
	PointSeries  int64 `json:"point_series"`
	EnergyUsage  int64 `json:"energy_usage"`
	SyncRuns     int64 `json:"sync_runs"`
	OrphanFloors int64 `json:"orphan_floors"`
}

// Notification is a structured run-outcome message sent to providers.
type Notification struct {
	Kind      string            `json:"kind"`
	Severity  string            `json:"severity"` // "info", "warning", "critical"
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	RunID     string            `json:"run_id"`
	SyncType  SyncType          `json:"sync_type"`
	Status    RunStatus         `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
