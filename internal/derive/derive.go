// Package derive computes energy usage rows from stored power readings.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/darshan-rambhia/voltline/internal/metrics"
	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/store"
)

// DefaultPowerUnits are the unit names treated as instantaneous power.
var DefaultPowerUnits = []string{"Watt", "Watts", "W"}

// Store is the subset of the store the engine reads and writes.
type Store interface {
	PowerReadings(ctx context.Context, units []string, from, to int64) ([]store.PowerReading, error)
	ReplaceEnergyUsage(ctx context.Context, from, to int64, rows []model.EnergyUsage) error
}

// Window is an inclusive range of reading timestamps in unix ms. The zero
// Window covers the entire store.
type Window struct {
	From int64
	To   int64
}

// All returns the window covering every timestamp.
func All() Window { return Window{} }

// IsAll reports whether w covers the entire store.
func (w Window) IsAll() bool { return w.From == 0 && w.To == 0 }

func (w Window) bounds() (int64, int64) {
	if w.IsAll() {
		return 0, math.MaxInt64
	}
	return w.From, w.To
}

// Summary reports one Recompute pass.
type Summary struct {
	Readings int
	Rows     int
	Window   Window
}

// Engine derives EnergyUsage by summing the watt readings of every location
// per timestamp.
type Engine struct {
	store Store
	units []string
	now   func() time.Time
}

// New creates an engine. An empty units list falls back to DefaultPowerUnits.
func New(s Store, units []string) *Engine {
	if len(units) == 0 {
		units = DefaultPowerUnits
	}
	return &Engine{store: s, units: units, now: time.Now}
}

// Recompute replaces every energy usage row inside w with freshly summed
// values. total_kwh is total_watts / 1000: an instantaneous reading scaled to
// kilowatts, not integrated over the sampling interval.
func (e *Engine) Recompute(ctx context.Context, w Window) (Summary, error) {
	from, to := w.bounds()
	sum := Summary{Window: w}

	readings, err := e.store.PowerReadings(ctx, e.units, from, to)
	if err != nil {
		return sum, fmt.Errorf("loading power readings: %w", err)
	}
	sum.Readings = len(readings)

	rows := aggregate(readings, e.now().UnixMilli())
	if err := e.store.ReplaceEnergyUsage(ctx, from, to, rows); err != nil {
		return sum, fmt.Errorf("writing energy usage: %w", err)
	}
	sum.Rows = len(rows)
	metrics.EnergyRowsWritten.Add(float64(len(rows)))

	slog.Debug("energy usage recomputed", "readings", sum.Readings, "rows", sum.Rows,
		"from", from, "to", to)
	return sum, nil
}

// aggregate folds readings that arrive ordered by location, timestamp and
// point id into one row per (location, timestamp). The fixed input order
// makes the floating point sum identical on every pass.
func aggregate(readings []store.PowerReading, computedAt int64) []model.EnergyUsage {
	var out []model.EnergyUsage
	var cur *model.EnergyUsage
	for _, r := range readings {
		watts, ok := r.Value.Power()
		if !ok {
			continue
		}
		if cur == nil || cur.BuildingID != r.BuildingID || cur.FloorID != r.FloorID ||
			cur.SpaceID != r.SpaceID || cur.Timestamp != r.Timestamp {
			out = append(out, model.EnergyUsage{
				BuildingID: r.BuildingID,
				FloorID:    r.FloorID,
				SpaceID:    r.SpaceID,
				Timestamp:  r.Timestamp,
				ComputedAt: computedAt,
			})
			cur = &out[len(out)-1]
		}
		cur.TotalWatts += watts
		cur.PointsCount++
	}
	// kWh is the instantaneous W/1000, not integrated over the sampling interval.
	for i := range out {
		out[i].TotalKWh = out[i].TotalWatts / 1000
	}
	return out
}
