package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig defines how long to keep time-series rows. A zero
// duration keeps rows forever. Sync history is never pruned.
type RetentionConfig struct {
	PointSeries time.Duration
	EnergyUsage time.Duration
}

// DefaultRetention keeps everything.
func DefaultRetention() RetentionConfig {
	return RetentionConfig{}
}

// Enabled reports whether any table has a retention limit.
func (r RetentionConfig) Enabled() bool {
	return r.PointSeries > 0 || r.EnergyUsage > 0
}

// retentionTables lists the prunable tables. Both key on ts in unix ms.
var retentionTables = []struct {
	name  string
	limit func(RetentionConfig) time.Duration
}{
	{"point_series", func(r RetentionConfig) time.Duration { return r.PointSeries }},
	{"energy_usage", func(r RetentionConfig) time.Duration { return r.EnergyUsage }},
}

// Pruner deletes readings and derived rows that fell out of retention.
type Pruner struct {
	store     *Store
	retention RetentionConfig
	interval  time.Duration
}

// NewPruner creates a pruner that sweeps hourly.
func NewPruner(store *Store, retention RetentionConfig) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  time.Hour,
	}
}

// Run sweeps once immediately and then every interval until ctx ends.
func (p *Pruner) Run(ctx context.Context) error {
	slog.Info("pruner started", "interval", p.interval,
		"point_series", p.retention.PointSeries, "energy_usage", p.retention.EnergyUsage)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Prune(ctx); err != nil && ctx.Err() == nil {
			slog.Error("pruning failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("pruner stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Prune performs one sweep and returns the rows deleted per table. A failure
// on one table does not stop the others.
func (p *Pruner) Prune(ctx context.Context) (map[string]int64, error) {
	now := p.store.now().UnixMilli()
	deleted := make(map[string]int64, len(retentionTables))
	var errs []error

	for _, t := range retentionTables {
		keep := t.limit(p.retention)
		if keep <= 0 {
			continue
		}
		n, err := p.store.deleteBefore(ctx, t.name, now-keep.Milliseconds())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		deleted[t.name] = n
		if n > 0 {
			slog.Info("pruned expired rows", "table", t.name, "rows", n)
		}
	}
	return deleted, errors.Join(errs...)
}

// deleteBefore removes rows of table with ts < cutoff. table must come from
// retentionTables.
func (s *Store) deleteBefore(ctx context.Context, table string, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE ts < ?", table), cutoff)
	if err != nil {
		return 0, NewStoreError("prune "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewStoreError("prune "+table, err)
	}
	return n, nil
}
