// Package scheduler drives incremental syncs on a fixed interval and exposes
// manual control over the cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/darshan-rambhia/voltline/internal/metrics"
	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/syncer"
	"github.com/robfig/cron/v3"
)

// ErrSchedulerBusy is returned by RunSyncNow while a run is in flight. It
// also matches syncer.ErrSyncInProgress.
var ErrSchedulerBusy = errors.New("scheduler busy")

// MinInterval is the smallest interval the cron schedule can express.
const MinInterval = time.Second

// Runner executes a sync run.
type Runner interface {
	Synchronize(ctx context.Context, mode model.SyncType) (*syncer.Result, error)
}

// Scheduler fires Synchronize(incremental) every interval. Ticks that land
// while a run is in flight are skipped, never queued.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	startedAt time.Time
	lastFire  time.Time
}

// New creates a stopped scheduler.
func New(runner Runner, interval time.Duration) (*Scheduler, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("sync interval %s is below the minimum of %s", interval, MinInterval)
	}
	return &Scheduler{runner: runner, interval: interval, now: time.Now}, nil
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start arms the timer. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{}))
	c.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	c.Start()

	s.cron = c
	s.startedAt = s.now()
	s.lastFire = time.Time{}
	slog.Info("scheduler started", "interval", s.interval, "next_sync", s.startedAt.Add(s.interval))
}

// Stop disarms the timer. A run already in flight is not cancelled; the
// returned context is done once it has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	ctx := s.cron.Stop()
	s.cron = nil
	slog.Info("scheduler stopped")
	return ctx
}

// IsRunning reports whether the timer is armed.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextSyncTime is the last fire time plus the interval, or the start time
// plus the interval when the timer has not fired yet. It is zero while
// stopped.
func (s *Scheduler) NextSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	base := s.startedAt
	if !s.lastFire.IsZero() {
		base = s.lastFire
	}
	return base.Add(s.interval)
}

// RunSyncNow runs one incremental sync out of band and waits for it.
func (s *Scheduler) RunSyncNow(ctx context.Context) (*syncer.Result, error) {
	res, err := s.runner.Synchronize(ctx, model.SyncIncremental)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		return nil, fmt.Errorf("%w: %w", ErrSchedulerBusy, err)
	}
	return res, err
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	s.lastFire = s.now()
	s.mu.Unlock()

	_, err := s.runner.Synchronize(context.Background(), model.SyncIncremental)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		metrics.SchedulerSkippedTicks.Inc()
		slog.Info("scheduled sync skipped, run already in flight")
	case err != nil:
		slog.Error("scheduled sync did not start", "error", err)
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
