// Package syncer runs the fetch, transform, derive and record pipeline and
// guarantees at most one run at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/darshan-rambhia/voltline/internal/derive"
	"github.com/darshan-rambhia/voltline/internal/metrics"
	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/remote"
	"github.com/darshan-rambhia/voltline/internal/transform"
	"github.com/google/uuid"
)

// ErrSyncInProgress is returned when a run is requested while another one is
// in flight. Nothing is recorded for the rejected request.
var ErrSyncInProgress = errors.New("sync already in progress")

// Sync modes accepted by Synchronize.
const (
	ModeFull        = model.SyncFull
	ModeIncremental = model.SyncIncremental
)

// maxErrorDetails caps how many record failures are spelled out in the run
// log message.
const maxErrorDetails = 5

// Fetcher retrieves the remote entity graph.
type Fetcher interface {
	Fetch(ctx context.Context, q remote.Query) (*remote.Graph, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	transform.Writer
	derive.Store
	InsertSyncRun(ctx context.Context, run model.SyncRun) (int64, error)
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
	LastSuccessfulSync(ctx context.Context) (time.Time, bool, error)
	Stats(ctx context.Context) (model.DatabaseStats, error)
}

// Options tune an Engine. The zero value is usable.
type Options struct {
	// PowerUnits are the unit names the derivation treats as watts.
	PowerUnits []string
	// TestBuildingID scopes TestSync to a single building when set.
	TestBuildingID string
	// Locker adds a cross-process guard on top of the in-process one.
	Locker Locker
}

// Result is the outcome of one run.
type Result struct {
	Run       model.SyncRun
	Requested model.SyncType
	Transform transform.Result
	Energy    derive.Summary
	Pages     int
	Truncated bool
	// Err is the error that aborted the run, if any.
	Err error
}

// Engine executes sync runs.
type Engine struct {
	fetcher    Fetcher
	store      Store
	reconciler *transform.Reconciler
	deriver    *derive.Engine
	locker     Locker
	testID     string

	running atomic.Bool
	state   atomic.Value // State

	mu    sync.Mutex
	hooks []func(Result)

	now func() time.Time
}

// New creates an engine.
func New(f Fetcher, s Store, opts Options) *Engine {
	locker := opts.Locker
	if locker == nil {
		locker = noopLocker{}
	}
	e := &Engine{
		fetcher:    f,
		store:      s,
		reconciler: transform.NewReconciler(s),
		deriver:    derive.New(s, opts.PowerUnits),
		locker:     locker,
		testID:     opts.TestBuildingID,
		now:        time.Now,
	}
	e.state.Store(StateIdle)
	return e
}

// OnComplete registers fn to be called after every recorded run.
func (e *Engine) OnComplete(fn func(Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Running reports whether a run is in flight in this process.
func (e *Engine) Running() bool { return e.running.Load() }

// State returns the pipeline stage of the current run, or StateIdle.
func (e *Engine) State() State { return e.state.Load().(State) }

// Synchronize runs the pipeline. Incremental mode fetches what changed since
// the start of the last successful run and degrades to full when there is
// none. The returned error is non-nil only when the run did not start;
// failures during the run are reported in the Result and its SyncRun.
func (e *Engine) Synchronize(ctx context.Context, mode model.SyncType) (*Result, error) {
	if mode != ModeFull && mode != ModeIncremental {
		return nil, fmt.Errorf("unknown sync mode %q", mode)
	}
	return e.execute(ctx, mode)
}

// TestSync runs the pipeline against a one-page, one-record fetch to check
// connectivity and response shape. It is recorded as a test run.
func (e *Engine) TestSync(ctx context.Context) (*Result, error) {
	return e.execute(ctx, model.SyncTest)
}

// GetSyncStatus returns the most recent runs, newest first.
func (e *Engine) GetSyncStatus(ctx context.Context, limit int) ([]model.SyncRun, error) {
	runs, err := e.store.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

// GetDatabaseStats returns row counts per entity table.
func (e *Engine) GetDatabaseStats(ctx context.Context) (model.DatabaseStats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return st, fmt.Errorf("collecting database stats: %w", err)
	}
	return st, nil
}

func (e *Engine) execute(ctx context.Context, requested model.SyncType) (*Result, error) {
	res, err := e.admit(ctx, requested)
	if err != nil {
		return nil, err
	}
	// Hooks run after release so they may start the next run.
	e.notify(*res)
	return res, nil
}

// admit runs requested while holding the in-process flag and the run lock.
func (e *Engine) admit(ctx context.Context, requested model.SyncType) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		metrics.SyncRejected.Inc()
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	unlock, ok, err := e.locker.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		metrics.SyncRejected.Inc()
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to release run lock", "error", err)
		}
	}()

	return e.run(ctx, requested), nil
}

// run carries one admitted run through every stage and records it.
func (e *Engine) run(ctx context.Context, requested model.SyncType) *Result {
	start := e.now()
	res := &Result{
		Requested: requested,
		Run: model.SyncRun{
			RunID:     uuid.NewString(),
			SyncType:  requested,
			CreatedAt: start.UnixMilli(),
		},
	}
	log := slog.With("run_id", res.Run.RunID, "mode", requested)
	log.Info("sync started")

	var derivErr error
	func() {
		e.setState(StateFetching)
		q, syncType, err := e.plan(ctx, requested)
		if err != nil {
			res.Err = err
			return
		}
		res.Run.SyncType = syncType

		graph, err := e.fetcher.Fetch(ctx, q)
		if err != nil {
			res.Err = fmt.Errorf("fetching remote graph: %w", err)
			return
		}
		res.Pages = graph.Pages
		// A test run stops at one page; that is not truncation.
		res.Truncated = graph.Truncated && syncType != model.SyncTest

		e.setState(StateTransforming)
		res.Transform, err = e.reconciler.Apply(ctx, graph)
		if err != nil {
			res.Err = fmt.Errorf("applying remote graph: %w", err)
			return
		}

		e.setState(StateDeriving)
		window, ok := derivationWindow(syncType, res.Transform)
		if !ok {
			return
		}
		res.Energy, derivErr = e.deriver.Recompute(ctx, window)
		if derivErr != nil {
			log.Error("energy derivation failed", "error", derivErr)
		}
	}()

	if res.Err != nil {
		stage := e.State()
		e.setState(StateAborted)
		log.Error("sync aborted", "stage", stage, "error_kind", remote.Kind(res.Err), "error", res.Err)
	}

	e.setState(StateRecording)
	e.finish(res, derivErr, start)
	if _, err := e.store.InsertSyncRun(context.WithoutCancel(ctx), res.Run); err != nil {
		log.Error("failed to record sync run", "error", err)
	}
	e.setState(StateIdle)

	metrics.RecordSyncRun(string(res.Run.SyncType), string(res.Run.Status),
		time.Duration(res.Run.DurationMs)*time.Millisecond, res.Run.ErrorsCount)
	metrics.RecordRecords(res.Transform.Counts())

	log.Info("sync finished",
		"status", res.Run.Status,
		"records", res.Run.RecordsSynced,
		"errors", res.Run.ErrorsCount,
		"pages", res.Pages,
		"truncated", res.Truncated,
		"energy_rows", res.Energy.Rows,
		"duration_ms", res.Run.DurationMs,
	)
	return res
}

// notify hands a finished run to the registered hooks.
func (e *Engine) notify(res Result) {
	e.mu.Lock()
	hooks := append([]func(Result){}, e.hooks...)
	e.mu.Unlock()
	for _, fn := range hooks {
		fn(res)
	}
}

// plan resolves the fetch query and the type the run is recorded under.
func (e *Engine) plan(ctx context.Context, requested model.SyncType) (remote.Query, model.SyncType, error) {
	switch requested {
	case model.SyncTest:
		q := remote.Query{PageSize: 1, MaxPages: 1}
		if e.testID != "" {
			q.BuildingIDs = []string{e.testID}
		}
		return q, model.SyncTest, nil
	case model.SyncIncremental:
		since, ok, err := e.store.LastSuccessfulSync(ctx)
		if err != nil {
			return remote.Query{}, requested, fmt.Errorf("reading incremental cursor: %w", err)
		}
		if !ok {
			slog.Info("no successful run yet, degrading incremental sync to full")
			return remote.Query{}, model.SyncFull, nil
		}
		return remote.Query{Since: since}, model.SyncIncremental, nil
	default:
		return remote.Query{}, model.SyncFull, nil
	}
}

// derivationWindow picks the timestamps to recompute. Full runs rebuild the
// whole store; other runs only the range their readings touched. An
// incremental run that writes no readings leaves energy rows of a point that
// moved to another location stale until the next full run.
func derivationWindow(syncType model.SyncType, tr transform.Result) (derive.Window, bool) {
	if syncType == model.SyncFull {
		return derive.All(), true
	}
	if tr.Series == 0 {
		return derive.Window{}, false
	}
	return derive.Window{From: tr.MinTS, To: tr.MaxTS}, true
}

// finish fills the counters, status and message of res.Run.
func (e *Engine) finish(res *Result, derivErr error, start time.Time) {
	tr := res.Transform
	errorsCount := len(tr.Failures)
	var msgs []string

	if res.Err != nil {
		errorsCount++
		msgs = append(msgs, res.Err.Error())
	}
	if derivErr != nil {
		errorsCount++
		msgs = append(msgs, "derivation: "+derivErr.Error())
	}
	if res.Truncated {
		msgs = append(msgs, fmt.Sprintf("fetch truncated after %d pages", res.Pages))
	}
	if summary := tr.ErrorSummary(maxErrorDetails); summary != "" {
		msgs = append(msgs, summary)
	}

	res.Run.RecordsSynced = tr.Succeeded()
	res.Run.ErrorsCount = errorsCount
	res.Run.ErrorMessage = strings.Join(msgs, "; ")
	res.Run.DurationMs = e.now().Sub(start).Milliseconds()
	res.Run.Status = classify(tr.Attempted, tr.Succeeded(), errorsCount, res.Truncated, res.Err != nil)
}

// classify maps run counters onto a status. A run is failed only when
// nothing was written although something was attempted, or when it aborted
// before writing anything.
func classify(attempted, succeeded, errorsCount int, truncated, aborted bool) model.RunStatus {
	switch {
	case !aborted && errorsCount == 0 && !truncated:
		return model.StatusSuccess
	case succeeded == 0 && (attempted > 0 || aborted):
		return model.StatusFailed
	default:
		return model.StatusPartial
	}
}

func (e *Engine) setState(s State) { e.state.Store(s) }
