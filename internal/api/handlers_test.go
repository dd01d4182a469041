package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/scheduler"
	"github.com/darshan-rambhia/voltline/internal/syncer"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failWriter is a ResponseWriter whose Write always returns an error.
type failWriter struct {
	header http.Header
}

func (fw *failWriter) Header() http.Header       { return fw.header }
func (fw *failWriter) WriteHeader(int)           {}
func (fw *failWriter) Write([]byte) (int, error) { return 0, errors.New("write failed") }

type fakeSync struct {
	mu        sync.Mutex
	modes     []model.SyncType
	tests     int
	err       error
	runs      []model.SyncRun
	statusErr error
	stats     model.DatabaseStats
	lastLimit int
}

func (f *fakeSync) result(mode model.SyncType) *syncer.Result {
	return &syncer.Result{
		Requested: mode,
		Pages:     1,
		Run:       model.SyncRun{RunID: "run-1", SyncType: mode, Status: model.StatusSuccess, RecordsSynced: 6},
	}
}

func (f *fakeSync) Synchronize(_ context.Context, mode model.SyncType) (*syncer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.modes = append(f.modes, mode)
	return f.result(mode), nil
}

func (f *fakeSync) TestSync(context.Context) (*syncer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tests++
	return f.result(model.SyncTest), nil
}

func (f *fakeSync) GetSyncStatus(_ context.Context, limit int) ([]model.SyncRun, error) {
	f.lastLimit = limit
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeSync) GetDatabaseStats(context.Context) (model.DatabaseStats, error) {
	return f.stats, nil
}

func (f *fakeSync) State() syncer.State { return syncer.StateIdle }
func (f *fakeSync) Running() bool       { return false }

type fakeScheduler struct {
	running bool
	next    time.Time
	runErr  error
}

func (f *fakeScheduler) Start() {
	f.running = true
	f.next = time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC)
}

func (f *fakeScheduler) Stop() context.Context {
	f.running = false
	f.next = time.Time{}
	return context.Background()
}

func (f *fakeScheduler) RunSyncNow(context.Context) (*syncer.Result, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &syncer.Result{Run: model.SyncRun{RunID: "run-now", SyncType: model.SyncIncremental, Status: model.StatusSuccess}}, nil
}

func (f *fakeScheduler) IsRunning() bool         { return f.running }
func (f *fakeScheduler) NextSyncTime() time.Time { return f.next }
func (f *fakeScheduler) Interval() time.Duration { return 15 * time.Minute }

func newTestServer(t *testing.T) (*Server, *fakeSync, *fakeScheduler) {
	t.Helper()
	fs := &fakeSync{}
	sched := &fakeScheduler{}
	return NewServer(":0", fs, sched), fs, sched
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// --- /api/sync ---

func TestHandleSync_Modes(t *testing.T) {
	tests := []struct {
		body string
		want model.SyncType
	}{
		{``, model.SyncIncremental},
		{`{}`, model.SyncIncremental},
		{`{"mode":"full"}`, model.SyncFull},
		{`{"mode":"incremental"}`, model.SyncIncremental},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			srv, fs, _ := newTestServer(t)
			w := do(srv, http.MethodPost, "/api/sync", tt.body)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, []model.SyncType{tt.want}, fs.modes)

			resp := decode[runResponse](t, w)
			assert.Equal(t, tt.want, resp.Run.SyncType)
			assert.Equal(t, model.StatusSuccess, resp.Run.Status)
		})
	}
}

func TestHandleSync_TestMode(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	w := do(srv, http.MethodPost, "/api/sync", `{"mode":"full","testMode":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fs.tests)
	assert.Empty(t, fs.modes)
	assert.Equal(t, model.SyncTest, decode[runResponse](t, w).Run.SyncType)
}

func TestHandleSync_BadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(srv, http.MethodPost, "/api/sync", `{"mode":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(srv, http.MethodPost, "/api/sync", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Error, "invalid JSON")
}

func TestHandleSync_Busy(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	fs.err = syncer.ErrSyncInProgress

	w := do(srv, http.MethodPost, "/api/sync", `{"mode":"full"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Error, "in progress")
}

func TestHandleSync_StartFailure(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	fs.err = errors.New("acquiring run lock: dial tcp: refused")

	w := do(srv, http.MethodPost, "/api/sync", `{"mode":"full"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleSync_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, http.MethodGet, "/api/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// --- /api/sync/status ---

func TestHandleSyncStatus(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	fs.stats = model.DatabaseStats{Buildings: 1, Floors: 2, OrphanFloors: 1}
	for i := range 3 {
		fs.runs = append(fs.runs, model.SyncRun{ID: int64(3 - i), RunID: fmt.Sprintf("r%d", 3-i), Status: model.StatusSuccess})
	}

	w := do(srv, http.MethodGet, "/api/sync/status?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, fs.lastLimit)

	resp := decode[syncStatusResponse](t, w)
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, "r3", resp.Runs[0].RunID)
	assert.EqualValues(t, 1, resp.Stats.OrphanFloors)
	assert.Equal(t, syncer.StateIdle, resp.State)
}

func TestHandleSyncStatus_DefaultLimitAndEmpty(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	w := do(srv, http.MethodGet, "/api/sync/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultHistoryLimit, fs.lastLimit)
	assert.Contains(t, w.Body.String(), `"runs":[]`)
}

func TestHandleSyncStatus_BadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, limit := range []string{"0", "-1", "abc", "5000"} {
		w := do(srv, http.MethodGet, "/api/sync/status?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestHandleSyncStatus_StoreError(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	fs.statusErr = errors.New("database is locked")

	w := do(srv, http.MethodGet, "/api/sync/status", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// --- /api/scheduler ---

func TestSchedulerLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(srv, http.MethodGet, "/api/scheduler/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[schedulerStatusResponse](t, w)
	assert.False(t, st.Running)
	assert.Nil(t, st.NextSyncTime)
	assert.Equal(t, "15m0s", st.Interval)

	w = do(srv, http.MethodPost, "/api/scheduler/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[schedulerStatusResponse](t, w)
	assert.True(t, st.Running)
	require.NotNil(t, st.NextSyncTime)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC), st.NextSyncTime.UTC())

	w = do(srv, http.MethodPost, "/api/scheduler/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[schedulerStatusResponse](t, w).Running)
}

func TestHandleSchedulerRun(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, http.MethodPost, "/api/scheduler/run", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-now", decode[runResponse](t, w).Run.RunID)
}

func TestHandleSchedulerRun_Busy(t *testing.T) {
	srv, _, sched := newTestServer(t)
	sched.runErr = fmt.Errorf("%w: %w", scheduler.ErrSchedulerBusy, syncer.ErrSyncInProgress)

	w := do(srv, http.MethodPost, "/api/scheduler/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Error, "scheduler busy")
}

// --- /healthz ---

func TestHandleHealthz(t *testing.T) {
	tests := []struct {
		name   string
		runs   []model.SyncRun
		status string
	}{
		{"no runs", nil, "no_data"},
		{"success", []model.SyncRun{{Status: model.StatusSuccess}}, "ok"},
		{"partial", []model.SyncRun{{Status: model.StatusPartial}}, "degraded"},
		{"failed", []model.SyncRun{{Status: model.StatusFailed}}, "failing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, fs, _ := newTestServer(t)
			fs.runs = tt.runs

			w := do(srv, http.MethodGet, "/healthz", "")
			require.Equal(t, http.StatusOK, w.Code)
			resp := decode[healthResponse](t, w)
			assert.Equal(t, tt.status, resp.Status)
			assert.NotZero(t, resp.Timestamp)
			assert.Equal(t, len(tt.runs) > 0, resp.LastRun != nil)
		})
	}
}

func TestHandleHealthz_StoreError(t *testing.T) {
	srv, fs, _ := newTestServer(t)
	fs.statusErr = errors.New("closed")

	w := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "store_error", decode[healthResponse](t, w).Status)
}

// --- /metrics and /swagger ---

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voltline_scheduler_skipped_ticks_total")
}

func TestSwaggerDocJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := do(srv, http.MethodGet, "/swagger/doc.json", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/scheduler/run")
}

// --- SecurityHeadersMiddleware ---

func TestSecurityHeadersMiddleware(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

// --- writeJSON error paths ---

func TestWriteJSON_MarshalError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	writeJSON(w, r, http.StatusOK, make(chan int))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteJSON_WriteBodyFail(t *testing.T) {
	w := &failWriter{header: make(http.Header)}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	writeJSON(w, r, http.StatusOK, "ok")
}

func TestServerRun_ShutsDownOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", &fakeSync{}, &fakeScheduler{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
