// Package api exposes the sync engine and scheduler over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/scheduler"
	"github.com/darshan-rambhia/voltline/internal/syncer"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/darshan-rambhia/voltline/docs/swagger"
)

// SyncService is the sync engine surface the API drives.
type SyncService interface {
	Synchronize(ctx context.Context, mode model.SyncType) (*syncer.Result, error)
	TestSync(ctx context.Context) (*syncer.Result, error)
	GetSyncStatus(ctx context.Context, limit int) ([]model.SyncRun, error)
	GetDatabaseStats(ctx context.Context) (model.DatabaseStats, error)
	State() syncer.State
	Running() bool
}

// SchedulerControl is the scheduler surface the API drives.
type SchedulerControl interface {
	Start()
	Stop() context.Context
	RunSyncNow(ctx context.Context) (*syncer.Result, error)
	IsRunning() bool
	NextSyncTime() time.Time
	Interval() time.Duration
}

const defaultHistoryLimit = 20

// Server is the HTTP control surface for voltline.
type Server struct {
	sync   SyncService
	sched  SchedulerControl
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(addr string, svc SyncService, sched SchedulerControl) *Server {
	srv := &Server{
		sync:  svc,
		sched: sched,
		mux:   http.NewServeMux(),
	}

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:        addr,
		Handler:     SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(srv.mux))),
		ReadTimeout: 10 * time.Second,
		// sync endpoints block until the run finishes
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)

	s.mux.HandleFunc("POST /api/scheduler/start", s.handleSchedulerStart)
	s.mux.HandleFunc("POST /api/scheduler/stop", s.handleSchedulerStop)
	s.mux.HandleFunc("POST /api/scheduler/run", s.handleSchedulerRun)
	s.mux.HandleFunc("GET /api/scheduler/status", s.handleSchedulerStatus)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

type syncRequest struct {
	Mode     model.SyncType `json:"mode"`
	TestMode bool           `json:"testMode"`
}

type runResponse struct {
	Run        model.SyncRun  `json:"run"`
	Requested  model.SyncType `json:"requested_mode"`
	Pages      int            `json:"pages"`
	Truncated  bool           `json:"truncated"`
	EnergyRows int            `json:"energy_rows"`
	Counts     map[string]int `json:"counts"`
}

func newRunResponse(res *syncer.Result) runResponse {
	return runResponse{
		Run:        res.Run,
		Requested:  res.Requested,
		Pages:      res.Pages,
		Truncated:  res.Truncated,
		EnergyRows: res.Energy.Rows,
		Counts:     res.Transform.Counts(),
	}
}

// runContext detaches a run from the request so a disconnecting client
// cannot cancel it mid-flight.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// @Summary Trigger a sync run
// @Description Runs a full or incremental sync, or a test sync when testMode is set, and waits for it to finish
// @Accept json
// @Produce json
// @Param request body syncRequest false "Sync mode (default incremental)"
// @Success 200 {object} runResponse
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse "A run is already in flight"
// @Router /api/sync [post]
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "reading request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Mode == "" {
		req.Mode = model.SyncIncremental
	}

	var res *syncer.Result
	switch {
	case req.TestMode:
		res, err = s.sync.TestSync(runContext(r))
	case req.Mode == model.SyncFull || req.Mode == model.SyncIncremental:
		res, err = s.sync.Synchronize(runContext(r), req.Mode)
	default:
		writeError(w, r, http.StatusBadRequest, "mode must be full or incremental")
		return
	}

	s.writeRunResult(w, r, res, err)
}

func (s *Server) writeRunResult(w http.ResponseWriter, r *http.Request, res *syncer.Result, err error) {
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		writeError(w, r, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("sync request failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, r, http.StatusOK, newRunResponse(res))
	}
}

type syncStatusResponse struct {
	Runs    []model.SyncRun     `json:"runs"`
	Stats   model.DatabaseStats `json:"stats"`
	State   syncer.State        `json:"state"`
	Running bool                `json:"running"`
}

// @Summary Sync history and store statistics
// @Description Returns the most recent sync runs (newest first) and row counts per table
// @Produce json
// @Param limit query int false "Number of runs to return" default(20)
// @Success 200 {object} syncStatusResponse
// @Failure 400 {object} errorResponse
// @Router /api/sync/status [get]
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := s.sync.GetSyncStatus(r.Context(), limit)
	if err != nil {
		slog.Error("loading sync status", "error", err)
		writeError(w, r, http.StatusInternalServerError, "loading sync history")
		return
	}
	stats, err := s.sync.GetDatabaseStats(r.Context())
	if err != nil {
		slog.Error("loading database stats", "error", err)
		writeError(w, r, http.StatusInternalServerError, "loading database stats")
		return
	}
	if runs == nil {
		runs = []model.SyncRun{}
	}

	writeJSON(w, r, http.StatusOK, syncStatusResponse{
		Runs:    runs,
		Stats:   stats,
		State:   s.sync.State(),
		Running: s.sync.Running(),
	})
}

type schedulerStatusResponse struct {
	Running      bool       `json:"running"`
	NextSyncTime *time.Time `json:"next_sync_time"`
	Interval     string     `json:"interval"`
	SyncRunning  bool       `json:"sync_running"`
}

func (s *Server) schedulerStatus() schedulerStatusResponse {
	resp := schedulerStatusResponse{
		Running:     s.sched.IsRunning(),
		Interval:    s.sched.Interval().String(),
		SyncRunning: s.sync.Running(),
	}
	if next := s.sched.NextSyncTime(); !next.IsZero() {
		resp.NextSyncTime = &next
	}
	return resp
}

// @Summary Start the scheduler
// @Produce json
// @Success 200 {object} schedulerStatusResponse
// @Router /api/scheduler/start [post]
func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	s.sched.Start()
	writeJSON(w, r, http.StatusOK, s.schedulerStatus())
}

// @Summary Stop the scheduler
// @Description Disarms future ticks. A run already in flight continues.
// @Produce json
// @Success 200 {object} schedulerStatusResponse
// @Router /api/scheduler/stop [post]
func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeJSON(w, r, http.StatusOK, s.schedulerStatus())
}

// @Summary Run an incremental sync now
// @Description Triggers one out-of-band incremental sync and waits for it
// @Produce json
// @Success 200 {object} runResponse
// @Failure 409 {object} errorResponse "A run is already in flight"
// @Router /api/scheduler/run [post]
func (s *Server) handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.sched.RunSyncNow(runContext(r))
	if errors.Is(err, scheduler.ErrSchedulerBusy) {
		writeError(w, r, http.StatusConflict, err.Error())
		return
	}
	s.writeRunResult(w, r, res, err)
}

// @Summary Scheduler status
// @Produce json
// @Success 200 {object} schedulerStatusResponse
// @Router /api/scheduler/status [get]
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.schedulerStatus())
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp int64          `json:"timestamp"`
	LastRun   *model.SyncRun `json:"last_run,omitempty"`
	State     syncer.State   `json:"state"`
}

// @Summary Health check
// @Description Reports the outcome of the most recent sync run
// @Produce json
// @Success 200 {object} healthResponse
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "no_data",
		Timestamp: time.Now().Unix(),
		State:     s.sync.State(),
	}

	runs, err := s.sync.GetSyncStatus(r.Context(), 1)
	switch {
	case err != nil:
		slog.Error("health check could not read sync history", "error", err)
		resp.Status = "store_error"
		writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	case len(runs) > 0:
		resp.LastRun = &runs[0]
		switch runs[0].Status {
		case model.StatusSuccess:
			resp.Status = "ok"
		case model.StatusPartial:
			resp.Status = "degraded"
		default:
			resp.Status = "failing"
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}
