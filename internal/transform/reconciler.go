// Package transform maps the remote entity graph onto store rows and
// applies them as idempotent upserts.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/darshan-rambhia/voltline/internal/model"
	"github.com/darshan-rambhia/voltline/internal/remote"
	"github.com/darshan-rambhia/voltline/internal/store"
	"github.com/go-playground/validator/v10"
)

// Writer is the subset of the store the reconciler writes through.
type Writer interface {
	UpsertBuilding(ctx context.Context, b model.Building) error
	UpsertFloor(ctx context.Context, f model.Floor) error
	UpsertSpace(ctx context.Context, sp model.Space) error
	UpsertPoint(ctx context.Context, p model.Point) error
	UpsertReading(ctx context.Context, r model.Reading) error
	RefreshChildCounts(ctx context.Context) error
	OrphanFloors(ctx context.Context) (int64, error)
}

// RecordError is a single entity that failed to map, validate, or upsert.
// It never aborts the batch.
type RecordError struct {
	Kind string
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Result summarizes one Apply pass.
type Result struct {
	Buildings int
	Floors    int
	Spaces    int
	Points    int
	Series    int

	// Attempted counts every record the walk tried to write. Children of a
	// failed parent are skipped and not counted.
	Attempted int
	Failures  []*RecordError

	// MinTS and MaxTS bound the readings written, in unix ms. Both are 0 when
	// no reading was written.
	MinTS int64
	MaxTS int64

	OrphanFloors int64
}

// Succeeded returns the number of records upserted.
func (r Result) Succeeded() int {
	return r.Buildings + r.Floors + r.Spaces + r.Points + r.Series
}

// Counts returns the per-kind upsert counts keyed by entity name.
func (r Result) Counts() map[string]int {
	return map[string]int{
		"building": r.Buildings,
		"floor":    r.Floors,
		"space":    r.Spaces,
		"point":    r.Points,
		"series":   r.Series,
	}
}

// ErrorSummary joins the first few failure messages for the run log.
func (r Result) ErrorSummary(max int) string {
	if len(r.Failures) == 0 {
		return ""
	}
	n := min(len(r.Failures), max)
	msgs := make([]string, 0, n+1)
	for _, f := range r.Failures[:n] {
		msgs = append(msgs, f.Error())
	}
	if extra := len(r.Failures) - n; extra > 0 {
		msgs = append(msgs, fmt.Sprintf("and %d more", extra))
	}
	return strings.Join(msgs, "; ")
}

func (r *Result) touch(ts int64) {
	if r.MinTS == 0 || ts < r.MinTS {
		r.MinTS = ts
	}
	if ts > r.MaxTS {
		r.MaxTS = ts
	}
}

// location is the ancestry a point or reading inherits from the walk.
type location struct {
	buildingID string
	floorID    string
	spaceID    string
}

// Reconciler walks a remote graph and writes it through a Writer.
type Reconciler struct {
	w        Writer
	validate *validator.Validate
}

// NewReconciler creates a reconciler writing to w.
func NewReconciler(w Writer) *Reconciler {
	return &Reconciler{
		w:        w,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Apply upserts every entity in g depth-first, parents before children. Per
// record failures are collected in the result. A fatal store error stops the
// walk and is returned as a *store.StoreError together with the partial
// result; writes already applied stand.
func (r *Reconciler) Apply(ctx context.Context, g *remote.Graph) (Result, error) {
	var res Result
	if g == nil {
		return res, nil
	}

	for _, site := range g.Sites {
		for _, b := range site.Buildings {
			if err := r.applyBuilding(ctx, &res, b); err != nil {
				return res, err
			}
		}
	}

	if err := r.w.RefreshChildCounts(ctx); err != nil {
		return res, store.NewStoreError("refreshing child counts", err)
	}

	orphans, err := r.w.OrphanFloors(ctx)
	if err != nil {
		return res, store.NewStoreError("counting orphan floors", err)
	}
	res.OrphanFloors = orphans
	if orphans > 0 {
		slog.Warn("floors reference unknown buildings", "orphan_floors", orphans)
	}

	return res, nil
}

func (r *Reconciler) applyBuilding(ctx context.Context, res *Result, in remote.Building) error {
	res.Attempted++
	row, err := mapBuilding(in)
	if err == nil {
		err = r.validate.Struct(row)
	}
	if err == nil {
		err = r.w.UpsertBuilding(ctx, row)
	}
	if ok, fatal := r.settle(res, "building", in.ID, err); fatal != nil {
		return fatal
	} else if !ok {
		return nil
	}
	res.Buildings++

	loc := location{buildingID: in.ID}
	for _, p := range in.Points {
		if err := r.applyPoint(ctx, res, p, loc); err != nil {
			return err
		}
	}
	for _, f := range in.Floors {
		if err := r.applyFloor(ctx, res, f, in.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyFloor(ctx context.Context, res *Result, in remote.Floor, buildingID string) error {
	res.Attempted++
	row, err := mapFloor(in, buildingID)
	if err == nil {
		err = r.validate.Struct(row)
	}
	if err == nil {
		err = r.w.UpsertFloor(ctx, row)
	}
	if ok, fatal := r.settle(res, "floor", in.ID, err); fatal != nil {
		return fatal
	} else if !ok {
		return nil
	}
	res.Floors++

	loc := location{buildingID: buildingID, floorID: in.ID}
	for _, p := range in.Points {
		if err := r.applyPoint(ctx, res, p, loc); err != nil {
			return err
		}
	}
	for _, sp := range in.Spaces {
		if err := r.applySpace(ctx, res, sp, loc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applySpace(ctx context.Context, res *Result, in remote.Space, parent location) error {
	res.Attempted++
	row, err := mapSpace(in, parent.floorID, parent.buildingID)
	if err == nil {
		err = r.validate.Struct(row)
	}
	if err == nil {
		err = r.w.UpsertSpace(ctx, row)
	}
	if ok, fatal := r.settle(res, "space", in.ID, err); fatal != nil {
		return fatal
	} else if !ok {
		return nil
	}
	res.Spaces++

	loc := location{buildingID: parent.buildingID, floorID: parent.floorID, spaceID: in.ID}
	for _, p := range in.Points {
		if err := r.applyPoint(ctx, res, p, loc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyPoint(ctx context.Context, res *Result, in remote.Point, loc location) error {
	res.Attempted++
	row := mapPoint(in, loc)
	err := r.validate.Struct(row)
	if err == nil {
		err = r.w.UpsertPoint(ctx, row)
	}
	if ok, fatal := r.settle(res, "point", in.ID, err); fatal != nil {
		return fatal
	} else if !ok {
		return nil
	}
	res.Points++

	for _, sv := range in.Series {
		res.Attempted++
		reading, err := mapReading(sv, in.ID)
		if err == nil {
			err = r.validate.Struct(reading)
		}
		if err == nil {
			err = r.w.UpsertReading(ctx, reading)
		}
		id := in.ID + "@" + sv.Timestamp
		if ok, fatal := r.settle(res, "series", id, err); fatal != nil {
			return fatal
		} else if !ok {
			continue
		}
		res.Series++
		res.touch(reading.Timestamp)
	}
	return nil
}

// settle classifies the outcome of one record. It reports whether the record
// succeeded, or returns a non-nil error when the walk must stop.
func (r *Reconciler) settle(res *Result, kind, id string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if store.IsFatal(err) {
		var se *store.StoreError
		if errors.As(err, &se) {
			return false, se
		}
		return false, store.NewStoreError(fmt.Sprintf("upserting %s %s", kind, id), err)
	}

	recErr := &RecordError{Kind: kind, ID: id, Err: err}
	res.Failures = append(res.Failures, recErr)
	slog.Warn("record failed", "kind", kind, "id", id, "error", err)
	return false, nil
}
