package reconcile

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/maloquacious/telesync/internal/compare"
	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/store"
)

// Status classifies what happened to one store.
type Status string

const (
	StatusOK           Status = "ok"
	StatusUnavailable  Status = "unavailable"
	StatusCorrupt      Status = "corrupt"
	StatusLocked       Status = "locked"
	StatusBackupFailed Status = "backup failed"
	StatusWriteFailed  Status = "write failed"
	StatusTimeout      Status = "timeout"
	StatusFailed       Status = "failed"
)

// Classify maps a store error onto a Status.
func Classify(err error) Status {
	var werr *store.WriteError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, store.ErrStoreUnavailable):
		return StatusUnavailable
	case errors.Is(err, store.ErrStoreCorrupt):
		return StatusCorrupt
	case errors.Is(err, store.ErrStoreLocked):
		return StatusLocked
	case errors.Is(err, store.ErrBackupFailed):
		return StatusBackupFailed
	case errors.As(err, &werr):
		return StatusWriteFailed
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	}
	return StatusFailed
}

// Outcome is the per-store entry of a Report.
type Outcome struct {
	Group      string
	Path       string
	Kind       store.Kind
	Status     Status
	Err        error
	Reference  bool          // the store the others were reconciled against
	Changed    []fields.Name // written, or would be written in a dry run
	Failed     []fields.Name
	BackupPath string
	Purged     int
}

// Snapshot is the field set read from one store.
type Snapshot struct {
	Group string
	Path  string
	Kind  store.Kind
	Set   fields.Set
}

// Comparison is a reference store compared against one other store.
type Comparison struct {
	Group  string
	First  string
	Second string
	Labels compare.Labels
	Result compare.Result
}

// Report is the explicit result of a run, aggregated by the caller.
type Report struct {
	DryRun      bool
	Outcomes    []Outcome
	Snapshots   []Snapshot
	Comparisons []Comparison
}

// Failures returns every outcome that did not succeed.
func (r Report) Failures() []Outcome {
	return lo.Filter(r.Outcomes, func(o Outcome, _ int) bool { return o.Status != StatusOK })
}

// FailedPaths lists the paths of failed stores.
func (r Report) FailedPaths() []string {
	return lo.Uniq(lo.Map(r.Failures(), func(o Outcome, _ int) string { return o.Path }))
}

// OK reports whether every store succeeded.
func (r Report) OK() bool {
	return len(r.Failures()) == 0
}

// Changed counts the fields written, or that would be written, across all stores.
func (r Report) Changed() int {
	return lo.SumBy(r.Outcomes, func(o Outcome) int { return len(o.Changed) })
}

// Purged counts the keys purged, or that would be purged, across all stores.
func (r Report) Purged() int {
	return lo.SumBy(r.Outcomes, func(o Outcome) int { return o.Purged })
}

// Consistent reports whether every comparison agrees.
func (r Report) Consistent() bool {
	return lo.EveryBy(r.Comparisons, func(c Comparison) bool { return c.Result.Consistent() })
}
