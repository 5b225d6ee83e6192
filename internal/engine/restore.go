package engine

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/docwatch/internal/models"
)

// SnapshotLoader returns previously persisted job records.
type SnapshotLoader interface {
	LoadJobs(ctx context.Context) ([]models.JobRecord, error)
}

// Restore loads records from loader into the store and resumes polling every
// in-flight job that was not marked stale. Returns the number of records loaded.
func (e *Engine) Restore(ctx context.Context, loader SnapshotLoader) (int, error) {
	if e.closed() {
		return 0, ErrClosed
	}
	recs, err := loader.LoadJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore jobs: %w", err)
	}

	e.store.UpsertMany(recs)
	resumed := 0
	for _, rec := range recs {
		if rec.Status.IsActive() && !rec.Stale {
			if e.sched.Start(rec.JobID) {
				resumed++
			}
		}
	}
	e.logger.Info("jobs restored", "count", len(recs), "polling", resumed)
	return len(recs), nil
}
