package engine

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/raphaelgruber/docwatch/internal/poller"
	"github.com/raphaelgruber/docwatch/internal/store"
)

// OnCadenceHintChanged switches the poll cadence, typically when the host UI
// becomes visible or hidden. Every active handle is recreated with the new interval.
func (e *Engine) OnCadenceHintChanged(c poller.Cadence) {
	if e.sched.SetCadence(c) {
		e.logger.Debug("cadence hint applied", "cadence", c.String())
	}
}

// OnShutdown stops every poll handle. Safe to call more than once.
func (e *Engine) OnShutdown() {
	n := e.sched.StopAll()
	e.shutdownOnce.Do(func() {
		e.logger.Info("polling stopped for shutdown", "handles", n)
	})
}

// Resume clears the stale marker on jobID and restarts polling if it is still in flight.
func (e *Engine) Resume(jobID string) error {
	if e.closed() {
		return ErrClosed
	}
	rec, ok := e.store.Update(jobID, func(r models.JobRecord) models.JobRecord {
		r.Stale = false
		r.LastPollError = ""
		return r
	})
	if !ok {
		return fmt.Errorf("resume %s: %w", jobID, store.ErrNotFound)
	}
	if rec.Status.IsActive() {
		e.restartPolling(jobID)
	}
	return nil
}

// RefreshActive checks every in-flight job at once, including stale ones, and merges
// the results. Stale jobs that answer are resumed. Returns how many jobs were refreshed.
func (e *Engine) RefreshActive(ctx context.Context) (int, error) {
	if e.closed() {
		return 0, ErrClosed
	}

	ids := e.sched.Active()
	var stale []string
	for _, rec := range e.store.ListAll() {
		if rec.Stale && rec.Status.IsActive() && !e.sched.IsPolling(rec.JobID) {
			stale = append(stale, rec.JobID)
		}
	}
	ids = append(ids, stale...)
	if len(ids) == 0 {
		return 0, nil
	}

	var results []client.BatchResult
	err := e.timed(metrics.OpBatchStatus, func() error {
		var err error
		results, err = e.api.GetBatchStatus(ctx, ids, e.batchConcurrency)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("refresh active: %w", err)
	}

	refreshed := 0
	for _, r := range results {
		if r.Err != nil || r.Status == nil {
			e.logger.Debug("batch status failed", "job_id", r.JobID, "error", r.Err)
			continue
		}
		rec, ok := e.store.Get(r.JobID)
		if ok && rec.Stale {
			e.sched.Start(r.JobID)
		}
		if _, ok := e.applyStatus(r.JobID, r.Status); ok {
			refreshed++
		}
	}
	return refreshed, nil
}
