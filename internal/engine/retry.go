package engine

import (
	"context"

	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// Retry asks the server to reprocess jobID. A tracked record is reset to queued and
// polled again; untracked jobs are left alone. The caller decides whether the job is eligible.
func (e *Engine) Retry(ctx context.Context, jobID string) error {
	if e.closed() {
		return ErrClosed
	}

	err := e.timed(metrics.OpRetry, func() error {
		_, err := e.api.RetryJob(ctx, jobID)
		return err
	})
	if err != nil {
		e.logger.Error("retry failed", "job_id", jobID, "error", err)
		return e.recordError(&TransportError{Op: "retry", JobID: jobID, Err: err})
	}

	now := e.clock.Now()
	_, tracked := e.store.Update(jobID, func(r models.JobRecord) models.JobRecord {
		r.Status = models.StatusQueued
		r.ErrorMessage = nil
		r.ProgressPercent = models.Ptr(0.0)
		r.RetryCount++
		r.CompletedAt = nil
		r.UpdatedAt = models.Ptr(now)
		r.Stale = false
		r.LastPollError = ""
		return r
	})
	if tracked {
		e.restartPolling(jobID)
	}

	e.logger.Info("retry accepted", "job_id", jobID)
	return nil
}

// restartPolling replaces any handle for jobID with a fresh one.
func (e *Engine) restartPolling(jobID string) {
	e.sched.Stop(jobID)
	e.sched.Start(jobID)
}
