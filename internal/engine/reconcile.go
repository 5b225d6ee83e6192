package engine

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// tick is the scheduler callback for one job.
func (e *Engine) tick(ctx context.Context, jobID string) {
	_ = e.CheckStatus(ctx, jobID)
}

// CheckStatus fetches the server status of jobID and merges it into the store.
// It does nothing unless the job is being polled. Polling stops once the job
// reaches a terminal state, or after too many consecutive failures.
func (e *Engine) CheckStatus(ctx context.Context, jobID string) error {
	if !e.sched.IsPolling(jobID) {
		return nil
	}

	var st *client.StatusResponse
	err := e.timed(metrics.OpStatusCheck, func() error {
		var err error
		st, err = e.api.GetJobStatus(ctx, jobID)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a server failure.
			return ctx.Err()
		}
		return e.pollFailed(jobID, err)
	}

	e.applyStatus(jobID, st)
	return nil
}

// applyStatus merges a status response into the latest record and updates the handle.
func (e *Engine) applyStatus(jobID string, st *client.StatusResponse) (models.JobRecord, bool) {
	status := e.normalize(st.Status)
	now := e.clock.Now()

	rec, ok := e.store.Update(jobID, func(r models.JobRecord) models.JobRecord {
		return mergeStatus(r, st, status, now)
	})
	e.sched.RecordSuccess(jobID, now)

	if !ok {
		// Not tracked locally; still stop once the server reports an end state.
		if status.IsTerminal() {
			e.sched.Stop(jobID)
		}
		return rec, false
	}
	if rec.Status.IsTerminal() {
		e.sched.Stop(jobID)
		if rec.Status == models.StatusDone {
			e.metrics.Inc(metrics.CounterJobsCompleted)
			e.logger.Info("job completed", "job_id", jobID, "chunks", deref(rec.ChunkCount))
		} else {
			e.metrics.Inc(metrics.CounterJobsFailed)
			e.logger.Warn("job failed", "job_id", jobID, "error", deref(rec.ErrorMessage))
		}
	}
	return rec, true
}

// pollFailed counts a failed check and gives up once the limit is reached.
func (e *Engine) pollFailed(jobID string, err error) error {
	count, ok := e.sched.RecordFailure(jobID)
	if !ok {
		return err
	}
	e.metrics.Inc(metrics.CounterPollFailure)

	if count < e.maxFailures {
		e.logger.Debug("status check failed", "job_id", jobID, "failures", count, "error", err)
		return err
	}

	e.sched.Stop(jobID)
	e.store.Update(jobID, func(r models.JobRecord) models.JobRecord {
		r.Stale = true
		r.LastPollError = err.Error()
		return r
	})
	e.metrics.Inc(metrics.CounterPollExhausted)
	e.logger.Error("polling gave up, job marked stale", "job_id", jobID, "failures", count, "error", err)
	return errors.Join(err, errPollExhausted)
}

var errPollExhausted = errors.New("poll attempts exhausted")

// mergeStatus applies server-reported fields over the local record.
// Fields the server omits keep their local value.
func mergeStatus(r models.JobRecord, st *client.StatusResponse, status models.Status, now time.Time) models.JobRecord {
	r.Status = models.Advance(r.Status, status)

	if r.Status == models.StatusFailed {
		if st.ErrorMessage != nil {
			r.ErrorMessage = models.Ptr(*st.ErrorMessage)
		}
	} else {
		r.ErrorMessage = nil
	}
	if st.ChunkCount != nil {
		r.ChunkCount = models.Ptr(*st.ChunkCount)
	}
	if ms := client.SecondsToMillis(st.ProcessingTime); ms != nil {
		r.ProcessingTimeMs = ms
	}
	if st.ProgressPercent != nil {
		r.ProgressPercent = models.Ptr(models.ClampPercent(*st.ProgressPercent))
	}
	if r.OriginalFilename == "" && st.Filename != "" {
		r.OriginalFilename = st.Filename
		r.FileExtension = fileExtension(st.Filename)
	}
	if st.UpdatedAt != nil {
		r.UpdatedAt = models.Ptr(*st.UpdatedAt)
	} else {
		r.UpdatedAt = models.Ptr(now)
	}
	if st.CompletedAt != nil {
		r.CompletedAt = models.Ptr(*st.CompletedAt)
	}

	r.Stale = false
	r.LastPollError = ""
	return r
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
