package engine

import (
	"context"

	"github.com/raphaelgruber/docwatch/internal/metrics"
)

// Delete stops polling jobID, deletes it on the server and removes it locally.
// An empty ownerID falls back to the record's owner, then to owner resolution.
// If the server call fails the record is kept and polling resumes for in-flight jobs.
func (e *Engine) Delete(ctx context.Context, jobID, ownerID string) error {
	if e.closed() {
		return ErrClosed
	}

	rec, tracked := e.store.Get(jobID)
	owner, err := e.resolveOwner(ownerID, rec.OwnerID)
	if err != nil {
		return err
	}

	e.sched.Stop(jobID)

	err = e.timed(metrics.OpDelete, func() error {
		return e.api.DeleteJob(ctx, jobID, owner)
	})
	if err != nil {
		if cur, ok := e.store.Get(jobID); ok && cur.Status.IsActive() && !cur.Stale {
			e.sched.Start(jobID)
		}
		e.logger.Error("delete failed", "job_id", jobID, "owner_id", owner, "error", err)
		return e.recordError(&TransportError{Op: "delete", JobID: jobID, Err: err})
	}

	e.store.Remove(jobID)
	e.logger.Info("job deleted", "job_id", jobID, "owner_id", owner, "tracked", tracked)
	return nil
}
