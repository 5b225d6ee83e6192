package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/raphaelgruber/docwatch/internal/store"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobRow is a tracked_job row as returned by SurrealDB.
type jobRow struct {
	ID               surrealmodels.RecordID `json:"id"`
	OwnerID          string                 `json:"owner_id"`
	OriginalFilename string                 `json:"original_filename"`
	FileExtension    string                 `json:"file_extension"`
	MimeType         string                 `json:"mime_type"`
	FileSizeBytes    int64                  `json:"file_size_bytes"`
	Status           string                 `json:"status"`
	RetryCount       int                    `json:"retry_count"`
	ErrorMessage     *string                `json:"error_message,omitempty"`
	ChunkCount       *int                   `json:"chunk_count,omitempty"`
	ProcessingTimeMs *int64                 `json:"processing_time_ms,omitempty"`
	ProgressPercent  *float64               `json:"progress_percent,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        *time.Time             `json:"updated_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	Stale            bool                   `json:"stale"`
	LastPollError    *string                `json:"last_poll_error,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
}

func (r jobRow) record() (models.JobRecord, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.JobRecord{}, err
	}
	rec := models.JobRecord{
		JobID:            id,
		OwnerID:          r.OwnerID,
		OriginalFilename: r.OriginalFilename,
		FileExtension:    r.FileExtension,
		MimeType:         r.MimeType,
		FileSizeBytes:    r.FileSizeBytes,
		Status:           models.NormalizeStatus(r.Status),
		RetryCount:       r.RetryCount,
		ErrorMessage:     r.ErrorMessage,
		ChunkCount:       r.ChunkCount,
		ProcessingTimeMs: r.ProcessingTimeMs,
		ProgressPercent:  r.ProgressPercent,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		CompletedAt:      r.CompletedAt,
		Stale:            r.Stale,
		Metadata:         r.Metadata,
	}
	if r.LastPollError != nil {
		rec.LastPollError = *r.LastPollError
	}
	return rec, nil
}

// UpsertJob writes the full record for one job.
func (c *Client) UpsertJob(ctx context.Context, rec models.JobRecord) error {
	if rec.JobID == "" {
		return fmt.Errorf("upsert job: missing job id")
	}

	var lastPollError *string
	if rec.LastPollError != "" {
		lastPollError = &rec.LastPollError
	}

	sql := `
		UPSERT type::record("tracked_job", $id) SET
			owner_id = $owner_id,
			original_filename = $original_filename,
			file_extension = $file_extension,
			mime_type = $mime_type,
			file_size_bytes = $file_size_bytes,
			status = $status,
			retry_count = $retry_count,
			error_message = $error_message,
			chunk_count = $chunk_count,
			processing_time_ms = $processing_time_ms,
			progress_percent = $progress_percent,
			created_at = $created_at,
			updated_at = $updated_at,
			completed_at = $completed_at,
			stale = $stale,
			last_poll_error = $last_poll_error,
			metadata = $metadata,
			synced_at = time::now()
		RETURN NONE
	`

	var metadata map[string]any
	if len(rec.Metadata) > 0 {
		metadata = rec.Metadata
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":                 rec.JobID,
		"owner_id":           rec.OwnerID,
		"original_filename":  rec.OriginalFilename,
		"file_extension":     rec.FileExtension,
		"mime_type":          rec.MimeType,
		"file_size_bytes":    rec.FileSizeBytes,
		"status":             string(rec.Status),
		"retry_count":        rec.RetryCount,
		"error_message":      rec.ErrorMessage,
		"chunk_count":        rec.ChunkCount,
		"processing_time_ms": rec.ProcessingTimeMs,
		"progress_percent":   rec.ProgressPercent,
		"created_at":         rec.CreatedAt,
		"updated_at":         rec.UpdatedAt,
		"completed_at":       rec.CompletedAt,
		"stale":              rec.Stale,
		"last_poll_error":    lastPollError,
		"metadata":           metadata,
	})
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", rec.JobID, wrapQueryError(err))
	}
	return nil
}

// DeleteJob removes the row for jobID. Returns ErrNotFound if it was absent.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	sql := `DELETE type::record("tracked_job", $id) RETURN BEFORE`
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, sql, map[string]any{"id": jobID})
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("delete job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// GetJob loads one job by ID.
func (c *Client) GetJob(ctx context.Context, jobID string) (models.JobRecord, error) {
	sql := `SELECT * FROM type::record("tracked_job", $id)`
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, sql, map[string]any{"id": jobID})
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("get job %s: %w", jobID, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.JobRecord{}, fmt.Errorf("get job %s: %w", jobID, ErrNotFound)
	}
	return (*results)[0].Result[0].record()
}

// LoadJobs returns every mirrored job, newest first.
func (c *Client) LoadJobs(ctx context.Context) ([]models.JobRecord, error) {
	sql := `SELECT * FROM tracked_job ORDER BY created_at DESC`
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	rows := (*results)[0].Result
	out := make([]models.JobRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			c.log.Warn("skipping job row", "id", row.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// jobWriter is the write side used by the mirror loop.
type jobWriter interface {
	UpsertJob(ctx context.Context, rec models.JobRecord) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Mirror persists every store snapshot received on snapshots until the
// channel closes or ctx is cancelled. Only rows that changed are written.
func (c *Client) Mirror(ctx context.Context, snapshots <-chan store.Snapshot) error {
	return mirror(ctx, c, snapshots, c.log)
}

func mirror(ctx context.Context, w jobWriter, snapshots <-chan store.Snapshot, log *slog.Logger) error {
	prev := map[string]models.JobRecord{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			jobs := snap.Jobs()
			upserts, deletes := diffSnapshot(prev, jobs)

			next := make(map[string]models.JobRecord, len(jobs))
			for _, rec := range jobs {
				next[rec.JobID] = rec
			}

			for _, rec := range upserts {
				if err := w.UpsertJob(ctx, rec); err != nil {
					log.Warn("mirror upsert failed", "job_id", rec.JobID, "error", err)
					// Retry on the next snapshot.
					delete(next, rec.JobID)
				}
			}
			for _, id := range deletes {
				if err := w.DeleteJob(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
					log.Warn("mirror delete failed", "job_id", id, "error", err)
					next[id] = prev[id]
				}
			}
			prev = next
			log.Debug("mirrored snapshot", "version", snap.Version, "upserts", len(upserts), "deletes", len(deletes))
		}
	}
}

// diffSnapshot returns the records that are new or changed relative to prev
// and the IDs that disappeared.
func diffSnapshot(prev map[string]models.JobRecord, jobs []models.JobRecord) ([]models.JobRecord, []string) {
	var upserts []models.JobRecord
	seen := make(map[string]struct{}, len(jobs))
	for _, rec := range jobs {
		seen[rec.JobID] = struct{}{}
		old, ok := prev[rec.JobID]
		if !ok || !reflect.DeepEqual(old, rec) {
			upserts = append(upserts, rec)
		}
	}

	var deletes []string
	for id := range prev {
		if _, ok := seen[id]; !ok {
			deletes = append(deletes, id)
		}
	}
	slices.Sort(deletes)
	return upserts, deletes
}
