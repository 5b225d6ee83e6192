package engine

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// UploadOptions tunes a single upload.
type UploadOptions struct {
	// OwnerID overrides owner resolution.
	OwnerID string
	// OnProgress receives client-side transfer progress (0-100).
	OnProgress client.ProgressFunc
}

// Upload submits file for asynchronous processing, tracks it as queued and starts polling it.
func (e *Engine) Upload(ctx context.Context, file client.File, opts UploadOptions) (string, error) {
	if e.closed() {
		return "", ErrClosed
	}
	owner, err := e.resolveOwner(opts.OwnerID)
	if err != nil {
		return "", err
	}

	if file.MimeType == "" {
		file.MimeType = detectMime(file.Name)
	}

	var resp *client.UploadResponse
	err = e.timed(metrics.OpUpload, func() error {
		var err error
		resp, err = e.api.UploadAsync(ctx, file, owner, opts.OnProgress)
		return err
	})
	if err != nil {
		e.logger.Error("upload failed", "filename", file.Name, "owner_id", owner, "error", err)
		return "", e.recordError(&TransportError{Op: "upload", Err: err})
	}

	now := e.clock.Now()
	e.store.Upsert(models.JobRecord{
		JobID:            resp.JobID,
		OwnerID:          owner,
		OriginalFilename: file.Name,
		FileExtension:    fileExtension(file.Name),
		MimeType:         file.MimeType,
		FileSizeBytes:    file.Size,
		Status:           models.StatusQueued,
		CreatedAt:        now,
	})
	e.sched.Start(resp.JobID)

	e.logger.Info("upload accepted", "job_id", resp.JobID, "filename", file.Name, "owner_id", owner)
	return resp.JobID, nil
}

// SubmitResult describes the outcome of Submit.
type SubmitResult struct {
	// Async is true when the job was queued and is being tracked.
	Async bool
	JobID string

	// Set only for the legacy blocking path.
	DocumentID       string
	ChunkCount       int
	ProcessingTimeMs int64
}

// Submit uploads file through the async path or, when async upload is switched off,
// the legacy blocking path. The switch is read on every call.
func (e *Engine) Submit(ctx context.Context, file client.File, opts UploadOptions) (SubmitResult, error) {
	if e.asyncEnabled() {
		id, err := e.Upload(ctx, file, opts)
		if err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Async: true, JobID: id}, nil
	}

	if e.sync == nil {
		return SubmitResult{}, errors.New("async upload disabled and no sync uploader configured")
	}
	owner, err := e.resolveOwner(opts.OwnerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if file.MimeType == "" {
		file.MimeType = detectMime(file.Name)
	}

	var resp *client.SyncUploadResponse
	err = e.timed(metrics.OpUpload, func() error {
		var err error
		resp, err = e.sync.UploadSync(ctx, file, owner)
		return err
	})
	if err != nil {
		return SubmitResult{}, e.recordError(&TransportError{Op: "upload", Err: err})
	}

	e.logger.Info("sync upload finished", "document_id", resp.DocumentID, "chunks", resp.ChunkCount)
	return SubmitResult{
		DocumentID:       resp.DocumentID,
		ChunkCount:       resp.ChunkCount,
		ProcessingTimeMs: int64(resp.ProcessingTime * 1000),
	}, nil
}

func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func detectMime(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		// Drop parameters such as "; charset=utf-8".
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}
