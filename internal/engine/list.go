package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
)

// Sort fields accepted by the list endpoint.
var (
	SortFields = []string{"created_at", "updated_at", "filename"}
	SortOrders = []string{"asc", "desc"}
)

// ListRequest selects a page of jobs. An empty Owner is resolved like uploads,
// preferring the engine's current owner filter.
type ListRequest struct {
	Owner     string
	Status    models.Status
	Search    string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// ListResult is one reconciled page.
type ListResult struct {
	Jobs   []models.JobRecord
	Total  int
	Limit  int
	Offset int
}

// FetchJobs fetches a page of jobs, merges it into the store and starts polling every
// in-flight job on the page. Jobs not on the page are kept.
func (e *Engine) FetchJobs(ctx context.Context, req ListRequest) (ListResult, error) {
	if e.closed() {
		return ListResult{}, ErrClosed
	}
	if err := validateSort(req.SortBy, req.SortOrder); err != nil {
		return ListResult{}, err
	}

	e.mu.Lock()
	filterOwner := e.filters.Owner
	e.mu.Unlock()

	owner, err := e.resolveOwner(req.Owner, filterOwner)
	if err != nil {
		return ListResult{}, err
	}
	if req.Limit <= 0 {
		req.Limit = e.defaultLimit
	}

	var resp *client.ListResponse
	err = e.timed(metrics.OpList, func() error {
		var err error
		resp, err = e.api.ListJobs(ctx, client.ListRequest{
			BotID:     owner,
			Status:    string(req.Status),
			Search:    req.Search,
			Limit:     req.Limit,
			Offset:    req.Offset,
			SortBy:    req.SortBy,
			SortOrder: req.SortOrder,
		})
		return err
	})
	if err != nil {
		e.logger.Error("list jobs failed", "owner_id", owner, "error", err)
		return ListResult{}, e.recordError(&TransportError{Op: "list", Err: err})
	}

	incoming := make([]models.JobRecord, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		incoming = append(incoming, e.fromDocument(d, owner))
	}
	e.store.Merge(incoming, mergeListed)

	e.mu.Lock()
	e.page.Total = resp.Total
	e.page.Limit = req.Limit
	e.page.Offset = req.Offset
	e.mu.Unlock()

	// Reload merged records so polling decisions use the post-merge state.
	snap := e.store.Snapshot()
	jobs := make([]models.JobRecord, 0, len(incoming))
	started := 0
	for _, in := range incoming {
		rec, ok := snap.Get(in.JobID)
		if !ok {
			continue
		}
		jobs = append(jobs, rec)
		switch {
		case rec.Status.IsActive():
			if e.sched.Start(rec.JobID) {
				started++
			}
		case rec.Status.IsTerminal():
			e.sched.Stop(rec.JobID)
		}
	}

	e.logger.Debug("jobs fetched", "owner_id", owner, "count", len(jobs), "total", resp.Total, "polling_started", started)
	return ListResult{Jobs: jobs, Total: resp.Total, Limit: req.Limit, Offset: req.Offset}, nil
}

// fromDocument converts a list entry into a record.
func (e *Engine) fromDocument(d client.Document, owner string) models.JobRecord {
	rec := models.JobRecord{
		JobID:            d.DocumentID,
		OwnerID:          d.BotID,
		OriginalFilename: d.OriginalFilename,
		FileExtension:    strings.ToLower(d.FileExtension),
		MimeType:         d.MimeType,
		FileSizeBytes:    d.FileSize,
		Status:           e.normalize(d.Status),
		RetryCount:       d.RetryCount,
		ErrorMessage:     d.ErrorMessage,
		ChunkCount:       d.ChunkCount,
		ProcessingTimeMs: client.SecondsToMillis(d.ProcessingTime),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		CompletedAt:      d.CompletedAt,
		Metadata:         d.Metadata,
	}
	if d.ProgressPercent != nil {
		rec.ProgressPercent = models.Ptr(models.ClampPercent(*d.ProgressPercent))
	}
	if rec.OwnerID == "" {
		rec.OwnerID = owner
	}
	if rec.FileExtension == "" {
		rec.FileExtension = fileExtension(rec.OriginalFilename)
	}
	if rec.Status != models.StatusFailed {
		rec.ErrorMessage = nil
	}
	return rec
}

// mergeListed combines a listed record with what is already known locally.
func mergeListed(existing *models.JobRecord, in models.JobRecord) models.JobRecord {
	if existing == nil {
		return in
	}
	out := in
	out.Status = models.Advance(existing.Status, in.Status)
	if out.Status != in.Status {
		// Keep the local view when the list lags behind polling.
		out.ErrorMessage = existing.ErrorMessage
		out.CompletedAt = existing.CompletedAt
	}
	if out.ProgressPercent == nil {
		out.ProgressPercent = existing.ProgressPercent
	}
	if out.ChunkCount == nil {
		out.ChunkCount = existing.ChunkCount
	}
	if out.ProcessingTimeMs == nil {
		out.ProcessingTimeMs = existing.ProcessingTimeMs
	}
	if out.RetryCount < existing.RetryCount {
		out.RetryCount = existing.RetryCount
	}
	if out.OriginalFilename == "" {
		out.OriginalFilename = existing.OriginalFilename
		out.FileExtension = existing.FileExtension
	}
	if out.MimeType == "" {
		out.MimeType = existing.MimeType
	}
	if out.FileSizeBytes == 0 {
		out.FileSizeBytes = existing.FileSizeBytes
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = existing.CreatedAt
	}
	if out.Metadata == nil {
		out.Metadata = existing.Metadata
	}
	out.Stale = false
	out.LastPollError = ""
	return out
}

// Filters returns the current list filters.
func (e *Engine) Filters() Filters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filters
}

// Pagination returns the current list window.
func (e *Engine) Pagination() Pagination {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

// SetFilters replaces the list filters, resets the offset and fetches the first page.
func (e *Engine) SetFilters(ctx context.Context, f Filters) (ListResult, error) {
	e.mu.Lock()
	e.filters = f
	e.page.Offset = 0
	req := e.currentRequestLocked()
	e.mu.Unlock()
	return e.FetchJobs(ctx, req)
}

// SetPagination moves the list window and fetches it. A non-positive limit keeps the current one.
func (e *Engine) SetPagination(ctx context.Context, limit, offset int) (ListResult, error) {
	if offset < 0 {
		return ListResult{}, fmt.Errorf("invalid offset %d", offset)
	}
	e.mu.Lock()
	if limit > 0 {
		e.page.Limit = limit
	}
	e.page.Offset = offset
	req := e.currentRequestLocked()
	e.mu.Unlock()
	return e.FetchJobs(ctx, req)
}

// ResetFilters clears filters and pagination and fetches the first page.
func (e *Engine) ResetFilters(ctx context.Context) (ListResult, error) {
	e.mu.Lock()
	e.filters = Filters{}
	e.page = Pagination{Limit: e.defaultLimit}
	req := e.currentRequestLocked()
	e.mu.Unlock()
	return e.FetchJobs(ctx, req)
}

// Refresh fetches the page selected by the current filters and pagination.
func (e *Engine) Refresh(ctx context.Context) (ListResult, error) {
	e.mu.Lock()
	req := e.currentRequestLocked()
	e.mu.Unlock()
	return e.FetchJobs(ctx, req)
}

func (e *Engine) currentRequestLocked() ListRequest {
	return ListRequest{
		Owner:  e.filters.Owner,
		Status: e.filters.Status,
		Search: e.filters.Search,
		Limit:  e.page.Limit,
		Offset: e.page.Offset,
	}
}

func validateSort(by, order string) error {
	if by != "" && !slices.Contains(SortFields, by) {
		return fmt.Errorf("invalid sort field %q", by)
	}
	if order != "" && !slices.Contains(SortOrders, order) {
		return fmt.Errorf("invalid sort order %q", order)
	}
	return nil
}
