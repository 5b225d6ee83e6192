package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds parallel requests in GetBatchStatus.
const DefaultBatchConcurrency = 8

// GetJobStatus fetches the current status of one job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.getJSON(ctx, "/documents/"+url.PathEscape(jobID)+"/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get status %s: %w", jobID, err)
	}
	if err := resp.validate(); err != nil {
		return nil, fmt.Errorf("get status %s: %w", jobID, err)
	}
	return &resp, nil
}

// ListJobs fetches one page of jobs.
func (c *Client) ListJobs(ctx context.Context, req ListRequest) (*ListResponse, error) {
	q := url.Values{}
	setIf := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	setIf("bot_id", req.BotID)
	setIf("status", req.Status)
	setIf("search", req.Search)
	setIf("sort_by", req.SortBy)
	setIf("sort_order", req.SortOrder)
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	var resp ListResponse
	if err := c.getJSON(ctx, "/documents", q, &resp); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if err := resp.validate(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return &resp, nil
}

// RetryJob asks the server to reprocess a failed job.
func (c *Client) RetryJob(ctx context.Context, jobID string) (*UploadResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/documents/"+url.PathEscape(jobID)+"/retry", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("retry %s: %w", jobID, err)
	}
	// Some servers answer retry with an empty body; the id is known.
	if resp.JobID == "" {
		resp.JobID = jobID
	}
	return &resp, nil
}

// DeleteJob removes a job and its document.
func (c *Client) DeleteJob(ctx context.Context, jobID, botID string) error {
	var q url.Values
	if botID != "" {
		q = url.Values{"bot_id": {botID}}
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/documents/"+url.PathEscape(jobID), q, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete %s: %w", jobID, err)
	}
	return nil
}

// BatchResult pairs a job id with its status or the error fetching it.
type BatchResult struct {
	JobID  string
	Status *StatusResponse
	Err    error
}

// GetBatchStatus fetches the status of several jobs concurrently.
// Per-job failures are reported in the results; the returned error is only set when ctx is done.
func (c *Client) GetBatchStatus(ctx context.Context, jobIDs []string, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	results := make([]BatchResult, len(jobIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range jobIDs {
		g.Go(func() error {
			st, err := c.GetJobStatus(gctx, id)
			results[i] = BatchResult{JobID: id, Status: st, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch status: %w", err)
	}
	return results, nil
}
