package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/clock"
	"github.com/raphaelgruber/docwatch/internal/engine"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/stretchr/testify/require"
)

var (
	epoch   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	errDown = errors.New("connection refused")
)

// fakeAPI is an in-memory ingestion API.
type fakeAPI struct {
	mu sync.Mutex

	nextID    int
	uploadErr error
	uploads   []string // owner per upload

	// statuses holds queued replies per job; the last reply repeats.
	statuses    map[string][]*client.StatusResponse
	statusErrs  map[string]error
	statusCalls map[string]int

	listResp *client.ListResponse
	listErr  error
	listReqs []client.ListRequest

	retryErr error
	retried  []string

	deleteErr error
	deleted   []string

	syncCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		statuses:    make(map[string][]*client.StatusResponse),
		statusErrs:  make(map[string]error),
		statusCalls: make(map[string]int),
	}
}

func (f *fakeAPI) UploadAsync(_ context.Context, file client.File, botID string, onProgress client.ProgressFunc) (*client.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if file.Content != nil {
		_, _ = io.Copy(io.Discard, file.Content)
	}
	if onProgress != nil {
		onProgress(100)
	}
	f.nextID++
	f.uploads = append(f.uploads, botID)
	return &client.UploadResponse{JobID: fmt.Sprintf("job-%d", f.nextID), Status: "queued"}, nil
}

func (f *fakeAPI) UploadSync(_ context.Context, _ client.File, _ string) (*client.SyncUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return &client.SyncUploadResponse{DocumentID: "doc-sync", ChunkCount: 3, ProcessingTime: 1.5}, nil
}

func (f *fakeAPI) GetJobStatus(_ context.Context, jobID string) (*client.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls[jobID]++
	if err := f.statusErrs[jobID]; err != nil {
		return nil, err
	}
	replies := f.statuses[jobID]
	if len(replies) == 0 {
		return &client.StatusResponse{DocumentID: jobID, Status: "queued"}, nil
	}
	r := replies[0]
	if len(replies) > 1 {
		f.statuses[jobID] = replies[1:]
	}
	return r, nil
}

func (f *fakeAPI) ListJobs(_ context.Context, req client.ListRequest) (*client.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listReqs = append(f.listReqs, req)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listResp == nil {
		return &client.ListResponse{Limit: req.Limit, Offset: req.Offset}, nil
	}
	return f.listResp, nil
}

func (f *fakeAPI) RetryJob(_ context.Context, jobID string) (*client.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	f.retried = append(f.retried, jobID)
	return &client.UploadResponse{JobID: jobID, Status: "queued"}, nil
}

func (f *fakeAPI) DeleteJob(_ context.Context, jobID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, jobID)
	return nil
}

func (f *fakeAPI) GetBatchStatus(ctx context.Context, jobIDs []string, _ int) ([]client.BatchResult, error) {
	out := make([]client.BatchResult, 0, len(jobIDs))
	for _, id := range jobIDs {
		st, err := f.GetJobStatus(ctx, id)
		out = append(out, client.BatchResult{JobID: id, Status: st, Err: err})
	}
	return out, nil
}

// reply queues status responses for jobID.
func (f *fakeAPI) reply(jobID string, rs ...*client.StatusResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = append(f.statuses[jobID], rs...)
}

func (f *fakeAPI) failStatus(jobID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusErrs[jobID] = err
}

func (f *fakeAPI) calls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[jobID]
}

func (f *fakeAPI) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.uploads) + len(f.listReqs) + len(f.retried) + len(f.deleted) + f.syncCalls
	for _, c := range f.statusCalls {
		n += c
	}
	return n
}

type harness struct {
	engine  *engine.Engine
	api     *fakeAPI
	clock   *clock.Fake
	metrics *metrics.Collector
}

func newHarness(t *testing.T, mutate ...func(*engine.Options)) *harness {
	t.Helper()
	api := newFakeAPI()
	clk := clock.NewFake(epoch)
	col := metrics.NewCollector()
	opts := engine.Options{
		API:                api,
		Clock:              clk,
		Owners:             engine.StaticOwners{Selected: "bot-1", Known: []string{"bot-1", "bot-2"}},
		Metrics:            col,
		ForegroundInterval: 5 * time.Second,
		BackgroundInterval: 30 * time.Second,
		MaxBackoff:         time.Minute,
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := engine.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return &harness{engine: e, api: api, clock: clk, metrics: col}
}

func status(id, st string) *client.StatusResponse {
	return &client.StatusResponse{DocumentID: id, Status: st}
}

// assertHandleInvariant checks that exactly the non-stale in-flight jobs are polled.
func assertHandleInvariant(t *testing.T, h *harness) {
	t.Helper()
	for _, rec := range h.engine.Store().ListAll() {
		if rec.Stale {
			require.False(t, h.engine.IsPolling(rec.JobID), "stale job %s must not be polled", rec.JobID)
			continue
		}
		require.Equal(t, rec.Status.IsActive(), h.engine.IsPolling(rec.JobID),
			"job %s in %s: polling must match in-flight state", rec.JobID, rec.Status)
	}
}

func seed(h *harness, recs ...models.JobRecord) {
	h.engine.Store().UpsertMany(recs)
}
