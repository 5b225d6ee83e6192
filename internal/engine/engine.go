// Package engine tracks asynchronously processed ingestion jobs.
//
// The engine submits uploads, keeps one poll handle per in-flight job, reconciles
// server-reported status into the local store, and merges list results without
// losing local knowledge. All state lives in a store.Store; readers subscribe to
// its snapshots.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/clock"
	"github.com/raphaelgruber/docwatch/internal/metrics"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/raphaelgruber/docwatch/internal/poller"
	"github.com/raphaelgruber/docwatch/internal/store"
)

// Defaults applied by New.
const (
	DefaultMaxPollFailures = 3
	DefaultListLimit       = 50
)

// API is the subset of the ingestion API the engine uses. *client.Client implements it.
type API interface {
	UploadAsync(ctx context.Context, file client.File, botID string, onProgress client.ProgressFunc) (*client.UploadResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*client.StatusResponse, error)
	ListJobs(ctx context.Context, req client.ListRequest) (*client.ListResponse, error)
	RetryJob(ctx context.Context, jobID string) (*client.UploadResponse, error)
	DeleteJob(ctx context.Context, jobID, botID string) error
	GetBatchStatus(ctx context.Context, jobIDs []string, concurrency int) ([]client.BatchResult, error)
}

// SyncUploader is the legacy blocking upload path.
type SyncUploader interface {
	UploadSync(ctx context.Context, file client.File, botID string) (*client.SyncUploadResponse, error)
}

// Metrics receives operation timings and counters. *metrics.Collector implements it.
type Metrics interface {
	RecordTiming(op string, d time.Duration, err error)
	Inc(counter string)
}

type noopMetrics struct{}

func (noopMetrics) RecordTiming(string, time.Duration, error) {}
func (noopMetrics) Inc(string)                                {}

// Options configures an Engine. API is required.
type Options struct {
	API API
	// Sync handles uploads while async upload is disabled. Defaults to API if it implements SyncUploader.
	Sync   SyncUploader
	Store  *store.Store
	Clock  clock.Clock
	Owners OwnerSource
	// AsyncEnabled is consulted on every Submit. Nil means always enabled.
	AsyncEnabled func() bool
	Metrics      Metrics
	Logger       *slog.Logger

	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
	MaxBackoff         time.Duration
	PollRateLimit      float64
	MaxPollFailures    int
	ListLimit          int
	BatchConcurrency   int
}

// Filters narrow list fetches.
type Filters struct {
	Owner  string        `json:"owner,omitempty"`
	Status models.Status `json:"status,omitempty"`
	Search string        `json:"search,omitempty"`
}

// Pagination is the list window plus the last reported total.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// Engine orchestrates uploads, polling and reconciliation.
type Engine struct {
	api          API
	sync         SyncUploader
	store        *store.Store
	sched        *poller.Scheduler
	clock        clock.Clock
	owners       OwnerSource
	asyncEnabled func() bool
	metrics      Metrics
	logger       *slog.Logger

	maxFailures      int
	defaultLimit     int
	batchConcurrency int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	filters Filters
	page    Pagination
	lastErr error

	shutdownOnce sync.Once
}

// New creates an engine. Close must be called to release its timers.
func New(opts Options) (*Engine, error) {
	if opts.API == nil {
		return nil, errors.New("engine: API is required")
	}
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sync == nil {
		if s, ok := opts.API.(SyncUploader); ok {
			opts.Sync = s
		}
	}
	if opts.AsyncEnabled == nil {
		opts.AsyncEnabled = func() bool { return true }
	}
	if opts.MaxPollFailures <= 0 {
		opts.MaxPollFailures = DefaultMaxPollFailures
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultListLimit
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = client.DefaultBatchConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		api:              opts.API,
		sync:             opts.Sync,
		store:            opts.Store,
		clock:            opts.Clock,
		owners:           opts.Owners,
		asyncEnabled:     opts.AsyncEnabled,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		maxFailures:      opts.MaxPollFailures,
		defaultLimit:     opts.ListLimit,
		batchConcurrency: opts.BatchConcurrency,
		ctx:              ctx,
		cancel:           cancel,
		page:             Pagination{Limit: opts.ListLimit},
	}
	e.sched = poller.New(ctx, opts.Clock, e.tick, poller.Options{
		ForegroundInterval: opts.ForegroundInterval,
		BackgroundInterval: opts.BackgroundInterval,
		MaxBackoff:         opts.MaxBackoff,
		RateLimit:          opts.PollRateLimit,
		Logger:             opts.Logger,
	})
	return e, nil
}

// Store returns the engine's job store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Polling returns the ids of jobs with an active poll handle, sorted.
func (e *Engine) Polling() []string {
	return e.sched.Active()
}

// IsPolling reports whether jobID has an active poll handle.
func (e *Engine) IsPolling(jobID string) bool {
	return e.sched.IsPolling(jobID)
}

// PollHandle returns the poll handle view for jobID.
func (e *Engine) PollHandle(jobID string) (poller.Handle, bool) {
	return e.sched.Handle(jobID)
}

// Cadence returns the current poll cadence.
func (e *Engine) Cadence() poller.Cadence {
	return e.sched.Cadence()
}

// LastError returns the most recent transport error from a user-initiated operation.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ClearError resets LastError.
func (e *Engine) ClearError() {
	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
}

func (e *Engine) recordError(err error) error {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
	return err
}

// Close stops all polling and cancels in-flight requests made by poll ticks.
func (e *Engine) Close() error {
	e.OnShutdown()
	e.cancel()
	return nil
}

func (e *Engine) closed() bool {
	return e.ctx.Err() != nil
}

// timed runs fn and records its duration under op.
func (e *Engine) timed(op string, fn func() error) error {
	start := e.clock.Now()
	err := fn()
	e.metrics.RecordTiming(op, e.clock.Now().Sub(start), err)
	return err
}

// normalize maps a wire status to a canonical one and counts unknown tokens.
func (e *Engine) normalize(raw string) models.Status {
	if !models.IsKnownStatus(raw) {
		e.metrics.Inc(metrics.CounterUnknownStatus)
	}
	return models.NormalizeStatus(raw)
}
