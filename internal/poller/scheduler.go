// Package poller owns one timer per actively tracked job.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/raphaelgruber/docwatch/internal/clock"
	"golang.org/x/time/rate"
)

// Default poll intervals.
const (
	DefaultForegroundInterval = 5 * time.Second
	DefaultBackgroundInterval = 30 * time.Second
	DefaultMaxBackoff         = 2 * time.Minute
)

// Cadence selects the global poll interval.
type Cadence int

const (
	Foreground Cadence = iota
	Background
)

// String returns the lower-case cadence name.
func (c Cadence) String() string {
	switch c {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("cadence(%d)", int(c))
	}
}

// ParseCadence parses "foreground"/"visible" or "background"/"hidden".
func ParseCadence(s string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "foreground", "visible":
		return Foreground, nil
	case "background", "hidden":
		return Background, nil
	default:
		return Foreground, fmt.Errorf("invalid cadence %q", s)
	}
}

// TickFunc checks one job. It is never invoked concurrently for the same job.
type TickFunc func(ctx context.Context, jobID string)

// Options configures a Scheduler.
type Options struct {
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
	// MaxBackoff caps the delay after consecutive failed ticks.
	MaxBackoff time.Duration
	// RateLimit bounds status checks per second across all jobs. Zero disables.
	RateLimit float64
	Logger    *slog.Logger
}

// Handle is a read-only view of one polling handle.
type Handle struct {
	JobID               string
	ConsecutiveFailures int
	LastCheckedAt       time.Time
	StartedAt           time.Time
}

type handle struct {
	jobID       string
	timer       clock.Timer
	failures    int
	lastChecked time.Time
	startedAt   time.Time
	retryDelay  time.Duration
	backoff     *backoff.ExponentialBackOff
	// deferred is set when the timer fired while an older handle's tick was still running.
	deferred bool
}

// Scheduler polls jobs on per-job one-shot timers that are re-armed after each tick completes.
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	tick    TickFunc
	handles map[string]*handle
	running map[string]bool
	cadence Cadence
	opts    Options
	limiter *rate.Limiter
	ctx     context.Context
	logger  *slog.Logger
}

// New creates a scheduler. Ticks run with ctx; cancelling it stops further status checks.
func New(ctx context.Context, clk clock.Clock, tick TickFunc, opts Options) *Scheduler {
	if opts.ForegroundInterval <= 0 {
		opts.ForegroundInterval = DefaultForegroundInterval
	}
	if opts.BackgroundInterval <= 0 {
		opts.BackgroundInterval = DefaultBackgroundInterval
	}
	if opts.BackgroundInterval < opts.ForegroundInterval {
		opts.BackgroundInterval = opts.ForegroundInterval
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		clock:   clk,
		tick:    tick,
		handles: make(map[string]*handle),
		running: make(map[string]bool),
		cadence: Foreground,
		opts:    opts,
		ctx:     ctx,
		logger:  logger,
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return s
}

// Interval returns the poll interval for a cadence.
func (s *Scheduler) Interval(c Cadence) time.Duration {
	if c == Background {
		return s.opts.BackgroundInterval
	}
	return s.opts.ForegroundInterval
}

// Cadence returns the current cadence.
func (s *Scheduler) Cadence() Cadence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// Start begins polling jobID. Returns false if a handle already exists.
func (s *Scheduler) Start(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[jobID]; ok {
		return false
	}
	s.startLocked(jobID)
	return true
}

func (s *Scheduler) startLocked(jobID string) {
	interval := s.Interval(s.cadence)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = s.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Clock = s.clock
	b.Reset()

	h := &handle{jobID: jobID, startedAt: s.clock.Now(), backoff: b}
	h.timer = s.clock.AfterFunc(interval, func() { s.fire(h) })
	s.handles[jobID] = h

	s.logger.Debug("polling started", "job_id", jobID, "interval", interval, "cadence", s.cadence.String())
}

// Stop cancels polling for jobID. Returns false if there was no handle.
func (s *Scheduler) Stop(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(jobID)
}

func (s *Scheduler) stopLocked(jobID string) bool {
	h, ok := s.handles[jobID]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(s.handles, jobID)
	s.logger.Debug("polling stopped", "job_id", jobID)
	return true
}

// StopAll cancels every handle and returns how many were active.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.handles)
	for id := range s.handles {
		s.stopLocked(id)
	}
	return n
}

// SetCadence switches the global cadence. When it changes, every active handle is
// recreated so its timer uses the new interval. Returns whether the mode changed.
func (s *Scheduler) SetCadence(c Cadence) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == s.cadence {
		return false
	}
	s.cadence = c

	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	for _, id := range ids {
		s.stopLocked(id)
		s.startLocked(id)
	}
	s.logger.Info("poll cadence changed", "cadence", c.String(), "handles", len(ids))
	return true
}

// IsPolling reports whether jobID has a handle.
func (s *Scheduler) IsPolling(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[jobID]
	return ok
}

// Len returns the number of active handles.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Active returns the polled job ids, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Handle returns a view of the handle for jobID.
func (s *Scheduler) Handle(jobID string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[jobID]
	if !ok {
		return Handle{}, false
	}
	return Handle{
		JobID:               h.jobID,
		ConsecutiveFailures: h.failures,
		LastCheckedAt:       h.lastChecked,
		StartedAt:           h.startedAt,
	}, true
}

// RecordSuccess resets the failure counter for jobID.
func (s *Scheduler) RecordSuccess(jobID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[jobID]
	if !ok {
		return
	}
	h.failures = 0
	h.lastChecked = at
	h.retryDelay = 0
	h.backoff.Reset()
}

// RecordFailure increments the failure counter for jobID and returns the new count.
// ok is false when the job has no handle.
func (s *Scheduler) RecordFailure(jobID string) (count int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[jobID]
	if !ok {
		return 0, false
	}
	h.failures++
	h.lastChecked = s.clock.Now()
	if d := h.backoff.NextBackOff(); d != backoff.Stop {
		h.retryDelay = d
	}
	return h.failures, true
}

// fire runs one tick for h and re-arms the live handle afterwards. Ticks for the
// same job never overlap, even across a recreated handle.
func (s *Scheduler) fire(h *handle) {
	s.mu.Lock()
	if s.handles[h.jobID] != h {
		s.mu.Unlock()
		return
	}
	if s.running[h.jobID] {
		// The tick in flight re-arms h when it finishes.
		h.deferred = true
		s.mu.Unlock()
		return
	}
	s.running[h.jobID] = true
	s.mu.Unlock()

	ran := s.run(h.jobID)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, h.jobID)
	if !ran {
		return
	}
	cur, ok := s.handles[h.jobID]
	if !ok {
		return
	}
	if cur != h && !cur.deferred {
		// Recreated while the tick was running; its own timer is still pending.
		return
	}
	cur.deferred = false
	cur.timer = s.clock.AfterFunc(s.nextDelayLocked(cur), func() { s.fire(cur) })
}

// run waits for the rate limiter and invokes the tick. It returns false when
// the scheduler context is done.
func (s *Scheduler) run(jobID string) bool {
	if s.limiter != nil {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return false
		}
	}
	if s.ctx.Err() != nil {
		return false
	}
	s.tick(s.ctx, jobID)
	return true
}

func (s *Scheduler) nextDelayLocked(h *handle) time.Duration {
	interval := s.Interval(s.cadence)
	if h.failures == 0 || h.retryDelay < interval {
		return interval
	}
	return h.retryDelay
}
