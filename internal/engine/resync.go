package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
)

// Resync periodically re-fetches the current list page so missed updates heal.
type Resync struct {
	engine   *Engine
	sched    *gocron.Scheduler
	interval time.Duration
	timeout  time.Duration
}

// NewResync schedules a list refresh every interval. The first run happens after one interval.
func NewResync(e *Engine, interval time.Duration) (*Resync, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("resync interval must be positive, got %s", interval)
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	r := &Resync{engine: e, sched: s, interval: interval, timeout: interval}
	if _, err := s.Every(interval).WaitForSchedule().Do(r.run); err != nil {
		return nil, fmt.Errorf("schedule resync: %w", err)
	}
	return r, nil
}

// Start begins the schedule in the background.
func (r *Resync) Start() {
	r.engine.logger.Info("resync scheduled", "interval", r.interval)
	r.sched.StartAsync()
}

// Stop halts the schedule.
func (r *Resync) Stop() {
	r.sched.Stop()
}

// RunNow performs one resync synchronously.
func (r *Resync) RunNow() {
	r.run()
}

func (r *Resync) run() {
	if r.engine.closed() {
		return
	}
	ctx, cancel := context.WithTimeout(r.engine.ctx, r.timeout)
	defer cancel()

	res, err := r.engine.Refresh(ctx)
	if err != nil {
		r.engine.logger.Warn("resync failed", "error", err)
		return
	}
	r.engine.logger.Debug("resync done", "jobs", len(res.Jobs), "total", res.Total)
}
