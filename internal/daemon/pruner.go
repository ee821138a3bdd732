// Package daemon runs background housekeeping next to the capture loop.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner is the slice of the journal the pruner needs.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PrunerConfig configures the journal retention job.
type PrunerConfig struct {
	Retention time.Duration // rows older than this are deleted
	Schedule  string        // standard cron spec, e.g. "@hourly"
	Store     Pruner
	Logger    *slog.Logger
	Now       func() time.Time
}

// Retention deletes old journal rows on a cron schedule.
type Retention struct {
	cfg   PrunerConfig
	sched *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewRetention validates the schedule. It does not start anything.
func NewRetention(cfg PrunerConfig) (*Retention, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("retention: no store")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention: must be positive, got %s", cfg.Retention)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := &Retention{cfg: cfg, sched: cron.New()}
	if _, err := r.sched.AddFunc(cfg.Schedule, r.tick); err != nil {
		return nil, fmt.Errorf("retention: invalid schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Run prunes once, then on every scheduled tick until ctx is done.
func (r *Retention) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	r.PruneNow(ctx)
	r.sched.Start()
	<-ctx.Done()
	<-r.sched.Stop().Done()

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// PruneNow deletes everything older than the retention window.
func (r *Retention) PruneNow(ctx context.Context) int64 {
	cutoff := r.cfg.Now().Add(-r.cfg.Retention)
	n, err := r.cfg.Store.Prune(ctx, cutoff)
	if err != nil {
		r.cfg.Logger.Warn("journal prune failed", "error", err)
		return 0
	}
	if n > 0 {
		r.cfg.Logger.Info("journal pruned", "rows", n, "before", cutoff.Format(time.RFC3339))
	}
	return n
}

func (r *Retention) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r.PruneNow(ctx)
}
