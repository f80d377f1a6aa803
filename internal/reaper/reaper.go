// ABOUTME: Scheduled background purge of expired session tokens
// ABOUTME: Ticker-driven loop with context cancellation for deterministic start/stop

package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/finflow/finflow-gateway/internal/store"
)

// DefaultInterval is how often the reaper sweeps when not configured.
const DefaultInterval = 24 * time.Hour

// Reaper periodically removes expired session tokens from the identity
// store. It shares no locks with request handling; each sweep is a
// single batched delete, and tokens added mid-sweep are simply picked
// up on the next run.
type Reaper struct {
	store    store.Store
	interval time.Duration
	logger   *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

// New creates a Reaper over the given store. A zero interval falls back
// to DefaultInterval.
func New(st store.Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reaper{
		store:    st,
		interval: interval,
		logger:   slog.Default().With("component", "reaper"),
		now:      time.Now,
	}
}

// Run sweeps immediately, then on every tick until the context is
// cancelled. Sweep failures are logged and retried on the next tick;
// they never take the process down.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval)

	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Error("sweep failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep removes every session token whose expiry has passed and returns
// how many were deleted. Running it twice with no new expirations is a
// no-op the second time.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	deleted, err := r.store.DeleteExpiredSessionTokens(ctx, r.now())
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		r.logger.Info("sweep complete", "deleted", deleted)
	} else {
		r.logger.Debug("sweep complete", "deleted", 0)
	}

	return deleted, nil
}
