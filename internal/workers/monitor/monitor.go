// Package monitor runs the background watchlist scheduler: a fixed tick that
// re-checks every due item through the orchestrator, automatic-mode-only.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"vigil/internal/domain"
	"vigil/internal/metrics"
	"vigil/internal/ports"
)

// ItemChecker is the shared check logic the scheduler delegates to.
type ItemChecker interface {
	CheckItemForSchedule(ctx context.Context, item domain.WatchlistItem, wl domain.Watchlist) (domain.CheckOutcome, error)
}

type Config struct {
	Interval time.Duration
	// Watchlists whose own check interval is below this floor are never
	// auto-checked; they stay manual-only.
	MinCheckInterval time.Duration
}

// Monitor holds no cross-tick state beyond the in-flight guard; every tick
// reads fresh entity state from persistence.
type Monitor struct {
	watchlists ports.WatchlistRepository
	checker    ItemChecker
	cfg        Config
	log        *slog.Logger
	now        func() time.Time
	inFlight   atomic.Bool
}

func New(watchlists ports.WatchlistRepository, checker ItemChecker, cfg Config, log *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	return &Monitor{
		watchlists: watchlists,
		checker:    checker,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled, ticking at the configured interval.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("watchlist scheduler started", "interval", m.cfg.Interval, "min_check_interval", m.cfg.MinCheckInterval)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("watchlist scheduler stopped")
			return
		case <-ticker.C:
			m.TryTick(ctx)
		}
	}
}

// TryTick runs one scheduler pass unless a previous pass is still running;
// overlapping ticks are skipped, not queued.
func (m *Monitor) TryTick(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.log.Warn("previous scheduler tick still running, skipping")
		return
	}
	defer m.inFlight.Store(false)
	m.tick(ctx)
	metrics.SchedulerTicks.Inc()
}

func (m *Monitor) tick(ctx context.Context) {
	lists, err := m.watchlists.ListActiveNotifiable(ctx)
	if err != nil {
		m.log.Error("listing watchlists failed", "err", err)
		return
	}
	for _, wl := range lists {
		if err := m.checkWatchlist(ctx, wl); err != nil {
			m.log.Error("checking watchlist failed", "watchlist_id", wl.ID, "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// checkWatchlist applies the floor gate, then checks each due item. Items of
// one watchlist run serially so the same item is never checked twice at once.
func (m *Monitor) checkWatchlist(ctx context.Context, wl domain.Watchlist) error {
	interval := time.Duration(wl.CheckIntervalMinutes) * time.Minute
	if interval < m.cfg.MinCheckInterval {
		m.log.Debug("skipping watchlist below interval floor",
			"watchlist_id", wl.ID, "interval", interval, "floor", m.cfg.MinCheckInterval)
		return nil
	}

	items, err := m.watchlists.ListActiveItems(ctx, wl.ID)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	for _, item := range items {
		if !due(item, interval, now) {
			continue
		}
		if _, err := m.checker.CheckItemForSchedule(ctx, item, wl); err != nil {
			m.log.Error("checking item failed", "item_id", item.ID, "err", err)
		}
	}
	return nil
}

// due reports whether enough time has elapsed since the item's last check.
// A never-checked item is always due.
func due(item domain.WatchlistItem, interval time.Duration, now time.Time) bool {
	if item.LastCheckAt == nil {
		return true
	}
	return now.Sub(*item.LastCheckAt) >= interval
}
