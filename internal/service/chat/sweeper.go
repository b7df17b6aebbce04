package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/zhouzirui/chat-gateway/backend/internal/telemetry"
)

// Sweeper periodically drops conversations older than the retention window.
type Sweeper struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewSweeper creates a sweeper; call Run to start it.
func NewSweeper(store Store, interval, maxAge time.Duration, logger *slog.Logger, metrics *telemetry.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("session sweeper started", "interval", s.interval, "max_age", s.maxAge)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass and returns the number of removed sessions.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed := s.store.SweepOlderThan(s.maxAge)
	s.metrics.SessionsEvicted(ctx, removed)
	s.logger.Debug("session sweep finished", "removed", removed, "remaining", s.store.Len())
	return removed
}
