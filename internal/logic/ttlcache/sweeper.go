package ttlcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillcoder/watchhamster/internal/infra/metrics"
)

// DefaultSweepInterval is how often the Sweeper removes expired entries.
const DefaultSweepInterval = 30 * time.Second

type sweepable interface {
	Sweep() int
	Stats() Stats
}

// Sweeper periodically removes expired entries so unread keys do not pin memory.
type Sweeper struct {
	logger     *slog.Logger
	cache      sweepable
	interval   time.Duration
	ready      chan struct{}
	doneCh     chan struct{}
	inShutdown atomic.Bool
	cancel     context.CancelFunc
	lastSweep  atomic.Int64

	mu        sync.Mutex
	lastStats Stats
}

func NewSweeper(logger *slog.Logger, cache sweepable, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Sweeper{
		logger:   logger.With("component", "cache-sweeper"),
		cache:    cache,
		interval: interval,
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Sweeper) Name() string {
	return "cache-sweeper"
}

func (s *Sweeper) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "cache sweeper is shutting down, skipping start")

		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(runCtx)

	return nil
}

func (s *Sweeper) Ready() <-chan struct{} {
	return s.ready
}

// Ping fails when the sweep loop has not run for two intervals.
func (s *Sweeper) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
	default:
		return fmt.Errorf("cache sweeper is not ready")
	}

	age := time.Since(time.Unix(0, s.lastSweep.Load()))
	if age > 2*s.interval {
		return fmt.Errorf("last sweep was too long ago: %s", age.Round(time.Second))
	}

	return nil
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	if s.cancel == nil {
		return nil
	}

	s.cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before sweep loop exited: %w", ctx.Err())
	case <-s.doneCh:
		s.logger.InfoContext(ctx, "cache sweeper shut down")
	}

	return nil
}

// SweepNow runs one sweep and publishes cache metrics.
func (s *Sweeper) SweepNow(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.cache.Sweep()
	stats := s.cache.Stats()

	metrics.RecordCacheRemoved("expired", removed)
	metrics.RecordCacheRemoved("evicted", int(stats.Evictions-s.lastStats.Evictions))
	metrics.SetCacheEntries(stats.Entries)

	s.lastStats = stats
	s.lastSweep.Store(time.Now().UnixNano())

	if removed > 0 {
		s.logger.DebugContext(ctx, "expired cache entries removed",
			"removed", removed,
			"entries", stats.Entries,
		)
	}

	return removed
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepNow(ctx)
	close(s.ready)

	for {
		select {
		case <-ticker.C:
			s.SweepNow(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "terminating cache sweep loop")

			return
		}
	}
}
