package pinger

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillcoder/watchhamster/internal/infra/metrics"
	"github.com/skillcoder/watchhamster/internal/infra/shutdown"
)

const (
	// defaultPingTimeout is the default timeout for ping operations
	defaultPingTimeout = 1 * time.Second
)

// Option tunes a pinger registered with RegisterFunc.
type Option func(*pingerInfo)

// WithReadyCritical controls whether a failing ping makes the process not ready.
func WithReadyCritical(critical bool) Option {
	return func(i *pingerInfo) {
		i.readyCritical = critical
	}
}

// WithHealthCritical controls whether a failing ping makes the process unhealthy.
func WithHealthCritical(critical bool) Option {
	return func(i *pingerInfo) {
		i.healthCritical = critical
	}
}

// WithTimeout overrides the per-ping timeout; non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(i *pingerInfo) {
		if timeout > 0 {
			i.timeout = timeout
		}
	}
}

type pingerInfo struct {
	name           string
	ping           PingFunc
	readyCritical  bool
	healthCritical bool
	timeout        time.Duration
}

// Service runs registered health checks on an interval and keeps their statistics.
type Service struct {
	logger     *slog.Logger
	interval   time.Duration
	pingers    map[string]*pingerInfo
	stats      map[string]*Stats
	mu         sync.RWMutex
	ready      chan struct{}
	inShutdown atomic.Bool
	started    atomic.Bool
	doneCh     chan struct{}
	wg         sync.WaitGroup
}

// New creates a new pinger service with the specified interval
func New(
	logger *slog.Logger,
	interval time.Duration,
) *Service {
	return &Service{
		logger:   logger.With("component", "pinger"),
		interval: interval,
		pingers:  make(map[string]*pingerInfo),
		stats:    make(map[string]*Stats),
		ready:    make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

var _ shutdown.Shutdowner = (*Service)(nil)

// Name returns the name of the pinger service component
func (s *Service) Name() string {
	return "pinger-service"
}

// Register registers a component pinger, honouring its optional tuning interfaces.
func (s *Service) Register(p Pinger) error {
	if p == nil {
		return fmt.Errorf("register pinger: %w: nil pinger", ErrInvalidPinger)
	}

	opts := make([]Option, 0, 3)

	if rc, ok := p.(readyCriticalPinger); ok {
		opts = append(opts, WithReadyCritical(rc.PingerReadyCritical()))
	}

	if hc, ok := p.(healthCriticalPinger); ok {
		opts = append(opts, WithHealthCritical(hc.PingerCritical()))
	}

	if tp, ok := p.(timeoutPinger); ok {
		opts = append(opts, WithTimeout(tp.PingerTimeout()))
	}

	return s.RegisterFunc(p.Name(), p.Ping, opts...)
}

// RegisterFunc registers a bare check function under name.
func (s *Service) RegisterFunc(name string, fn PingFunc, opts ...Option) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register pinger %q: %w", name, ErrInvalidPinger)
	}

	info := &pingerInfo{
		name:           name,
		ping:           fn,
		readyCritical:  true,
		healthCritical: true,
		timeout:        defaultPingTimeout,
	}

	for _, opt := range opts {
		opt(info)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pingers[name]; exists {
		return fmt.Errorf("register pinger %s: %w", name, ErrPingerAlreadyRegistered)
	}

	s.pingers[name] = info
	s.stats[name] = NewPingerStats(name)

	s.logger.Info("pinger registered",
		"name", name,
		"readyCritical", info.readyCritical,
		"healthCritical", info.healthCritical,
		"timeout", info.timeout,
	)

	return nil
}

// Start starts the pinger service in a goroutine
func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "pinger service is shutting down, skipping start")

		return nil
	}

	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	go s.run(ctx)

	return nil
}

// Ready returns a channel that is closed after the first round of pings
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown waits for the ping loop and any in-flight pings to finish
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "pinger service is already shutting down, skipping shutdown")

		return nil
	}

	s.logger.InfoContext(ctx, "shutting down pinger service")

	if s.started.Load() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown context done before pinger loop exited: %w", ctx.Err())
		case <-s.doneCh:
		}
	}

	s.wg.Wait()

	s.logger.InfoContext(ctx, "pinger service shut down")

	return nil
}

// GetStats returns statistics for a specific pinger
func (s *Service) GetStats(name string) (*Statistics, error) {
	s.mu.RLock()
	info, infoExists := s.pingers[name]
	stats, statsExists := s.stats[name]
	s.mu.RUnlock()

	if !infoExists || !statsExists {
		return nil, fmt.Errorf("get stats: %w: %s", ErrPingerNotFound, name)
	}

	return GetStatistics(stats, info), nil
}

// GetAllStats returns a deep copy of all pinger statistics
func (s *Service) GetAllStats() map[string]*Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*Statistics, len(s.stats))
	for name, stats := range s.stats {
		info, exists := s.pingers[name]
		if !exists {
			continue
		}

		result[name] = GetStatistics(stats, info)
	}

	return result
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runPingers(ctx)

	close(s.ready)

	for {
		if s.inShutdown.Load() {
			s.logger.InfoContext(ctx, "terminating pinger loop")

			return
		}

		select {
		case <-ticker.C:
			s.runPingers(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "terminating pinger loop")

			return
		}
	}
}

// runPingers executes all registered pingers in parallel
func (s *Service) runPingers(ctx context.Context) {
	s.mu.RLock()
	pingers := make(map[string]*pingerInfo, len(s.pingers))
	maps.Copy(pingers, s.pingers)
	s.mu.RUnlock()

	if len(pingers) == 0 {
		return
	}

	var wg sync.WaitGroup

	for _, info := range pingers {
		if ctx.Err() != nil {
			return
		}

		wg.Add(1)
		s.wg.Add(1)

		go func(i *pingerInfo) {
			defer wg.Done()
			defer s.wg.Done()

			pingCtx, cancel := context.WithTimeout(ctx, i.timeout)
			defer cancel()

			start := time.Now()
			err := i.ping(pingCtx)
			latency := time.Since(start)

			s.updateStats(i.name, latency, err)
			metrics.RecordPing(i.name, latency, err)

			if err != nil {
				s.logger.DebugContext(ctx, "pinger error",
					"name", i.name,
					"latency", latency,
					"reason", err,
				)
			}
		}(info)
	}

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func (s *Service) updateStats(name string, latency time.Duration, err error) {
	s.mu.RLock()
	stats, exists := s.stats[name]
	s.mu.RUnlock()

	if !exists {
		return
	}

	stats.record(time.Now(), latency, err)
}
