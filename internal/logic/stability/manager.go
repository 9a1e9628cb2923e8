package stability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
)

// Deps groups the optional collaborators of the manager.
type Deps struct {
	Sampler       SelfSampler
	Watcher       DirWatcher
	Sweeper       CacheSweeper
	Scheduler     scheduler
	DeliveryStats DeliveryStatsSource
	Snapshots     SnapshotSource
}

// Manager keeps configuration documents valid, watches the daemon's own health
// and persists final statistics on shutdown.
type Manager struct {
	logger        *slog.Logger
	cfg           Config
	sampler       SelfSampler
	watcher       DirWatcher
	sweeper       CacheSweeper
	sched         scheduler
	deliveryStats DeliveryStatsSource
	snapshots     SnapshotSource
	now           func() time.Time
	startedAt     time.Time

	integrityMu sync.Mutex
	journalMu   sync.Mutex

	// selfMu guards the fields below it.
	selfMu         sync.Mutex
	prevCPUSeconds float64
	prevSampleAt   time.Time
	breached       bool

	mu            sync.RWMutex
	last          SelfHealthSnapshot
	lastSelfCheck time.Time
	lastError     string

	errorCount    atomic.Int64
	recoveryCount atomic.Int64

	cbMu        sync.RWMutex
	errorCbs    []ErrorCallback
	recoveryCbs []RecoveryCallback
	healthCbs   []HealthCallback
	alertSinks  []alert.Sink

	ready      chan struct{}
	doneCh     chan struct{}
	started    atomic.Bool
	inShutdown atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a stability manager.
func New(logger *slog.Logger, cfg Config, deps Deps) *Manager {
	return &Manager{
		logger:        logger.With("component", "stability"),
		cfg:           cfg.withDefaults(),
		sampler:       deps.Sampler,
		watcher:       deps.Watcher,
		sweeper:       deps.Sweeper,
		sched:         deps.Scheduler,
		deliveryStats: deps.DeliveryStats,
		snapshots:     deps.Snapshots,
		now:           time.Now,
		startedAt:     time.Now(),
		ready:         make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (m *Manager) Name() string {
	return "stability-manager"
}

func (m *Manager) RegisterErrorCallback(fn ErrorCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.errorCbs = append(m.errorCbs, fn)
}

func (m *Manager) RegisterRecoveryCallback(fn RecoveryCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.recoveryCbs = append(m.recoveryCbs, fn)
}

func (m *Manager) RegisterHealthCallback(fn HealthCallback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.healthCbs = append(m.healthCbs, fn)
}

// RegisterAlertSink adds a receiver for the Warning alerts raised by the manager.
func (m *Manager) RegisterAlertSink(sink alert.Sink) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()

	m.alertSinks = append(m.alertSinks, sink)
}

// Start creates the working directories, runs the first integrity check and
// launches the self health, schedule and watch loops.
// Only directory creation and watcher setup failures are returned.
func (m *Manager) Start(ctx context.Context) error {
	if m.inShutdown.Load() {
		m.logger.InfoContext(ctx, "stability manager is shutting down, skipping start")

		return nil
	}

	if !m.started.CompareAndSwap(false, true) {
		return nil
	}

	for _, dir := range []string{m.cfg.ConfigDir, m.cfg.StateDir, m.cfg.LogDir} {
		if dir == "" {
			continue
		}

		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("%w %s: %w", ErrCreateDir, dir, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	var changes <-chan string

	if m.watcher != nil {
		ch, err := m.watcher.Watch(runCtx, m.cfg.ConfigDir)
		if err != nil {
			cancel()

			return fmt.Errorf("watch config dir: %w", err)
		}

		changes = ch
	}

	m.journal(ctx, eventStart, "")

	if findings := m.ValidateConfigs(ctx); len(findings) > 0 {
		m.logger.WarnContext(ctx, "config documents healed on start", "count", len(findings))
	}

	m.wg.Add(1)

	go m.selfLoop(runCtx)

	if m.sched != nil {
		m.wg.Add(1)

		go func() {
			defer m.wg.Done()

			err := m.sched.Run(runCtx, m.cfg.CheckSchedule, m.cfg.CheckTZ, m.periodicCheck)
			if err != nil {
				m.logger.ErrorContext(runCtx, "config check schedule stopped", "reason", err)
			}
		}()
	}

	if changes != nil {
		m.wg.Add(1)

		go m.watchLoop(runCtx, changes)
	}

	go func() {
		m.wg.Wait()
		close(m.doneCh)
	}()

	m.logger.InfoContext(ctx, "stability manager started",
		"configDir", m.cfg.ConfigDir,
		"stateDir", m.cfg.StateDir,
		"documents", len(m.cfg.Documents),
		"maxMemory", m.cfg.MaxMemory.String(),
	)

	return nil
}

func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ready:
	default:
		return fmt.Errorf("stability manager is not ready")
	}

	m.mu.RLock()
	age := time.Since(m.lastSelfCheck)
	m.mu.RUnlock()

	if age > 2*m.cfg.SelfCheckInterval {
		return fmt.Errorf("last self health check was too long ago: %s", age.Round(time.Second))
	}

	return nil
}

// Shutdown stops the loops, then persists final statistics and a journal entry.
// Register it before the pipeline so that it runs after the pipeline has drained.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	if !m.started.Load() {
		return nil
	}

	m.logger.InfoContext(ctx, "shutting down stability manager")
	m.cancel()

	var errs []error

	select {
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("shutdown context done before stability loops exited: %w", ctx.Err()))
	case <-m.doneCh:
	}

	if err := m.writeFinalStats(ctx); err != nil {
		errs = append(errs, err)
	}

	m.journal(ctx, eventShutdown, "")

	return errors.Join(errs...)
}

// HandleDeliveryResult reports permanently failed deliveries through the error callbacks.
func (m *Manager) HandleDeliveryResult(ctx context.Context, result delivery.Result) {
	if result.State != delivery.StateFailedPermanently {
		return
	}

	m.reportError(ctx, "delivery_failed",
		fmt.Sprintf("%q to route %s failed after %d retries: %s",
			result.Event.Title, result.Event.RouteKey, result.RetryCount, result.Error))
}

func (m *Manager) selfLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SelfCheckInterval)
	defer ticker.Stop()

	m.CheckSelfHealth(ctx)
	close(m.ready)

	for {
		select {
		case <-ticker.C:
			m.CheckSelfHealth(ctx)
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "terminating self health loop")

			return
		}
	}
}

func (m *Manager) watchLoop(ctx context.Context, changes <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-changes:
			if !ok {
				return
			}

			if !m.isDocument(name) {
				continue
			}

			m.logger.DebugContext(ctx, "config document changed", "document", name)
			m.ValidateConfigs(ctx)
		}
	}
}

func (m *Manager) periodicCheck(ctx context.Context) {
	m.ValidateConfigs(ctx)

	if _, err := m.RotateLogs(ctx); err != nil {
		m.logger.WarnContext(ctx, "log rotation failed", "reason", err)
	}
}

func (m *Manager) reportError(ctx context.Context, kind, message string) {
	m.errorCount.Add(1)

	m.mu.Lock()
	m.lastError = kind + ": " + message
	m.mu.Unlock()

	m.cbMu.RLock()
	cbs := slices.Clone(m.errorCbs)
	m.cbMu.RUnlock()

	for _, cb := range cbs {
		m.safely(ctx, "error callback", func() { cb(kind, message) })
	}
}

func (m *Manager) runRecovery(ctx context.Context, action string) bool {
	m.cbMu.RLock()
	cbs := slices.Clone(m.recoveryCbs)
	m.cbMu.RUnlock()

	ok := true

	for _, cb := range cbs {
		var done bool

		m.safely(ctx, "recovery callback", func() { done = cb(action) })

		if done {
			m.recoveryCount.Add(1)
		} else {
			ok = false
		}
	}

	return ok
}

func (m *Manager) notifyHealth(ctx context.Context, snap SelfHealthSnapshot) {
	m.cbMu.RLock()
	cbs := slices.Clone(m.healthCbs)
	m.cbMu.RUnlock()

	for _, cb := range cbs {
		m.safely(ctx, "health callback", func() { cb(snap) })
	}
}

func (m *Manager) raise(ctx context.Context, title, body string) {
	ev := alert.NewEvent(alert.SeverityNormal, sourceName, alert.DefaultRoute, title, body)

	m.cbMu.RLock()
	sinks := slices.Clone(m.alertSinks)
	m.cbMu.RUnlock()

	for _, sink := range sinks {
		m.safely(ctx, "alert sink", func() { sink(ctx, ev) })
	}
}

func (m *Manager) safely(ctx context.Context, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, what+" panicked", "reason", r)
		}
	}()

	fn()
}

// LastError returns the most recent reported problem.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastError
}
