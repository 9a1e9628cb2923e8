package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillcoder/watchhamster/internal/infra/metrics"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
)

// Ports groups the outbound dependencies of the supervisor. Repo and Scheduler may be nil.
type Ports struct {
	Processes ProcessRepository
	Resources ResourceSampler
	Repo      RepoInspector
	Cache     sampleCache
	Scheduler scheduler
}

type levels struct {
	cpu, mem, disk Level
}

// Service keeps managed processes alive and watches host resources and the repository.
type Service struct {
	logger    *slog.Logger
	cfg       Config
	ports     Ports
	now       func() time.Time
	startedAt time.Time

	// cycleMu serializes sampling cycles; the fields below it are owned by the running cycle.
	cycleMu         sync.Mutex
	processes       []*ManagedProcess
	prevLevels      levels
	resourceFailing bool
	prevTree        WorkingTree

	mu          sync.RWMutex
	last        *Snapshot
	history     []ResourceSample
	lastCycleAt time.Time

	sinksMu sync.RWMutex
	sinks   []alert.Sink

	ready      chan struct{}
	doneCh     chan struct{}
	started    atomic.Bool
	inShutdown atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a supervisor with one record per configured process in state Unknown.
func New(
	logger *slog.Logger,
	cfg Config,
	ports Ports,
) *Service {
	cfg = cfg.withDefaults()

	processes := make([]*ManagedProcess, 0, len(cfg.Processes))
	for _, spec := range cfg.Processes {
		processes = append(processes, &ManagedProcess{
			Name:         spec.Name,
			MatchPattern: spec.MatchPattern,
			State:        StateUnknown,
			spec:         spec,
		})
	}

	return &Service{
		logger:    logger.With("component", "supervisor"),
		cfg:       cfg,
		ports:     ports,
		now:       time.Now,
		startedAt: time.Now(),
		processes: processes,
		history:   make([]ResourceSample, 0, cfg.HistorySize),
		ready:     make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (s *Service) Name() string {
	return "health-supervisor"
}

// RegisterAlertSink adds a receiver for alerts raised on state or level transitions.
func (s *Service) RegisterAlertSink(sink alert.Sink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()

	s.sinks = append(s.sinks, sink)
}

func (s *Service) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "supervisor is shutting down, skipping start")

		return nil
	}

	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)

	go s.run(runCtx)

	if s.cfg.StatusReportSchedule != "" && s.ports.Scheduler != nil {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			err := s.ports.Scheduler.Run(runCtx, s.cfg.StatusReportSchedule, s.cfg.StatusReportTZ, s.reportStatus)
			if err != nil {
				s.logger.ErrorContext(runCtx, "status report schedule stopped", "reason", err)
			}
		}()
	}

	go func() {
		s.wg.Wait()
		close(s.doneCh)
	}()

	s.logger.InfoContext(ctx, "supervisor started",
		"processes", len(s.processes),
		"interval", s.cfg.Interval,
		"repo", s.ports.Repo != nil,
	)

	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Ping fails before the first cycle and when the last cycle is older than two intervals.
func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
	default:
		return fmt.Errorf("supervisor is not ready")
	}

	s.mu.RLock()
	age := time.Since(s.lastCycleAt)
	s.mu.RUnlock()

	if age > 2*s.cfg.Interval {
		return fmt.Errorf("last sampling cycle was too long ago: %s", age.Round(time.Second))
	}

	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	if !s.started.Load() {
		return nil
	}

	s.logger.InfoContext(ctx, "shutting down supervisor")
	s.cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before supervisor loop exited: %w", ctx.Err())
	case <-s.doneCh:
	}

	s.logger.InfoContext(ctx, "supervisor shut down")

	return nil
}

// Snapshot returns a copy of the last cycle result.
func (s *Service) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return Snapshot{}, false
	}

	return copySnapshot(*s.last), true
}

// History returns the retained resource samples, oldest first.
func (s *Service) History() []ResourceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.history)
}

// InvalidateRepo drops the cached repository state so the next cycle re-inspects it.
func (s *Service) InvalidateRepo() {
	s.ports.Cache.Delete(cacheKeyRepo)
}

// SampleOnce runs one full cycle and returns its snapshot. Cycles never overlap.
func (s *Service) SampleOnce(ctx context.Context) (Snapshot, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	now := s.now()

	var (
		procAlerts, resAlerts, repoAlerts []alert.Event
		resources                         *ResourceSample
		resourceErr                       error
		repo                              *RepoState
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		procAlerts = s.checkProcesses(gctx, now)

		return nil
	})

	g.Go(func() error {
		resources, resAlerts, resourceErr = s.checkResources(gctx, now)

		return nil
	})

	if s.ports.Repo != nil {
		g.Go(func() error {
			repo, repoAlerts = s.checkRepo(gctx, now)

			return nil
		})
	}

	_ = g.Wait()

	alerts := slices.Concat(procAlerts, resAlerts, repoAlerts)

	if err := ctx.Err(); err != nil {
		// Restart counters and manual intervention flags are already updated.
		s.emit(context.WithoutCancel(ctx), alerts)

		return Snapshot{}, fmt.Errorf("sample once: %w", err)
	}

	snap := s.buildSnapshot(now, resources, resourceErr, repo)

	s.mu.Lock()
	s.last = &snap
	s.lastCycleAt = time.Now()
	s.mu.Unlock()

	s.emit(ctx, alerts)

	return copySnapshot(snap), nil
}

func (s *Service) buildSnapshot(
	now time.Time,
	resources *ResourceSample,
	resourceErr error,
	repo *RepoState,
) Snapshot {
	snap := Snapshot{
		Timestamp: now,
		Processes: make([]ManagedProcess, 0, len(s.processes)),
		Resources: resources,
		Repo:      repo,
		Uptime:    now.Sub(s.startedAt),
	}

	if resourceErr != nil {
		snap.ResourceError = resourceErr.Error()
	}

	running := 0

	for _, p := range s.processes {
		snap.Processes = append(snap.Processes, *p)

		if p.State == StateRunning {
			running++
		}
	}

	snap.RunningRatio = 1
	if len(s.processes) > 0 {
		snap.RunningRatio = float64(running) / float64(len(s.processes))
	}

	level := LevelNormal
	if resources != nil {
		level = resources.OverallLevel
	}

	snap.OverallHealth = OverallHealth(level, snap.RunningRatio)

	return snap
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.cycle(ctx)
	close(s.ready)

	for {
		select {
		case <-ticker.C:
			s.cycle(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "terminating supervisor loop")

			return
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	snap, err := s.SampleOnce(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "sampling cycle interrupted", "reason", err)

		return
	}

	s.logger.DebugContext(ctx, "sampling cycle completed",
		"health", snap.OverallHealth,
		"runningRatio", snap.RunningRatio,
	)
}

func (s *Service) checkProcesses(ctx context.Context, now time.Time) []alert.Event {
	var alerts []alert.Event

	for _, p := range s.processes {
		if ctx.Err() != nil {
			return alerts
		}

		alerts = append(alerts, s.checkProcess(ctx, p, now)...)
		metrics.SetProcessHealthScore(p.Name, p.HealthScore)
	}

	return alerts
}

func (s *Service) checkProcess(ctx context.Context, p *ManagedProcess, now time.Time) []alert.Event {
	logger := s.logger.With("process", p.Name)
	prev := p.State

	infos, err := s.ports.Processes.FindProcesses(ctx, p.MatchPattern)
	if err != nil && ctx.Err() != nil {
		return nil
	}

	if err != nil {
		perr := &ProcessError{Kind: ProcessSampleFailed, Process: p.Name, Err: err}
		p.State = StateError
		p.HealthScore = 0
		p.LastError = perr.Error()

		logger.WarnContext(ctx, "process sampling failed", "reason", perr)

		if prev == StateError {
			return nil
		}

		return []alert.Event{s.newAlert(alert.SeverityHigh,
			"Process "+p.Name+" sampling failed",
			perr.Error(),
		)}
	}

	if len(infos) > 0 {
		return s.markRunning(ctx, logger, p, prev, newestProcess(infos), now)
	}

	p.State = StateStopped
	p.HealthScore = 0
	p.CPUPercent = 0
	p.MemPercent = 0
	p.HealthySince = time.Time{}
	p.LastError = (&ProcessError{Kind: ProcessNotFound, Process: p.Name}).Error()

	var alerts []alert.Event

	if prev == StateRunning || prev == StateUnknown {
		logger.WarnContext(ctx, "managed process is not running", "lastPid", p.LastPID)

		alerts = append(alerts, s.newAlert(alert.SeverityHigh,
			"Process "+p.Name+" stopped",
			fmt.Sprintf("No live process matches %q (last PID %d).", p.MatchPattern, p.LastPID),
		))
	}

	return append(alerts, s.evaluateRestart(ctx, logger, p, now)...)
}

func (s *Service) markRunning(
	ctx context.Context,
	logger *slog.Logger,
	p *ManagedProcess,
	prev ProcessState,
	info ProcessInfo,
	now time.Time,
) []alert.Event {
	p.State = StateRunning
	p.LastPID = info.PID
	p.CPUPercent = info.CPUPercent
	p.MemPercent = info.MemPercent
	p.HealthScore = HealthScore(info.CPUPercent, info.MemPercent)
	p.LastError = ""

	if p.HealthySince.IsZero() {
		p.HealthySince = now
	}

	if s.cfg.RestartResetAfter > 0 &&
		(p.RestartCount > 0 || p.ManualIntervention) &&
		now.Sub(p.HealthySince) >= s.cfg.RestartResetAfter {
		logger.InfoContext(ctx, "process healthy long enough, restart budget reset",
			"restartCount", p.RestartCount,
			"healthyFor", now.Sub(p.HealthySince),
		)

		p.RestartCount = 0
		p.ManualIntervention = false
	}

	if prev != StateStopped && prev != StateError {
		return nil
	}

	logger.InfoContext(ctx, "managed process is running again", "pid", info.PID)

	return []alert.Event{s.newAlert(alert.SeverityLow,
		"Process "+p.Name+" running",
		fmt.Sprintf("Process is running with PID %d (health score %d).", info.PID, p.HealthScore),
	)}
}

// evaluateRestart applies the restart policy to a stopped process.
func (s *Service) evaluateRestart(
	ctx context.Context,
	logger *slog.Logger,
	p *ManagedProcess,
	now time.Time,
) []alert.Event {
	if p.ManualIntervention {
		return nil
	}

	if p.spec.Command == "" || p.RestartCount >= s.cfg.MaxRestartAttempts {
		p.ManualIntervention = true

		reason := fmt.Sprintf("Automatic restarts exhausted after %d of %d attempts.",
			p.RestartCount, s.cfg.MaxRestartAttempts)
		if p.spec.Command == "" {
			reason = ErrNoRestartCommand.Error() + "."
		}

		logger.ErrorContext(ctx, "manual intervention required",
			"restartCount", p.RestartCount,
			"reason", reason,
		)

		return []alert.Event{s.newAlert(alert.SeverityCritical,
			"Manual intervention required: "+p.Name,
			reason+" The process will not be restarted automatically.",
		)}
	}

	if now.Before(p.CooldownUntil) {
		logger.DebugContext(ctx, "restart in cooldown", "until", p.CooldownUntil)

		return nil
	}

	p.RestartCount++
	p.LastRestartAt = now
	p.CooldownUntil = now.Add(s.cfg.RestartCooldown)

	metrics.RecordProcessRestart(p.Name)

	pid, err := s.ports.Processes.StartProcess(ctx, p.spec)
	if err != nil {
		perr := &ProcessError{Kind: ProcessCrashed, Process: p.Name, Err: err}
		p.LastError = perr.Error()

		logger.ErrorContext(ctx, "process restart failed",
			"attempt", p.RestartCount,
			"reason", perr,
		)

		return []alert.Event{s.newAlert(alert.SeverityHigh,
			"Restart of "+p.Name+" failed",
			fmt.Sprintf("Attempt %d of %d: %v", p.RestartCount, s.cfg.MaxRestartAttempts, err),
		)}
	}

	p.LastPID = pid

	logger.InfoContext(ctx, "process restarted",
		"attempt", p.RestartCount,
		"pid", pid,
	)

	return []alert.Event{s.newAlert(alert.SeverityLow,
		"Process "+p.Name+" restarted",
		fmt.Sprintf("Restart attempt %d of %d started PID %d.", p.RestartCount, s.cfg.MaxRestartAttempts, pid),
	)}
}

func (s *Service) checkResources(ctx context.Context, now time.Time) (*ResourceSample, []alert.Event, error) {
	if v, ok := s.ports.Cache.Get(cacheKeyResources); ok {
		if cached, ok := v.(ResourceSample); ok {
			return &cached, nil, nil
		}
	}

	usage, err := s.ports.Resources.SampleResources(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, nil, &ResourceError{Err: err}
	}

	if err != nil {
		rerr := &ResourceError{Err: err}

		s.logger.WarnContext(ctx, "resource sampling failed", "reason", rerr)

		if s.resourceFailing {
			return nil, nil, rerr
		}

		s.resourceFailing = true

		return nil, []alert.Event{s.newAlert(alert.SeverityHigh,
			"Resource sampling failed",
			rerr.Error(),
		)}, rerr
	}

	s.resourceFailing = false

	sample := s.cfg.Thresholds.Classify(usage)
	sample.Timestamp = now

	alerts := s.levelTransitions(sample)
	s.prevLevels = levels{cpu: sample.CPULevel, mem: sample.MemLevel, disk: sample.DiskLevel}

	s.mu.Lock()
	if len(s.history) >= s.cfg.HistorySize {
		s.history = slices.Delete(s.history, 0, len(s.history)-s.cfg.HistorySize+1)
	}

	s.history = append(s.history, sample)
	s.mu.Unlock()

	s.ports.Cache.Set(cacheKeyResources, sample, s.cfg.ResourceCacheTTL)

	metrics.SetResource("cpu", sample.CPUPercent, int(sample.CPULevel))
	metrics.SetResource("memory", sample.MemPercent, int(sample.MemLevel))
	metrics.SetResource("disk", sample.DiskPercent, int(sample.DiskLevel))

	return &sample, alerts, nil
}

func (s *Service) levelTransitions(sample ResourceSample) []alert.Event {
	changes := []struct {
		name      string
		prev, cur Level
	}{
		{name: "CPU", prev: s.prevLevels.cpu, cur: sample.CPULevel},
		{name: "Memory", prev: s.prevLevels.mem, cur: sample.MemLevel},
		{name: "Disk", prev: s.prevLevels.disk, cur: sample.DiskLevel},
	}

	var alerts []alert.Event

	for _, c := range changes {
		if c.prev == c.cur {
			continue
		}

		alerts = append(alerts, s.newAlert(levelSeverity(c.cur),
			fmt.Sprintf("%s usage %s", c.name, c.cur),
			fmt.Sprintf("%s. %s level changed from %s to %s.", resourceSummary(sample), c.name, c.prev, c.cur),
		))
	}

	return alerts
}

func (s *Service) checkRepo(ctx context.Context, now time.Time) (*RepoState, []alert.Event) {
	if v, ok := s.ports.Cache.Get(cacheKeyRepo); ok {
		if cached, ok := v.(RepoState); ok {
			return &cached, nil
		}
	}

	state, err := s.ports.Repo.Inspect(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, nil
	}

	if err != nil {
		state.WorkingTree = TreeError
		state.ErrorMessage = fmt.Errorf("%w: %w", ErrRepoCheckFailed, err).Error()

		s.logger.WarnContext(ctx, "repository check failed", "reason", err)
	}

	state.CheckedAt = now
	s.ports.Cache.Set(cacheKeyRepo, state, s.cfg.RepoInterval)

	prev := s.prevTree
	s.prevTree = state.WorkingTree

	if prev == state.WorkingTree {
		return &state, nil
	}

	var ev *alert.Event

	switch state.WorkingTree {
	case TreeConflict:
		e := s.newAlert(alert.SeverityHigh,
			"Repository has merge conflicts",
			fmt.Sprintf("Branch %s at %s has %d conflicted files: %s",
				state.Branch, state.CommitShort, len(state.ConflictFiles), strings.Join(state.ConflictFiles, ", ")),
		)
		ev = &e
	case TreeError:
		e := s.newAlert(alert.SeverityNormal, "Repository check failed", state.ErrorMessage)
		ev = &e
	case TreeClean, TreeModified:
		if prev == TreeConflict || prev == TreeError {
			e := s.newAlert(alert.SeverityLow,
				"Repository recovered",
				fmt.Sprintf("Branch %s at %s is %s.", state.Branch, state.CommitShort, state.WorkingTree),
			)
			ev = &e
		}
	}

	if ev == nil {
		return &state, nil
	}

	return &state, []alert.Event{*ev}
}

func (s *Service) reportStatus(ctx context.Context) {
	snap, ok := s.Snapshot()
	if !ok {
		return
	}

	var b strings.Builder

	if snap.Resources != nil {
		b.WriteString(resourceSummary(*snap.Resources))
		b.WriteString(". ")
	}

	fmt.Fprintf(&b, "Overall health %s, uptime %s.", snap.OverallHealth, snap.Uptime.Round(time.Second))

	for _, p := range snap.Processes {
		fmt.Fprintf(&b, "\n%s: %s (score %d, restarts %d)", p.Name, p.State, p.HealthScore, p.RestartCount)
	}

	s.emit(ctx, []alert.Event{s.newAlert(alert.SeverityLow, "Status report", b.String())})
}

func (s *Service) newAlert(severity alert.Severity, title, body string) alert.Event {
	return alert.NewEvent(severity, sourceName, alert.DefaultRoute, title, body)
}

func (s *Service) emit(ctx context.Context, events []alert.Event) {
	if len(events) == 0 {
		return
	}

	s.sinksMu.RLock()
	sinks := slices.Clone(s.sinks)
	s.sinksMu.RUnlock()

	for _, ev := range events {
		for _, sink := range sinks {
			s.notify(ctx, sink, ev)
		}
	}
}

func (s *Service) notify(ctx context.Context, sink alert.Sink, ev alert.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "alert sink panicked", "title", ev.Title, "reason", r)
		}
	}()

	sink(ctx, ev)
}

// newestProcess picks the most recently started match; ties go to the higher PID.
func newestProcess(infos []ProcessInfo) ProcessInfo {
	return slices.MaxFunc(infos, func(a, b ProcessInfo) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}

		return a.PID - b.PID
	})
}

// levelSeverity maps a resource level to the alert severity used for its transition alert.
func levelSeverity(l Level) alert.Severity {
	switch l {
	case LevelEmergency:
		return alert.SeverityCritical
	case LevelCritical:
		return alert.SeverityHigh
	case LevelWarning:
		return alert.SeverityNormal
	default:
		return alert.SeverityLow
	}
}

func resourceSummary(s ResourceSample) string {
	return fmt.Sprintf("CPU %.1f%% (%s), memory %.1f%% (%s), disk %.1f%% (%s)",
		s.CPUPercent, s.CPULevel,
		s.MemPercent, s.MemLevel,
		s.DiskPercent, s.DiskLevel,
	)
}

func copySnapshot(s Snapshot) Snapshot {
	s.Processes = slices.Clone(s.Processes)

	if s.Resources != nil {
		r := *s.Resources
		s.Resources = &r
	}

	if s.Repo != nil {
		r := *s.Repo
		r.ConflictFiles = slices.Clone(r.ConflictFiles)
		s.Repo = &r
	}

	return s
}
