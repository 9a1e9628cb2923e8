package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/procfs"

	"github.com/skillcoder/watchhamster/internal/adapters/outbound/fswatch"
	"github.com/skillcoder/watchhamster/internal/adapters/outbound/git"
	"github.com/skillcoder/watchhamster/internal/adapters/outbound/host"
	"github.com/skillcoder/watchhamster/internal/adapters/outbound/webhook"
	"github.com/skillcoder/watchhamster/internal/config"
	"github.com/skillcoder/watchhamster/internal/httpserver"
	"github.com/skillcoder/watchhamster/internal/infra/cronparser"
	"github.com/skillcoder/watchhamster/internal/infra/pinger"
	"github.com/skillcoder/watchhamster/internal/infra/shutdown"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
	"github.com/skillcoder/watchhamster/internal/logic/ttlcache"
)

const startupTimeout = 30 * time.Second

// App owns every component of the daemon and their start and stop order.
type App struct {
	logger     *slog.Logger
	cfg        *config.Config
	appState   appstater
	components []component
}

// New creates a new application instance with all dependencies wired.
// Components are started in the listed order and stopped in reverse.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	appState appstater,
	pingers component,
) (*App, error) {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}

	cache := ttlcache.New[any](
		ttlcache.WithMaxEntries(cfg.Cache.MaxEntries),
		ttlcache.WithDefaultTTL(cfg.Cache.DefaultTTL),
	)
	sweeper := ttlcache.NewSweeper(logger, cache, cfg.Cache.SweepInterval)
	scheduler := cronparser.New()
	dirWatcher := fswatch.New(logger)

	sender := webhook.New(logger, &http.Client{}, cfg.Delivery.BotName, cfg.Delivery.BotIconURL)
	pipeline := delivery.New(logger, cfg.DeliveryConfig(), sender, cache)

	var repo supervisor.RepoInspector
	if cfg.Repo.Dir != "" {
		repo = git.New(logger, cfg.Repo.Dir, cfg.Repo.CommandTimeout)
	}

	supervisorSvc := supervisor.New(logger, cfg.SupervisorConfig(), supervisor.Ports{
		Processes: host.NewProcessRepository(logger, fs),
		Resources: host.NewResourceSampler(logger, fs, cfg.Supervisor.DiskPath),
		Repo:      repo,
		Cache:     cache,
		Scheduler: scheduler,
	})

	stabilityMgr := stability.New(logger, cfg.StabilityConfig(), stability.Deps{
		Sampler:       host.NewSelfSampler(fs),
		Watcher:       dirWatcher,
		Sweeper:       sweeper,
		Scheduler:     scheduler,
		DeliveryStats: pipeline,
		Snapshots:     supervisorSvc,
	})

	submit := submitter(logger, pipeline)
	supervisorSvc.RegisterAlertSink(submit)
	stabilityMgr.RegisterAlertSink(submit)
	pipeline.RegisterResultSink(stabilityMgr.HandleDeliveryResult)

	stabilityMgr.RegisterErrorCallback(func(kind, message string) {
		logger.Warn("stability issue reported", "kind", kind, "message", message)
	})
	stabilityMgr.RegisterRecoveryCallback(func(action string) bool {
		if action != stability.RecoveryMemoryCleanup {
			return false
		}

		purged := cache.Purge()
		logger.Info("shared cache purged", "entries", purged)

		return true
	})

	components := []component{
		pingers,
		httpserver.NewMetricsServer(logger, cfg.MetricsPort),
		sweeper,
		stabilityMgr,
		pipeline,
		supervisorSvc,
	}

	if repo != nil && cfg.Repo.WatchHead {
		components = append(components,
			git.NewHeadWatcher(logger, dirWatcher, cfg.Repo.Dir, supervisorSvc.InvalidateRepo))
	}

	components = append(components, httpserver.New(logger, appState, httpserver.Deps{
		Pipeline:   pipeline,
		Supervisor: supervisorSvc,
		Stability:  stabilityMgr,
	}, cfg.HTTPPort))

	return &App{
		logger:     logger.With("component", "app"),
		cfg:        cfg,
		appState:   appState,
		components: components,
	}, nil
}

// submitter forwards internal alerts into the pipeline; rejected alerts are only logged.
func submitter(logger *slog.Logger, pipeline *delivery.Pipeline) alert.Sink {
	return func(ctx context.Context, event alert.Event) {
		if _, err := pipeline.Submit(ctx, event); err != nil {
			logger.WarnContext(ctx, "alert not enqueued",
				"title", event.Title,
				"severity", event.Severity.String(),
				"reason", err,
			)
		}
	}
}

// Run starts the application and blocks until a signal arrives or ctx is done.
func (a *App) Run(originCtx context.Context) error {
	if err := a.appState.SetStarting(originCtx); err != nil {
		return fmt.Errorf("set starting application state: %w", err)
	}

	ctx, cancel := context.WithCancel(originCtx)
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.logger.ErrorContext(ctx, "startup failed, shutting down", "reason", err)

		return a.shutdown(originCtx, fmt.Errorf("start: %w", err))
	}

	if err := a.appState.SetRunning(ctx); err != nil {
		return a.shutdown(originCtx, fmt.Errorf("set running application state: %w", err))
	}

	a.logger.InfoContext(ctx, "watchhamster is running",
		"processes", len(a.cfg.Supervisor.Processes),
		"httpPort", a.cfg.HTTPPort,
		"metricsPort", a.cfg.MetricsPort,
	)

	signals := shutdown.New(a.logger, a.appState)
	go signals.HandleSignals(ctx, cancel)

	<-ctx.Done()

	return a.shutdown(originCtx, nil)
}

func (a *App) start(ctx context.Context) error {
	readyChans := make([]<-chan struct{}, 0, len(a.components))

	for _, c := range a.components {
		if err := a.appState.RegisterShutdowner(c); err != nil {
			return fmt.Errorf("register shutdowner: %w", err)
		}

		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}

		if p, ok := c.(pinger.Pinger); ok {
			if err := a.appState.RegisterPinger(p); err != nil {
				return fmt.Errorf("register pinger %s: %w", c.Name(), err)
			}
		}

		if r, ok := c.(readier); ok {
			readyChans = append(readyChans, r.Ready())
		}
	}

	readyCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	select {
	case <-allChannelsClose(readyCtx, a.logger, readyChans...):
	case <-readyCtx.Done():
		return fmt.Errorf("wait components ready: %w", readyCtx.Err())
	}

	return nil
}

func (a *App) shutdown(originCtx context.Context, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(originCtx), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.InfoContext(ctx, "shutting down", "timeout", a.cfg.ShutdownTimeout)

	if err := a.appState.Shutdown(ctx); err != nil {
		if cause != nil {
			return fmt.Errorf("%w; %w", cause, err)
		}

		return err
	}

	return cause
}

// allChannelsClose returns a channel closed once every input channel is closed
// or ctx is done.
func allChannelsClose(ctx context.Context, logger *slog.Logger, chans ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{})

	go func() {
		defer close(out)

		for i, ch := range chans {
			select {
			case <-ch:
			case <-ctx.Done():
				logger.DebugContext(ctx, "stopped waiting for channels", "closed", i, "total", len(chans))

				return
			}
		}
	}()

	return out
}

// ValidateConfigs runs one integrity pass over the configuration documents and returns the findings.
func ValidateConfigs(ctx context.Context, logger *slog.Logger, cfg *config.Config) ([]stability.Finding, error) {
	stCfg := cfg.StabilityConfig()

	for _, dir := range []string{stCfg.ConfigDir, stCfg.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	mgr := stability.New(logger, stCfg, stability.Deps{})
	mgr.RegisterErrorCallback(func(kind, message string) {
		logger.Warn("configuration healed", "kind", kind, "message", message)
	})

	return mgr.ValidateConfigs(ctx), nil
}
