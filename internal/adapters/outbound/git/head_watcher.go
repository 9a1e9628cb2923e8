package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
)

// refFiles change on checkout, commit, merge and reset.
var refFiles = map[string]struct{}{
	"HEAD":       {},
	"ORIG_HEAD":  {},
	"MERGE_HEAD": {},
	"index":      {},
}

type dirWatcher interface {
	Watch(ctx context.Context, dir string) (<-chan string, error)
}

// HeadWatcher calls onChange when the repository refs or index change.
type HeadWatcher struct {
	logger   *slog.Logger
	watcher  dirWatcher
	gitDir   string
	onChange func()

	doneCh     chan struct{}
	started    atomic.Bool
	inShutdown atomic.Bool
	cancel     context.CancelFunc
}

// NewHeadWatcher watches <repoDir>/.git.
func NewHeadWatcher(logger *slog.Logger, watcher dirWatcher, repoDir string, onChange func()) *HeadWatcher {
	return &HeadWatcher{
		logger:   logger.With("component", "git-head-watcher"),
		watcher:  watcher,
		gitDir:   filepath.Join(repoDir, ".git"),
		onChange: onChange,
		doneCh:   make(chan struct{}),
	}
}

func (w *HeadWatcher) Name() string {
	return "git-head-watcher"
}

func (w *HeadWatcher) Start(ctx context.Context) error {
	if w.inShutdown.Load() || !w.started.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	changes, err := w.watcher.Watch(runCtx, w.gitDir)
	if err != nil {
		cancel()
		close(w.doneCh)

		return fmt.Errorf("watch git dir: %w", err)
	}

	go w.run(runCtx, changes)

	w.logger.InfoContext(ctx, "watching repository refs", "gitDir", w.gitDir)

	return nil
}

func (w *HeadWatcher) run(ctx context.Context, changes <-chan string) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-changes:
			if !ok {
				return
			}

			if _, ref := refFiles[name]; !ref {
				continue
			}

			w.logger.DebugContext(ctx, "repository ref changed", "file", name)
			w.onChange()
		}
	}
}

func (w *HeadWatcher) Shutdown(ctx context.Context) error {
	if !w.inShutdown.CompareAndSwap(false, true) || !w.started.Load() {
		return nil
	}

	w.cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before head watcher exited: %w", ctx.Err())
	case <-w.doneCh:
	}

	return nil
}
