package fswatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/skillcoder/watchhamster/internal/logic/stability"
)

const changesBuffer = 16

type watcher struct {
	logger *slog.Logger
}

// New creates a directory watcher backed by fsnotify.
func New(logger *slog.Logger) stability.DirWatcher {
	return &watcher{logger: logger.With("component", "fswatch")}
}

var _ stability.DirWatcher = (*watcher)(nil)

// Watch streams base names of files written, created, removed or renamed in dir.
// The channel is closed once ctx is done. Bursts beyond the buffer are coalesced by dropping.
func (w *watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fw.Add(dir); err != nil {
		_ = fw.Close()

		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	out := make(chan string, changesBuffer)
	logger := w.logger.With("dir", dir)

	go func() {
		defer close(out)
		defer func() {
			if err := fw.Close(); err != nil {
				logger.WarnContext(ctx, "close fsnotify watcher", "reason", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}

				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}

				select {
				case out <- filepath.Base(ev.Name):
				default:
					logger.DebugContext(ctx, "change dropped, consumer is busy", "file", ev.Name)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}

				logger.WarnContext(ctx, "fsnotify error", "reason", err)
			}
		}
	}()

	logger.DebugContext(ctx, "watching directory")

	return out, nil
}
