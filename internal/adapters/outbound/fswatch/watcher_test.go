package fswatch_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/adapters/outbound/fswatch"
)

func TestWatchReportsChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(t.Context())

	changes, err := fswatch.New(slog.New(slog.DiscardHandler)).Watch(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "gui_config.json"), []byte("{}"), 0o600))

	select {
	case name := <-changes:
		require.Equal(t, "gui_config.json", name)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()

	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchMissingDir(t *testing.T) {
	t.Parallel()

	_, err := fswatch.New(slog.New(slog.DiscardHandler)).Watch(t.Context(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}
