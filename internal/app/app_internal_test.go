package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/config"
	"github.com/skillcoder/watchhamster/internal/infra/appstate"
	"github.com/skillcoder/watchhamster/internal/infra/pinger"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
)

type allChannelsCloseCase struct {
	name                         string
	giveNumChannels              int
	giveContextCancelBeforeClose bool
	wantClosed                   bool
}

func TestAllChannelsClose(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	tests := []allChannelsCloseCase{
		{
			name:            "zero channels closes immediately",
			giveNumChannels: 0,
			wantClosed:      true,
		},
		{
			name:            "one channel closes when it closes",
			giveNumChannels: 1,
			wantClosed:      true,
		},
		{
			name:            "two channels close when both close",
			giveNumChannels: 2,
			wantClosed:      true,
		},
		{
			name:                         "context cancelled then channels close",
			giveNumChannels:              2,
			giveContextCancelBeforeClose: true,
			wantClosed:                   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := t.Context()

			if tt.giveContextCancelBeforeClose {
				var cancel context.CancelFunc

				ctx, cancel = context.WithCancel(ctx)
				cancel()
			}

			chans := make([]<-chan struct{}, 0, tt.giveNumChannels)
			readyChans := make([]chan struct{}, 0, tt.giveNumChannels)

			for range tt.giveNumChannels {
				ch := make(chan struct{})

				readyChans = append(readyChans, ch)
				chans = append(chans, ch)
			}

			out := allChannelsClose(ctx, logger, chans...)

			if tt.giveNumChannels == 0 {
				select {
				case <-out:
				case <-time.After(100 * time.Millisecond):
					t.Fatal("expected out channel to close immediately")
				}

				return
			}

			for _, ch := range readyChans {
				close(ch)
			}

			select {
			case <-out:
			case <-time.After(500 * time.Millisecond):
				t.Fatal("expected out channel to close after all input channels closed")
			}
		})
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	cfg := config.Defaults()
	cfg.HTTPPort = "0"
	cfg.MetricsPort = "0"
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Stability.ConfigDir = filepath.Join(dir, "config")
	cfg.Stability.StateDir = filepath.Join(dir, "state")
	cfg.Stability.LogDir = filepath.Join(dir, "logs")
	require.NoError(t, cfg.Validate())

	return cfg
}

func TestAppRun(t *testing.T) {
	const queued = 10

	var received atomic.Int64

	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	logger := slog.New(slog.DiscardHandler)
	cfg := testConfig(t)
	cfg.Delivery.Workers = 1
	cfg.Delivery.Routes = map[string]string{alert.DefaultRoute: webhook.URL}

	pingers := pinger.New(logger, time.Second)
	quit := make(chan os.Signal, 1)
	appState := appstate.New(logger, time.Now(), "", quit, pingers)

	application, err := New(logger, cfg, appState, pingers)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- application.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return appState.GetState() == appstate.StateRunning
	}, 10*time.Second, 20*time.Millisecond)

	for _, doc := range stability.DefaultDocuments() {
		require.FileExists(t, filepath.Join(cfg.Stability.ConfigDir, doc.Name))
	}

	pipeline := findPipeline(t, application)

	for i := range queued {
		_, err := pipeline.Submit(t.Context(),
			alert.NewEvent(alert.SeverityNormal, "test", "", fmt.Sprintf("queued %d", i), "pending at shutdown"))
		require.NoError(t, err)
	}

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("application did not stop")
	}

	require.Equal(t, appstate.StateTerminated, appState.GetState())

	data, err := os.ReadFile(filepath.Join(cfg.Stability.StateDir, "final_stats.json"))
	require.NoError(t, err)

	var stats stability.FinalStats
	require.NoError(t, json.Unmarshal(data, &stats))
	require.NotNil(t, stats.Delivery)

	require.Zero(t, pipeline.QueueDepth())
	require.GreaterOrEqual(t, received.Load(), int64(queued))
}

func findPipeline(t *testing.T, a *App) *delivery.Pipeline {
	t.Helper()

	for _, c := range a.components {
		if p, ok := c.(*delivery.Pipeline); ok {
			return p
		}
	}

	t.Fatal("delivery pipeline is not wired")

	return nil
}

func TestValidateConfigs(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	findings, err := ValidateConfigs(t.Context(), slog.New(slog.DiscardHandler), cfg)
	require.NoError(t, err)
	require.Len(t, findings, len(stability.DefaultDocuments()))

	for _, f := range findings {
		require.Equal(t, stability.ConfigMissing, f.Kind)
		require.True(t, f.Healed)
	}

	findings, err = ValidateConfigs(t.Context(), slog.New(slog.DiscardHandler), cfg)
	require.NoError(t, err)
	require.Empty(t, findings)
}
