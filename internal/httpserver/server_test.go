package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/httpserver"
	"github.com/skillcoder/watchhamster/internal/infra/appstate"
	"github.com/skillcoder/watchhamster/internal/infra/pinger"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

type fakePipeline struct {
	mu        sync.Mutex
	submitted []alert.Event
	err       error
	failed    []delivery.FailedDelivery
}

func (f *fakePipeline) Submit(_ context.Context, event alert.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	f.submitted = append(f.submitted, event)

	return event.ID, nil
}

func (f *fakePipeline) Stats() delivery.Stats {
	return delivery.Stats{TotalSent: 3, Succeeded: 2, Failed: 1}
}

func (f *fakePipeline) Failed() []delivery.FailedDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.failed
}

func (f *fakePipeline) ClearFailed() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.failed)
	f.failed = nil

	return n
}

type fakeSupervisor struct {
	last         *supervisor.Snapshot
	snap         supervisor.Snapshot
	err          error
	samples      int
	sampleCtxErr error
}

func (f *fakeSupervisor) Snapshot() (supervisor.Snapshot, bool) {
	if f.last == nil {
		return supervisor.Snapshot{}, false
	}

	return *f.last, true
}

func (f *fakeSupervisor) SampleOnce(ctx context.Context) (supervisor.Snapshot, error) {
	f.samples++
	f.sampleCtxErr = ctx.Err()

	return f.snap, f.err
}

type fakeStability struct {
	findings []stability.Finding
}

func (f *fakeStability) ValidateConfigs(context.Context) []stability.Finding {
	return f.findings
}

func (f *fakeStability) CheckSelfHealth(context.Context) stability.SelfHealthSnapshot {
	return stability.SelfHealthSnapshot{ResidentBytes: 42 << 20, Threads: 7}
}

func newAppState(t *testing.T, logger *slog.Logger) *appstate.AppState {
	t.Helper()

	quit := make(chan os.Signal, 1)
	pingerSvc := pinger.New(logger, time.Second)

	return appstate.New(logger, time.Now(), "", quit, pingerSvc)
}

func newTestServer(t *testing.T, deps httpserver.Deps) http.Handler {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	srv := httpserver.New(logger, newAppState(t, logger), deps, "")

	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequestWithContext(t.Context(), method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestServer_Name(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	srv := httpserver.New(logger, newAppState(t, logger), httpserver.Deps{}, "")

	require.Equal(t, "http-server", srv.Name())
	require.Equal(t, "metrics-server", httpserver.NewMetricsServer(logger, "").Name())
}

func TestSubmitAlert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		giveBody   string
		giveErr    error
		wantStatus int
	}{
		{
			name:       "accepted",
			giveBody:   `{"severity":"high","title":"Disk almost full","body":"93%"}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "malformed json",
			giveBody:   `{"severity":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing title",
			giveBody:   `{"severity":"low"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown severity",
			giveBody:   `{"severity":"urgent","title":"x"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "queue full",
			giveBody:   `{"severity":"low","title":"x"}`,
			giveErr:    &delivery.BackpressureError{Depth: 10, Capacity: 10},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "pipeline closed",
			giveBody:   `{"severity":"low","title":"x"}`,
			giveErr:    delivery.ErrPipelineClosed,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "rejected by pipeline",
			giveBody:   `{"severity":"low","title":"x"}`,
			giveErr:    delivery.ErrInvalidEvent,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unexpected error",
			giveBody:   `{"severity":"low","title":"x"}`,
			giveErr:    errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pipeline := &fakePipeline{err: tt.giveErr}
			h := newTestServer(t, httpserver.Deps{Pipeline: pipeline})

			rec := do(t, h, http.MethodPost, "/api/v1/alerts", tt.giveBody)
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantStatus != http.StatusAccepted {
				return
			}

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotEmpty(t, resp["id"])

			require.Len(t, pipeline.submitted, 1)
			ev := pipeline.submitted[0]
			require.Equal(t, resp["id"], ev.ID)
			require.Equal(t, alert.SeverityHigh, ev.Severity)
			require.Equal(t, "api", ev.Source)
			require.Equal(t, alert.DefaultRoute, ev.RouteKey)
		})
	}
}

func TestDeliveryEndpoints(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{
		failed: []delivery.FailedDelivery{
			{Event: alert.NewEvent(alert.SeverityHigh, "test", "", "t", "b"), RetryCount: 3, LastError: "timeout"},
		},
	}
	h := newTestServer(t, httpserver.Deps{Pipeline: pipeline})

	rec := do(t, h, http.MethodGet, "/api/v1/delivery/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats delivery.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, uint64(3), stats.TotalSent)

	rec = do(t, h, http.MethodGet, "/api/v1/delivery/failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":1`)
	require.Contains(t, rec.Body.String(), `"lastError":"timeout"`)

	rec = do(t, h, http.MethodDelete, "/api/v1/delivery/failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"cleared":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/delivery/failed", "")
	require.JSONEq(t, `{"count":0,"failed":[]}`, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("snapshot", func(t *testing.T) {
		t.Parallel()

		sup := &fakeSupervisor{snap: supervisor.Snapshot{
			RunningRatio:  1,
			OverallHealth: supervisor.HealthHealthy,
		}}
		h := newTestServer(t, httpserver.Deps{Supervisor: sup})

		rec := do(t, h, http.MethodGet, "/api/v1/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var snap supervisor.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		require.Equal(t, supervisor.HealthHealthy, snap.OverallHealth)
	})

	t.Run("latest cycle served without sampling", func(t *testing.T) {
		t.Parallel()

		sup := &fakeSupervisor{last: &supervisor.Snapshot{OverallHealth: supervisor.HealthDegraded}}
		h := newTestServer(t, httpserver.Deps{Supervisor: sup})

		rec := do(t, h, http.MethodGet, "/api/v1/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Zero(t, sup.samples)

		var snap supervisor.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		require.Equal(t, supervisor.HealthDegraded, snap.OverallHealth)
	})

	t.Run("first cycle outlives the request", func(t *testing.T) {
		t.Parallel()

		sup := &fakeSupervisor{snap: supervisor.Snapshot{OverallHealth: supervisor.HealthHealthy}}
		h := newTestServer(t, httpserver.Deps{Supervisor: sup})

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/api/v1/health", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, sup.samples)
		require.NoError(t, sup.sampleCtxErr)
	})

	t.Run("sampling error", func(t *testing.T) {
		t.Parallel()

		h := newTestServer(t, httpserver.Deps{Supervisor: &fakeSupervisor{err: errors.New("procfs gone")}})

		rec := do(t, h, http.MethodGet, "/api/v1/health", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Contains(t, rec.Body.String(), "procfs gone")
	})
}

func TestStabilityEndpoints(t *testing.T) {
	t.Parallel()

	st := &fakeStability{findings: []stability.Finding{
		{Document: stability.GUIDocumentName, Kind: stability.ConfigMissing, Healed: true},
	}}
	h := newTestServer(t, httpserver.Deps{Stability: st})

	rec := do(t, h, http.MethodPost, "/api/v1/configs/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":1`)
	require.Contains(t, rec.Body.String(), stability.GUIDocumentName)

	rec = do(t, h, http.MethodGet, "/api/v1/self-health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap stability.SelfHealthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, 7, snap.Threads)
}

func TestProbes(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, httpserver.Deps{})

	rec := do(t, h, http.MethodGet, "/-/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"init"`)

	rec = do(t, h, http.MethodGet, "/-/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	srv := httpserver.New(logger, newAppState(t, logger), httpserver.Deps{}, "0")

	require.Error(t, srv.Ping(t.Context()))
	require.NoError(t, srv.Start(t.Context()))

	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	require.NoError(t, srv.Ping(t.Context()))

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://127.0.0.1:"+port+"/-/status", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, srv.Shutdown(shutdownCtx))
	require.NoError(t, srv.Shutdown(shutdownCtx))
}
