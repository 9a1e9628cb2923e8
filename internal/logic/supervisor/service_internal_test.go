package supervisor

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/logic/ttlcache"
)

type stubProcesses struct {
	alive  bool
	starts int
}

func (s *stubProcesses) FindProcesses(context.Context, string) ([]ProcessInfo, error) {
	if !s.alive {
		return nil, nil
	}

	return []ProcessInfo{{PID: 42}}, nil
}

func (s *stubProcesses) StartProcess(context.Context, ProcessSpec) (int, error) {
	s.starts++

	return 42, nil
}

type stubSampler struct{}

func (stubSampler) SampleResources(context.Context) (ResourceUsage, error) {
	return ResourceUsage{}, nil
}

func TestRestartCooldownAndReset(t *testing.T) {
	t.Parallel()

	procs := &stubProcesses{}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s := New(slog.New(slog.DiscardHandler), Config{
		Processes:          []ProcessSpec{{Name: "worker", MatchPattern: "worker", Command: "worker"}},
		MaxRestartAttempts: 2,
		RestartCooldown:    time.Minute,
		RestartResetAfter:  10 * time.Minute,
	}, Ports{
		Processes: procs,
		Resources: stubSampler{},
		Cache:     ttlcache.New[any](),
	})
	s.now = func() time.Time { return now }

	step := func(d time.Duration) ManagedProcess {
		t.Helper()

		now = now.Add(d)

		snap, err := s.SampleOnce(t.Context())
		require.NoError(t, err)

		return snap.Processes[0]
	}

	p := step(0)
	require.Equal(t, 1, p.RestartCount)
	require.Equal(t, now.Add(time.Minute), p.CooldownUntil)

	p = step(30 * time.Second)
	require.Equal(t, 1, p.RestartCount, "restart inside cooldown")

	p = step(31 * time.Second)
	require.Equal(t, 2, p.RestartCount)

	p = step(2 * time.Minute)
	require.True(t, p.ManualIntervention)
	require.Equal(t, 2, procs.starts)

	procs.alive = true

	p = step(time.Second)
	require.Equal(t, StateRunning, p.State)
	require.True(t, p.ManualIntervention)
	require.Equal(t, now, p.HealthySince)

	p = step(9 * time.Minute)
	require.Equal(t, 2, p.RestartCount, "healthy for less than reset window")

	p = step(time.Minute)
	require.Zero(t, p.RestartCount)
	require.False(t, p.ManualIntervention)

	procs.alive = false

	p = step(time.Second)
	require.Equal(t, StateStopped, p.State)
	require.Equal(t, 1, p.RestartCount)
	require.Equal(t, 3, procs.starts)
}

func TestNewestProcess(t *testing.T) {
	t.Parallel()

	base := time.Now()

	got := newestProcess([]ProcessInfo{
		{PID: 5, StartedAt: base},
		{PID: 9, StartedAt: base.Add(-time.Second)},
		{PID: 7, StartedAt: base},
	})

	require.Equal(t, 7, got.PID)
}

func TestLevelSeverity(t *testing.T) {
	t.Parallel()

	require.Equal(t, "critical", levelSeverity(LevelEmergency).String())
	require.Equal(t, "high", levelSeverity(LevelCritical).String())
	require.Equal(t, "normal", levelSeverity(LevelWarning).String())
	require.Equal(t, "low", levelSeverity(LevelNormal).String())
}
