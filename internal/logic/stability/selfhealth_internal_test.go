package stability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type cpuSampler struct {
	seconds float64
}

func (s *cpuSampler) SampleSelf(context.Context) (SelfUsage, error) {
	return SelfUsage{ResidentBytes: 1 << 20, CPUSeconds: s.seconds}, nil
}

func TestCPUPercentFromDeltas(t *testing.T) {
	t.Parallel()

	sampler := &cpuSampler{}
	m := New(slog.New(slog.DiscardHandler), Config{ConfigDir: t.TempDir()}, Deps{Sampler: sampler})

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	tests := []struct {
		name         string
		giveAdvance  time.Duration
		giveCPU      float64
		wantPercent  float64
		wantExceeded bool
	}{
		{name: "first sample has no baseline", giveAdvance: 0, giveCPU: 5, wantPercent: 0},
		{name: "half a core", giveAdvance: 2 * time.Second, giveCPU: 6, wantPercent: 50},
		{name: "busy", giveAdvance: time.Second, giveCPU: 6.9, wantPercent: 90, wantExceeded: true},
		{name: "counter reset clamps to zero", giveAdvance: time.Second, giveCPU: 1, wantPercent: 0},
	}

	for _, tt := range tests {
		now = now.Add(tt.giveAdvance)
		sampler.seconds = tt.giveCPU

		snap := m.CheckSelfHealth(t.Context())
		require.InDelta(t, tt.wantPercent, snap.CPUPercent, 0.01, tt.name)
		require.Equal(t, tt.wantExceeded, snap.CPUExceeded, tt.name)
		require.Equal(t, tt.wantExceeded, snap.Mitigated, tt.name)
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigDir: "/etc/watchhamster"}.withDefaults()

	require.Equal(t, "/etc/watchhamster", cfg.StateDir)
	require.Equal(t, "1000Mi", cfg.MaxMemory.String())
	require.Len(t, cfg.Documents, 3)
	require.Equal(t, DefaultCheckSchedule, cfg.CheckSchedule)
	require.Equal(t, int64(DefaultLogMaxBytes), cfg.LogMaxBytes)
}
