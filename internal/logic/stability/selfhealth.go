package stability

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/watchhamster/internal/infra/metrics"
)

// CheckSelfHealth samples the daemon itself, mitigates a limit breach and notifies health callbacks.
func (m *Manager) CheckSelfHealth(ctx context.Context) SelfHealthSnapshot {
	m.selfMu.Lock()
	defer m.selfMu.Unlock()

	now := m.now()
	snap := SelfHealthSnapshot{
		Timestamp:  now,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     now.Sub(m.startedAt),
	}

	if m.sampler == nil {
		snap.LastError = ErrNoSelfSampler.Error()
	} else if usage, err := m.sampler.SampleSelf(ctx); err != nil {
		snap.LastError = fmt.Sprintf("sample self: %v", err)
		m.logger.WarnContext(ctx, "self health sample failed", "reason", err)
	} else {
		m.evaluate(&snap, usage)
	}

	if snap.Breached() {
		m.mitigate(ctx, &snap)
	} else if m.breached {
		m.breached = false
		m.logger.InfoContext(ctx, "self health back within limits",
			"residentBytes", snap.ResidentBytes,
			"cpuPercent", snap.CPUPercent,
		)
	}

	snap.ErrorCount = m.errorCount.Load()
	snap.RecoveryCount = m.recoveryCount.Load()

	m.mu.Lock()
	m.last = snap
	m.lastSelfCheck = now
	m.mu.Unlock()

	metrics.SetSelfUsage(snap.ResidentBytes, snap.CPUPercent)

	m.notifyHealth(ctx, snap)

	return snap
}

// SelfHealth returns the last self health snapshot.
func (m *Manager) SelfHealth() SelfHealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.last
}

func (m *Manager) evaluate(snap *SelfHealthSnapshot, usage SelfUsage) {
	snap.ResidentBytes = usage.ResidentBytes
	snap.Threads = usage.Threads

	if !m.prevSampleAt.IsZero() {
		elapsed := snap.Timestamp.Sub(m.prevSampleAt).Seconds()
		if elapsed > 0 {
			snap.CPUPercent = max(0, (usage.CPUSeconds-m.prevCPUSeconds)/elapsed*percentScale)
		}
	}

	m.prevCPUSeconds = usage.CPUSeconds
	m.prevSampleAt = snap.Timestamp

	snap.MemoryExceeded = int64(usage.ResidentBytes) > m.cfg.MaxMemory.Value() //nolint:gosec // RSS fits int64
	snap.CPUExceeded = snap.CPUPercent > m.cfg.MaxCPUPercent
}

// mitigate sweeps the cache and forces a GC on every breached sample.
// Callbacks, the alert and the journal entry fire only when the breach starts.
func (m *Manager) mitigate(ctx context.Context, snap *SelfHealthSnapshot) {
	entering := !m.breached
	m.breached = true

	swept := 0
	if m.sweeper != nil {
		swept = m.sweeper.SweepNow(ctx)
	}

	runtime.GC()
	debug.FreeOSMemory()

	snap.Mitigated = true
	metrics.RecordSelfMitigation()

	recovered := m.runRecovery(ctx, RecoveryMemoryCleanup)

	m.logger.WarnContext(ctx, "self health limit exceeded, mitigation applied",
		"residentBytes", snap.ResidentBytes,
		"cpuPercent", snap.CPUPercent,
		"swept", swept,
		"recovered", recovered,
	)

	if !entering {
		return
	}

	msg := m.describeBreach(*snap)

	kind := errorKindCPU
	if snap.MemoryExceeded {
		kind = errorKindMemory
	}

	m.reportError(ctx, kind, msg)
	m.raise(ctx, "WatchHamster self health limit exceeded",
		fmt.Sprintf("%s Cache sweep released %d entries and a garbage collection was forced.", msg, swept))
	m.journal(ctx, eventMitigation, msg)
}

func (m *Manager) describeBreach(snap SelfHealthSnapshot) string {
	rss := resource.NewQuantity(int64(snap.ResidentBytes), resource.BinarySI) //nolint:gosec // RSS fits int64

	switch {
	case snap.MemoryExceeded && snap.CPUExceeded:
		return fmt.Sprintf("Memory %s exceeds %s and CPU %.1f%% exceeds %.1f%%.",
			rss, &m.cfg.MaxMemory, snap.CPUPercent, m.cfg.MaxCPUPercent)
	case snap.MemoryExceeded:
		return fmt.Sprintf("Memory %s exceeds %s.", rss, &m.cfg.MaxMemory)
	default:
		return fmt.Sprintf("CPU %.1f%% exceeds %.1f%%.", snap.CPUPercent, m.cfg.MaxCPUPercent)
	}
}
