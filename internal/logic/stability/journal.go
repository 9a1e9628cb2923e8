package stability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func (m *Manager) journal(ctx context.Context, event, detail string) {
	now := m.now()

	entry := journalEntry{
		Timestamp:     now,
		Event:         event,
		UptimeSeconds: now.Sub(m.startedAt).Seconds(),
		SelfHealth:    m.SelfHealth(),
		Detail:        detail,
	}

	if err := m.appendJournal(entry); err != nil {
		m.logger.WarnContext(ctx, "append status journal", "event", event, "reason", err)
	}
}

func (m *Manager) appendJournal(entry journalEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	m.journalMu.Lock()
	defer m.journalMu.Unlock()

	path := filepath.Join(m.cfg.StateDir, journalFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()

		return fmt.Errorf("write journal: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	return nil
}

func (m *Manager) writeFinalStats(ctx context.Context) error {
	now := m.now()

	stats := FinalStats{
		Timestamp:     now,
		Uptime:        now.Sub(m.startedAt),
		SelfHealth:    m.SelfHealth(),
		ErrorCount:    m.errorCount.Load(),
		RecoveryCount: m.recoveryCount.Load(),
	}

	if m.deliveryStats != nil {
		ds := m.deliveryStats.Stats()
		stats.Delivery = &ds
	}

	if m.snapshots != nil {
		if snap, ok := m.snapshots.Snapshot(); ok {
			stats.Supervisor = &snap
		}
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal final stats: %w", err)
	}

	path := filepath.Join(m.cfg.StateDir, finalStatsFile)
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write final stats: %w", err)
	}

	m.logger.InfoContext(ctx, "final statistics persisted", "path", path)

	return nil
}
