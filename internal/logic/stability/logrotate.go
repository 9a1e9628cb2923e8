package stability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RotateLogs moves every *.log file in the log dir larger than the limit to
// <file>.<timestamp>.backup and returns the new backup paths.
func (m *Manager) RotateLogs(ctx context.Context) ([]string, error) {
	if m.cfg.LogDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(m.cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	var rotated []string

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logFileSuffix) {
			continue
		}

		info, err := e.Info()
		if err != nil || info.Size() <= m.cfg.LogMaxBytes {
			continue
		}

		path := filepath.Join(m.cfg.LogDir, e.Name())
		backup := path + "." + m.now().Format(backupTimeLayout) + rotatedLogSuffix

		if err := os.Rename(path, backup); err != nil {
			m.logger.WarnContext(ctx, "rotate log file", "file", path, "reason", err)

			continue
		}

		if err := os.WriteFile(path, nil, filePerm); err != nil {
			m.logger.WarnContext(ctx, "recreate log file", "file", path, "reason", err)
		}

		m.logger.InfoContext(ctx, "log file rotated", "file", path, "backup", backup, "size", info.Size())
		m.journal(ctx, eventLogRotated, e.Name())

		rotated = append(rotated, backup)
	}

	return rotated, nil
}
