package stability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/skillcoder/watchhamster/internal/infra/metrics"
)

// ValidateConfigs checks every declared document and heals the missing or corrupt ones.
// It never fails; problems are returned as findings and reported through callbacks.
func (m *Manager) ValidateConfigs(ctx context.Context) []Finding {
	m.integrityMu.Lock()
	defer m.integrityMu.Unlock()

	var findings []Finding

	for _, doc := range m.cfg.Documents {
		if ctx.Err() != nil {
			break
		}

		finding, ok := m.checkDocument(ctx, doc)
		if !ok {
			continue
		}

		findings = append(findings, finding)
		m.reportFinding(ctx, finding)
	}

	return findings
}

func (m *Manager) checkDocument(ctx context.Context, doc Document) (Finding, bool) {
	path := filepath.Join(m.cfg.ConfigDir, doc.Name)
	now := m.now()

	cerr := inspectDocument(path, doc.Name)
	if cerr == nil {
		return Finding{}, false
	}

	finding := Finding{
		Document:  doc.Name,
		Kind:      cerr.Kind,
		Path:      path,
		Message:   cerr.Error(),
		CheckedAt: now,
	}

	logger := m.logger.With("document", doc.Name, "kind", cerr.Kind)
	logger.WarnContext(ctx, "config document failed integrity check", "reason", cerr)

	if cerr.Kind == ConfigCorrupt {
		backup, err := m.backupCorrupt(path, doc.Name, now)
		if err != nil {
			logger.ErrorContext(ctx, "backup corrupt document", "reason", err)
			finding.Message = fmt.Sprintf("%s; backup failed: %v", finding.Message, err)
		}

		finding.BackupPath = backup
	}

	if err := writeDefault(path, doc.Default); err != nil {
		logger.ErrorContext(ctx, "restore default document", "reason", err)
		finding.Message = fmt.Sprintf("%s; restore failed: %v", finding.Message, err)

		return finding, true
	}

	finding.Healed = true
	metrics.RecordConfigHeal(doc.Name, string(cerr.Kind))

	logger.InfoContext(ctx, "config document restored to defaults", "backup", finding.BackupPath)

	return finding, true
}

// inspectDocument returns nil when path holds a JSON object.
func inspectDocument(path, name string) *ConfigError {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ConfigError{Kind: ConfigMissing, Document: name}
	}

	if err != nil {
		return &ConfigError{Kind: ConfigCorrupt, Document: name, Err: err}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return &ConfigError{Kind: ConfigCorrupt, Document: name, Err: err}
	}

	if obj == nil {
		return &ConfigError{Kind: ConfigCorrupt, Document: name, Err: errors.New("document is null")}
	}

	return nil
}

func (m *Manager) backupCorrupt(path, name string, now time.Time) (string, error) {
	dir := filepath.Join(m.cfg.ConfigDir, backupDirName)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrCreateDir, dir, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read corrupt document: %w", err)
	}

	backup := filepath.Join(dir, fmt.Sprintf("%s.%s.corrupt", name, now.Format(backupTimeLayout)))
	if err := os.WriteFile(backup, data, filePerm); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	return backup, nil
}

func writeDefault(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default document: %w", err)
	}

	return writeFileAtomic(path, append(data, '\n'))
}

// writeFileAtomic replaces path with data through a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func (m *Manager) reportFinding(ctx context.Context, f Finding) {
	m.reportError(ctx, errorKindConfig, f.Message)

	body := fmt.Sprintf("%s was %s and has been restored to defaults.", f.Document, f.Kind)
	if f.BackupPath != "" {
		body += " The previous content was saved to " + f.BackupPath + "."
	}

	if !f.Healed {
		body = fmt.Sprintf("%s is %s and could not be restored: %s", f.Document, f.Kind, f.Message)
	}

	m.raise(ctx, "Configuration "+f.Document+" healed", body)
	m.journal(ctx, eventConfigHealed, f.Document+": "+string(f.Kind))
}

func (m *Manager) isDocument(name string) bool {
	for _, doc := range m.cfg.Documents {
		if doc.Name == name {
			return true
		}
	}

	return false
}
