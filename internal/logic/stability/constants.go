package stability

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	DefaultCheckSchedule     = "* * * * *"
	DefaultSelfCheckInterval = 30 * time.Second
	DefaultMaxMemory         = "1000Mi"
	DefaultMaxCPUPercent     = 80.0
	DefaultLogMaxBytes       = 10 << 20

	// RecoveryMemoryCleanup is passed to recovery callbacks when memory is over the limit.
	RecoveryMemoryCleanup = "memory_cleanup"

	backupDirName    = "backup"
	backupTimeLayout = "20060102_150405"
	journalFileName  = "system_status.jsonl"
	finalStatsFile   = "final_stats.json"
	logFileSuffix    = ".log"
	rotatedLogSuffix = ".backup"
	sourceName       = "stability"
	dirPerm          = 0o755
	filePerm         = 0o644
	percentScale     = 100

	eventStart         = "start"
	eventShutdown      = "shutdown"
	eventMitigation    = "mitigation"
	eventConfigHealed  = "config_healed"
	eventLogRotated    = "log_rotated"
	errorKindMemory    = "high_memory_usage"
	errorKindCPU       = "high_cpu_usage"
	errorKindConfig    = "config_integrity"
	errorKindSelfCheck = "self_health_check"
)

func (c Config) withDefaults() Config {
	if c.Documents == nil {
		c.Documents = DefaultDocuments()
	}

	if c.CheckSchedule == "" {
		c.CheckSchedule = DefaultCheckSchedule
	}

	if c.SelfCheckInterval <= 0 {
		c.SelfCheckInterval = DefaultSelfCheckInterval
	}

	if c.MaxMemory.IsZero() {
		c.MaxMemory = resource.MustParse(DefaultMaxMemory)
	}

	if c.MaxCPUPercent <= 0 {
		c.MaxCPUPercent = DefaultMaxCPUPercent
	}

	if c.LogMaxBytes <= 0 {
		c.LogMaxBytes = DefaultLogMaxBytes
	}

	if c.StateDir == "" {
		c.StateDir = c.ConfigDir
	}

	return c
}
