package stability

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

// Finding is the outcome of one document integrity check that needed healing.
type Finding struct {
	Document   string          `json:"document"`
	Kind       ConfigErrorKind `json:"kind"`
	Path       string          `json:"path"`
	BackupPath string          `json:"backupPath,omitempty"`
	Message    string          `json:"message"`
	Healed     bool            `json:"healed"`
	CheckedAt  time.Time       `json:"checkedAt"`
}

// SelfUsage is a raw reading of the daemon's own process.
type SelfUsage struct {
	ResidentBytes uint64
	CPUSeconds    float64
	Threads       int
}

// SelfHealthSnapshot is the evaluated self health of the daemon.
type SelfHealthSnapshot struct {
	Timestamp      time.Time     `json:"timestamp"`
	ResidentBytes  uint64        `json:"residentBytes"`
	CPUPercent     float64       `json:"cpuPercent"`
	Threads        int           `json:"threads"`
	Goroutines     int           `json:"goroutines"`
	Uptime         time.Duration `json:"uptime"`
	MemoryExceeded bool          `json:"memoryExceeded"`
	CPUExceeded    bool          `json:"cpuExceeded"`
	Mitigated      bool          `json:"mitigated"`
	ErrorCount     int64         `json:"errorCount"`
	RecoveryCount  int64         `json:"recoveryCount"`
	LastError      string        `json:"lastError,omitempty"`
}

// Breached reports whether any self limit is exceeded.
func (s SelfHealthSnapshot) Breached() bool {
	return s.MemoryExceeded || s.CPUExceeded
}

// FinalStats is persisted on shutdown.
type FinalStats struct {
	Timestamp     time.Time            `json:"timestamp"`
	Uptime        time.Duration        `json:"uptime"`
	Delivery      *delivery.Stats      `json:"delivery,omitempty"`
	Supervisor    *supervisor.Snapshot `json:"supervisor,omitempty"`
	SelfHealth    SelfHealthSnapshot   `json:"selfHealth"`
	ErrorCount    int64                `json:"errorCount"`
	RecoveryCount int64                `json:"recoveryCount"`
}

type journalEntry struct {
	Timestamp     time.Time          `json:"timestamp"`
	Event         string             `json:"event"`
	UptimeSeconds float64            `json:"uptimeSeconds"`
	SelfHealth    SelfHealthSnapshot `json:"selfHealth"`
	Detail        string             `json:"detail,omitempty"`
}

// Config holds the stability manager settings.
type Config struct {
	ConfigDir         string
	StateDir          string
	LogDir            string
	Documents         []Document
	CheckSchedule     string
	CheckTZ           string
	SelfCheckInterval time.Duration
	MaxMemory         resource.Quantity
	MaxCPUPercent     float64
	LogMaxBytes       int64
}
