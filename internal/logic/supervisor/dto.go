package supervisor

import (
	"fmt"
	"strings"
	"time"
)

// ProcessState is the supervision state of a managed process.
type ProcessState string

const (
	StateUnknown ProcessState = "Unknown"
	StateRunning ProcessState = "Running"
	StateStopped ProcessState = "Stopped"
	StateError   ProcessState = "Error"
)

// Level is the ordered severity of a resource reading.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

var levelNames = [...]string{"Normal", "Warning", "Critical", "Emergency"}

func (l Level) String() string {
	if l < LevelNormal || l > LevelEmergency {
		return fmt.Sprintf("Level(%d)", int(l))
	}

	return levelNames[l]
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	for i, name := range levelNames {
		if strings.EqualFold(name, string(text)) {
			*l = Level(i)

			return nil
		}
	}

	return fmt.Errorf("parse level %q: unknown level", text)
}

// WorkingTree is the condition of the repository working tree.
type WorkingTree string

const (
	TreeClean    WorkingTree = "Clean"
	TreeModified WorkingTree = "Modified"
	TreeConflict WorkingTree = "Conflict"
	TreeError    WorkingTree = "Error"
)

// Health is the overall system verdict of one snapshot.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// ProcessSpec declares a process to keep alive and how to restart it.
type ProcessSpec struct {
	Name         string   `yaml:"name" json:"name" validate:"required"`
	MatchPattern string   `yaml:"match" json:"match" validate:"required"`
	Command      string   `yaml:"command" json:"command,omitempty"`
	Args         []string `yaml:"args" json:"args,omitempty"`
	WorkDir      string   `yaml:"workDir" json:"workDir,omitempty"`
}

// ProcessInfo is one live OS process reported by the process repository.
type ProcessInfo struct {
	PID        int
	Name       string
	Cmdline    string
	CPUPercent float64
	MemPercent float64
	StartedAt  time.Time
}

// ManagedProcess is the supervision record of one ProcessSpec.
type ManagedProcess struct {
	Name               string       `json:"name"`
	MatchPattern       string       `json:"matchPattern"`
	LastPID            int          `json:"lastPid"`
	State              ProcessState `json:"state"`
	HealthScore        int          `json:"healthScore"`
	CPUPercent         float64      `json:"cpuPercent"`
	MemPercent         float64      `json:"memPercent"`
	RestartCount       int          `json:"restartCount"`
	LastRestartAt      time.Time    `json:"lastRestartAt,omitzero"`
	CooldownUntil      time.Time    `json:"cooldownUntil,omitzero"`
	ManualIntervention bool         `json:"manualIntervention"`
	HealthySince       time.Time    `json:"healthySince,omitzero"`
	LastError          string       `json:"lastError,omitempty"`

	spec ProcessSpec
}

// ResourceUsage is a raw host reading in percent.
type ResourceUsage struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// ResourceSample is a classified host reading.
type ResourceSample struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUPercent   float64   `json:"cpuPercent"`
	MemPercent   float64   `json:"memPercent"`
	DiskPercent  float64   `json:"diskPercent"`
	CPULevel     Level     `json:"cpuLevel"`
	MemLevel     Level     `json:"memLevel"`
	DiskLevel    Level     `json:"diskLevel"`
	OverallLevel Level     `json:"overallLevel"`
}

// RepoState is the result of one repository inspection.
type RepoState struct {
	Branch        string      `json:"branch"`
	CommitShort   string      `json:"commitShort"`
	WorkingTree   WorkingTree `json:"workingTree"`
	ConflictFiles []string    `json:"conflictFiles,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
	CheckedAt     time.Time   `json:"checkedAt"`
}

// Snapshot is the consolidated result of one sampling cycle.
type Snapshot struct {
	Timestamp     time.Time        `json:"timestamp"`
	Processes     []ManagedProcess `json:"processes"`
	Resources     *ResourceSample  `json:"resources,omitempty"`
	ResourceError string           `json:"resourceError,omitempty"`
	Repo          *RepoState       `json:"repo,omitempty"`
	RunningRatio  float64          `json:"runningRatio"`
	OverallHealth Health           `json:"overallHealth"`
	Uptime        time.Duration    `json:"uptime"`
}

// ThresholdTable holds one threshold set per resource.
type ThresholdTable struct {
	CPU    Thresholds `yaml:"cpu" validate:"required"`
	Memory Thresholds `yaml:"memory" validate:"required"`
	Disk   Thresholds `yaml:"disk" validate:"required"`
}

// Config holds the supervisor settings.
type Config struct {
	Processes            []ProcessSpec
	Interval             time.Duration
	RepoInterval         time.Duration
	MaxRestartAttempts   int
	RestartCooldown      time.Duration
	RestartResetAfter    time.Duration
	Thresholds           ThresholdTable
	ResourceCacheTTL     time.Duration
	HistorySize          int
	StatusReportSchedule string
	StatusReportTZ       string
}
