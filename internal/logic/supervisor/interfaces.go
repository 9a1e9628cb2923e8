package supervisor

import (
	"context"
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
)

// ProcessRepository is the port for OS process discovery and launching.
type ProcessRepository interface {
	// FindProcesses returns live processes whose cmdline or name contains pattern.
	FindProcesses(ctx context.Context, pattern string) ([]ProcessInfo, error)

	// StartProcess launches spec detached and returns its PID.
	StartProcess(ctx context.Context, spec ProcessSpec) (int, error)
}

// ResourceSampler is the port for host CPU, memory and disk usage.
type ResourceSampler interface {
	SampleResources(ctx context.Context) (ResourceUsage, error)
}

// RepoInspector is the port for the working tree check.
type RepoInspector interface {
	Inspect(ctx context.Context) (RepoState, error)
}

type sampleCache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) int
	Delete(key string) bool
}

type scheduler interface {
	Run(ctx context.Context, spec, tz string, fn func(ctx context.Context)) error
}

// AlertSink receives supervisor alerts.
type AlertSink = alert.Sink
