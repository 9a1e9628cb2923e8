package stability

import (
	"context"

	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

// SelfSampler reads the resource usage of the daemon's own process.
type SelfSampler interface {
	SampleSelf(ctx context.Context) (SelfUsage, error)
}

// DirWatcher streams base names of files changed in dir until ctx is done.
type DirWatcher interface {
	Watch(ctx context.Context, dir string) (<-chan string, error)
}

// CacheSweeper removes expired cache entries on demand.
type CacheSweeper interface {
	SweepNow(ctx context.Context) int
}

// DeliveryStatsSource is the pipeline view persisted on shutdown.
type DeliveryStatsSource interface {
	Stats() delivery.Stats
}

// SnapshotSource is the supervisor view persisted on shutdown.
type SnapshotSource interface {
	Snapshot() (supervisor.Snapshot, bool)
}

type scheduler interface {
	Run(ctx context.Context, spec, tz string, fn func(ctx context.Context)) error
}

// ErrorCallback receives a kind and a human readable message for every reported problem.
type ErrorCallback func(kind, message string)

// RecoveryCallback runs a recovery action and reports whether it succeeded.
type RecoveryCallback func(action string) bool

// HealthCallback receives every self health snapshot.
type HealthCallback func(snapshot SelfHealthSnapshot)
