package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

type resourceSampler struct {
	logger   *slog.Logger
	fs       procfs.FS
	diskPath string

	mu      sync.Mutex
	prevCPU *procfs.CPUStat
}

// NewResourceSampler reads CPU and memory from fs and disk usage of the filesystem holding diskPath.
func NewResourceSampler(
	logger *slog.Logger,
	fs procfs.FS,
	diskPath string,
) supervisor.ResourceSampler {
	return &resourceSampler{
		logger:   logger.With("component", "host-resources"),
		fs:       fs,
		diskPath: diskPath,
	}
}

var _ supervisor.ResourceSampler = (*resourceSampler)(nil)

// SampleResources reports CPU busy time since the previous call; the first call covers the time since boot.
func (r *resourceSampler) SampleResources(ctx context.Context) (supervisor.ResourceUsage, error) {
	if err := ctx.Err(); err != nil {
		return supervisor.ResourceUsage{}, err
	}

	stat, err := r.fs.Stat()
	if err != nil {
		return supervisor.ResourceUsage{}, fmt.Errorf("read cpu stat: %w", err)
	}

	mi, err := r.fs.Meminfo()
	if err != nil {
		return supervisor.ResourceUsage{}, fmt.Errorf("read meminfo: %w", err)
	}

	memPct, err := memUsedPercent(mi)
	if err != nil {
		return supervisor.ResourceUsage{}, fmt.Errorf("read meminfo: %w", err)
	}

	diskPct, err := r.diskPercent()
	if err != nil {
		return supervisor.ResourceUsage{}, err
	}

	r.mu.Lock()
	prev := procfs.CPUStat{}
	if r.prevCPU != nil {
		prev = *r.prevCPU
	}

	cur := stat.CPUTotal
	r.prevCPU = &cur
	r.mu.Unlock()

	usage := supervisor.ResourceUsage{
		CPUPercent:  cpuBusyPercent(prev, cur),
		MemPercent:  memPct,
		DiskPercent: diskPct,
	}

	r.logger.DebugContext(ctx, "host resources sampled",
		"cpu", usage.CPUPercent,
		"memory", usage.MemPercent,
		"disk", usage.DiskPercent,
	)

	return usage, nil
}

func (r *resourceSampler) diskPercent() (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(r.diskPath, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", r.diskPath, err)
	}

	return diskUsedPercent(st.Blocks, st.Bfree, st.Bavail), nil
}
