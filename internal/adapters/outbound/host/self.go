package host

import (
	"context"
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/skillcoder/watchhamster/internal/logic/stability"
)

type selfSampler struct {
	fs procfs.FS
}

// NewSelfSampler reads the daemon's own stat from fs.
func NewSelfSampler(fs procfs.FS) stability.SelfSampler {
	return &selfSampler{fs: fs}
}

var _ stability.SelfSampler = (*selfSampler)(nil)

func (s *selfSampler) SampleSelf(context.Context) (stability.SelfUsage, error) {
	p, err := s.fs.Self()
	if err != nil {
		return stability.SelfUsage{}, fmt.Errorf("open self: %w", err)
	}

	stat, err := p.Stat()
	if err != nil {
		return stability.SelfUsage{}, fmt.Errorf("read self stat: %w", err)
	}

	return stability.SelfUsage{
		ResidentBytes: uint64(stat.ResidentMemory()), //nolint:gosec // never negative
		CPUSeconds:    stat.CPUTime(),
		Threads:       stat.NumThreads,
	}, nil
}
