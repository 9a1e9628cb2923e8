package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/procfs"

	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

type cpuSample struct {
	cpuSeconds float64
	at         time.Time
}

type processRepository struct {
	logger *slog.Logger
	fs     procfs.FS
	selfID int
	now    func() time.Time

	mu   sync.Mutex
	prev map[int]cpuSample
}

// NewProcessRepository scans fs for processes and launches restarts as detached process groups.
func NewProcessRepository(logger *slog.Logger, fs procfs.FS) supervisor.ProcessRepository {
	return &processRepository{
		logger: logger.With("component", "host-processes"),
		fs:     fs,
		selfID: os.Getpid(),
		now:    time.Now,
		prev:   make(map[int]cpuSample),
	}
}

var _ supervisor.ProcessRepository = (*processRepository)(nil)

func (r *processRepository) FindProcesses(ctx context.Context, pattern string) ([]supervisor.ProcessInfo, error) {
	procs, err := r.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var memTotal uint64
	if mi, err := r.fs.Meminfo(); err == nil && mi.MemTotal != nil {
		memTotal = *mi.MemTotal * 1024
	}

	now := r.now()

	var out []supervisor.ProcessInfo

	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if p.PID == r.selfID {
			continue
		}

		info, ok := r.inspect(p, pattern, memTotal, now)
		if ok {
			out = append(out, info)
		}
	}

	r.forgetExited(procs)

	return out, nil
}

func (r *processRepository) forgetExited(procs procfs.Procs) {
	alive := make(map[int]struct{}, len(procs))
	for _, p := range procs {
		alive[p.PID] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for pid := range r.prev {
		if _, ok := alive[pid]; !ok {
			delete(r.prev, pid)
		}
	}
}

// inspect skips processes that vanish or cannot be read between listing and reading.
func (r *processRepository) inspect(
	p procfs.Proc,
	pattern string,
	memTotal uint64,
	now time.Time,
) (supervisor.ProcessInfo, bool) {
	comm, err := p.Comm()
	if err != nil {
		return supervisor.ProcessInfo{}, false
	}

	cmdline, err := p.CmdLine()
	if err != nil && !errors.Is(err, fs.ErrPermission) {
		return supervisor.ProcessInfo{}, false
	}

	if !matches(pattern, comm, cmdline) {
		return supervisor.ProcessInfo{}, false
	}

	stat, err := p.Stat()
	if err != nil {
		return supervisor.ProcessInfo{}, false
	}

	info := supervisor.ProcessInfo{
		PID:     p.PID,
		Name:    comm,
		Cmdline: strings.Join(cmdline, " "),
	}

	if start, err := stat.StartTime(); err == nil {
		sec, frac := math.Modf(start)
		info.StartedAt = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	}

	if memTotal > 0 {
		info.MemPercent = clampPercent(float64(stat.ResidentMemory()) / float64(memTotal) * percentScale)
	}

	info.CPUPercent = r.cpuPercent(p.PID, stat.CPUTime(), info.StartedAt, now)

	return info, true
}

// cpuPercent uses the delta since the previous scan, or the lifetime average on first sight.
func (r *processRepository) cpuPercent(pid int, cpuSeconds float64, startedAt, now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.prev[pid]
	r.prev[pid] = cpuSample{cpuSeconds: cpuSeconds, at: now}

	base := cpuSample{at: startedAt}
	if seen {
		base = prev
	}

	elapsed := now.Sub(base.at).Seconds()
	if base.at.IsZero() || elapsed <= 0 {
		return 0
	}

	return max(0, (cpuSeconds-base.cpuSeconds)/elapsed*percentScale)
}

func (r *processRepository) StartProcess(ctx context.Context, spec supervisor.ProcessSpec) (int, error) {
	if spec.Command == "" {
		return 0, errEmptyCommand
	}

	//nolint:gosec // command comes from the operator's own configuration
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	pid := cmd.Process.Pid
	logger := r.logger.With("process", spec.Name, "pid", pid)

	logger.InfoContext(ctx, "process launched", "command", spec.Command, "args", spec.Args)

	go func() {
		err := cmd.Wait()
		logger.Info("launched process exited", "reason", err)
	}()

	return pid, nil
}
