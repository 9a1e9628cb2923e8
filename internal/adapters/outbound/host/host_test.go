package host_test

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/adapters/outbound/host"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

const (
	bootTime   = 1700000000
	memTotalKB = 8192
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func writeCPU(t *testing.T, root string, user, system, idle int) {
	t.Helper()

	line := fmt.Sprintf("cpu  %d 0 %d %d 0 0 0 0 0 0", user, system, idle)
	writeFile(t, filepath.Join(root, "stat"), line+"\n"+
		strings.Replace(line, "cpu ", "cpu0", 1)+"\n"+
		"intr 0\nctxt 0\n"+
		fmt.Sprintf("btime %d\n", bootTime)+
		"processes 10\nprocs_running 1\nprocs_blocked 0\n")
}

func writeProc(t *testing.T, root string, pid int, comm string, cmdline []string, rssPages int) {
	t.Helper()

	dir := filepath.Join(root, fmt.Sprint(pid))

	// utime 50, stime 25, threads 3, starttime 1000 ticks
	stat := fmt.Sprintf("%d (%s) S 1 %d %d 0 -1 4194560 100 0 0 0 50 25 0 0 20 0 3 0 1000 10000000 %d 18446744073709551615",
		pid, comm, pid, pid, rssPages) + strings.Repeat(" 0", 30)

	writeFile(t, filepath.Join(dir, "stat"), stat+"\n")
	writeFile(t, filepath.Join(dir, "comm"), comm+"\n")
	writeFile(t, filepath.Join(dir, "cmdline"), strings.Join(cmdline, "\x00")+"\x00")
}

func newFixture(t *testing.T) (string, procfs.FS) {
	t.Helper()

	root := t.TempDir()
	writeCPU(t, root, 100, 100, 800)
	writeFile(t, filepath.Join(root, "meminfo"), fmt.Sprintf(
		"MemTotal:       %d kB\nMemFree:        1024 kB\nMemAvailable:   2048 kB\n", memTotalKB))

	writeProc(t, root, 4242, "python3", []string{"python3", "worker.py", "--queue", "alerts"}, 256)
	writeProc(t, root, 4243, "bash", []string{"bash"}, 64)

	fs, err := procfs.NewFS(root)
	require.NoError(t, err)

	return root, fs
}

func TestResourceSampler(t *testing.T) {
	t.Parallel()

	root, fs := newFixture(t)
	sampler := host.NewResourceSampler(slog.New(slog.DiscardHandler), fs, t.TempDir())

	usage, err := sampler.SampleResources(t.Context())
	require.NoError(t, err)
	require.InDelta(t, 20.0, usage.CPUPercent, 1e-6)
	require.InDelta(t, 75.0, usage.MemPercent, 1e-6)
	require.GreaterOrEqual(t, usage.DiskPercent, 0.0)
	require.LessOrEqual(t, usage.DiskPercent, 100.0)

	writeCPU(t, root, 250, 150, 900)

	usage, err = sampler.SampleResources(t.Context())
	require.NoError(t, err)
	require.InDelta(t, 66.666, usage.CPUPercent, 0.01)
}

func TestResourceSamplerMissingDisk(t *testing.T) {
	t.Parallel()

	_, fs := newFixture(t)
	sampler := host.NewResourceSampler(slog.New(slog.DiscardHandler), fs, "/does/not/exist")

	_, err := sampler.SampleResources(t.Context())
	require.ErrorContains(t, err, "statfs")
}

func TestFindProcesses(t *testing.T) {
	t.Parallel()

	_, fs := newFixture(t)
	repo := host.NewProcessRepository(slog.New(slog.DiscardHandler), fs)

	got, err := repo.FindProcesses(t.Context(), "worker.py")
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0]
	require.Equal(t, 4242, p.PID)
	require.Equal(t, "python3", p.Name)
	require.Equal(t, "python3 worker.py --queue alerts", p.Cmdline)
	require.Equal(t, time.Unix(bootTime+10, 0), p.StartedAt)

	wantMem := min(100, float64(256*os.Getpagesize())/float64(memTotalKB*1024)*100)
	require.InDelta(t, wantMem, p.MemPercent, 1e-6)
	require.GreaterOrEqual(t, p.CPUPercent, 0.0)

	got, err = repo.FindProcesses(t.Context(), "bash")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 4243, got[0].PID)

	got, err = repo.FindProcesses(t.Context(), "redis-server")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStartProcess(t *testing.T) {
	t.Parallel()

	_, fs := newFixture(t)
	repo := host.NewProcessRepository(slog.New(slog.DiscardHandler), fs)

	pid, err := repo.StartProcess(t.Context(), supervisor.ProcessSpec{
		Name:    "noop",
		Command: "/bin/sh",
		Args:    []string{"-c", "exit 0"},
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Positive(t, pid)

	_, err = repo.StartProcess(t.Context(), supervisor.ProcessSpec{Name: "none"})
	require.Error(t, err)

	_, err = repo.StartProcess(t.Context(), supervisor.ProcessSpec{Name: "missing", Command: "/no/such/binary"})
	require.ErrorContains(t, err, "/no/such/binary")
}
