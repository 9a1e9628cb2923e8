package host

import (
	"strings"

	"github.com/prometheus/procfs"
)

const percentScale = 100

// matches reports whether pattern occurs in the process name or its full command line.
func matches(pattern, comm string, cmdline []string) bool {
	if pattern == "" {
		return false
	}

	return strings.Contains(comm, pattern) || strings.Contains(strings.Join(cmdline, " "), pattern)
}

// cpuBusyPercent is the share of non-idle time between two /proc/stat readings.
func cpuBusyPercent(prev, cur procfs.CPUStat) float64 {
	busy := busyTime(cur) - busyTime(prev)
	total := totalTime(cur) - totalTime(prev)

	if total <= 0 {
		return 0
	}

	return clampPercent(busy / total * percentScale)
}

func totalTime(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal
}

func busyTime(s procfs.CPUStat) float64 {
	return totalTime(s) - s.Idle - s.Iowait
}

// memUsedPercent derives used memory from MemAvailable, like free(1).
func memUsedPercent(mi procfs.Meminfo) (float64, error) {
	if mi.MemTotal == nil || mi.MemAvailable == nil || *mi.MemTotal == 0 {
		return 0, errMeminfoIncomplete
	}

	used := float64(*mi.MemTotal) - float64(*mi.MemAvailable)

	return clampPercent(used / float64(*mi.MemTotal) * percentScale), nil
}

// diskUsedPercent matches df: used / (used + available to unprivileged users).
func diskUsedPercent(blocks, free, avail uint64) float64 {
	used := blocks - free
	if used+avail == 0 {
		return 0
	}

	return clampPercent(float64(used) / float64(used+avail) * percentScale)
}

func clampPercent(v float64) float64 {
	return min(max(v, 0), percentScale)
}
