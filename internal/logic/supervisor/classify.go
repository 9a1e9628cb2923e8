package supervisor

import "fmt"

// Thresholds are the lower bounds, in percent, of the Warning, Critical and Emergency levels.
type Thresholds struct {
	Warning   float64 `yaml:"warning" json:"warning" validate:"gt=0,lte=100"`
	Critical  float64 `yaml:"critical" json:"critical" validate:"gtfield=Warning,lte=100"`
	Emergency float64 `yaml:"emergency" json:"emergency" validate:"gtfield=Critical,lte=100"`
}

// Validate checks that the levels are strictly increasing.
func (t Thresholds) Validate() error {
	if t.Warning <= 0 || t.Warning >= t.Critical || t.Critical >= t.Emergency {
		return fmt.Errorf("%w: warning=%.1f critical=%.1f emergency=%.1f",
			ErrThresholdsOrder, t.Warning, t.Critical, t.Emergency)
	}

	return nil
}

// Validate checks every resource table.
func (t ThresholdTable) Validate() error {
	tables := []struct {
		name string
		th   Thresholds
	}{
		{name: "cpu", th: t.CPU},
		{name: "memory", th: t.Memory},
		{name: "disk", th: t.Disk},
	}

	for _, tt := range tables {
		if err := tt.th.Validate(); err != nil {
			return fmt.Errorf("%s thresholds: %w", tt.name, err)
		}
	}

	return nil
}

// Classify maps a percentage to a level. It is monotonic for valid thresholds.
func (t Thresholds) Classify(percent float64) Level {
	switch {
	case percent >= t.Emergency:
		return LevelEmergency
	case percent >= t.Critical:
		return LevelCritical
	case percent >= t.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// MaxLevel returns the most severe of levels.
func MaxLevel(levels ...Level) Level {
	out := LevelNormal
	for _, l := range levels {
		out = max(out, l)
	}

	return out
}

// Classify turns a raw reading into a ResourceSample.
func (t ThresholdTable) Classify(usage ResourceUsage) ResourceSample {
	s := ResourceSample{
		CPUPercent:  usage.CPUPercent,
		MemPercent:  usage.MemPercent,
		DiskPercent: usage.DiskPercent,
		CPULevel:    t.CPU.Classify(usage.CPUPercent),
		MemLevel:    t.Memory.Classify(usage.MemPercent),
		DiskLevel:   t.Disk.Classify(usage.DiskPercent),
	}

	s.OverallLevel = MaxLevel(s.CPULevel, s.MemLevel, s.DiskLevel)

	return s
}

// HealthScore is 100 minus 30 for usage above 80% or 10 above 50%, per resource, floored at 0.
func HealthScore(cpuPercent, memPercent float64) int {
	return max(0, scoreMax-usagePenalty(cpuPercent)-usagePenalty(memPercent))
}

func usagePenalty(percent float64) int {
	switch {
	case percent > scoreHighUsage:
		return scoreHighPenalty
	case percent > scoreMediumUsage:
		return scoreMediumPenalty
	default:
		return 0
	}
}

// OverallHealth combines the resource level with the share of running processes.
func OverallHealth(level Level, runningRatio float64) Health {
	switch {
	case level >= LevelEmergency || runningRatio < healthCriticalRatio:
		return HealthCritical
	case level >= LevelCritical || runningRatio < healthWarningRatio:
		return HealthWarning
	case level >= LevelWarning || runningRatio < 1:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
