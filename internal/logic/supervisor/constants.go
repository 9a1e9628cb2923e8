package supervisor

import "time"

const (
	DefaultInterval           = 30 * time.Second
	DefaultRepoInterval       = 5 * time.Minute
	DefaultMaxRestartAttempts = 3
	DefaultRestartCooldown    = 60 * time.Second
	DefaultRestartResetAfter  = 10 * time.Minute
	DefaultResourceCacheTTL   = 10 * time.Second
	DefaultHistorySize        = 100

	sourceName = "supervisor"

	cacheKeyResources = "supervisor:resources"
	cacheKeyRepo      = "supervisor:repo"

	scoreMax           = 100
	scoreHighPenalty   = 30
	scoreMediumPenalty = 10
	scoreHighUsage     = 80.0
	scoreMediumUsage   = 50.0

	healthCriticalRatio = 0.5
	healthWarningRatio  = 0.8
)

// DefaultThresholds returns CPU 70/85/95, memory 70/85/95 and disk 80/90/98.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		CPU:    Thresholds{Warning: 70, Critical: 85, Emergency: 95},
		Memory: Thresholds{Warning: 70, Critical: 85, Emergency: 95},
		Disk:   Thresholds{Warning: 80, Critical: 90, Emergency: 98},
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.RepoInterval <= 0 {
		c.RepoInterval = DefaultRepoInterval
	}

	if c.MaxRestartAttempts <= 0 {
		c.MaxRestartAttempts = DefaultMaxRestartAttempts
	}

	if c.RestartCooldown < 0 {
		c.RestartCooldown = DefaultRestartCooldown
	}

	if c.RestartResetAfter < 0 {
		c.RestartResetAfter = 0
	}

	if c.Thresholds == (ThresholdTable{}) {
		c.Thresholds = DefaultThresholds()
	}

	if c.ResourceCacheTTL <= 0 {
		c.ResourceCacheTTL = DefaultResourceCacheTTL
	}

	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}

	return c
}
