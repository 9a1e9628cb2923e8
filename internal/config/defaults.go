package config

import (
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
	"github.com/skillcoder/watchhamster/internal/logic/ttlcache"
)

const DefaultBotName = "WatchHamster"

// Defaults returns the configuration used before the file and env layers apply.
func Defaults() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "json",
		HTTPPort:        "8080",
		MetricsPort:     "9090",
		PingerInterval:  10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Supervisor: SupervisorConfig{
			Interval:           supervisor.DefaultInterval,
			MaxRestartAttempts: supervisor.DefaultMaxRestartAttempts,
			RestartCooldown:    supervisor.DefaultRestartCooldown,
			RestartResetAfter:  supervisor.DefaultRestartResetAfter,
			ResourceCacheTTL:   supervisor.DefaultResourceCacheTTL,
			HistorySize:        supervisor.DefaultHistorySize,
			Thresholds:         supervisor.DefaultThresholds(),
			DiskPath:           "/",
		},
		Repo: RepoConfig{
			Interval:       supervisor.DefaultRepoInterval,
			CommandTimeout: 10 * time.Second,
			WatchHead:      true,
		},
		Delivery: DeliveryConfig{
			Enabled:        true,
			Workers:        delivery.DefaultWorkers,
			QueueCapacity:  delivery.DefaultQueueCapacity,
			MaxRetries:     delivery.DefaultMaxRetries,
			DedupWindow:    delivery.DefaultDedupWindow,
			FailedListSize: delivery.DefaultFailedListSize,
			RequestTimeout: delivery.DefaultRequestTimeout,
			DrainTimeout:   delivery.DefaultDrainTimeout,
			Backoff:        delivery.DefaultPolicy(),
			Routes:         map[string]string{},
			RateBurst:      1,
			BotName:        DefaultBotName,
		},
		Stability: StabilityConfig{
			ConfigDir:         "config",
			StateDir:          "state",
			LogDir:            "logs",
			CheckSchedule:     stability.DefaultCheckSchedule,
			SelfCheckInterval: stability.DefaultSelfCheckInterval,
			MaxMemory:         stability.DefaultMaxMemory,
			MaxCPUPercent:     stability.DefaultMaxCPUPercent,
			LogMaxBytes:       stability.DefaultLogMaxBytes,
		},
		Cache: CacheConfig{
			MaxEntries:    ttlcache.DefaultMaxEntries,
			DefaultTTL:    ttlcache.DefaultTTL,
			SweepInterval: ttlcache.DefaultSweepInterval,
		},
	}
}
