package config

import "time"

// Env key constants. All daemon configuration env vars use the WATCHHAMSTER_ prefix;
// duration values support explicit units (e.g. 5m, 40s, 2h).

// Path to the YAML config file with managed processes and routes.
const envKeyConfigFile = "WATCHHAMSTER_CONFIG_FILE"

// Path to a dotenv file loaded before anything else. Defaults to .env.
const envKeyEnvFile = "WATCHHAMSTER_ENV_FILE"

// Log level: debug, info, warn, error.
const envKeyLogLevel = "WATCHHAMSTER_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "WATCHHAMSTER_LOG_FORMAT"

// Port for the API and health/readiness HTTP server.
const envKeyHTTPPort = "WATCHHAMSTER_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "WATCHHAMSTER_METRICS_PORT"

// File whose presence makes the daemon terminate itself.
const envKeyTerminationFile = "WATCHHAMSTER_TERMINATION_FILE"

// Pinger check interval. Units: s, m, h (e.g. 10s, 1m).
const (
	envKeyPingerInterval = "WATCHHAMSTER_PINGER_INTERVAL"
	envMinPingerInterval = time.Second
)

// Upper bound for graceful shutdown including the pipeline drain.
const (
	envKeyShutdownTimeout = "WATCHHAMSTER_SHUTDOWN_TIMEOUT"
	envMinShutdownTimeout = time.Second
)

// Supervisor sampling interval.
const (
	envKeyInterval = "WATCHHAMSTER_INTERVAL"
	envMinInterval = 5 * time.Second
)

// Restart policy for managed processes.
const (
	envKeyMaxRestartAttempts = "WATCHHAMSTER_MAX_RESTART_ATTEMPTS"
	envKeyRestartCooldown    = "WATCHHAMSTER_RESTART_COOLDOWN"
	envKeyRestartResetAfter  = "WATCHHAMSTER_RESTART_RESET_AFTER"
)

// How long a host resource sample is reused before sampling again.
const envKeyResourceCacheTTL = "WATCHHAMSTER_RESOURCE_CACHE_TTL"

// Path whose filesystem is reported as disk usage.
const envKeyDiskPath = "WATCHHAMSTER_DISK_PATH"

// Cron expression and IANA timezone for the periodic status report; empty disables it.
const (
	envKeyStatusReportSchedule = "WATCHHAMSTER_STATUS_REPORT_SCHEDULE"
	envKeyStatusReportTZ       = "WATCHHAMSTER_STATUS_REPORT_TZ"
)

// Repository working tree to inspect; empty disables the repository check.
const (
	envKeyRepoDir      = "WATCHHAMSTER_REPO_DIR"
	envKeyRepoInterval = "WATCHHAMSTER_REPO_INTERVAL"
	envMinRepoInterval = 10 * time.Second
)

// Delivery pipeline settings.
const (
	envKeyDeliveryEnabled   = "WATCHHAMSTER_DELIVERY_ENABLED"
	envKeyDeliveryWorkers   = "WATCHHAMSTER_DELIVERY_WORKERS"
	envKeyQueueCapacity     = "WATCHHAMSTER_QUEUE_CAPACITY"
	envKeyMaxRetries        = "WATCHHAMSTER_MAX_RETRIES"
	envKeyDedupWindow       = "WATCHHAMSTER_DEDUP_WINDOW"
	envKeyRequestTimeout    = "WATCHHAMSTER_REQUEST_TIMEOUT"
	envKeyDrainTimeout      = "WATCHHAMSTER_DRAIN_TIMEOUT"
	envKeyRateLimit         = "WATCHHAMSTER_RATE_LIMIT"
	envKeyDefaultWebhookURL = "WATCHHAMSTER_WEBHOOK_URL"
	envKeyBotName           = "WATCHHAMSTER_BOT_NAME"
	envKeyBotIconURL        = "WATCHHAMSTER_BOT_ICON_URL"
)

// Stability manager settings.
const (
	envKeyConfigDir           = "WATCHHAMSTER_CONFIG_DIR"
	envKeyStateDir            = "WATCHHAMSTER_STATE_DIR"
	envKeyLogDir              = "WATCHHAMSTER_LOG_DIR"
	envKeyConfigCheckSchedule = "WATCHHAMSTER_CONFIG_CHECK_SCHEDULE"
	envKeySelfCheckInterval   = "WATCHHAMSTER_SELF_CHECK_INTERVAL"
	envMinSelfCheckInterval   = time.Second
	envKeySelfMaxMemory       = "WATCHHAMSTER_SELF_MAX_MEMORY"
	envKeySelfMaxCPUPercent   = "WATCHHAMSTER_SELF_MAX_CPU_PERCENT"
)

// Shared TTL cache settings.
const (
	envKeyCacheMaxEntries    = "WATCHHAMSTER_CACHE_MAX_ENTRIES"
	envKeyCacheSweepInterval = "WATCHHAMSTER_CACHE_SWEEP_INTERVAL"
	envMinCacheSweepInterval = time.Second
)
