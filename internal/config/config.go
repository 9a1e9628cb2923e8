package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/watchhamster/internal/infra/cronparser"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
	"github.com/skillcoder/watchhamster/internal/logic/supervisor"
)

const defaultEnvFile = ".env"

type Config struct {
	LogLevel        string        `yaml:"logLevel" validate:"oneof=debug info warn error"`
	LogFormat       string        `yaml:"logFormat" validate:"oneof=json text"`
	HTTPPort        string        `yaml:"httpPort" validate:"required,numeric"`
	MetricsPort     string        `yaml:"metricsPort" validate:"required,numeric"`
	PingerInterval  time.Duration `yaml:"pingerInterval" validate:"min=1s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"min=1s"`
	TerminationFile string        `yaml:"terminationFile"`

	Supervisor SupervisorConfig `yaml:"supervisor"`
	Repo       RepoConfig       `yaml:"repo"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Stability  StabilityConfig  `yaml:"stability"`
	Cache      CacheConfig      `yaml:"cache"`
}

type SupervisorConfig struct {
	Processes            []supervisor.ProcessSpec  `yaml:"processes" validate:"dive"`
	Interval             time.Duration             `yaml:"interval" validate:"min=5s"`
	MaxRestartAttempts   int                       `yaml:"maxRestartAttempts" validate:"min=1,max=100"`
	RestartCooldown      time.Duration             `yaml:"restartCooldown" validate:"min=0"`
	RestartResetAfter    time.Duration             `yaml:"restartResetAfter" validate:"min=0"`
	ResourceCacheTTL     time.Duration             `yaml:"resourceCacheTTL" validate:"min=1s"`
	HistorySize          int                       `yaml:"historySize" validate:"min=1,max=10000"`
	Thresholds           supervisor.ThresholdTable `yaml:"thresholds"`
	DiskPath             string                    `yaml:"diskPath" validate:"required"`
	StatusReportSchedule string                    `yaml:"statusReportSchedule"`
	StatusReportTZ       string                    `yaml:"statusReportTZ"`
}

type RepoConfig struct {
	Dir            string        `yaml:"dir"`
	Interval       time.Duration `yaml:"interval" validate:"min=10s"`
	CommandTimeout time.Duration `yaml:"commandTimeout" validate:"min=1s"`
	WatchHead      bool          `yaml:"watchHead"`
}

type DeliveryConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Workers        int               `yaml:"workers" validate:"min=1,max=64"`
	QueueCapacity  int               `yaml:"queueCapacity" validate:"min=1"`
	MaxRetries     int               `yaml:"maxRetries" validate:"min=0,max=20"`
	DedupWindow    time.Duration     `yaml:"dedupWindow" validate:"min=1s"`
	FailedListSize int               `yaml:"failedListSize" validate:"min=1"`
	RequestTimeout time.Duration     `yaml:"requestTimeout" validate:"min=100ms"`
	DrainTimeout   time.Duration     `yaml:"drainTimeout" validate:"min=0"`
	Backoff        delivery.Policy   `yaml:"backoff"`
	Routes         map[string]string `yaml:"routes" validate:"required_if=Enabled true,dive,keys,required,endkeys,url"`
	RateLimit      float64           `yaml:"rateLimit" validate:"min=0"`
	RateBurst      int               `yaml:"rateBurst" validate:"min=1"`
	BotName        string            `yaml:"botName" validate:"required"`
	BotIconURL     string            `yaml:"botIconURL" validate:"omitempty,url"`
}

type StabilityConfig struct {
	ConfigDir         string        `yaml:"configDir" validate:"required"`
	StateDir          string        `yaml:"stateDir" validate:"required"`
	LogDir            string        `yaml:"logDir"`
	CheckSchedule     string        `yaml:"checkSchedule" validate:"required"`
	CheckTZ           string        `yaml:"checkTZ"`
	SelfCheckInterval time.Duration `yaml:"selfCheckInterval" validate:"min=1s"`
	MaxMemory         string        `yaml:"maxMemory" validate:"required"`
	MaxCPUPercent     float64       `yaml:"maxCPUPercent" validate:"gt=0"`
	LogMaxBytes       int64         `yaml:"logMaxBytes" validate:"min=1024"`

	maxMemory resource.Quantity
}

type CacheConfig struct {
	MaxEntries    int           `yaml:"maxEntries" validate:"min=1"`
	DefaultTTL    time.Duration `yaml:"defaultTTL" validate:"min=1s"`
	SweepInterval time.Duration `yaml:"sweepInterval" validate:"min=1s"`
}

// Load builds the configuration from defaults, the dotenv file, the YAML file and
// WATCHHAMSTER_ env vars, in that order, and validates the result.
// configFile overrides WATCHHAMSTER_CONFIG_FILE when not empty.
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := Defaults()

	if configFile == "" {
		configFile = os.Getenv(envKeyConfigFile)
	}

	if configFile != "" {
		if err := cfg.loadFile(configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFile() error {
	path := defaultEnvFile
	if v := os.Getenv(envKeyEnvFile); v != "" {
		path = v
	}

	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("load env file %s: %w", path, err)
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// Validate checks struct tags, threshold ordering, schedules and the memory quantity.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if err := c.Supervisor.Thresholds.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	parser := cronparser.New()

	if err := parser.Validate(c.Stability.CheckSchedule, c.Stability.CheckTZ); err != nil {
		return fmt.Errorf("validate config: config check schedule: %w", err)
	}

	if c.Supervisor.StatusReportSchedule != "" {
		err := parser.Validate(c.Supervisor.StatusReportSchedule, c.Supervisor.StatusReportTZ)
		if err != nil {
			return fmt.Errorf("validate config: status report schedule: %w", err)
		}
	}

	q, err := resource.ParseQuantity(c.Stability.MaxMemory)
	if err != nil {
		return fmt.Errorf("validate config: self max memory %q: %w", c.Stability.MaxMemory, err)
	}

	c.Stability.maxMemory = q

	return nil
}

func (c *Config) applyEnv() error {
	setString(envKeyLogLevel, &c.LogLevel)
	setString(envKeyLogFormat, &c.LogFormat)
	setString(envKeyHTTPPort, &c.HTTPPort)
	setString(envKeyMetricsPort, &c.MetricsPort)
	setString(envKeyTerminationFile, &c.TerminationFile)
	setString(envKeyDiskPath, &c.Supervisor.DiskPath)
	setString(envKeyStatusReportSchedule, &c.Supervisor.StatusReportSchedule)
	setString(envKeyStatusReportTZ, &c.Supervisor.StatusReportTZ)
	setString(envKeyRepoDir, &c.Repo.Dir)
	setString(envKeyBotName, &c.Delivery.BotName)
	setString(envKeyBotIconURL, &c.Delivery.BotIconURL)
	setString(envKeyConfigDir, &c.Stability.ConfigDir)
	setString(envKeyStateDir, &c.Stability.StateDir)
	setString(envKeyLogDir, &c.Stability.LogDir)
	setString(envKeyConfigCheckSchedule, &c.Stability.CheckSchedule)
	setString(envKeySelfMaxMemory, &c.Stability.MaxMemory)

	if url := os.Getenv(envKeyDefaultWebhookURL); url != "" {
		if c.Delivery.Routes == nil {
			c.Delivery.Routes = map[string]string{}
		}

		c.Delivery.Routes[alert.DefaultRoute] = url
	}

	durations := []struct {
		key string
		min time.Duration
		dst *time.Duration
	}{
		{key: envKeyPingerInterval, min: envMinPingerInterval, dst: &c.PingerInterval},
		{key: envKeyShutdownTimeout, min: envMinShutdownTimeout, dst: &c.ShutdownTimeout},
		{key: envKeyInterval, min: envMinInterval, dst: &c.Supervisor.Interval},
		{key: envKeyRestartCooldown, dst: &c.Supervisor.RestartCooldown},
		{key: envKeyRestartResetAfter, dst: &c.Supervisor.RestartResetAfter},
		{key: envKeyResourceCacheTTL, min: time.Second, dst: &c.Supervisor.ResourceCacheTTL},
		{key: envKeyRepoInterval, min: envMinRepoInterval, dst: &c.Repo.Interval},
		{key: envKeyDedupWindow, min: time.Second, dst: &c.Delivery.DedupWindow},
		{key: envKeyRequestTimeout, min: 100 * time.Millisecond, dst: &c.Delivery.RequestTimeout},
		{key: envKeyDrainTimeout, dst: &c.Delivery.DrainTimeout},
		{key: envKeySelfCheckInterval, min: envMinSelfCheckInterval, dst: &c.Stability.SelfCheckInterval},
		{key: envKeyCacheSweepInterval, min: envMinCacheSweepInterval, dst: &c.Cache.SweepInterval},
	}

	for _, d := range durations {
		if err := setDuration(d.key, d.min, d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{key: envKeyMaxRestartAttempts, dst: &c.Supervisor.MaxRestartAttempts},
		{key: envKeyDeliveryWorkers, dst: &c.Delivery.Workers},
		{key: envKeyQueueCapacity, dst: &c.Delivery.QueueCapacity},
		{key: envKeyMaxRetries, dst: &c.Delivery.MaxRetries},
		{key: envKeyCacheMaxEntries, dst: &c.Cache.MaxEntries},
	}

	for _, i := range ints {
		if err := setInt(i.key, i.dst); err != nil {
			return err
		}
	}

	if err := setBool(envKeyDeliveryEnabled, &c.Delivery.Enabled); err != nil {
		return err
	}

	if err := setFloat(envKeyRateLimit, &c.Delivery.RateLimit); err != nil {
		return err
	}

	return setFloat(envKeySelfMaxCPUPercent, &c.Stability.MaxCPUPercent)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setDuration parses a duration with units; values below minimum are rejected.
func setDuration(key string, minimum time.Duration, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}

	if d < 0 || d < minimum {
		return fmt.Errorf("parse %s: %s is below minimum %s", key, d, minimum)
	}

	*dst = d

	return nil
}

func setInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}

	*dst = n

	return nil
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}

	*dst = b

	return nil
}

func setFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}

	*dst = f

	return nil
}

// SupervisorConfig maps the settings onto the supervisor engine.
func (c *Config) SupervisorConfig() supervisor.Config {
	return supervisor.Config{
		Processes:            c.Supervisor.Processes,
		Interval:             c.Supervisor.Interval,
		RepoInterval:         c.Repo.Interval,
		MaxRestartAttempts:   c.Supervisor.MaxRestartAttempts,
		RestartCooldown:      c.Supervisor.RestartCooldown,
		RestartResetAfter:    c.Supervisor.RestartResetAfter,
		Thresholds:           c.Supervisor.Thresholds,
		ResourceCacheTTL:     c.Supervisor.ResourceCacheTTL,
		HistorySize:          c.Supervisor.HistorySize,
		StatusReportSchedule: c.Supervisor.StatusReportSchedule,
		StatusReportTZ:       c.Supervisor.StatusReportTZ,
	}
}

// DeliveryConfig maps the settings onto the delivery pipeline.
func (c *Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		Enabled:        c.Delivery.Enabled,
		Workers:        c.Delivery.Workers,
		QueueCapacity:  c.Delivery.QueueCapacity,
		MaxRetries:     c.Delivery.MaxRetries,
		DedupWindow:    c.Delivery.DedupWindow,
		FailedListSize: c.Delivery.FailedListSize,
		RequestTimeout: c.Delivery.RequestTimeout,
		DrainTimeout:   c.Delivery.DrainTimeout,
		Backoff:        c.Delivery.Backoff,
		Routes:         c.Delivery.Routes,
		RateLimit:      c.Delivery.RateLimit,
		RateBurst:      c.Delivery.RateBurst,
	}
}

// StabilityConfig maps the settings onto the stability manager. Validate must have run.
func (c *Config) StabilityConfig() stability.Config {
	return stability.Config{
		ConfigDir:         c.Stability.ConfigDir,
		StateDir:          c.Stability.StateDir,
		LogDir:            c.Stability.LogDir,
		CheckSchedule:     c.Stability.CheckSchedule,
		CheckTZ:           c.Stability.CheckTZ,
		SelfCheckInterval: c.Stability.SelfCheckInterval,
		MaxMemory:         c.Stability.maxMemory,
		MaxCPUPercent:     c.Stability.MaxCPUPercent,
		LogMaxBytes:       c.Stability.LogMaxBytes,
	}
}
