package delivery

import (
	"time"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
)

// State is the lifecycle state of a queue entry.
type State string

const (
	StateQueued            State = "Queued"
	StateInFlight          State = "InFlight"
	StateDelivered         State = "Delivered"
	StateFailedPermanently State = "FailedPermanently"
)

// Terminal reports whether the entry will never be attempted again.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailedPermanently
}

// Result is published to result sinks when an entry reaches a terminal state.
type Result struct {
	Event      alert.Event   `json:"event"`
	State      State         `json:"state"`
	RetryCount int           `json:"retryCount"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
	DryRun     bool          `json:"dryRun,omitempty"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// FailedDelivery is a permanently failed entry kept for inspection.
type FailedDelivery struct {
	Event      alert.Event `json:"event"`
	RetryCount int         `json:"retryCount"`
	LastError  string      `json:"lastError"`
	FailedAt   time.Time   `json:"failedAt"`
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	TotalSent         uint64        `json:"totalSent"`
	Succeeded         uint64        `json:"succeeded"`
	Failed            uint64        `json:"failed"`
	Retries           uint64        `json:"retries"`
	Dropped           uint64        `json:"dropped"`
	Rejected          uint64        `json:"rejected"`
	DryRun            uint64        `json:"dryRun"`
	FailedPermanently uint64        `json:"failedPermanently"`
	QueueDepth        int           `json:"queueDepth"`
	AvgLatency        time.Duration `json:"avgLatency"`
	LastSendAt        time.Time     `json:"lastSendAt"`
	SuccessRate       float64       `json:"successRate"`
	FailureRate       float64       `json:"failureRate"`
}

// Config holds the pipeline settings. Routes maps a route key to an endpoint URL.
type Config struct {
	Enabled        bool
	Workers        int
	QueueCapacity  int
	MaxRetries     int
	DedupWindow    time.Duration
	FailedListSize int
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
	Backoff        Policy
	Routes         map[string]string

	// RateLimit is the per-endpoint sustained rate in requests per second; zero disables it.
	RateLimit float64
	RateBurst int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}

	if c.FailedListSize <= 0 {
		c.FailedListSize = DefaultFailedListSize
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}

	if c.Backoff.Base <= 0 {
		c.Backoff = DefaultPolicy()
	}

	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}

	return c
}
