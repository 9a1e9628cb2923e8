package delivery

import "time"

const (
	DefaultWorkers        = 2
	DefaultQueueCapacity  = 1000
	DefaultMaxRetries     = 3
	DefaultDedupWindow    = time.Hour
	DefaultFailedListSize = 100
	DefaultRequestTimeout = 10 * time.Second
	DefaultDrainTimeout   = 5 * time.Second

	// pollInterval bounds how long an idle worker sleeps before rechecking the queue and its context.
	pollInterval = time.Second

	// drainCheckInterval is how often Shutdown checks whether the queue is empty.
	drainCheckInterval = 20 * time.Millisecond

	// emaWeight is the weight of a new latency sample in the moving average.
	emaWeight = 0.1

	dedupKeyPrefix = "delivery:dedup:"

	percentScale = 100
)
