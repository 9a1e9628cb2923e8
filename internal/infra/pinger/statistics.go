package pinger

import (
	"slices"
	"sync"
	"time"
)

const (
	// SuccessLatencyBufferSize is the number of successful ping latencies to track
	SuccessLatencyBufferSize = 100

	// ErrorLatencyBufferSize is the number of error ping latencies to track
	ErrorLatencyBufferSize = 10

	// PercentileMax is the maximum percentile value (100%)
	PercentileMax = 100.0

	// PercentileP99Threshold is the threshold from which the last sample is returned
	PercentileP99Threshold = 99.0

	// PercentileP90 is the 90th percentile
	PercentileP90 = 90.0

	// PercentileP99 is the 99th percentile
	PercentileP99 = 99.0

	medianDivisor = 2
)

// ErrorSnapshot represents a snapshot of an error occurrence
type ErrorSnapshot struct {
	Timestamp time.Time     `json:"timestamp"`
	Latency   time.Duration `json:"latency"`
	Message   string        `json:"message"`
}

// LatencyBuffer is a fixed-size ring of durations; the oldest value is overwritten first.
type LatencyBuffer struct {
	mu       sync.RWMutex
	buffer   []time.Duration
	capacity int
	index    int
	count    int
}

// NewLatencyBuffer creates a new latency buffer with the specified capacity
func NewLatencyBuffer(capacity int) *LatencyBuffer {
	return &LatencyBuffer{
		buffer:   make([]time.Duration, 0, capacity),
		capacity: capacity,
	}
}

// Add adds a duration to the buffer
func (lb *LatencyBuffer) Add(d time.Duration) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.count < lb.capacity {
		lb.buffer = append(lb.buffer, d)
		lb.count++

		return
	}

	lb.buffer[lb.index] = d
	lb.index = (lb.index + 1) % lb.capacity
}

// GetAll returns the buffered durations, oldest first
func (lb *LatencyBuffer) GetAll() []time.Duration {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if lb.count == 0 {
		return nil
	}

	result := make([]time.Duration, lb.count)
	if lb.count < lb.capacity {
		copy(result, lb.buffer)
	} else {
		copy(result, lb.buffer[lb.index:])
		copy(result[lb.capacity-lb.index:], lb.buffer[:lb.index])
	}

	return result
}

// Len returns the number of durations in the buffer
func (lb *LatencyBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	return lb.count
}

// Stats tracks raw results for a single pinger
type Stats struct {
	Name              string
	LastRun           time.Time
	LastError         error
	LastErrorSnapshot *ErrorSnapshot
	SuccessTotal      uint64
	ErrorTotal        uint64
	SuccessLatencies  *LatencyBuffer
	ErrorLatencies    *LatencyBuffer
	mu                sync.RWMutex
}

// NewPingerStats creates a new Stats instance
func NewPingerStats(name string) *Stats {
	return &Stats{
		Name:             name,
		SuccessLatencies: NewLatencyBuffer(SuccessLatencyBufferSize),
		ErrorLatencies:   NewLatencyBuffer(ErrorLatencyBufferSize),
	}
}

func (s *Stats) record(now time.Time, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastRun = now
	s.LastError = err

	if err != nil {
		s.ErrorTotal++
		s.LastErrorSnapshot = &ErrorSnapshot{
			Timestamp: now,
			Latency:   latency,
			Message:   err.Error(),
		}
		s.ErrorLatencies.Add(latency)

		return
	}

	s.SuccessTotal++
	s.SuccessLatencies.Add(latency)
}

// LatencyMetrics contains calculated latency statistics
type LatencyMetrics struct {
	Count   int           `json:"count"`
	Median  time.Duration `json:"median"`
	Average time.Duration `json:"average"`
	P90     time.Duration `json:"p90"`
	P99     time.Duration `json:"p99"`
}

// Statistics contains computed statistics for a pinger
type Statistics struct {
	IsReady           bool           `json:"ready"`
	IsHealthy         bool           `json:"healthy"`
	LastRun           time.Time      `json:"lastRun"`
	LastError         string         `json:"lastError,omitempty"`
	LastErrorSnapshot *ErrorSnapshot `json:"lastErrorSnapshot,omitempty"`
	SuccessCount      uint64         `json:"successCount"`
	ErrorCount        uint64         `json:"errorCount"`
	SuccessLatencies  LatencyMetrics `json:"successLatencies"`
	ErrorLatencies    LatencyMetrics `json:"errorLatencies"`
}

// AllHealthy reports whether every pinger in stats is healthy.
func AllHealthy(stats map[string]*Statistics) bool {
	for _, st := range stats {
		if !st.IsHealthy {
			return false
		}
	}

	return true
}

// AllReady reports whether every pinger in stats is ready.
func AllReady(stats map[string]*Statistics) bool {
	for _, st := range stats {
		if !st.IsReady {
			return false
		}
	}

	return true
}

// CalculatePercentile returns the floor-indexed percentile of sorted latencies.
// Percentiles at or above 99 return the maximum.
func CalculatePercentile(latencies []time.Duration, percentile float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	if percentile >= PercentileP99Threshold {
		return latencies[len(latencies)-1]
	}

	percentile = max(percentile, 0)
	index := int(float64(len(latencies)-1) * percentile / PercentileMax)

	return latencies[min(index, len(latencies)-1)]
}

// CalculateMedian calculates the median value of latencies
func CalculateMedian(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	mid := len(sorted) / medianDivisor
	if len(sorted)%medianDivisor == 0 {
		return (sorted[mid-1] + sorted[mid]) / medianDivisor
	}

	return sorted[mid]
}

// CalculateAverage calculates the average value from a slice of durations
func CalculateAverage(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range latencies {
		sum += d
	}

	return sum / time.Duration(len(latencies))
}

func calculateLatencyMetrics(latencies []time.Duration) LatencyMetrics {
	if len(latencies) == 0 {
		return LatencyMetrics{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	return LatencyMetrics{
		Count:   len(sorted),
		Median:  CalculateMedian(sorted),
		Average: CalculateAverage(sorted),
		P90:     CalculatePercentile(sorted, PercentileP90),
		P99:     CalculatePercentile(sorted, PercentileP99),
	}
}

// GetStatistics computes a point-in-time view of stats.
func GetStatistics(stats *Stats, info *pingerInfo) *Statistics {
	stats.mu.RLock()
	defer stats.mu.RUnlock()

	var snapshot *ErrorSnapshot
	if stats.LastErrorSnapshot != nil {
		cp := *stats.LastErrorSnapshot
		snapshot = &cp
	}

	var lastError string
	if stats.LastError != nil {
		lastError = stats.LastError.Error()
	}

	failing := stats.LastError != nil

	return &Statistics{
		IsReady:           !info.readyCritical || !failing,
		IsHealthy:         !info.healthCritical || !failing,
		LastRun:           stats.LastRun,
		LastError:         lastError,
		LastErrorSnapshot: snapshot,
		SuccessCount:      stats.SuccessTotal,
		ErrorCount:        stats.ErrorTotal,
		SuccessLatencies:  calculateLatencyMetrics(stats.SuccessLatencies.GetAll()),
		ErrorLatencies:    calculateLatencyMetrics(stats.ErrorLatencies.GetAll()),
	}
}
