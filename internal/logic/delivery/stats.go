package delivery

import (
	"sync"
	"time"
)

type statsTracker struct {
	mu    sync.Mutex
	stats Stats
	seen  bool
}

func (t *statsTracker) recordSuccess(latency time.Duration, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalSent++
	t.stats.Succeeded++
	t.stats.LastSendAt = at

	if !t.seen {
		t.stats.AvgLatency = latency
		t.seen = true

		return
	}

	t.stats.AvgLatency = time.Duration(
		float64(t.stats.AvgLatency)*(1-emaWeight) + float64(latency)*emaWeight,
	)
}

func (t *statsTracker) recordFailure(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalSent++
	t.stats.Failed++
	t.stats.LastSendAt = at
}

func (t *statsTracker) update(fn func(s *Stats)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn(&t.stats)
}

func (t *statsTracker) snapshot(queueDepth int) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats
	s.QueueDepth = queueDepth

	if s.TotalSent > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.TotalSent) * percentScale
		s.FailureRate = float64(s.Failed) / float64(s.TotalSent) * percentScale
	}

	return s
}
