package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/skillcoder/watchhamster/internal/infra/metrics"
	"github.com/skillcoder/watchhamster/internal/logic/alert"
)

// endpointGate serializes calls to one endpoint and optionally rate limits them.
type endpointGate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// Pipeline deduplicates, prioritizes and delivers alert events with retries.
type Pipeline struct {
	logger *slog.Logger
	cfg    Config
	sender Sender
	cache  dedupCache
	now    func() time.Time

	mu       sync.Mutex
	queue    *queue
	pending  map[string]string
	inFlight int
	seq      uint64
	closed   bool
	failed   []FailedDelivery

	gatesMu sync.Mutex
	gates   map[string]*endpointGate

	sinksMu sync.RWMutex
	sinks   []ResultSink

	stats statsTracker

	wake       chan struct{}
	ready      chan struct{}
	doneCh     chan struct{}
	started    atomic.Bool
	inShutdown atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a pipeline. cache is shared with the other engines and holds dedup keys.
func New(
	logger *slog.Logger,
	cfg Config,
	sender Sender,
	cache dedupCache,
) *Pipeline {
	cfg = cfg.withDefaults()

	return &Pipeline{
		logger:  logger.With("component", "delivery"),
		cfg:     cfg,
		sender:  sender,
		cache:   cache,
		now:     time.Now,
		queue:   newQueue(),
		pending: make(map[string]string),
		failed:  make([]FailedDelivery, 0, cfg.FailedListSize),
		gates:   make(map[string]*endpointGate),
		wake:    make(chan struct{}, 1),
		ready:   make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (p *Pipeline) Name() string {
	return "delivery-pipeline"
}

// RegisterResultSink adds a sink for terminal results. Sinks run on worker goroutines.
func (p *Pipeline) RegisterResultSink(sink ResultSink) {
	p.sinksMu.Lock()
	defer p.sinksMu.Unlock()

	p.sinks = append(p.sinks, sink)
}

// Submit enqueues event and returns its delivery ID.
// A duplicate of a pending or recently submitted event is dropped and the original ID returned.
func (p *Pipeline) Submit(ctx context.Context, event alert.Event) (string, error) {
	if event.Title == "" || event.RouteKey == "" || !event.Severity.Valid() {
		return "", fmt.Errorf("submit alert %q: %w", event.Title, ErrInvalidEvent)
	}

	if event.DedupHash == "" {
		event.DedupHash = alert.DedupHash(event.RouteKey, event.Title, event.Body)
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return "", fmt.Errorf("submit alert %q: %w", event.Title, ErrPipelineClosed)
	}

	if id, ok := p.duplicateOf(event.DedupHash); ok {
		p.mu.Unlock()

		p.stats.update(func(s *Stats) { s.Dropped++ })
		metrics.RecordAlertDropped("duplicate")
		p.logger.DebugContext(ctx, "duplicate alert dropped",
			"id", id,
			"title", event.Title,
		)

		return id, nil
	}

	depth := p.queue.len() + p.inFlight
	if depth >= p.cfg.QueueCapacity {
		p.mu.Unlock()

		p.stats.update(func(s *Stats) { s.Rejected++ })
		metrics.RecordAlertDropped("backpressure")

		return "", &BackpressureError{Depth: depth, Capacity: p.cfg.QueueCapacity}
	}

	p.seq++
	e := &entry{
		event:      event,
		priority:   event.Severity,
		seq:        p.seq,
		maxRetries: p.cfg.MaxRetries,
	}

	p.cache.Set(dedupKeyPrefix+event.DedupHash, event.ID, p.cfg.DedupWindow)
	p.pending[event.DedupHash] = event.ID
	p.queue.push(e, p.now())
	depth = p.queue.len() + p.inFlight

	p.mu.Unlock()

	metrics.RecordAlertSubmitted(event.Severity.String(), event.Source)
	metrics.SetDeliveryQueueDepth(depth)
	p.signal()

	p.logger.DebugContext(ctx, "alert enqueued",
		"id", event.ID,
		"severity", event.Severity.String(),
		"route", event.RouteKey,
		"queueDepth", depth,
	)

	return event.ID, nil
}

// duplicateOf must be called with p.mu held.
func (p *Pipeline) duplicateOf(hash string) (string, bool) {
	if id, ok := p.pending[hash]; ok {
		return id, true
	}

	v, ok := p.cache.Get(dedupKeyPrefix + hash)
	if !ok {
		return "", false
	}

	id, _ := v.(string)

	return id, true
}

func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot(p.QueueDepth())
}

// QueueDepth counts queued and in-flight entries.
func (p *Pipeline) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.queue.len() + p.inFlight
}

// Failed returns the permanently failed entries, oldest first.
func (p *Pipeline) Failed() []FailedDelivery {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]FailedDelivery, len(p.failed))
	copy(out, p.failed)

	return out
}

// ClearFailed empties the failed list and returns how many entries it held.
func (p *Pipeline) ClearFailed() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.failed)
	p.failed = p.failed[:0]

	return n
}

func (p *Pipeline) Start(ctx context.Context) error {
	if p.inShutdown.Load() {
		p.logger.InfoContext(ctx, "delivery pipeline is shutting down, skipping start")

		return nil
	}

	if !p.started.CompareAndSwap(false, true) {
		return nil
	}

	// Workers outlive the start context so Shutdown can drain the queue.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	for i := range p.cfg.Workers {
		p.wg.Add(1)

		go p.worker(runCtx, i)
	}

	go func() {
		p.wg.Wait()
		close(p.doneCh)
	}()

	close(p.ready)

	p.logger.InfoContext(ctx, "delivery pipeline started",
		"workers", p.cfg.Workers,
		"enabled", p.cfg.Enabled,
		"routes", len(p.cfg.Routes),
	)

	return nil
}

func (p *Pipeline) Ready() <-chan struct{} {
	return p.ready
}

// Ping fails before Start and while the queue is saturated.
func (p *Pipeline) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ready:
	default:
		return fmt.Errorf("delivery pipeline is not ready")
	}

	if depth := p.QueueDepth(); depth >= p.cfg.QueueCapacity {
		return fmt.Errorf("delivery queue saturated: %d/%d", depth, p.cfg.QueueCapacity)
	}

	return nil
}

// Shutdown stops accepting events, lets workers drain the queue until the drain
// timeout or ctx deadline, then stops the workers. A partial drain is logged, not returned.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if !p.inShutdown.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if !p.started.Load() {
		return nil
	}

	p.logger.InfoContext(ctx, "draining delivery queue", "queueDepth", p.QueueDepth())

	drainCtx, cancel := context.WithTimeout(ctx, p.cfg.DrainTimeout)
	defer cancel()

	if remaining := p.waitDrained(drainCtx); remaining > 0 {
		p.logger.WarnContext(ctx, "delivery queue not fully drained before shutdown",
			"remaining", remaining,
		)
	}

	p.cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context done before delivery workers exited: %w", ctx.Err())
	case <-p.doneCh:
	}

	p.logger.InfoContext(ctx, "delivery pipeline shut down")

	return nil
}

func (p *Pipeline) waitDrained(ctx context.Context) int {
	ticker := time.NewTicker(drainCheckInterval)
	defer ticker.Stop()

	for {
		depth := p.QueueDepth()
		if depth == 0 {
			return 0
		}

		select {
		case <-ctx.Done():
			return depth
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker", id)

	for {
		if ctx.Err() != nil {
			logger.DebugContext(ctx, "terminating delivery worker")

			return
		}

		e, wait := p.next()
		if e != nil {
			p.process(ctx, e)

			continue
		}

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			logger.DebugContext(ctx, "terminating delivery worker")

			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// next pops a ready entry, or reports how long to sleep before looking again.
func (p *Pipeline) next() (*entry, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	if e := p.queue.pop(now); e != nil {
		p.inFlight++

		if p.queue.len() > 0 {
			p.signal()
		}

		return e, 0
	}

	wait := pollInterval

	if due, ok := p.queue.nextDue(); ok {
		wait = min(wait, max(due.Sub(now), time.Millisecond))
	}

	return nil, wait
}

func (p *Pipeline) process(ctx context.Context, e *entry) {
	logger := p.logger.With(
		"id", e.event.ID,
		"route", e.event.RouteKey,
		"retry", e.retryCount,
	)

	url, ok := p.cfg.Routes[e.event.RouteKey]
	if !ok {
		p.fail(ctx, e, fmt.Errorf("resolve route %q: %w", e.event.RouteKey, ErrUnknownRoute))

		return
	}

	if !p.cfg.Enabled {
		logger.DebugContext(ctx, "delivery disabled, alert not sent", "title", e.event.Title)
		p.stats.update(func(s *Stats) { s.DryRun++ })
		metrics.RecordDelivery(e.event.RouteKey, "dry_run", 0)
		p.finish(ctx, e, Result{State: StateDelivered, DryRun: true})

		return
	}

	latency, err := p.send(ctx, url, e.event)
	now := p.now()

	if err == nil {
		p.stats.recordSuccess(latency, now)
		metrics.RecordDelivery(e.event.RouteKey, "delivered", latency)
		logger.DebugContext(ctx, "alert delivered", "latency", latency)
		p.finish(ctx, e, Result{State: StateDelivered, Latency: latency})

		return
	}

	p.stats.recordFailure(now)
	metrics.RecordDelivery(e.event.RouteKey, "failed", latency)

	e.lastErr = err

	if !retryable(err) || e.retryCount >= e.maxRetries {
		p.fail(ctx, e, err)

		return
	}

	e.retryCount++
	delay := p.cfg.Backoff.Delay(e.retryCount)
	e.nextAttemptAt = now.Add(delay)

	p.stats.update(func(s *Stats) { s.Retries++ })

	logger.WarnContext(ctx, "alert delivery failed, retry scheduled",
		"delay", delay,
		"reason", err,
	)

	p.mu.Lock()
	p.inFlight--
	p.queue.push(e, p.now())
	p.mu.Unlock()

	p.signal()
}

func (p *Pipeline) send(ctx context.Context, url string, event alert.Event) (time.Duration, error) {
	gate := p.gate(url)

	gate.mu.Lock()
	defer gate.mu.Unlock()

	if gate.limiter != nil {
		if err := gate.limiter.Wait(ctx); err != nil {
			return 0, &Error{Kind: KindRateLimited, Err: err}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	err := p.sender.Send(sendCtx, url, event)
	latency := time.Since(start)

	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = &Error{Kind: KindTimeout, Err: err}
	}

	return latency, err
}

func (p *Pipeline) gate(url string) *endpointGate {
	p.gatesMu.Lock()
	defer p.gatesMu.Unlock()

	g, ok := p.gates[url]
	if !ok {
		g = &endpointGate{}
		if p.cfg.RateLimit > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(p.cfg.RateLimit), p.cfg.RateBurst)
		}

		p.gates[url] = g
	}

	return g
}

func (p *Pipeline) fail(ctx context.Context, e *entry, err error) {
	p.stats.update(func(s *Stats) { s.FailedPermanently++ })
	metrics.RecordDelivery(e.event.RouteKey, "failed_permanently", 0)

	p.logger.ErrorContext(ctx, "alert delivery failed permanently",
		"id", e.event.ID,
		"route", e.event.RouteKey,
		"retries", e.retryCount,
		"reason", err,
	)

	p.finish(ctx, e, Result{State: StateFailedPermanently, Error: err.Error()})
}

// finish records a terminal state for an in-flight entry and notifies sinks.
func (p *Pipeline) finish(ctx context.Context, e *entry, result Result) {
	e.state = result.State
	result.Event = e.event
	result.RetryCount = e.retryCount
	result.FinishedAt = p.now()

	p.mu.Lock()

	p.inFlight--
	delete(p.pending, e.event.DedupHash)

	if result.State == StateFailedPermanently {
		if len(p.failed) >= p.cfg.FailedListSize {
			p.failed = append(p.failed[:0], p.failed[1:]...)
		}

		p.failed = append(p.failed, FailedDelivery{
			Event:      e.event,
			RetryCount: e.retryCount,
			LastError:  result.Error,
			FailedAt:   result.FinishedAt,
		})
	}

	depth := p.queue.len() + p.inFlight

	p.mu.Unlock()

	metrics.SetDeliveryQueueDepth(depth)

	p.sinksMu.RLock()
	sinks := make([]ResultSink, len(p.sinks))
	copy(sinks, p.sinks)
	p.sinksMu.RUnlock()

	for _, sink := range sinks {
		p.notify(ctx, sink, result)
	}
}

func (p *Pipeline) notify(ctx context.Context, sink ResultSink, result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "delivery result sink panicked",
				"id", result.Event.ID,
				"reason", r,
			)
		}
	}()

	sink(ctx, result)
}
