package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/ttlcache"
)

const testURL = "http://hooks.example.test/ops"

type fakeSender struct {
	mu          sync.Mutex
	attempts    int
	delivered   []alert.Event
	inFlight    map[string]int
	maxInFlight int
	delay       time.Duration
	err         func(attempt int) error
}

func newFakeSender() *fakeSender {
	return &fakeSender{inFlight: make(map[string]int)}
}

func (s *fakeSender) Send(ctx context.Context, url string, event alert.Event) error {
	s.mu.Lock()
	s.attempts++
	attempt := s.attempts
	s.inFlight[url]++
	s.maxInFlight = max(s.maxInFlight, s.inFlight[url])
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[url]--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.err != nil {
		if err := s.err(attempt); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.delivered = append(s.delivered, event)
	s.mu.Unlock()

	return nil
}

func (s *fakeSender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempts
}

func (s *fakeSender) Delivered() []alert.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]alert.Event(nil), s.delivered...)
}

type resultCollector struct {
	mu      sync.Mutex
	results []delivery.Result
}

func (c *resultCollector) sink(_ context.Context, r delivery.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, r)
}

func (c *resultCollector) All() []delivery.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]delivery.Result(nil), c.results...)
}

func testConfig() delivery.Config {
	return delivery.Config{
		Enabled:        true,
		Workers:        2,
		QueueCapacity:  100,
		MaxRetries:     3,
		DedupWindow:    time.Hour,
		RequestTimeout: time.Second,
		DrainTimeout:   2 * time.Second,
		Backoff: delivery.Policy{
			Base:       time.Millisecond,
			Multiplier: 1,
			Cap:        time.Millisecond,
		},
		Routes: map[string]string{alert.DefaultRoute: testURL},
	}
}

func newPipeline(t *testing.T, cfg delivery.Config, sender delivery.Sender) (*delivery.Pipeline, *resultCollector) {
	t.Helper()

	p := delivery.New(slog.Default(), cfg, sender, ttlcache.New[any]())
	collector := &resultCollector{}
	p.RegisterResultSink(collector.sink)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = p.Shutdown(ctx)
	})

	return p, collector
}

func event(severity alert.Severity, title string) alert.Event {
	return alert.NewEvent(severity, "test", "", title, "body of "+title)
}

func TestPipeline_DuplicateDeliveredOnce(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	p, collector := newPipeline(t, testConfig(), sender)
	require.NoError(t, p.Start(t.Context()))

	first := event(alert.SeverityHigh, "disk almost full")
	second := event(alert.SeverityHigh, "disk almost full")
	require.NotEqual(t, first.ID, second.ID)

	id1, err := p.Submit(t.Context(), first)
	require.NoError(t, err)

	id2, err := p.Submit(t.Context(), second)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	require.Eventually(t, func() bool { return len(collector.All()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// still inside the dedup window after delivery
	id3, err := p.Submit(t.Context(), event(alert.SeverityHigh, "disk almost full"))
	require.NoError(t, err)
	require.Equal(t, id1, id3)

	time.Sleep(50 * time.Millisecond)

	require.Len(t, sender.Delivered(), 1)

	stats := p.Stats()
	require.Equal(t, uint64(2), stats.Dropped)
	require.Equal(t, uint64(1), stats.Succeeded)
	require.InDelta(t, 100.0, stats.SuccessRate, 0.001)
}

func TestPipeline_RetriesThenFailsPermanently(t *testing.T) {
	t.Parallel()

	errDown := &delivery.Error{Kind: delivery.KindHTTPStatus, StatusCode: 502}

	sender := newFakeSender()
	sender.err = func(int) error { return errDown }

	cfg := testConfig()
	cfg.MaxRetries = 2

	p, collector := newPipeline(t, cfg, sender)
	require.NoError(t, p.Start(t.Context()))

	_, err := p.Submit(t.Context(), event(alert.SeverityCritical, "webhook down"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(collector.All()) == 1 }, 2*time.Second, 5*time.Millisecond)

	result := collector.All()[0]
	require.Equal(t, delivery.StateFailedPermanently, result.State)
	require.Equal(t, 2, result.RetryCount)
	require.Contains(t, result.Error, "502")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, cfg.MaxRetries+1, sender.Attempts())

	failed := p.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, 2, failed[0].RetryCount)

	stats := p.Stats()
	require.Equal(t, uint64(3), stats.Failed)
	require.Equal(t, uint64(2), stats.Retries)
	require.Equal(t, uint64(1), stats.FailedPermanently)
	require.Zero(t, stats.QueueDepth)

	require.Equal(t, 1, p.ClearFailed())
	require.Empty(t, p.Failed())
}

func TestPipeline_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.err = func(attempt int) error {
		if attempt == 1 {
			return &delivery.Error{Kind: delivery.KindConnectionRefused}
		}

		return nil
	}

	p, collector := newPipeline(t, testConfig(), sender)
	require.NoError(t, p.Start(t.Context()))

	_, err := p.Submit(t.Context(), event(alert.SeverityNormal, "flaky"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(collector.All()) == 1 }, 2*time.Second, 5*time.Millisecond)

	result := collector.All()[0]
	require.Equal(t, delivery.StateDelivered, result.State)
	require.Equal(t, 1, result.RetryCount)
	require.Equal(t, 2, sender.Attempts())
}

func TestPipeline_UnknownRouteIsNotRetried(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	p, collector := newPipeline(t, testConfig(), sender)
	require.NoError(t, p.Start(t.Context()))

	ev := alert.NewEvent(alert.SeverityHigh, "test", "nowhere", "lost", "body")
	_, err := p.Submit(t.Context(), ev)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(collector.All()) == 1 }, 2*time.Second, 5*time.Millisecond)

	result := collector.All()[0]
	require.Equal(t, delivery.StateFailedPermanently, result.State)
	require.Zero(t, result.RetryCount)
	require.Contains(t, result.Error, "unknown route")
	require.Zero(t, sender.Attempts())
}

func TestPipeline_Backpressure(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()

	cfg := testConfig()
	cfg.QueueCapacity = 1

	p, collector := newPipeline(t, cfg, sender)

	_, err := p.Submit(t.Context(), event(alert.SeverityLow, "first"))
	require.NoError(t, err)

	rejected := event(alert.SeverityLow, "second")
	_, err = p.Submit(t.Context(), rejected)
	require.ErrorIs(t, err, delivery.ErrQueueFull)

	var bpErr *delivery.BackpressureError
	require.ErrorAs(t, err, &bpErr)
	require.Equal(t, 1, bpErr.Capacity)
	require.Equal(t, uint64(1), p.Stats().Rejected)

	require.NoError(t, p.Start(t.Context()))
	require.Eventually(t, func() bool { return len(collector.All()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// the rejected event left no dedup entry behind
	id, err := p.Submit(t.Context(), rejected)
	require.NoError(t, err)
	require.Equal(t, rejected.ID, id)
	require.Eventually(t, func() bool { return len(collector.All()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestPipeline_InvalidEvent(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t, testConfig(), newFakeSender())

	tests := []struct {
		name string
		give alert.Event
	}{
		{name: "empty title", give: alert.Event{ID: "1", RouteKey: alert.DefaultRoute}},
		{name: "empty route", give: alert.Event{ID: "2", Title: "t"}},
		{name: "unknown severity", give: alert.Event{ID: "3", Title: "t", RouteKey: alert.DefaultRoute, Severity: 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := p.Submit(t.Context(), tt.give)
			require.ErrorIs(t, err, delivery.ErrInvalidEvent)
		})
	}
}

func TestPipeline_DisabledIsDryRun(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()

	cfg := testConfig()
	cfg.Enabled = false

	p, collector := newPipeline(t, cfg, sender)
	require.NoError(t, p.Start(t.Context()))

	_, err := p.Submit(t.Context(), event(alert.SeverityHigh, "dry"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(collector.All()) == 1 }, 2*time.Second, 5*time.Millisecond)

	result := collector.All()[0]
	require.Equal(t, delivery.StateDelivered, result.State)
	require.True(t, result.DryRun)
	require.Zero(t, sender.Attempts())
	require.Equal(t, uint64(1), p.Stats().DryRun)
}

func TestPipeline_PerEndpointSerialization(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.delay = 5 * time.Millisecond

	cfg := testConfig()
	cfg.Workers = 4

	p, collector := newPipeline(t, cfg, sender)
	require.NoError(t, p.Start(t.Context()))

	for i := range 12 {
		_, err := p.Submit(t.Context(), event(alert.SeverityNormal, fmt.Sprintf("alert %d", i)))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(collector.All()) == 12 }, 3*time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()

	require.Equal(t, 1, sender.maxInFlight)
}

func TestPipeline_PriorityOrder(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()

	cfg := testConfig()
	cfg.Workers = 1

	p, collector := newPipeline(t, cfg, sender)

	give := []alert.Event{
		event(alert.SeverityLow, "low-1"),
		event(alert.SeverityNormal, "normal-1"),
		event(alert.SeverityCritical, "critical-1"),
		event(alert.SeverityLow, "low-2"),
		event(alert.SeverityHigh, "high-1"),
		event(alert.SeverityCritical, "critical-2"),
	}

	for _, ev := range give {
		_, err := p.Submit(t.Context(), ev)
		require.NoError(t, err)
	}

	require.Equal(t, len(give), p.QueueDepth())
	require.NoError(t, p.Start(t.Context()))
	require.Eventually(t, func() bool { return len(collector.All()) == len(give) }, 2*time.Second, 5*time.Millisecond)

	got := make([]string, 0, len(give))
	for _, ev := range sender.Delivered() {
		got = append(got, ev.Title)
	}

	require.Equal(t, []string{"critical-1", "critical-2", "high-1", "normal-1", "low-1", "low-2"}, got)
}

func TestPipeline_ShutdownDrainsAfterStartContextCancelled(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.delay = 20 * time.Millisecond

	cfg := testConfig()
	cfg.DrainTimeout = 5 * time.Second

	p, _ := newPipeline(t, cfg, sender)

	startCtx, cancelStart := context.WithCancel(t.Context())
	require.NoError(t, p.Start(startCtx))

	for i := range 10 {
		_, err := p.Submit(t.Context(), event(alert.SeverityNormal, fmt.Sprintf("signal %d", i)))
		require.NoError(t, err)
	}

	cancelStart()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	require.NoError(t, p.Shutdown(ctx))
	require.Len(t, sender.Delivered(), 10)
	require.Zero(t, p.QueueDepth())
}

func TestPipeline_ShutdownDrains(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.delay = time.Millisecond

	p, _ := newPipeline(t, testConfig(), sender)
	require.NoError(t, p.Start(t.Context()))

	for i := range 5 {
		_, err := p.Submit(t.Context(), event(alert.SeverityNormal, fmt.Sprintf("drain %d", i)))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Shutdown(ctx))
	require.Len(t, sender.Delivered(), 5)

	_, err := p.Submit(t.Context(), event(alert.SeverityNormal, "late"))
	require.ErrorIs(t, err, delivery.ErrPipelineClosed)
}

func TestPipeline_PartialDrainIsNotAnError(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.err = func(int) error { return errors.New("down") }

	cfg := testConfig()
	cfg.DrainTimeout = 50 * time.Millisecond
	cfg.Backoff = delivery.Policy{Base: time.Hour, Multiplier: 1, Cap: time.Hour}

	p, _ := newPipeline(t, cfg, sender)
	require.NoError(t, p.Start(t.Context()))

	_, err := p.Submit(t.Context(), event(alert.SeverityNormal, "stuck"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sender.Attempts() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	require.NoError(t, p.Shutdown(ctx))
	require.Equal(t, 1, p.QueueDepth())
}

func TestPipeline_Ping(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QueueCapacity = 1

	p, _ := newPipeline(t, cfg, newFakeSender())
	require.Error(t, p.Ping(t.Context()))

	require.NoError(t, p.Start(t.Context()))
	require.NoError(t, p.Ping(t.Context()))
}
