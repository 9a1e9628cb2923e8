package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "watchhamster"

var (
	alertsSubmittedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_submitted_total",
			Help:      "Total number of alerts accepted into the delivery queue.",
		},
		[]string{"severity", "source"},
	)

	alertsDroppedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dropped_total",
			Help:      "Total number of alerts not enqueued, by reason (duplicate, backpressure).",
		},
		[]string{"reason"},
	)

	deliveriesTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of delivery attempts by route and outcome.",
		},
		[]string{"route", "outcome"},
	)

	deliveryDuration = promauto.With(prometheus.DefaultRegisterer).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of outbound webhook calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	deliveryQueueDepth = promauto.With(prometheus.DefaultRegisterer).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Number of non-terminal entries held by the delivery queue.",
		},
	)

	processRestartsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_restarts_total",
			Help:      "Total number of automatic restarts issued per managed process.",
		},
		[]string{"process"},
	)

	processHealthScore = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_health_score",
			Help:      "Health score (0-100) of each managed process.",
		},
		[]string{"process"},
	)

	resourceUsagePercent = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resource_usage_percent",
			Help:      "Last sampled host resource usage in percent.",
		},
		[]string{"resource"},
	)

	resourceLevel = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resource_level",
			Help:      "Last classified resource level (0=Normal, 1=Warning, 2=Critical, 3=Emergency).",
		},
		[]string{"resource"},
	)

	configHealsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_heals_total",
			Help:      "Total number of configuration documents restored to defaults.",
		},
		[]string{"document", "kind"},
	)

	selfMitigationsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_mitigations_total",
			Help:      "Total number of self-health mitigations (cache sweep and forced GC).",
		},
	)

	selfMemoryBytes = promauto.With(prometheus.DefaultRegisterer).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "self_resident_memory_bytes",
			Help:      "Resident memory of the daemon as seen by the self-health loop.",
		},
	)

	selfCPUPercent = promauto.With(prometheus.DefaultRegisterer).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "self_cpu_percent",
			Help:      "CPU usage of the daemon over the last self-health interval.",
		},
	)

	cacheEntries = promauto.With(prometheus.DefaultRegisterer).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of entries in the shared TTL cache.",
		},
	)

	cacheRemovedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_removed_total",
			Help:      "Total number of cache entries removed, by reason (expired, evicted).",
		},
		[]string{"reason"},
	)

	pingDuration = promauto.With(prometheus.DefaultRegisterer).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ping_duration_seconds",
			Help:      "Duration of component health pings.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"component", "result"},
	)
)

// RecordAlertSubmitted counts an alert that entered the queue.
func RecordAlertSubmitted(severity, source string) {
	alertsSubmittedTotal.WithLabelValues(severity, source).Inc()
}

// RecordAlertDropped counts an alert rejected before enqueue.
func RecordAlertDropped(reason string) {
	alertsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordDelivery counts one delivery attempt and, for network attempts, its duration.
func RecordDelivery(route, outcome string, duration time.Duration) {
	deliveriesTotal.WithLabelValues(route, outcome).Inc()

	if duration > 0 {
		deliveryDuration.WithLabelValues(route).Observe(duration.Seconds())
	}
}

func SetDeliveryQueueDepth(depth int) {
	deliveryQueueDepth.Set(float64(depth))
}

func RecordProcessRestart(process string) {
	processRestartsTotal.WithLabelValues(process).Inc()
}

func SetProcessHealthScore(process string, score int) {
	processHealthScore.WithLabelValues(process).Set(float64(score))
}

// SetResource publishes a sampled usage value and its classified level.
func SetResource(resource string, percent float64, level int) {
	resourceUsagePercent.WithLabelValues(resource).Set(percent)
	resourceLevel.WithLabelValues(resource).Set(float64(level))
}

func RecordConfigHeal(document, kind string) {
	configHealsTotal.WithLabelValues(document, kind).Inc()
}

func RecordSelfMitigation() {
	selfMitigationsTotal.Inc()
}

func SetSelfUsage(residentBytes uint64, cpuPercent float64) {
	selfMemoryBytes.Set(float64(residentBytes))
	selfCPUPercent.Set(cpuPercent)
}

func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

func RecordCacheRemoved(reason string, n int) {
	if n <= 0 {
		return
	}

	cacheRemovedTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordPing observes a component ping; result is "ok" or "error".
func RecordPing(component string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	pingDuration.WithLabelValues(component, result).Observe(duration.Seconds())
}
