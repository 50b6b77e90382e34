package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Per-partition counters named in spec §6.
	PublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publishes_total",
			Help: "Total number of messages published, by partition",
		},
		[]string{"topic", "partition"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_deliveries_total",
			Help: "Total number of message deliveries (including redeliveries), by partition and subscription",
		},
		[]string{"topic", "partition", "subscription"},
	)

	AcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_acks_total",
			Help: "Total number of message acknowledgements, by partition and subscription",
		},
		[]string{"topic", "partition", "subscription"},
	)

	NacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_nacks_total",
			Help: "Total number of explicit nacks, by partition and subscription",
		},
		[]string{"topic", "partition", "subscription"},
	)

	TimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_timeouts_total",
			Help: "Total number of ack-timeout redeliveries, by partition and subscription",
		},
		[]string{"topic", "partition", "subscription"},
	)

	InFlightDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_in_flight_depth",
			Help: "Current in-flight message count, by partition and subscription",
		},
		[]string{"topic", "partition", "subscription"},
	)

	UndeliveredDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_undelivered_depth",
			Help: "Current undelivered queue depth, by partition and subscription",
		},
		[]string{"topic", "partition", "subscription"},
	)

	LedgersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_ledgers_total",
			Help: "Total number of ledgers by partition and state",
		},
		[]string{"partition", "state"},
	)

	// Transaction log append latency, spec §6 "log append latency p50/p99"
	// (served as histogram quantiles rather than precomputed percentiles).
	LogAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_log_append_duration_seconds",
			Help:    "Time taken for a transaction log append to become durable, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LogTrimDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_log_trim_duration_seconds",
			Help:    "Time taken to execute a trim_before call, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP/JSON API metrics.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Dispatch metrics.
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broker_dispatch_latency_seconds",
			Help:    "Time taken to pick a message for a consumer, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConsumersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_consumers_total",
			Help: "Total number of registered consumers, by subscription",
		},
		[]string{"subscription"},
	)
)

func init() {
	prometheus.MustRegister(PublishesTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(AcksTotal)
	prometheus.MustRegister(NacksTotal)
	prometheus.MustRegister(TimeoutsTotal)
	prometheus.MustRegister(InFlightDepth)
	prometheus.MustRegister(UndeliveredDepth)
	prometheus.MustRegister(LedgersTotal)
	prometheus.MustRegister(LogAppendDuration)
	prometheus.MustRegister(LogTrimDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(ConsumersTotal)
}

// Handler returns the Prometheus HTTP handler for the registered metrics.
// The broker's HTTP server does not mount it; its GET /stats routes
// (pkg/httpapi) serve a JSON aggregate instead.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
