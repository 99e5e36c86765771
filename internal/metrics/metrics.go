// Package metrics exposes Prometheus instrumentation for the assistant.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crediflex"

var (
	// chatRequestsTotal counts chat turns by outcome.
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests handled",
		},
		[]string{"status"}, // status: success, error
	)

	// upstreamRequestsTotal counts model-provider calls by outcome.
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of model provider requests",
		},
		[]string{"status"},
	)

	// upstreamRequestDuration is a histogram of model-provider call duration.
	upstreamRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of model provider API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(chatRequestsTotal, upstreamRequestsTotal, upstreamRequestDuration)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// RecordChatRequest increments the chat request counter.
func RecordChatRequest(success bool) {
	chatRequestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// ObserveUpstreamRequest records one model-provider call.
func ObserveUpstreamRequest(d time.Duration, success bool) {
	upstreamRequestsTotal.WithLabelValues(statusLabel(success)).Inc()
	upstreamRequestDuration.Observe(d.Seconds())
}

// RegisterThreadGauge exposes the live thread count as a gauge. Call once at
// startup with the store's ActiveCount.
func RegisterThreadGauge(count func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads_active",
			Help:      "Number of live conversation threads",
		},
		func() float64 { return float64(count()) },
	))
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
