package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemawire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "schema", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "schemawire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "schema", "status"},
	)
	codecOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemawire",
			Subsystem: "codec",
			Name:      "operations_total",
			Help:      "Codec pack and unpack calls.",
		},
		[]string{"schema", "op", "result"},
	)
	codecBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemawire",
			Subsystem: "codec",
			Name:      "bytes_total",
			Help:      "Bytes packed or consumed by the codec.",
		},
		[]string{"schema", "op"},
	)
	viewChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schemawire",
			Subsystem: "view",
			Name:      "changes_total",
			Help:      "Change stream records by kind.",
		},
		[]string{"schema", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, codecOps, codecBytes, viewChanges)
	})
}

// RecordHTTPRequest counts one request. schema is empty for routes that do
// not target a schema.
func RecordHTTPRequest(service, method, path, schema string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, schema, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, schema, statusLabel).Observe(duration.Seconds())
}

func RecordCodec(schema, op string, bytes int, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "bounds"
	}
	codecOps.WithLabelValues(schema, op, result).Inc()
	if bytes > 0 {
		codecBytes.WithLabelValues(schema, op).Add(float64(bytes))
	}
}

func RecordViewChanges(schema, kind string, n int) {
	RegisterMetrics()
	viewChanges.WithLabelValues(schema, kind).Add(float64(n))
}

// Recorder forwards codec and view observations to the package counters.
// It satisfies codec.Recorder and view.Recorder.
type Recorder struct{}

func (Recorder) ObserveCodec(schema, op string, bytes int, ok bool) {
	RecordCodec(schema, op, bytes, ok)
}

func (Recorder) ObserveChanges(schema, kind string, n int) {
	RecordViewChanges(schema, kind, n)
}
