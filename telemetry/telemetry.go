package telemetry

import (
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	// Register metrics with Prometheus
	prometheus.MustRegister(pollDuration)
	prometheus.MustRegister(splitReadDuration)
	prometheus.MustRegister(deliveryBatchSize)
	prometheus.MustRegister(httpInFlight)
	prometheus.MustRegister(httpDuration)
}

var (
	// Scan level metrics

	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_poll_duration_seconds",
			Help:    "Snapshot poll tick duration distributions",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	splitReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_split_read_duration_seconds",
			Help:    "Split read duration distributions",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	deliveryBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_delivery_batch_size",
			Help:    "Change records per delivered batch",
			Buckets: []float64{0, 1, 8, 32, 128, 512, 1024, 4096},
		},
	)

	// Transport level metrics

	httpInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_client_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		},
		[]string{"client"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_duration_seconds",
			Help:    "HTTP request duration distributions",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"client", "status"},
	)
)

// MetricsHandler serves both metric registries on one endpoint: the
// prometheus histograms, then the package counters. Compression is disabled
// so the appended counters stay part of one plain text exposition.
func MetricsHandler() http.Handler {
	prom := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prom.ServeHTTP(w, r)
		metrics.WritePrometheus(w, false)
	})
}

func ObservePollDuration(d time.Duration) {
	pollDuration.Observe(d.Seconds())
}

func ObserveSplitRead(d time.Duration) {
	splitReadDuration.Observe(d.Seconds())
}

func ObserveDeliveryBatch(records int) {
	deliveryBatchSize.Observe(float64(records))
}

// MetricsTransport instruments an outbound HTTP client, such as the S3
// SDK's, with in-flight and duration metrics.
type MetricsTransport struct {
	name    string
	wrapped http.RoundTripper
}

func NewMetricsTransport(name string, wrapped http.RoundTripper) *MetricsTransport {
	if wrapped == nil {
		wrapped = http.DefaultTransport
	}
	return &MetricsTransport{
		name:    name,
		wrapped: wrapped,
	}
}

func (t *MetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	gauge := httpInFlight.WithLabelValues(t.name)
	gauge.Inc()
	defer gauge.Dec()

	resp, err := t.wrapped.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	httpDuration.WithLabelValues(t.name, resp.Status).Observe(time.Since(start).Seconds())

	return resp, nil
}
