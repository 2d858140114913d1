package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	sessionsStarted  prometheus.Counter
	samplesAppended  prometheus.Counter
	appendDuration   prometheus.Histogram
	scanDuration     prometheus.Histogram
	sessionsScanned  prometheus.Gauge
	compactionsTotal prometheus.Counter
	logSizeBytes     prometheus.Gauge

	sourceReadsTotal *prometheus.CounterVec
	lastSample       prometheus.Gauge

	archivedRecords prometheus.Counter
	liveClients     prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			sessionsStarted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "templog_sessions_started_total",
					Help: "Total sessions opened in the session log.",
				},
			),
			samplesAppended: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "templog_samples_appended_total",
					Help: "Total samples appended to the open session.",
				},
			),
			appendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "templog_append_duration_seconds",
					Help:    "Duration of a durable append (write and sync) in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			scanDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "templog_scan_duration_seconds",
					Help:    "Duration of a full session log scan in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionsScanned: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "templog_sessions",
					Help: "Number of sessions found by the last scan.",
				},
			),
			compactionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "templog_compactions_total",
					Help: "Total compactions of the session log.",
				},
			),
			logSizeBytes: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "templog_log_size_bytes",
					Help: "Current size of the session log in bytes.",
				},
			),
			sourceReadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "templog_source_reads_total",
					Help: "Sample source reads by status.",
				},
				[]string{"status"},
			),
			lastSample: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "templog_last_sample",
					Help: "Most recently recorded sample value.",
				},
			),
			archivedRecords: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "templog_archived_sessions_total",
					Help: "Total sessions written to the archive before compaction.",
				},
			),
			liveClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "templog_live_clients",
					Help: "Connected live feed clients.",
				},
			),
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "templog_http_requests_total",
					Help: "HTTP requests by route and status code.",
				},
				[]string{"route", "code"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "templog_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds by route.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}

		prometheus.MustRegister(
			m.sessionsStarted,
			m.samplesAppended,
			m.appendDuration,
			m.scanDuration,
			m.sessionsScanned,
			m.compactionsTotal,
			m.logSizeBytes,
			m.sourceReadsTotal,
			m.lastSample,
			m.archivedRecords,
			m.liveClients,
			m.httpRequestsTotal,
			m.httpRequestDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSessionStarted() {
	getMetrics().sessionsStarted.Inc()
}

func RecordSampleAppended(value uint8, duration time.Duration) {
	m := getMetrics()
	m.samplesAppended.Inc()
	m.lastSample.Set(float64(value))
	m.appendDuration.Observe(duration.Seconds())
}

func RecordScan(sessions int, duration time.Duration) {
	m := getMetrics()
	m.sessionsScanned.Set(float64(sessions))
	m.scanDuration.Observe(duration.Seconds())
}

func RecordCompaction() {
	getMetrics().compactionsTotal.Inc()
}

func SetLogSize(bytes int64) {
	getMetrics().logSizeBytes.Set(float64(bytes))
}

func RecordSourceRead(success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().sourceReadsTotal.WithLabelValues(status).Inc()
}

func RecordArchived(count int) {
	getMetrics().archivedRecords.Add(float64(count))
}

func SetLiveClients(count int) {
	getMetrics().liveClients.Set(float64(count))
}

func RecordHTTPRequest(route string, code int, duration time.Duration) {
	m := getMetrics()
	m.httpRequestsTotal.WithLabelValues(route, httpCode(code)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
