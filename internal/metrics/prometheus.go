package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming codec service.
// All Record helpers are safe on a nil receiver so that pipelines can run
// without a registry, e.g. in tests.
type Metrics struct {
	// Frame metrics
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
	ProtocolErrors prometheus.Counter
	FrameSize      prometheus.Histogram

	// Pipeline stage metrics
	StageDuration *prometheus.HistogramVec
	QueueDepth    *prometheus.GaugeVec

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	SessionDuration   prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Frame metrics
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_frames_sent_total",
			Help: "Total number of frames written to the wire",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_frames_received_total",
			Help: "Total number of frames read from the wire",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_bytes_sent_total",
			Help: "Total frame bytes written to the wire, prefix included",
		}),
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_bytes_received_total",
			Help: "Total frame bytes read from the wire, prefix included",
		}),
		ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_protocol_errors_total",
			Help: "Total number of malformed or out-of-order frames",
		}),
		FrameSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "escs_frame_size_bytes",
			Help:    "Size of encoded frame payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12), // 64B to ~128KB
		}),

		// Pipeline stage metrics
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escs_stage_duration_seconds",
			Help:    "Time spent processing one chunk in a pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		}, []string{"stage"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "escs_queue_depth",
			Help: "Current number of chunks queued between pipeline stages",
		}, []string{"queue"}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "escs_active_sessions",
			Help: "Current number of active streaming sessions",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_sessions_completed_total",
			Help: "Total number of sessions that finished cleanly",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "escs_sessions_failed_total",
			Help: "Total number of sessions that ended with an error",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "escs_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "escs_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "escs_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordFrameSent records one frame written to the wire
func (m *Metrics) RecordFrameSent(wireBytes, payloadBytes int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(wireBytes))
	m.FrameSize.Observe(float64(payloadBytes))
}

// RecordFrameReceived records one frame read from the wire
func (m *Metrics) RecordFrameReceived(wireBytes int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.BytesReceived.Add(float64(wireBytes))
}

// RecordProtocolError increments the protocol errors counter
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

// RecordStageDuration records time spent on one chunk in a pipeline stage
func (m *Metrics) RecordStageDuration(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// SetQueueDepth sets the current depth of an inter-stage queue
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordSessionStarted increments the active sessions gauge
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// RecordSessionFinished decrements active sessions and records the outcome
func (m *Metrics) RecordSessionFinished(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if failed {
		m.SessionsFailed.Inc()
	} else {
		m.SessionsCompleted.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
