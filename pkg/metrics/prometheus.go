package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal     prometheus.Counter
	lastPrice      prometheus.Gauge
	publishedTotal *prometheus.CounterVec
	forwardedTotal *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	sessions       prometheus.Gauge
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors on reg. Tests pass a fresh
// registry so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "kline_ticks_total",
			Help: "Total number of price ticks applied to the aggregator",
		}),
		lastPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "kline_last_price",
			Help: "Last price applied to the aggregator",
		}),
		publishedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kline_published_total",
			Help: "Kline snapshots handed to the bus, by window and result",
		}, []string{"window", "result"}),
		forwardedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kline_forwarded_total",
			Help: "Kline payloads forwarded to subscribers",
		}, []string{"window"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kline_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kline_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "kline_sessions_active",
			Help: "Open distribution sessions",
		}),
	}
}

func (r *Recorder) RecordTick(price float64) {
	r.ticksTotal.Inc()
	r.lastPrice.Set(price)
}

// RecordPublish counts a relay publish outcome for a window label.
func (r *Recorder) RecordPublish(window string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.publishedTotal.WithLabelValues(window, result).Inc()
}

func (r *Recorder) RecordForwarded(window string) {
	r.forwardedTotal.WithLabelValues(window).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SessionOpened() { r.sessions.Inc() }
func (r *Recorder) SessionClosed() { r.sessions.Dec() }
