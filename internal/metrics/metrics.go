// Package metrics exposes collection progress and HTTP traffic as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

const namespace = "collector"

// Collector records engine, sink and monitor metrics in its own registry. It
// satisfies ingestion.Recorder and sink.FlushObserver.
type Collector struct {
	registry *prometheus.Registry

	accepted    *prometheus.CounterVec
	personal    prometheus.Counter
	rejected    *prometheus.CounterVec
	transport   *prometheus.CounterVec
	waits       *prometheus.HistogramVec
	flushes     *prometheus.CounterVec
	flushed     *prometheus.CounterVec
	checkpoints *prometheus.CounterVec
	progress    prometheus.Gauge
	target      prometheus.Gauge

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// NewCollector registers every metric in a fresh registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_total",
			Help:      "Accepted records by category.",
		}, []string{"category"}),
		personal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "personal_expression_total",
			Help:      "Accepted records flagged as personal expression.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Rejected and duplicate records by reason.",
		}, []string{"reason"}),
		transport: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_requests_total",
			Help:      "Transport calls by outcome.",
		}, []string{"outcome"}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_seconds",
			Help:      "Pacing and backoff waits by kind.",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"kind"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "flushes_total",
			Help:      "Sink flushes by target file set.",
		}, []string{"sink", "target"}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "flushed_records_total",
			Help:      "Records handed to a flush by target file set.",
		}, []string{"sink", "target"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint saves by result.",
		}, []string{"result"}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accepted_records",
			Help:      "Accepted records so far in the run.",
		}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_records",
			Help:      "Accepted records the run stops at.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for monitor HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of monitor HTTP requests.",
		}, []string{"method", "path", "status"}),
	}

	collectors := []prometheus.Collector{
		c.accepted, c.personal, c.rejected, c.transport, c.waits,
		c.flushes, c.flushed, c.checkpoints, c.progress, c.target,
		c.requestDuration, c.requestTotal,
	}
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveWait records a pacing or backoff sleep.
func (c *Collector) ObserveWait(kind string, d time.Duration) {
	c.waits.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAccepted counts an accepted record.
func (c *Collector) RecordAccepted(category models.Category, personal bool) {
	c.accepted.WithLabelValues(string(category)).Inc()
	if personal {
		c.personal.Inc()
	}
}

// RecordRejected counts a rejected or duplicate record.
func (c *Collector) RecordRejected(reason models.Reason) {
	c.rejected.WithLabelValues(string(reason)).Inc()
}

// RecordTransport counts a transport call outcome.
func (c *Collector) RecordTransport(outcome string) {
	c.transport.WithLabelValues(outcome).Inc()
}

// RecordCheckpoint counts a checkpoint save.
func (c *Collector) RecordCheckpoint(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.checkpoints.WithLabelValues(result).Inc()
}

// SetProgress updates the progress gauges.
func (c *Collector) SetProgress(accepted, target int) {
	c.progress.Set(float64(accepted))
	c.target.Set(float64(target))
}

// ObserveFlush counts a sink flush.
func (c *Collector) ObserveFlush(sink, target string, records int) {
	c.flushes.WithLabelValues(sink, target).Inc()
	c.flushed.WithLabelValues(sink, target).Add(float64(records))
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
