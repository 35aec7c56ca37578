package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Collector counts attempts and cycles on its own registry.
type Collector struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  prometheus.Gauge
}

var _ ports.CycleMetrics = (*Collector)(nil)

// New registers the publisher metrics plus the Go runtime collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackpublisher_attempts_total",
			Help: "Candidate attempts by outcome.",
		}, []string{"outcome"}),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trackpublisher_cycles_total",
			Help: "Finished cycles by status and bucket.",
		}, []string{"status", "bucket"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trackpublisher_cycle_duration_seconds",
			Help:    "Wall time of a cycle.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"status"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trackpublisher_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished.",
		}),
	}
}

func (c *Collector) ObserveAttempt(outcome domain.AttemptOutcome) {
	c.attempts.WithLabelValues(string(outcome)).Inc()
}

func (c *Collector) ObserveCycle(result domain.CycleResult) {
	status := string(result.Status)
	c.cycles.WithLabelValues(status, result.Rotation.Bucket.Name).Inc()
	if !result.StartedAt.IsZero() && !result.FinishedAt.IsZero() {
		c.duration.WithLabelValues(status).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	}
	if !result.FinishedAt.IsZero() {
		c.lastRun.Set(float64(result.FinishedAt.Unix()))
	}
}

// Handler exposes the registry in the text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

