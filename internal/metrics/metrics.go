package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repack/internal/convert"
	"repack/internal/staging"
)

const namespace = "repack"

var _ convert.Observer = (*Collector)(nil)

// Collector records conversion lifecycle metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	started         *prometheus.CounterVec
	completed       *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
	releaseFailures prometheus.Counter
	sweepRemoved    *prometheus.CounterVec
}

// New builds a collector with process and Go runtime collectors attached.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_started_total",
			Help:      "Conversions that entered extraction, by source format.",
		}, []string{"source_format"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Finished conversions by target format and outcome.",
		}, []string{"target_format", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of finished conversions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"target_format"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversions_in_progress",
			Help:      "Conversions currently extracting or packing.",
		}, []string{"state"}),
		releaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_release_failures_total",
			Help:      "Staging areas that could not be removed after a job.",
		}),
		sweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Entries removed by the sweeper.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		c.started,
		c.completed,
		c.duration,
		c.inFlight,
		c.releaseFailures,
		c.sweepRemoved,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StateChanged implements convert.Observer.
func (c *Collector) StateChanged(_ convert.Job, from, to convert.State) {
	if isActive(from) {
		c.inFlight.WithLabelValues(string(from)).Dec()
	}
	if isActive(to) {
		c.inFlight.WithLabelValues(string(to)).Inc()
	}
}

// Completed implements convert.Observer.
func (c *Collector) Completed(o convert.Outcome) {
	target := o.TargetFormat
	if target == "" {
		target = "unknown"
	}
	if o.SourceFormat != "" && (o.Result.Success || o.FailedIn != convert.StateIdle) {
		c.started.WithLabelValues(o.SourceFormat).Inc()
	}
	outcome := "success"
	if !o.Result.Success {
		outcome = o.Result.Kind
	}
	c.completed.WithLabelValues(target, outcome).Inc()
	c.duration.WithLabelValues(target).Observe(o.Duration.Seconds())
}

// ReleaseFailed implements convert.Observer.
func (c *Collector) ReleaseFailed(convert.Job, error) {
	c.releaseFailures.Inc()
}

// ObserveSweep counts what one sweeper pass removed.
func (c *Collector) ObserveSweep(r staging.SweepResult) {
	c.sweepRemoved.WithLabelValues("upload").Add(float64(len(r.Uploads.Removed)))
	c.sweepRemoved.WithLabelValues("staging").Add(float64(len(r.Staging.Removed)))
}

func isActive(s convert.State) bool {
	return s == convert.StateExtracting || s == convert.StatePacking
}
