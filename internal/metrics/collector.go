// Package metrics exposes Prometheus collectors for request mediation and the
// conversation monitor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediator"

// Request outcomes recorded by RecordRequest.
const (
	OutcomeForwarded     = "forwarded"
	OutcomePreflight     = "preflight"
	OutcomePathRejected  = "path_rejected"
	OutcomeAuthRejected  = "auth_rejected"
	OutcomeForwardFailed = "forward_failed"
)

// Collector owns every metric the service exports.
//
// Metrics:
//   - mediator_requests_total: mediated requests by outcome
//   - mediator_upstream_duration_seconds: upstream round trip by status code
//   - mediator_models_filtered_total: catalog entries hidden by the model filter
//   - mediator_monitor_events_total: monitor tasks by outcome
//   - mediator_monitor_in_flight: monitor tasks currently running
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	modelsFiltered   prometheus.Counter
	monitorEvents    *prometheus.CounterVec
	monitorInFlight  prometheus.Gauge
}

// NewCollector creates the collectors and registers them with registry.
// A nil registry gets a fresh one that also carries the Go and process
// collectors.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of mediated requests by outcome",
			},
			[]string{"outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Time until upstream response headers, in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		modelsFiltered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "models_filtered_total",
				Help:      "Total number of model catalog entries removed by the filter",
			},
		),
		monitorEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_events_total",
				Help:      "Total number of conversation monitor tasks by outcome",
			},
			[]string{"outcome"},
		),
		monitorInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "monitor_in_flight",
				Help:      "Number of conversation monitor tasks currently running",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.upstreamDuration,
		c.modelsFiltered,
		c.monitorEvents,
		c.monitorInFlight,
	)
	return c
}

// RecordRequest counts a mediated request by outcome.
func (c *Collector) RecordRequest(outcome string) {
	c.requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstream records the latency of a completed upstream call.
func (c *Collector) RecordUpstream(status int, duration time.Duration) {
	c.upstreamDuration.WithLabelValues(strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordModelsFiltered adds n removed catalog entries.
func (c *Collector) RecordModelsFiltered(n int) {
	if n > 0 {
		c.modelsFiltered.Add(float64(n))
	}
}

// RecordMonitorOutcome counts a finished (or dropped) monitor task.
func (c *Collector) RecordMonitorOutcome(outcome string) {
	c.monitorEvents.WithLabelValues(outcome).Inc()
}

// MonitorInFlight adjusts the running task gauge.
func (c *Collector) MonitorInFlight(delta float64) {
	c.monitorInFlight.Add(delta)
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus exposition handler for the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
