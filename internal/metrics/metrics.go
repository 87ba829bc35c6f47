// Package metrics owns the Prometheus collectors and the tracer provider.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripagent"

// Collector holds all Prometheus metrics for the application.
type Collector struct {
	registry *prometheus.Registry

	// Capability metrics
	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec

	// Turn metrics
	Turns        *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	PlansLinked  prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		ToolInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of capability invocations by outcome",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_invocation_seconds",
				Help:      "Capability invocation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of handled user turns by strategy",
			},
			[]string{"strategy"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Turn handling duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"strategy"},
		),
		PlansLinked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_linked_total",
				Help:      "Total number of travel plans linked to sessions",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_cache_hits_total",
				Help:      "Total number of session context cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_cache_misses_total",
				Help:      "Total number of session context cache misses",
			},
		),
	}

	registry.MustRegister(
		c.ToolInvocations,
		c.ToolDuration,
		c.Turns,
		c.TurnDuration,
		c.PlansLinked,
		c.HTTPRequests,
		c.CacheHits,
		c.CacheMisses,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveTool records one capability invocation. A nil collector is a no-op.
func (c *Collector) ObserveTool(tool, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.ToolInvocations.WithLabelValues(tool, status).Inc()
	c.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveTurn records one handled turn. A nil collector is a no-op.
func (c *Collector) ObserveTurn(strategy string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(strategy).Inc()
	c.TurnDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// PlanLinked counts a linked plan. A nil collector is a no-op.
func (c *Collector) PlanLinked() {
	if c == nil {
		return
	}
	c.PlansLinked.Inc()
}

// ObserveHTTP counts one served request. A nil collector is a no-op.
func (c *Collector) ObserveHTTP(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// CacheResult counts a session cache lookup. A nil collector is a no-op.
func (c *Collector) CacheResult(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHits.Inc()
	} else {
		c.CacheMisses.Inc()
	}
}
