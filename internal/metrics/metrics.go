// Package metrics provides Prometheus metrics collection for svcidl.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "svcidl"

// Dispatch outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeErr           = "err"            // Application Err payload
	OutcomeProtocolError = "protocol_error" // Call never reached the handler
	OutcomeHandlerFailed = "handler_failed"
)

// Resolve outcomes.
const (
	ResolveOK     = "ok"
	ResolveFailed = "failed"
)

// Collector holds all Prometheus metrics for svcidl.
// A nil *Collector is valid and records nothing.
type Collector struct {
	DispatchCalls    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	Resolves         *prometheus.CounterVec
}

// New creates a collector with all metrics registered on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid global state.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		DispatchCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_calls_total",
				Help:      "Total number of dispatched calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent decoding, invoking and encoding a call",
				Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"method"},
		),
		Resolves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolve_total",
				Help:      "Total number of interface resolutions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveDispatch records one dispatched call.
func (c *Collector) ObserveDispatch(method, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.DispatchCalls.WithLabelValues(method, outcome).Inc()
	c.DispatchDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveResolve records one resolver run.
func (c *Collector) ObserveResolve(outcome string) {
	if c == nil {
		return
	}
	c.Resolves.WithLabelValues(outcome).Inc()
}
