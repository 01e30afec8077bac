// Package metrics exports facade operation counts and latencies to
// Prometheus.
package metrics

import (
	stderrors "errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/nostr-wasm/errors"
)

const namespace = "nostrwasm"

// Collector implements secp256k1.Observer.
type Collector struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a Collector and registers it with reg when reg is not nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Facade operations by name and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Facade operation latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"op"}),
	}
	if reg != nil {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe records one operation.
func (c *Collector) Observe(op string, d time.Duration, err error) {
	c.ops.WithLabelValues(op, Result(err)).Inc()
	c.duration.WithLabelValues(op).Observe(d.Seconds())
}

// Result maps an operation error to the result label: "ok", the error kind
// for library errors, or "error".
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return string(e.Kind)
	}
	return "error"
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ops.Describe(ch)
	c.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ops.Collect(ch)
	c.duration.Collect(ch)
}
