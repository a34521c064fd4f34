// Package metric instruments flowgraph schedulers with prometheus
// collectors. All collectors are labeled with the block alias.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace  = "flowgraph"
	blockLabel = "block"
)

// Metrics contains scheduler collectors.
type Metrics struct {
	WorkCalls     *prometheus.CounterVec
	WorkDuration  *prometheus.HistogramVec
	ItemsConsumed *prometheus.CounterVec
	ItemsProduced *prometheus.CounterVec
	Blocked       *prometheus.CounterVec
	Messages      *prometheus.CounterVec
	Errors        *prometheus.CounterVec
}

// New creates collectors and registers them. Nil registerer means a new
// private registry.
func New(r prometheus.Registerer) (*Metrics, error) {
	if r == nil {
		r = prometheus.NewRegistry()
	}
	m := &Metrics{
		WorkCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "work",
				Name:      "calls_total",
				Help:      "Total number of work calls by returned status",
			},
			[]string{blockLabel, "status"},
		),
		WorkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "work",
				Name:      "duration_seconds",
				Help:      "Work call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{blockLabel},
		),
		ItemsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "items",
				Name:      "consumed_total",
				Help:      "Total number of items consumed on all inputs",
			},
			[]string{blockLabel},
		),
		ItemsProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "items",
				Name:      "produced_total",
				Help:      "Total number of items produced on all outputs",
			},
			[]string{blockLabel},
		),
		Blocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "blocked_total",
				Help:      "Total number of scheduling passes a block was blocked",
			},
			[]string{blockLabel, "state"},
		),
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "handled_total",
				Help:      "Total number of messages dispatched to handlers",
			},
			[]string{blockLabel},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of block failures",
			},
			[]string{blockLabel},
		),
	}
	for _, c := range []prometheus.Collector{
		m.WorkCalls,
		m.WorkDuration,
		m.ItemsConsumed,
		m.ItemsProduced,
		m.Blocked,
		m.Messages,
		m.Errors,
	} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Meter holds collectors curried with the block alias.
type Meter struct {
	m        *Metrics
	alias    string
	duration prometheus.Observer
	consumed prometheus.Counter
	produced prometheus.Counter
	messages prometheus.Counter
	errors   prometheus.Counter
}

// Meter returns a meter of the block alias. Nil metrics result in a meter
// that records nothing.
func (m *Metrics) Meter(alias string) *Meter {
	if m == nil {
		return nil
	}
	return &Meter{
		m:        m,
		alias:    alias,
		duration: m.WorkDuration.WithLabelValues(alias),
		consumed: m.ItemsConsumed.WithLabelValues(alias),
		produced: m.ItemsProduced.WithLabelValues(alias),
		messages: m.Messages.WithLabelValues(alias),
		errors:   m.Errors.WithLabelValues(alias),
	}
}

// Work records a work call.
func (m *Meter) Work(status string, d time.Duration, consumed, produced int) {
	if m == nil {
		return
	}
	m.m.WorkCalls.WithLabelValues(m.alias, status).Inc()
	m.duration.Observe(d.Seconds())
	m.consumed.Add(float64(consumed))
	m.produced.Add(float64(produced))
}

// Blocked records a pass when the block wasn't runnable.
func (m *Meter) Blocked(state string) {
	if m == nil {
		return
	}
	m.m.Blocked.WithLabelValues(m.alias, state).Inc()
}

// Message records a dispatched message.
func (m *Meter) Message() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

// Error records a block failure.
func (m *Meter) Error() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
