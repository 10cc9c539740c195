// Package metric provides prometheus instrumentation for a debug adapter
// connection. All collectors are optional: a nil *Metrics disables recording
// without any call-site branching beyond a nil check.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the connection-level collectors.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec // by message kind
	MessagesSent     *prometheus.CounterVec // by message kind
	RequestsInflight prometheus.Gauge
	RequestDuration  prometheus.Histogram
	FramingErrors    prometheus.Counter
	DecodeErrors     prometheus.Counter
}

// New creates the connection collectors, unregistered.
func New() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "minidap",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Messages received from the adapter, by kind",
			},
			[]string{"kind"},
		),
		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "minidap",
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Messages sent to the adapter, by kind",
			},
			[]string{"kind"},
		),
		RequestsInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "minidap",
				Subsystem: "requests",
				Name:      "inflight",
				Help:      "Requests awaiting a response",
			},
		),
		RequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "minidap",
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Time from request send to response delivery",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FramingErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "minidap",
				Subsystem: "stream",
				Name:      "framing_errors_total",
				Help:      "Malformed header blocks discarded by the decoder",
			},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "minidap",
				Subsystem: "stream",
				Name:      "decode_errors_total",
				Help:      "Message bodies dropped because they were not valid JSON",
			},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.MessagesReceived,
		m.MessagesSent,
		m.RequestsInflight,
		m.RequestDuration,
		m.FramingErrors,
		m.DecodeErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveReceived records one inbound message. Safe on a nil receiver.
func (m *Metrics) ObserveReceived(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

// ObserveSent records one outbound message. Safe on a nil receiver.
func (m *Metrics) ObserveSent(kind string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

// RequestStarted bumps the in-flight gauge. Safe on a nil receiver.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.RequestsInflight.Inc()
}

// RequestFinished drops the in-flight gauge and records the round-trip
// duration. Safe on a nil receiver.
func (m *Metrics) RequestFinished(start time.Time) {
	if m == nil {
		return
	}
	m.RequestsInflight.Dec()
	m.RequestDuration.Observe(time.Since(start).Seconds())
}

// ObserveFramingError counts one discarded header block. Safe on a nil receiver.
func (m *Metrics) ObserveFramingError() {
	if m == nil {
		return
	}
	m.FramingErrors.Inc()
}

// ObserveDecodeError counts one dropped non-JSON body. Safe on a nil receiver.
func (m *Metrics) ObserveDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}
