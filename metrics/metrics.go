// Package metrics defines the Prometheus metrics exported by the CDP transport.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "downstage"

// Transport holds the metrics of CDP connections.
// A nil *Transport is valid and records nothing.
type Transport struct {
	CommandsSent      *prometheus.CounterVec
	CommandErrors     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	PendingCalls      prometheus.Gauge
	DroppedFrames     *prometheus.CounterVec
	EventsDelivered   *prometheus.CounterVec
	ConnectionsClosed prometheus.Counter
}

// Dropped frame reasons.
const (
	ReasonNotText    = "not_text"
	ReasonMalformed  = "malformed"
	ReasonUnroutable = "unroutable"
)

// NewTransport creates the transport metrics and registers them with
// registry.
func NewTransport(registry prometheus.Registerer) *Transport {
	m := &Transport{
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "commands_sent_total",
			Help:      "Number of CDP commands written to the connection.",
		}, []string{"method"}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "command_errors_total",
			Help:      "Number of CDP commands that did not produce a result.",
		}, []string{"method"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "command_duration_seconds",
			Help:      "Time between writing a CDP command and receiving its response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "pending_calls",
			Help:      "Number of CDP commands waiting for a response.",
		}),
		DroppedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "dropped_frames_total",
			Help:      "Number of inbound frames that were not delivered to anyone.",
		}, []string{"reason"}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "events_delivered_total",
			Help:      "Number of CDP events handed to subscribers.",
		}, []string{"method"}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cdp",
			Name:      "connections_closed_total",
			Help:      "Number of CDP connections whose receive loop ended.",
		}),
	}

	registry.MustRegister(
		m.CommandsSent,
		m.CommandErrors,
		m.CommandDuration,
		m.PendingCalls,
		m.DroppedFrames,
		m.EventsDelivered,
		m.ConnectionsClosed,
	)

	return m
}

// CommandSent records a command written to the connection.
func (m *Transport) CommandSent(method string) {
	if m == nil {
		return
	}
	m.CommandsSent.WithLabelValues(method).Inc()
	m.PendingCalls.Inc()
}

// CommandDone records the outcome of a command previously passed to
// CommandSent.
func (m *Transport) CommandDone(method string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.PendingCalls.Dec()
	m.CommandDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		m.CommandErrors.WithLabelValues(method).Inc()
	}
}

// FrameDropped records an inbound frame that was skipped.
func (m *Transport) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedFrames.WithLabelValues(reason).Inc()
}

// EventDelivered records an event handed to at least one subscriber.
func (m *Transport) EventDelivered(method string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(method).Inc()
}

// ConnectionClosed records the end of a connection's receive loop.
func (m *Transport) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsClosed.Inc()
}
