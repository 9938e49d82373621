// Package metrics defines the Prometheus collectors shared by the sync
// engine and the development relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat"

// Engine holds the client-side sync engine collectors.
// A nil *Engine is valid and records nothing.
type Engine struct {
	framesIn      *prometheus.CounterVec
	framesOut     *prometheus.CounterVec
	dialAttempts  prometheus.Counter
	dialFailures  prometheus.Counter
	reconnects    prometheus.Counter
	storeInserted prometheus.Counter
	storeDropped  *prometheus.CounterVec
}

// NewEngine creates the engine collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewEngine(reg prometheus.Registerer) *Engine {
	e := &Engine{
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "frames_received_total",
			Help:      "Frames received on the persistent connection, by event.",
		}, []string{"event"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "frames_sent_total",
			Help:      "Frames written to the persistent connection, by event.",
		}, []string{"event"}),
		dialAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "dial_attempts_total",
			Help:      "Connection attempts, initial and reconnection.",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "dial_failures_total",
			Help:      "Connection attempts that failed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "reconnects_total",
			Help:      "Connections re-established after a drop or failed dial.",
		}),
		storeInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "messages_inserted_total",
			Help:      "Messages inserted into the timeline.",
		}),
		storeDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "messages_dropped_total",
			Help:      "Messages not inserted into the timeline, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(
			e.framesIn, e.framesOut,
			e.dialAttempts, e.dialFailures, e.reconnects,
			e.storeInserted, e.storeDropped,
		)
	}
	return e
}

// FrameReceived counts an inbound frame.
func (e *Engine) FrameReceived(event string) {
	if e == nil {
		return
	}
	e.framesIn.WithLabelValues(event).Inc()
}

// FrameSent counts an outbound frame.
func (e *Engine) FrameSent(event string) {
	if e == nil {
		return
	}
	e.framesOut.WithLabelValues(event).Inc()
}

// DialAttempt counts a dial and, when failed, a dial failure.
func (e *Engine) DialAttempt(failed bool) {
	if e == nil {
		return
	}
	e.dialAttempts.Inc()
	if failed {
		e.dialFailures.Inc()
	}
}

// Reconnected counts a re-established connection.
func (e *Engine) Reconnected() {
	if e == nil {
		return
	}
	e.reconnects.Inc()
}

// MessageInserted counts messages added to the timeline.
func (e *Engine) MessageInserted(n int) {
	if e == nil || n <= 0 {
		return
	}
	e.storeInserted.Add(float64(n))
}

// MessageDropped counts a message rejected by the timeline.
func (e *Engine) MessageDropped(reason string) {
	if e == nil {
		return
	}
	e.storeDropped.WithLabelValues(reason).Inc()
}

// Relay holds the development relay collectors.
// A nil *Relay is valid and records nothing.
type Relay struct {
	messagesStored prometheus.Counter
	rateLimited    prometheus.Counter
	connections    prometheus.Gauge
	broadcasts     *prometheus.CounterVec
}

// NewRelay creates and registers the relay collectors.
func NewRelay(reg prometheus.Registerer) *Relay {
	r := &Relay{
		messagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_stored_total",
			Help:      "Messages accepted and persisted.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sends_rate_limited_total",
			Help:      "Message sends rejected by the per-user rate limit.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcasts_total",
			Help:      "Frames broadcast to workspace rooms, by event.",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(r.messagesStored, r.rateLimited, r.connections, r.broadcasts)
	}
	return r
}

// MessageStored counts a persisted message.
func (r *Relay) MessageStored() {
	if r == nil {
		return
	}
	r.messagesStored.Inc()
}

// RateLimited counts a send rejected by the rate limiter.
func (r *Relay) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

// ConnectionOpened tracks an accepted WebSocket connection.
func (r *Relay) ConnectionOpened() {
	if r == nil {
		return
	}
	r.connections.Inc()
}

// ConnectionClosed tracks a finished WebSocket connection.
func (r *Relay) ConnectionClosed() {
	if r == nil {
		return
	}
	r.connections.Dec()
}

// Broadcast counts a frame fanned out to a room.
func (r *Relay) Broadcast(event string) {
	if r == nil {
		return
	}
	r.broadcasts.WithLabelValues(event).Inc()
}
