// Package metrics exposes Prometheus collectors for the chat gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wiredm"

// Gateway holds the gateway collectors. A nil *Gateway is valid and records nothing.
type Gateway struct {
	sessionsOnline    prometheus.Gauge
	events            *prometheus.CounterVec
	messagesSent      prometheus.Counter
	statusTransitions *prometheus.CounterVec
	eventErrors       *prometheus.CounterVec
	droppedEvents     prometheus.Counter
}

// NewGateway creates the collectors and registers them on reg when reg is non-nil.
func NewGateway(reg prometheus.Registerer) *Gateway {
	g := &Gateway{
		sessionsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_online",
			Help:      "Number of users with an active session.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound session events handled, by kind.",
		}, []string{"kind"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted and broadcast.",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Delivery status transitions applied, by target status.",
		}, []string{"to"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Errors reported to sessions, by code.",
		}, []string{"code"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Outbound events dropped because a session was gone or too slow.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			g.sessionsOnline,
			g.events,
			g.messagesSent,
			g.statusTransitions,
			g.eventErrors,
			g.droppedEvents,
		)
	}
	return g
}

func (g *Gateway) SessionOpened() {
	if g != nil {
		g.sessionsOnline.Inc()
	}
}

func (g *Gateway) SessionClosed() {
	if g != nil {
		g.sessionsOnline.Dec()
	}
}

func (g *Gateway) Event(kind string) {
	if g != nil {
		g.events.WithLabelValues(kind).Inc()
	}
}

func (g *Gateway) MessageSent() {
	if g != nil {
		g.messagesSent.Inc()
	}
}

func (g *Gateway) StatusTransitions(to string, n int) {
	if g != nil && n > 0 {
		g.statusTransitions.WithLabelValues(to).Add(float64(n))
	}
}

func (g *Gateway) Error(code string) {
	if g != nil {
		g.eventErrors.WithLabelValues(code).Inc()
	}
}

func (g *Gateway) Dropped() {
	if g != nil {
		g.droppedEvents.Inc()
	}
}
