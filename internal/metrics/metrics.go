// Package metrics holds the Prometheus collectors of the sync server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "setlist"

type Metrics struct {
	sessionsActive     prometheus.Gauge
	sessionsCreated    prometheus.Counter
	sessionRestarts    prometheus.Counter
	participantsActive prometheus.Gauge
	commandsTotal      *prometheus.CounterVec
	deltasPublished    *prometheus.CounterVec
	deltaRecipients    prometheus.Histogram
	slowConsumerKicks  prometheus.Counter
	livenessTimeouts   prometheus.Counter
	connections        prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live performance sessions held in memory",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of performance sessions created",
		}),
		sessionRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restarts_total",
			Help:      "Total number of session executor restarts after a panic",
		}),
		participantsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "Number of participants attached to any session",
		}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands applied by sessions, by kind and result code",
		}, []string{"kind", "result"}),
		deltasPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_published_total",
			Help:      "Deltas published by sessions, by kind",
		}, []string{"kind"}),
		deltaRecipients: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delta_recipients",
			Help:      "Connections a single delta was queued for",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		slowConsumerKicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_kicks_total",
			Help:      "Participants disconnected because their outbound queue was full",
		}),
		livenessTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_timeouts_total",
			Help:      "Participants removed after their inactivity timeout",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open real-time client connections",
		}),
	}
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionDestroyed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) SessionRestarted() {
	if m == nil {
		return
	}
	m.sessionRestarts.Inc()
}

func (m *Metrics) ParticipantJoined() {
	if m == nil {
		return
	}
	m.participantsActive.Inc()
}

func (m *Metrics) ParticipantLeft() {
	if m == nil {
		return
	}
	m.participantsActive.Dec()
}

func (m *Metrics) Command(kind, result string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) DeltaPublished(kind string, recipients int) {
	if m == nil {
		return
	}
	m.deltasPublished.WithLabelValues(kind).Inc()
	m.deltaRecipients.Observe(float64(recipients))
}

func (m *Metrics) SlowConsumerKicked() {
	if m == nil {
		return
	}
	m.slowConsumerKicks.Inc()
}

func (m *Metrics) LivenessTimedOut() {
	if m == nil {
		return
	}
	m.livenessTimeouts.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
