package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors. Each Metrics instance
// carries its own registry so tests can run multiple servers in one process
// without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	openRooms         prometheus.Gauge
	connectionsTotal  prometheus.Counter
	disconnectsTotal  prometheus.Counter
	handshakeFailures prometheus.Counter
	identityFailures  prometheus.Counter
	messagesRelayed   prometheus.Counter
	broadcastFailures prometheus.Counter
}

// NewMetrics creates and registers the relay's collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "certroom_active_sessions",
			Help: "Number of currently connected, authenticated sessions",
		}),
		openRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "certroom_open_rooms",
			Help: "Number of rooms with at least one member",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certroom_connections_total",
			Help: "Total accepted connections that passed the TLS handshake and identity extraction",
		}),
		disconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certroom_disconnections_total",
			Help: "Total session disconnections",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certroom_handshake_failures_total",
			Help: "Total TLS handshakes rejected (no credential, untrusted credential, protocol error)",
		}),
		identityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certroom_identity_failures_total",
			Help: "Total connections dropped because the verified certificate yielded no identity",
		}),
		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certroom_messages_relayed_total",
			Help: "Total chat messages relayed to room members",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certroom_broadcast_failures_total",
			Help: "Total per-recipient delivery failures during broadcasts",
		}),
	}

	m.registry.MustRegister(
		m.activeSessions,
		m.openRooms,
		m.connectionsTotal,
		m.disconnectsTotal,
		m.handshakeFailures,
		m.identityFailures,
		m.messagesRelayed,
		m.broadcastFailures,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordActiveSessions(n int) { m.activeSessions.Set(float64(n)) }
func (m *Metrics) RecordOpenRooms(n int)      { m.openRooms.Set(float64(n)) }
func (m *Metrics) RecordConnection()          { m.connectionsTotal.Inc() }
func (m *Metrics) RecordDisconnection()       { m.disconnectsTotal.Inc() }
func (m *Metrics) RecordHandshakeFailure()    { m.handshakeFailures.Inc() }
func (m *Metrics) RecordIdentityFailure()     { m.identityFailures.Inc() }
func (m *Metrics) RecordMessageRelayed()      { m.messagesRelayed.Inc() }
func (m *Metrics) RecordBroadcastFailure()    { m.broadcastFailures.Inc() }
