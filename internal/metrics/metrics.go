package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studiohub"

// Metrics holds the hub's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Events      *prometheus.CounterVec
	Deliveries  *prometheus.CounterVec
	Dropped     prometheus.Counter
	Rejected    prometheus.Counter
	Relayed     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live client connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Broadcast events accepted, by kind.",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames queued to recipients, by kind.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_dropped_total",
			Help:      "Frames discarded because a recipient outbox was full.",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Inbound frames dropped as malformed.",
		}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_total",
			Help:      "Events exchanged with other hub instances, by direction.",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.Connections, m.Rooms, m.Events, m.Deliveries, m.Dropped, m.Rejected, m.Relayed)
	return m
}

func (m *Metrics) SetMembership(conns, rooms int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(conns))
	m.Rooms.Set(float64(rooms))
}

func (m *Metrics) EventAccepted(kind string, recipients int) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
	m.Deliveries.WithLabelValues(kind).Add(float64(recipients))
}

func (m *Metrics) OutboxDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) FrameRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

func (m *Metrics) Relay(direction string) {
	if m == nil {
		return
	}
	m.Relayed.WithLabelValues(direction).Inc()
}

// Handler exposes the given gatherer in Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
