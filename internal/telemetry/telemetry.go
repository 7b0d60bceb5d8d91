// Package telemetry exposes room lifecycle counters and gauges to Prometheus.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/model"
	"room-status-backend/internal/status"
)

const namespace = "clinic"

var _ lifecycle.RoomObserver = (*Metrics)(nil)

// Metrics holds the collectors registered for the service.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	RoomsByStatus *prometheus.GaugeVec
	StuckRooms    prometheus.Gauge
	VisitsOpened  prometheus.Counter
	VisitsClosed  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_status_transitions_total",
			Help:      "Accepted room status transitions.",
		}, []string{"old_status", "new_status", "source"}),
		RoomsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms currently in each status.",
		}, []string{"status"}),
		StuckRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_stuck_needing_cleaning",
			Help:      "Rooms waiting for cleaning longer than the threshold at the last sweep.",
		}),
		VisitsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_opened_total",
			Help:      "Visits opened on available -> waiting.",
		}),
		VisitsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_closed_total",
			Help:      "Visits closed on cleaning -> available.",
		}),
	}
	reg.MustRegister(m.Transitions, m.RoomsByStatus, m.StuckRooms, m.VisitsOpened, m.VisitsClosed)
	return m
}

// OnChange records a committed transition.
func (m *Metrics) OnChange(_ context.Context, c lifecycle.Change) error {
	m.Transitions.WithLabelValues(c.Old.String(), c.New.String(), c.Source.String()).Inc()
	if !c.SelfTransition() {
		m.RoomsByStatus.WithLabelValues(c.Old.String()).Dec()
		m.RoomsByStatus.WithLabelValues(c.New.String()).Inc()
	}
	if c.VisitOpened {
		m.VisitsOpened.Inc()
	}
	if c.VisitClosed {
		m.VisitsClosed.Inc()
	}
	return nil
}

// OnRoomCreated counts a new room under its initial status.
func (m *Metrics) OnRoomCreated(_ context.Context, room model.Room) {
	m.RoomsByStatus.WithLabelValues(room.Status.String()).Inc()
}

// OnRoomDeleted removes a deleted room from its last status.
func (m *Metrics) OnRoomDeleted(_ context.Context, room model.Room) {
	m.RoomsByStatus.WithLabelValues(room.Status.String()).Dec()
}

// SetRooms resets the per-status gauge from a full room listing.
func (m *Metrics) SetRooms(rooms []model.Room) {
	counts := make(map[status.Status]int, len(status.All()))
	for _, r := range rooms {
		counts[r.Status]++
	}
	for _, s := range status.All() {
		m.RoomsByStatus.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// SetStuck records the size of the last stuck-room sweep.
func (m *Metrics) SetStuck(n int) {
	m.StuckRooms.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
