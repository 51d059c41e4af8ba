package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	BookingsCreated prometheus.Counter
	SlotConflicts   prometheus.Counter
	Transitions     *prometheus.CounterVec

	// Queue snapshot metrics
	QueueSyncs       *prometheus.CounterVec
	QueueSyncLatency prometheus.Histogram
	QueueRebuilds    prometheus.Counter
}

// New creates and registers all application metrics
func New(namespace string) *Metrics {
	return &Metrics{
		BookingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Total number of appointments booked",
		}),
		SlotConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Total number of bookings rejected on slot conflict",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment state transitions by target status",
		}, []string{"status"}),
		QueueSyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_syncs_total",
			Help:      "Queue snapshot synchronizations by result",
		}, []string{"result"}),
		QueueSyncLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_sync_duration_seconds",
			Help:      "Time spent synchronizing a queue snapshot entry",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		QueueRebuilds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rebuilds_total",
			Help:      "Full per-tenant queue snapshot rebuilds",
		}),
	}
}
