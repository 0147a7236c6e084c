package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "bookings_created_total",
			Help:      "Bookings successfully created.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "booking_conflicts_total",
			Help:      "Booking requests rejected for interval conflicts.",
		},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by target status.",
		},
		[]string{"status"},
	)

	coordinationMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "coordination_messages_total",
			Help:      "Messages appended to pickup coordinations.",
		},
	)

	coordinationsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "coordinations_completed_total",
			Help:      "Pickup coordinations completed.",
		},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "reconcile_runs_total",
			Help:      "Conflict reconciliation passes by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolshed",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			bookingConflicts,
			bookingTransitions,
			coordinationMessages,
			coordinationsCompleted,
			reconcileRuns,
			httpRequests,
		)
	})
}

func IncBookingCreated() { bookingsCreated.Inc() }

func IncBookingConflict() { bookingConflicts.Inc() }

func IncBookingTransition(status string) { bookingTransitions.WithLabelValues(status).Inc() }

func IncCoordinationMessage() { coordinationMessages.Inc() }

func IncCoordinationCompleted() { coordinationsCompleted.Inc() }

func IncReconcileRun(outcome string) { reconcileRuns.WithLabelValues(outcome).Inc() }

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) { httpRequests.WithLabelValues(endpoint).Inc() }
