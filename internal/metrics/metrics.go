package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"kinderbook/internal/events"
)

const namespace = "kinderbook"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled by parents.",
		},
	)

	bookingReactivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_reactivated_total",
			Help:      "Count of cancelled bookings returned to pending.",
		},
	)

	bookingConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_confirmed_total",
			Help:      "Count of bookings accepted by venues.",
		},
	)

	slotRaceLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_race_lost_total",
			Help:      "Count of creates rejected because the slot was already taken.",
		},
	)

	storageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Count of failed storage operations.",
		},
		[]string{"op"},
	)

	workflowRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_rejections_total",
			Help:      "Count of rejected workflow steps by reason.",
		},
		[]string{"reason"},
	)

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingCancelled,
			bookingReactivated,
			bookingConfirmed,
			slotRaceLost,
			storageErrors,
			workflowRejections,
			apiRequests,
		)
	})
}

// Subscribe wires the counters to booking events.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(func(events.Event) error {
		bookingCreated.Inc()
		return nil
	}, events.BookingCreated)
	bus.Subscribe(func(events.Event) error {
		bookingCancelled.Inc()
		return nil
	}, events.BookingCancelled)
	bus.Subscribe(func(events.Event) error {
		bookingReactivated.Inc()
		return nil
	}, events.BookingReactivated)
	bus.Subscribe(func(events.Event) error {
		bookingConfirmed.Inc()
		return nil
	}, events.BookingConfirmed)
	bus.Subscribe(func(events.Event) error {
		slotRaceLost.Inc()
		return nil
	}, events.SlotRaceLost)
	bus.Subscribe(func(e events.Event) error {
		storageErrors.WithLabelValues(e.Reason).Inc()
		return nil
	}, events.StorageFailed)
	bus.Subscribe(func(e events.Event) error {
		workflowRejections.WithLabelValues(e.Reason).Inc()
		return nil
	}, events.WorkflowRejected)
}

func IncAPIRequest(route string, code int) {
	apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
