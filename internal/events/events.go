package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kinderbook/internal/model"
)

// Event types published by the booking core.
const (
	BookingCreated     = "booking.created"
	BookingCancelled   = "booking.cancelled"
	BookingReactivated = "booking.reactivated"
	BookingConfirmed   = "booking.confirmed"
	SlotRaceLost       = "booking.slot_race_lost"
	WorkflowRejected   = "workflow.rejected"
	StorageFailed      = "storage.failed"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	UserID    string
	Booking   *model.Booking
	Reason    string // rejection reason or storage operation
	Err       error
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher is implemented by anything that accepts events.
type Publisher interface {
	Publish(event Event)
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger when it is not nil.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}
