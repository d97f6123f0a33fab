package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"kinderbook/internal/model"
)

func TestEventBus_Publish(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewEventBus(&logger)

	var got []string
	bus.Subscribe(func(e Event) error {
		got = append(got, e.Type+":"+e.Booking.ID)
		return nil
	}, BookingCreated, BookingCancelled)
	bus.Subscribe(func(Event) error { return errors.New("boom") }, BookingCancelled)

	bus.Publish(Event{Type: BookingCreated, Booking: &model.Booking{ID: "b1"}})
	bus.Publish(Event{Type: BookingCancelled, Booking: &model.Booking{ID: "b1"}})
	bus.Publish(Event{Type: BookingConfirmed, Booking: &model.Booking{ID: "b1"}})

	assert.Equal(t, []string{"booking.created:b1", "booking.cancelled:b1"}, got)
	assert.Contains(t, buf.String(), "event handler failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestEventBus_SetsCreatedAt(t *testing.T) {
	bus := NewEventBus(nil)
	var seen Event
	bus.Subscribe(func(e Event) error {
		seen = e
		return nil
	}, StorageFailed)

	bus.Publish(Event{Type: StorageFailed, Reason: "save"})
	assert.False(t, seen.CreatedAt.IsZero())
	assert.Equal(t, "save", seen.Reason)
}
