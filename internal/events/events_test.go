package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var received []*Event
	bus.Subscribe(EventBookingCreated, func(e *Event) error {
		received = append(received, e)
		return nil
	})

	payload := BookingEventPayload{BookingID: "b-1", ResourceID: "r-1", Status: "confirmed"}
	err := bus.PublishJSON(EventBookingCreated, payload)
	assert.NoError(t, err)
	assert.Len(t, received, 1)
	assert.False(t, received[0].CreatedAt.IsZero())

	var decoded BookingEventPayload
	assert.NoError(t, json.Unmarshal(received[0].Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestBusIgnoresUnsubscribedTypes(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(EventBookingCancelled, func(e *Event) error {
		called = true
		return nil
	})

	assert.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: "b-1"}))
	assert.False(t, called)
}

func TestBusHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus()

	var order []int
	bus.Subscribe(EventConflictResolved, func(e *Event) error {
		order = append(order, 1)
		return errors.New("handler failure")
	})
	bus.Subscribe(EventConflictResolved, func(e *Event) error {
		order = append(order, 2)
		return nil
	})

	assert.NoError(t, bus.PublishJSON(EventConflictResolved, map[string]string{"resource_id": "r-1"}))
	assert.Equal(t, []int{1, 2}, order)
}

func TestBusPublishJSONMarshalError(t *testing.T) {
	bus := NewBus()
	err := bus.PublishJSON(EventBookingCreated, make(chan int))
	assert.Error(t, err)
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{}))
}
