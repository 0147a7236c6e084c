package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Bus event types.
const (
	EventBookingCreated   = "booking_created"
	EventBookingActivated = "booking_activated"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"

	EventCoordinationOpened    = "coordination_opened"
	EventCoordinationScheduled = "coordination_scheduled"
	EventCoordinationCompleted = "coordination_completed"
	EventCoordinationCancelled = "coordination_cancelled"

	EventConflictResolved = "conflict_resolved"
)

// Audit ledger actions, written through Store.RecordAuditEvent.
const (
	ActionLendRequested    = "lend_requested"
	ActionLent             = "lent"
	ActionGiven            = "given"
	ActionReturned         = "returned"
	ActionLoanCancelled    = "loan_cancelled"
	ActionHandoffCancelled = "handoff_cancelled"
	ActionConflictResolved = "conflict_resolved"
)

// BookingEventPayload is the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID   string    `json:"booking_id"`
	ResourceID  string    `json:"resource_id"`
	RequesterID string    `json:"requester_id"`
	Status      string    `json:"status"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// CoordinationEventPayload is the minimal coordination snapshot for event
// consumers.
type CoordinationEventPayload struct {
	CoordinationID string `json:"coordination_id"`
	ResourceID     string `json:"resource_id"`
	ProviderID     string `json:"provider_id"`
	ReceiverID     string `json:"receiver_id"`
	Status         string `json:"status"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
