package models

import "time"

// Message is one entry in a coordination's append-only message log.
type Message struct {
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	System   bool      `json:"system,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// PickupCoordination tracks the real-world handoff of a resource between the
// provider (always the resource owner) and a receiver.
type PickupCoordination struct {
	ID            string             `json:"id"`
	ResourceID    string             `json:"resource_id"`
	ProviderID    string             `json:"provider_id"`
	ReceiverID    string             `json:"receiver_id"`
	BookingID     string             `json:"booking_id,omitempty"`
	Status        CoordinationStatus `json:"status"`
	Method        ExchangeMethod     `json:"method"`
	ScheduledTime time.Time          `json:"scheduled_time,omitempty"`
	Location      string             `json:"location,omitempty"`
	Directions    string             `json:"directions,omitempty"`
	Messages      []Message          `json:"messages,omitempty"`
	CompletedBy   string             `json:"completed_by,omitempty"`
	CompletedAt   time.Time          `json:"completed_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Participant reports whether userID is one of the two named parties.
func (c *PickupCoordination) Participant(userID string) bool {
	return userID != "" && (userID == c.ProviderID || userID == c.ReceiverID)
}
