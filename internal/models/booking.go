package models

import "time"

// Booking reserves a resource for a half-open interval [StartTime, EndTime).
type Booking struct {
	ID              string        `json:"id"`
	ResourceID      string        `json:"resource_id"`
	RequesterID     string        `json:"requester_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Status          BookingStatus `json:"status"`
	Purpose         string        `json:"purpose,omitempty"`
	PickupLocation  string        `json:"pickup_location,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	ReturnCondition string        `json:"return_condition,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Overlaps reports whether the booking's interval overlaps [start, end)
// under half-open semantics: touching endpoints do not conflict.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && start.Before(b.EndTime)
}

// Duration returns the booked interval length.
func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Overdue reports whether an active loan has run past its end time.
// Computed on read; nothing pushes overdue state.
func (b *Booking) Overdue(now time.Time) bool {
	return b.Status == BookingActive && !now.Before(b.EndTime)
}

// BookingUpdate carries the caller-mutable fields of a booking. Nil fields
// are left unchanged. Status is never set through an update.
type BookingUpdate struct {
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Purpose        *string    `json:"purpose,omitempty"`
	PickupLocation *string    `json:"pickup_location,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}
