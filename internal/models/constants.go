package models

import "time"

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	// BookingPending is declared for approval-flow data but never produced
	// by CreateBooking: bookings are trust-based and start confirmed.
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// bookingTransitions is the single source of truth for legal status changes.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingActive, BookingCancelled},
	BookingConfirmed: {BookingActive, BookingCancelled},
	BookingActive:    {BookingCompleted, BookingCancelled},
	BookingCompleted: {},
	BookingCancelled: {},
}

// CanTransition reports whether moving from s to next is legal.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further mutation of the booking is allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Valid reports whether s is a known status value.
func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CoordinationStatus is the lifecycle state of a PickupCoordination.
type CoordinationStatus string

const (
	CoordinationPending    CoordinationStatus = "pending"
	CoordinationScheduled  CoordinationStatus = "scheduled"
	CoordinationInProgress CoordinationStatus = "in-progress"
	CoordinationCompleted  CoordinationStatus = "completed"
	CoordinationCancelled  CoordinationStatus = "cancelled"
)

var coordinationTransitions = map[CoordinationStatus][]CoordinationStatus{
	CoordinationPending:    {CoordinationScheduled, CoordinationInProgress, CoordinationCompleted, CoordinationCancelled},
	CoordinationScheduled:  {CoordinationScheduled, CoordinationInProgress, CoordinationCompleted, CoordinationCancelled},
	CoordinationInProgress: {CoordinationCompleted, CoordinationCancelled},
	CoordinationCompleted:  {},
	CoordinationCancelled:  {},
}

// CanTransition reports whether moving from s to next is legal.
func (s CoordinationStatus) CanTransition(next CoordinationStatus) bool {
	for _, allowed := range coordinationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the coordination is closed to further mutation.
func (s CoordinationStatus) Terminal() bool {
	return s == CoordinationCompleted || s == CoordinationCancelled
}

// ExchangeMethod describes how a physical handoff happens.
type ExchangeMethod string

const (
	MethodPickup   ExchangeMethod = "pickup"
	MethodDelivery ExchangeMethod = "delivery"
	MethodMeetup   ExchangeMethod = "meetup"
	MethodOther    ExchangeMethod = "other"
)

// Valid reports whether m is a known exchange method.
func (m ExchangeMethod) Valid() bool {
	switch m {
	case MethodPickup, MethodDelivery, MethodMeetup, MethodOther:
		return true
	}
	return false
}

// ResourceKind classifies a shared resource. Only tools support
// time-bounded booking.
type ResourceKind string

const (
	KindTool     ResourceKind = "tool"
	KindMaterial ResourceKind = "material"
	KindSpace    ResourceKind = "space"
)

// Bookable reports whether the kind supports exclusive time-bounded allocation.
func (k ResourceKind) Bookable() bool {
	return k == KindTool
}

// ShareMode distinguishes resources given away from resources lent out.
type ShareMode string

const (
	ShareLend ShareMode = "lend"
	ShareGive ShareMode = "give"
)

const (
	// DefaultSlotDuration is the calendar slot size when the caller does not
	// specify one.
	DefaultSlotDuration = 24 * time.Hour

	// DefaultSearchStep is the candidate-start granularity for the
	// multi-resource optimal-time sweep.
	DefaultSearchStep = 24 * time.Hour

	// DefaultMaxAdvanceDays caps how far in the future a booking may start.
	DefaultMaxAdvanceDays = 365

	// DefaultCalendarCacheTTL is how long a cached availability calendar
	// stays valid without an invalidating write.
	DefaultCalendarCacheTTL = 5 * 60 // seconds

	// ReconcileQueueSize is the in-memory fallback queue size for the
	// conflict reconciler.
	ReconcileQueueSize = 1000

	// RateLimitRequests / RateLimitWindow bound per-caller API traffic.
	RateLimitRequests = 20
	RateLimitWindow   = 60 // seconds
)
