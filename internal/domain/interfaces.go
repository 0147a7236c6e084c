package domain

import (
	"context"
	"errors"
	"time"

	"toolshed/internal/models"
	"toolshed/internal/schedule"
)

// ErrBookingConflict is returned by Store.AddBooking when the write-time
// conflict re-check finds an overlap that appeared after the caller's own
// validation pass. The check-then-write race is closed here, not in the
// service.
var ErrBookingConflict = errors.New("booking conflicts with an existing booking")

// Store is the narrow persistence interface the engine consumes. Documents
// are owned by the store; the engine only reads them and emits writes.
type Store interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)

	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsForResource(ctx context.Context, resourceID string) ([]models.Booking, error)
	ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error)

	// AddBooking assigns the id and timestamps, and re-validates the interval
	// against the resource's non-cancelled bookings atomically with the
	// write. Returns ErrBookingConflict when the re-check fails.
	AddBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking) error

	// TransitionBookingWithAvailability updates the booking status and the
	// resource availability flag as one write. Booking status and the flag
	// form a single consistency domain; they must never be flipped apart.
	TransitionBookingWithAvailability(ctx context.Context, booking *models.Booking, available bool) error

	GetPickupCoordination(ctx context.Context, id string) (*models.PickupCoordination, error)
	ListPickupCoordinations(ctx context.Context) ([]models.PickupCoordination, error)
	AddPickupCoordination(ctx context.Context, coordination *models.PickupCoordination) error
	UpdatePickupCoordination(ctx context.Context, coordination *models.PickupCoordination) error

	// RecordAuditEvent appends a ledger entry. Purely observational; the
	// engine never reads events back.
	RecordAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ReconcileScheduler queues a resource for a conflict reconciliation pass.
// Implementations must tolerate duplicate enqueues for the same resource.
type ReconcileScheduler interface {
	EnqueueReconcile(ctx context.Context, resourceID string) error
}

// CalendarCache holds rendered availability calendars keyed by resource and
// query shape. A nil implementation is valid; the service checks for it.
type CalendarCache interface {
	Get(ctx context.Context, resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration) ([]schedule.Slot, bool, error)
	Set(ctx context.Context, resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration, slots []schedule.Slot) error
	Invalidate(ctx context.Context, resourceID string) error
}

// WriteLimiter bounds mutating calls per member in a fixed window. Backed by
// a shared store, so every server instance draws from one budget; the
// per-process limiter in the API layer cannot give that.
type WriteLimiter interface {
	CheckRateLimit(ctx context.Context, callerID string, limit int, window time.Duration) (bool, error)
}

// BookingService drives the booking lifecycle.
type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error)
	UpdateBooking(ctx context.Context, bookingID, callerID string, update models.BookingUpdate) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, callerID, reason string) (*models.Booking, error)
	MarkActive(ctx context.Context, bookingID, callerID string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, bookingID, callerID, returnCondition string) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error)
	GetResourceAvailability(ctx context.Context, resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration) ([]schedule.Slot, error)
	FindOptimalBookingTimes(ctx context.Context, resourceIDs []string, duration time.Duration, searchStart, searchEnd time.Time) ([]schedule.Window, error)
}

// CreateBookingRequest carries everything needed to open a booking.
type CreateBookingRequest struct {
	ResourceID     string    `json:"resource_id"`
	RequesterID    string    `json:"requester_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Purpose        string    `json:"purpose,omitempty"`
	PickupLocation string    `json:"pickup_location,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// CoordinationService drives the pickup handoff workflow.
type CoordinationService interface {
	Create(ctx context.Context, req CreateCoordinationRequest) (*models.PickupCoordination, error)
	AddMessage(ctx context.Context, coordinationID, senderID, text string) (*models.PickupCoordination, error)
	Schedule(ctx context.Context, coordinationID, callerID string, when time.Time, location string) (*models.PickupCoordination, error)
	MarkInProgress(ctx context.Context, coordinationID, callerID string) (*models.PickupCoordination, error)
	Complete(ctx context.Context, coordinationID, callerID, closingMessage string) (*models.PickupCoordination, error)
	Cancel(ctx context.Context, coordinationID, callerID, reason string) (*models.PickupCoordination, error)
	Get(ctx context.Context, id string) (*models.PickupCoordination, error)
}

// CreateCoordinationRequest opens a pickup coordination for a booking or a
// gift transfer.
type CreateCoordinationRequest struct {
	ResourceID  string                `json:"resource_id"`
	ProviderID  string                `json:"provider_id"`
	ReceiverID  string                `json:"receiver_id"`
	BookingID   string                `json:"booking_id,omitempty"`
	Method      models.ExchangeMethod `json:"method"`
	SeedMessage string                `json:"seed_message,omitempty"`
}
