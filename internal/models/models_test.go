package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingConfirmed.CanTransition(BookingActive))
	assert.True(t, BookingConfirmed.CanTransition(BookingCancelled))
	assert.True(t, BookingActive.CanTransition(BookingCompleted))
	assert.True(t, BookingActive.CanTransition(BookingCancelled))

	// pending is never produced by creation but remains driveable
	assert.True(t, BookingPending.CanTransition(BookingActive))
	assert.True(t, BookingPending.CanTransition(BookingCancelled))

	assert.False(t, BookingCompleted.CanTransition(BookingActive))
	assert.False(t, BookingCompleted.CanTransition(BookingCancelled))
	assert.False(t, BookingCancelled.CanTransition(BookingConfirmed))
	assert.False(t, BookingConfirmed.CanTransition(BookingCompleted))
}

func TestBookingStatusTerminal(t *testing.T) {
	assert.True(t, BookingCompleted.Terminal())
	assert.True(t, BookingCancelled.Terminal())
	assert.False(t, BookingPending.Terminal())
	assert.False(t, BookingConfirmed.Terminal())
	assert.False(t, BookingActive.Terminal())
}

func TestCoordinationStatusTransitions(t *testing.T) {
	assert.True(t, CoordinationPending.CanTransition(CoordinationScheduled))
	assert.True(t, CoordinationScheduled.CanTransition(CoordinationInProgress))
	assert.True(t, CoordinationScheduled.CanTransition(CoordinationScheduled)) // reschedule
	assert.True(t, CoordinationInProgress.CanTransition(CoordinationCompleted))
	assert.True(t, CoordinationPending.CanTransition(CoordinationCancelled))

	assert.False(t, CoordinationCompleted.CanTransition(CoordinationCancelled))
	assert.False(t, CoordinationCancelled.CanTransition(CoordinationPending))
	assert.False(t, CoordinationInProgress.CanTransition(CoordinationScheduled))
}

func TestBookingOverlapsHalfOpen(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	b := Booking{StartTime: base, EndTime: base.Add(2 * day)}

	assert.True(t, b.Overlaps(base.Add(day), base.Add(3*day)))
	assert.True(t, b.Overlaps(base.Add(-day), base.Add(day)))

	// back-to-back intervals do not conflict
	assert.False(t, b.Overlaps(base.Add(2*day), base.Add(4*day)))
	assert.False(t, b.Overlaps(base.Add(-2*day), base))
}

func TestBookingOverdue(t *testing.T) {
	now := time.Now()
	b := Booking{Status: BookingActive, EndTime: now.Add(-time.Hour)}
	assert.True(t, b.Overdue(now))

	b.EndTime = now.Add(time.Hour)
	assert.False(t, b.Overdue(now))

	b.Status = BookingConfirmed
	b.EndTime = now.Add(-time.Hour)
	assert.False(t, b.Overdue(now))
}

func TestResourceKindBookable(t *testing.T) {
	assert.True(t, KindTool.Bookable())
	assert.False(t, KindMaterial.Bookable())
	assert.False(t, KindSpace.Bookable())
}

func TestResourceMaxBorrow(t *testing.T) {
	r := Resource{MaxBorrowDays: 3}
	assert.Equal(t, 72*time.Hour, r.MaxBorrow())

	r.MaxBorrowDays = 0
	assert.Equal(t, time.Duration(0), r.MaxBorrow())
}

func TestCoordinationParticipant(t *testing.T) {
	c := PickupCoordination{ProviderID: "owner-1", ReceiverID: "borrower-1"}
	assert.True(t, c.Participant("owner-1"))
	assert.True(t, c.Participant("borrower-1"))
	assert.False(t, c.Participant("stranger"))
	assert.False(t, c.Participant(""))
}
