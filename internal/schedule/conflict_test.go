package schedule

import (
	"testing"
	"time"

	"toolshed/internal/models"

	"github.com/stretchr/testify/assert"
)

var day = 24 * time.Hour

func dayN(n int) time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n-1) * day)
}

func booking(id string, start, end time.Time, status models.BookingStatus) models.Booking {
	return models.Booking{ID: id, ResourceID: "res-1", StartTime: start, EndTime: end, Status: status}
}

func TestFindConflicts_Overlap(t *testing.T) {
	existing := []models.Booking{
		booking("b1", dayN(1), dayN(3), models.BookingConfirmed),
	}

	conflicts := FindConflicts(existing, dayN(2), dayN(4), "")
	assert.Len(t, conflicts, 1)
	assert.Equal(t, "b1", conflicts[0].Booking.ID)
	assert.Equal(t, dayN(2), conflicts[0].OverlapStart)
	assert.Equal(t, dayN(3), conflicts[0].OverlapEnd)
}

func TestFindConflicts_BackToBack(t *testing.T) {
	existing := []models.Booking{
		booking("b1", dayN(1), dayN(3), models.BookingConfirmed),
	}

	assert.Empty(t, FindConflicts(existing, dayN(3), dayN(5), ""))
	assert.Empty(t, FindConflicts(existing, dayN(0), dayN(1), ""))
}

func TestFindConflicts_IgnoresCancelled(t *testing.T) {
	existing := []models.Booking{
		booking("b1", dayN(1), dayN(3), models.BookingCancelled),
		booking("b2", dayN(2), dayN(5), models.BookingActive),
	}

	conflicts := FindConflicts(existing, dayN(1), dayN(4), "")
	assert.Len(t, conflicts, 1)
	assert.Equal(t, "b2", conflicts[0].Booking.ID)
}

func TestFindConflicts_ExcludesOwnBooking(t *testing.T) {
	existing := []models.Booking{
		booking("b1", dayN(1), dayN(3), models.BookingConfirmed),
		booking("b2", dayN(4), dayN(6), models.BookingConfirmed),
	}

	// re-validating an update of b1 over a widened interval
	conflicts := FindConflicts(existing, dayN(1), dayN(5), "b1")
	assert.Len(t, conflicts, 1)
	assert.Equal(t, "b2", conflicts[0].Booking.ID)
}

func TestFindConflicts_ContainedInterval(t *testing.T) {
	existing := []models.Booking{
		booking("b1", dayN(1), dayN(10), models.BookingConfirmed),
	}

	conflicts := FindConflicts(existing, dayN(3), dayN(4), "")
	assert.Len(t, conflicts, 1)
	assert.Equal(t, dayN(3), conflicts[0].OverlapStart)
	assert.Equal(t, dayN(4), conflicts[0].OverlapEnd)
}

func TestOverlapsHalfOpen(t *testing.T) {
	assert.True(t, Overlaps(dayN(1), dayN(3), dayN(2), dayN(4)))
	assert.False(t, Overlaps(dayN(1), dayN(3), dayN(3), dayN(4)))
	assert.False(t, Overlaps(dayN(3), dayN(4), dayN(1), dayN(3)))
	assert.True(t, Overlaps(dayN(1), dayN(10), dayN(5), dayN(6)))
}
