package schedule

import (
	"testing"

	"toolshed/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFindOpenWindows_PicksFreeResource(t *testing.T) {
	byResource := map[string][]models.Booking{
		"A": {booking("b1", dayN(1), dayN(2), models.BookingConfirmed)},
		"B": nil,
	}

	windows := FindOpenWindows([]string{"A", "B"}, byResource, day, dayN(1), dayN(7), day)
	assert.NotEmpty(t, windows)

	first := windows[0]
	assert.Equal(t, dayN(1), first.Start)
	assert.Equal(t, dayN(2), first.End)
	assert.Equal(t, []string{"B"}, first.AvailableResources)

	// day 2 onward both are free
	assert.Equal(t, []string{"A", "B"}, windows[1].AvailableResources)
}

func TestFindOpenWindows_NeverEmitsEmptyResourceSet(t *testing.T) {
	byResource := map[string][]models.Booking{
		"A": {booking("b1", dayN(1), dayN(10), models.BookingConfirmed)},
		"B": {booking("b2", dayN(1), dayN(10), models.BookingActive)},
	}

	windows := FindOpenWindows([]string{"A", "B"}, byResource, day, dayN(1), dayN(10), day)
	assert.Empty(t, windows)

	for _, w := range windows {
		assert.NotEmpty(t, w.AvailableResources)
	}
}

func TestFindOpenWindows_AscendingOrder(t *testing.T) {
	byResource := map[string][]models.Booking{
		"A": {booking("b1", dayN(2), dayN(4), models.BookingConfirmed)},
	}

	windows := FindOpenWindows([]string{"A"}, byResource, day, dayN(1), dayN(8), day)
	for i := 1; i < len(windows); i++ {
		assert.True(t, windows[i-1].Start.Before(windows[i].Start))
	}

	// days 2 and 3 are occupied, everything else open
	assert.Len(t, windows, 5)
	assert.Equal(t, dayN(1), windows[0].Start)
	assert.Equal(t, dayN(4), windows[1].Start)
}

func TestFindOpenWindows_DurationLongerThanWindow(t *testing.T) {
	windows := FindOpenWindows([]string{"A"}, nil, 10*day, dayN(1), dayN(5), day)
	assert.Empty(t, windows)
}

func TestFindOpenWindows_MultiDayDuration(t *testing.T) {
	byResource := map[string][]models.Booking{
		"A": {booking("b1", dayN(3), dayN(4), models.BookingConfirmed)},
	}

	windows := FindOpenWindows([]string{"A"}, byResource, 2*day, dayN(1), dayN(6), day)
	// candidates: [1,3) ok, [2,4) hits b1, [3,5) hits b1, [4,6) ok
	assert.Len(t, windows, 2)
	assert.Equal(t, dayN(1), windows[0].Start)
	assert.Equal(t, dayN(4), windows[1].Start)
}

func TestFindOpenWindows_NoResources(t *testing.T) {
	assert.Nil(t, FindOpenWindows(nil, nil, day, dayN(1), dayN(5), day))
}
