package schedule

import (
	"time"

	"toolshed/internal/models"
)

// Window is a candidate interval where at least one of the searched
// resources is free for the whole duration.
type Window struct {
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	AvailableResources []string  `json:"available_resources"`
}

// FindOpenWindows sweeps candidate start times from searchStart to
// searchEnd-duration at the given step, checking every resource's bookings
// for the interval [candidate, candidate+duration). A window is emitted only
// when at least one resource is conflict-free for it; resources are
// interchangeable but never jointly allocated, so each is checked on its
// own. Results are ordered by ascending start time.
//
// resourceIDs fixes the iteration order; bookingsByResource may hold entries
// the caller chose not to search.
func FindOpenWindows(resourceIDs []string, bookingsByResource map[string][]models.Booking, duration time.Duration, searchStart, searchEnd time.Time, step time.Duration) []Window {
	if duration <= 0 || len(resourceIDs) == 0 {
		return nil
	}
	if step <= 0 {
		step = models.DefaultSearchStep
	}

	var windows []Window
	for cursor := searchStart; !cursor.Add(duration).After(searchEnd); cursor = cursor.Add(step) {
		end := cursor.Add(duration)

		var free []string
		for _, id := range resourceIDs {
			if len(FindConflicts(bookingsByResource[id], cursor, end, "")) == 0 {
				free = append(free, id)
			}
		}
		if len(free) == 0 {
			continue
		}

		windows = append(windows, Window{Start: cursor, End: end, AvailableResources: free})
	}
	return windows
}
