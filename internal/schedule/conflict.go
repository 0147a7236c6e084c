// Package schedule holds the pure interval arithmetic behind the booking
// engine: conflict detection, availability calendars and the multi-resource
// open-window sweep. Nothing here touches storage.
package schedule

import (
	"time"

	"toolshed/internal/models"
)

// Conflict records an overlap between a candidate interval and an existing
// booking. The overlap bounds are kept for user-facing error messages.
type Conflict struct {
	Booking      models.Booking `json:"booking"`
	OverlapStart time.Time      `json:"overlap_start"`
	OverlapEnd   time.Time      `json:"overlap_end"`
}

// Overlaps reports whether [s1, e1) and [s2, e2) intersect. Half-open: two
// intervals touching exactly at a boundary do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// FindConflicts returns every non-cancelled booking whose interval overlaps
// [start, end), with the overlap bounds. A booking matching excludeID is
// skipped, which lets an update re-validate against everything but itself.
func FindConflicts(existing []models.Booking, start, end time.Time, excludeID string) []Conflict {
	var conflicts []Conflict
	for _, b := range existing {
		if b.Status == models.BookingCancelled {
			continue
		}
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		if !Overlaps(start, end, b.StartTime, b.EndTime) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Booking:      b,
			OverlapStart: laterOf(start, b.StartTime),
			OverlapEnd:   earlierOf(end, b.EndTime),
		})
	}
	return conflicts
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
