package schedule

import (
	"time"

	"toolshed/internal/models"
)

// Slot is one calendar cell: a sub-interval of the requested range with the
// bookings that occupy it.
type Slot struct {
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// BuildCalendar partitions [rangeStart, rangeEnd) into consecutive slots of
// slotDuration and marks each slot free or occupied against the given
// bookings. The final slot is truncated at rangeEnd. Slots are independent;
// there is no carry-over state between them.
func BuildCalendar(bookings []models.Booking, rangeStart, rangeEnd time.Time, slotDuration time.Duration) []Slot {
	if slotDuration <= 0 || !rangeEnd.After(rangeStart) {
		return nil
	}

	var slots []Slot
	for cursor := rangeStart; cursor.Before(rangeEnd); cursor = cursor.Add(slotDuration) {
		slotEnd := cursor.Add(slotDuration)
		if slotEnd.After(rangeEnd) {
			slotEnd = rangeEnd
		}

		conflicts := FindConflicts(bookings, cursor, slotEnd, "")
		slots = append(slots, Slot{
			Start:     cursor,
			End:       slotEnd,
			Available: len(conflicts) == 0,
			Conflicts: conflicts,
		})
	}
	return slots
}
