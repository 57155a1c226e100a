package scheduling

import (
	"iter"
	"slices"
	"time"
)

// Slots yields the candidate start times of entry in ascending order. The
// first slot is the shift start; each following slot is one slot length
// later, and a slot is kept only while it ends at or before the shift end.
// FULL_DAY slots that touch the lunch window are skipped. Non-working days
// yield nothing. The sequence may be ranged over any number of times.
func Slots(rules Rules, entry ScheduleEntry) iter.Seq[TimeOfDay] {
	return func(yield func(TimeOfDay) bool) {
		d := entry.SlotDurationMinutes
		if !entry.IsWorkingDay || d <= 0 {
			return
		}
		for slot := entry.StartTime; slot.Add(d) <= entry.EndTime; slot = slot.Add(d) {
			if rules.IntersectsLunch(entry.ShiftType, slot, d) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// SlotList collects Slots into a slice.
func SlotList(rules Rules, entry ScheduleEntry) []TimeOfDay {
	return slices.Collect(Slots(rules, entry))
}

// Interval is a half-open instant range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether i and other share any instant. Touching
// intervals (one ends exactly when the other starts) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}
