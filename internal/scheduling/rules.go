package scheduling

import (
	"strconv"
	"time"
)

// Rules is the immutable configuration of the scheduling engine: shift
// presets, the lunch window, duration bounds and the clinic's local zone.
// Build it once with DefaultRules and pass it to every component.
type Rules struct {
	shifts       map[ShiftType]Window
	lunch        Window
	minDuration  int
	maxDuration  int
	durationStep int
	location     *time.Location
}

// DefaultRules returns the clinic presets: MORNING 09:00-12:00, AFTERNOON
// 13:00-18:00, FULL_DAY 09:00-18:00 with a 12:00-13:00 lunch break, and slot
// durations of 15 to 120 minutes in steps of 15. Times are interpreted in
// the process-local zone until WithLocation says otherwise.
func DefaultRules() Rules {
	return Rules{
		shifts: map[ShiftType]Window{
			ShiftMorning:   {Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(12, 0)},
			ShiftAfternoon: {Start: NewTimeOfDay(13, 0), End: NewTimeOfDay(18, 0)},
			ShiftFullDay:   {Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(18, 0)},
		},
		lunch:        Window{Start: NewTimeOfDay(12, 0), End: NewTimeOfDay(13, 0)},
		minDuration:  15,
		maxDuration:  120,
		durationStep: 15,
		location:     time.Local,
	}
}

// WithLocation returns a copy of r that converts stored instants to loc.
func (r Rules) WithLocation(loc *time.Location) Rules {
	if loc == nil {
		loc = time.Local
	}
	shifts := make(map[ShiftType]Window, len(r.shifts))
	for k, v := range r.shifts {
		shifts[k] = v
	}
	r.shifts = shifts
	r.location = loc
	return r
}

// Shift returns the working window preset for st.
func (r Rules) Shift(st ShiftType) (Window, bool) {
	w, ok := r.shifts[st]
	return w, ok
}

// Lunch returns the lunch window applied to FULL_DAY shifts.
func (r Rules) Lunch() Window {
	return r.lunch
}

// Location returns the zone used for wall-clock conversions.
func (r Rules) Location() *time.Location {
	if r.location == nil {
		return time.Local
	}
	return r.location
}

// MaxDuration is the longest slot any schedule may define.
func (r Rules) MaxDuration() time.Duration {
	return time.Duration(r.maxDuration) * time.Minute
}

// ValidateDuration checks a slot length against the configured bounds.
func (r Rules) ValidateDuration(minutes *int) error {
	if minutes == nil || *minutes <= 0 {
		return ErrInvalidDuration
	}
	d := *minutes
	if d < r.minDuration || d > r.maxDuration {
		return newError(CodeDurationOutOfRange,
			"duration", strconv.Itoa(d),
			"min", strconv.Itoa(r.minDuration),
			"max", strconv.Itoa(r.maxDuration),
		)
	}
	if d%r.durationStep != 0 {
		return newError(CodeDurationNotMultiple,
			"duration", strconv.Itoa(d),
			"step", strconv.Itoa(r.durationStep),
		)
	}
	return nil
}

// IntersectsLunch reports whether [start, start+minutes) touches the lunch
// window. Only FULL_DAY shifts observe the lunch break.
func (r Rules) IntersectsLunch(st ShiftType, start TimeOfDay, minutes int) bool {
	if st != ShiftFullDay {
		return false
	}
	return r.lunch.Intersects(start, minutes)
}

// Local converts an instant into the clinic's wall clock.
func (r Rules) Local(t time.Time) time.Time {
	return t.In(r.Location())
}

// ParseDate parses a YYYY-MM-DD calendar date as local midnight.
func (r Rules) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, r.Location())
	if err != nil {
		return time.Time{}, newError(CodeInvalidDate, "date", s)
	}
	return d, nil
}

// ParseDateTime combines a YYYY-MM-DD date and an HH:mm local time.
func (r Rules) ParseDateTime(date, clock string) (time.Time, error) {
	d, err := r.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	tod, err := ParseTimeOfDay(clock)
	if err != nil {
		return time.Time{}, newError(CodeInvalidTime, "time", clock)
	}
	return tod.On(d), nil
}
