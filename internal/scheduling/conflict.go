package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ConflictValidator answers overlap and availability questions against the
// stored appointments of a doctor.
type ConflictValidator struct {
	rules        Rules
	schedules    ScheduleStore
	appointments AppointmentStore
}

// NewConflictValidator creates a validator reading schedules and appointments
// from the given stores.
func NewConflictValidator(rules Rules, schedules ScheduleStore, appointments AppointmentStore) *ConflictValidator {
	if schedules == nil || appointments == nil {
		panic("scheduling: stores required")
	}
	return &ConflictValidator{rules: rules, schedules: schedules, appointments: appointments}
}

// HasOverlap reports whether [start, start+durationMinutes) intersects any
// non-rejected appointment of doctorID other than exclude. Pass uuid.Nil to
// compare against every appointment.
func (v *ConflictValidator) HasOverlap(ctx context.Context, doctorID uuid.UUID, start time.Time, durationMinutes int, exclude uuid.UUID) (bool, error) {
	candidate := Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}

	// an existing appointment can reach into the candidate only if it began
	// at most one maximum slot length earlier
	existing, err := v.appointments.ListActiveInRange(ctx, doctorID, start.Add(-v.rules.MaxDuration()), candidate.End)
	if err != nil {
		return false, fmt.Errorf("scheduling: list appointments for overlap: %w", err)
	}
	for _, a := range existing {
		if a.ID == exclude || a.Status == StatusRejected {
			continue
		}
		if a.Interval().Overlaps(candidate) {
			return true, nil
		}
	}
	return false, nil
}

// BookedSlotsOn lists the local HH:mm start times of non-rejected
// appointments on date inside the doctor's working window, ascending.
func (v *ConflictValidator) BookedSlotsOn(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	day := v.localDay(date)
	entry, err := v.workingEntry(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, newError(CodeDoctorNotWorking, "doctor_id", doctorID.String(), "date", day.Format(time.DateOnly))
	}

	booked, err := v.appointments.ListActiveInRange(ctx, doctorID, entry.StartTime.On(day), entry.EndTime.On(day))
	if err != nil {
		return nil, fmt.Errorf("scheduling: list booked slots: %w", err)
	}
	out := make([]string, 0, len(booked))
	for _, a := range booked {
		if a.Status == StatusRejected {
			continue
		}
		out = append(out, TimeOfDayOf(v.rules.Local(a.ScheduledAt)).String())
	}
	slices.Sort(out)
	return out, nil
}

// AvailableSlotsOn returns the slots of the doctor's shift on date that no
// active appointment occupies. A day off yields an empty list.
func (v *ConflictValidator) AvailableSlotsOn(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	day := v.localDay(date)
	entry, err := v.workingEntry(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return []string{}, nil
	}

	from := entry.StartTime.On(day).Add(-v.rules.MaxDuration())
	booked, err := v.appointments.ListActiveInRange(ctx, doctorID, from, entry.EndTime.On(day))
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments for availability: %w", err)
	}

	slotLen := time.Duration(entry.SlotDurationMinutes) * time.Minute
	out := []string{}
	for slot := range Slots(v.rules, *entry) {
		start := slot.On(day)
		candidate := Interval{Start: start, End: start.Add(slotLen)}
		taken := slices.ContainsFunc(booked, func(a Appointment) bool {
			return a.Status != StatusRejected && a.Interval().Overlaps(candidate)
		})
		if !taken {
			out = append(out, slot.String())
		}
	}
	return out, nil
}

// IsDoctorAvailable reports whether a slot-length visit at tod on date fits
// the doctor's shift without touching the lunch break. Existing bookings are
// not consulted.
func (v *ConflictValidator) IsDoctorAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, tod TimeOfDay) (bool, error) {
	day := v.localDay(date)
	entry, err := v.workingEntry(ctx, doctorID, day)
	if err != nil || entry == nil {
		return false, err
	}
	return checkWindow(v.rules, *entry, tod) == nil, nil
}

// workingEntry returns the entry covering day, or nil when the doctor has no
// entry or takes the day off.
func (v *ConflictValidator) workingEntry(ctx context.Context, doctorID uuid.UUID, day time.Time) (*ScheduleEntry, error) {
	entry, err := v.schedules.FindSchedule(ctx, doctorID, WeekdayOf(day.Weekday()))
	if errors.Is(err, ErrScheduleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: find schedule: %w", err)
	}
	if !entry.IsWorkingDay {
		return nil, nil
	}
	return entry, nil
}

// localDay truncates t to midnight of its calendar day in the clinic zone.
func (v *ConflictValidator) localDay(t time.Time) time.Time {
	local := v.rules.Local(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// checkWindow applies the working-hours and lunch rules to a visit of the
// entry's slot length starting at tod.
func checkWindow(rules Rules, entry ScheduleEntry, tod TimeOfDay) error {
	d := entry.SlotDurationMinutes
	if tod < entry.StartTime || tod > entry.EndTime {
		return newError(CodeOutsideWorkingHours,
			"time", tod.String(),
			"start", entry.StartTime.String(),
			"end", entry.EndTime.String(),
		)
	}
	if tod.Add(d) > entry.EndTime {
		return newError(CodeExceedsWorkingHours,
			"time", tod.String(),
			"ends", tod.Add(d).String(),
			"end", entry.EndTime.String(),
		)
	}
	if rules.IntersectsLunch(entry.ShiftType, tod, d) {
		lunch := rules.Lunch()
		return newError(CodeDuringLunchBreak,
			"time", tod.String(),
			"lunch_start", lunch.Start.String(),
			"lunch_end", lunch.End.String(),
		)
	}
	return nil
}
