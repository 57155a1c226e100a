package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Weekday names a day of the week the way schedules are stored and exchanged.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdayOrder = map[Weekday]int{
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
	Sunday:    7,
}

// WeekdayOf converts a time.Weekday into its schedule name.
func WeekdayOf(d time.Weekday) Weekday {
	switch d {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// Valid reports whether w is one of the seven known weekdays.
func (w Weekday) Valid() bool {
	_, ok := weekdayOrder[w]
	return ok
}

// Index orders weekdays Monday (1) through Sunday (7); unknown values sort last.
func (w Weekday) Index() int {
	if idx, ok := weekdayOrder[w]; ok {
		return idx
	}
	return len(weekdayOrder) + 1
}

// ShiftType is the working window preset a doctor picks for a weekday.
type ShiftType string

const (
	ShiftMorning   ShiftType = "MORNING"
	ShiftAfternoon ShiftType = "AFTERNOON"
	ShiftFullDay   ShiftType = "FULL_DAY"
)

// Status is the review state of an appointment.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is a known appointment status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// TimeOfDayOf returns the wall-clock minute of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// ParseTimeOfDay parses an "HH:mm" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("scheduling: time %q is not HH:mm", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("scheduling: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("scheduling: invalid minute in %q", s)
	}
	return NewTimeOfDay(hour, minute), nil
}

// Add returns the time of day d minutes later. The result may pass midnight.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String formats t as "HH:mm".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is a half-open wall-clock range [Start, End).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Intersects reports whether [start, start+minutes) shares any instant with w.
func (w Window) Intersects(start TimeOfDay, minutes int) bool {
	return start < w.End && start.Add(minutes) > w.Start
}

// ScheduleEntry is a doctor's shift definition for one weekday.
type ScheduleEntry struct {
	ID                  uuid.UUID `json:"id"`
	DoctorID            uuid.UUID `json:"doctorId"`
	Weekday             Weekday   `json:"dayOfWeek"`
	IsWorkingDay        bool      `json:"isWorkingDay"`
	ShiftType           ShiftType `json:"shiftType"`
	StartTime           TimeOfDay `json:"startTime"`
	EndTime             TimeOfDay `json:"endTime"`
	SlotDurationMinutes int       `json:"appointmentDurationMinutes"`
}

// ScheduleInput carries the caller-supplied fields of a schedule entry.
// Start and end times are never supplied; they come from the shift preset.
type ScheduleInput struct {
	Weekday         Weekday   `json:"dayOfWeek"`
	IsWorkingDay    bool      `json:"isWorkingDay"`
	DurationMinutes *int      `json:"appointmentDurationMinutes"`
	ShiftType       ShiftType `json:"shiftType"`
}

// Appointment is a booked visit. DurationMinutes is the doctor's slot length
// captured when the appointment was booked or last rescheduled.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctorId"`
	PatientID       uuid.UUID `json:"patientId"`
	ScheduledAt     time.Time `json:"appointmentTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          Status    `json:"status"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EndsAt returns the exclusive end of the appointment interval.
func (a Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Interval returns the appointment's occupied time.
func (a Appointment) Interval() Interval {
	return Interval{Start: a.ScheduledAt, End: a.EndsAt()}
}

// AppointmentView is an appointment joined with the display names of both parties.
type AppointmentView struct {
	Appointment
	DoctorName  string `json:"doctorName"`
	PatientName string `json:"patientName"`
}
