package scheduling

import (
	"fmt"
	"sort"
	"strings"
)

// Kind groups error codes by how callers should react to them.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindValidation   Kind = "VALIDATION"
	KindConflict     Kind = "CONFLICT"
	KindUnauthorized Kind = "UNAUTHORIZED"
)

// Code is a stable, machine-readable scheduling failure.
type Code string

const (
	CodeDoctorNotFound      Code = "DOCTOR_NOT_FOUND"
	CodePatientNotFound     Code = "PATIENT_NOT_FOUND"
	CodeAppointmentNotFound Code = "APPT_NOT_FOUND"
	CodeScheduleNotFound    Code = "SCHEDULE_NOT_FOUND"

	CodeInvalidDuration     Code = "INVALID_APPOINTMENT_DURATION"
	CodeDurationOutOfRange  Code = "APPOINTMENT_DURATION_OUT_OF_RANGE"
	CodeDurationNotMultiple Code = "APPOINTMENT_DURATION_MUST_BE_MULTIPLE_OF_15"
	CodeInvalidShiftType    Code = "INVALID_SHIFT_TYPE"
	CodeInvalidWeekday      Code = "INVALID_WEEKDAY"
	CodeInvalidStatus       Code = "INVALID_STATUS"
	CodeInvalidDate         Code = "INVALID_DATE"
	CodeInvalidTime         Code = "INVALID_TIME"
	CodePastDate            Code = "APPT_PAST_DATE"
	CodeDoctorNotWorking    Code = "DOCTOR_NOT_WORKING"
	CodeOutsideWorkingHours Code = "APPT_OUTSIDE_WORKING_HOURS"
	CodeExceedsWorkingHours Code = "APPT_EXCEEDS_WORKING_HOURS"
	CodeDuringLunchBreak    Code = "APPT_DURING_LUNCH_BREAK"
	CodeTimeSlotBooked      Code = "APPT_TIME_SLOT_BOOKED"
	CodeScheduleExists      Code = "SCHEDULE_ALREADY_EXISTS"
	CodeLunchBreakBooked    Code = "EXISTING_APPOINTMENTS_DURING_LUNCH_BREAK"
	CodeNotAuthorized       Code = "NOT_AUTHORIZED"
)

type codeInfo struct {
	kind    Kind
	message string
}

var codes = map[Code]codeInfo{
	CodeDoctorNotFound:      {KindNotFound, "doctor not found"},
	CodePatientNotFound:     {KindNotFound, "patient not found"},
	CodeAppointmentNotFound: {KindNotFound, "appointment not found"},
	CodeScheduleNotFound:    {KindNotFound, "schedule not found"},

	CodeInvalidDuration:     {KindValidation, "appointment duration must be a positive number of minutes"},
	CodeDurationOutOfRange:  {KindValidation, "appointment duration must be between 15 and 120 minutes"},
	CodeDurationNotMultiple: {KindValidation, "appointment duration must be a multiple of 15 minutes"},
	CodeInvalidShiftType:    {KindValidation, "unknown shift type"},
	CodeInvalidWeekday:      {KindValidation, "unknown day of week"},
	CodeInvalidStatus:       {KindValidation, "unknown appointment status"},
	CodeInvalidDate:         {KindValidation, "date must be YYYY-MM-DD"},
	CodeInvalidTime:         {KindValidation, "time must be HH:mm"},
	CodePastDate:            {KindValidation, "appointment time is in the past"},
	CodeDoctorNotWorking:    {KindValidation, "doctor does not work on this day"},
	CodeOutsideWorkingHours: {KindValidation, "appointment time is outside working hours"},
	CodeExceedsWorkingHours: {KindValidation, "appointment would end after working hours"},
	CodeDuringLunchBreak:    {KindValidation, "appointment overlaps the lunch break"},

	CodeTimeSlotBooked:   {KindConflict, "time slot is already booked"},
	CodeScheduleExists:   {KindConflict, "a schedule already exists for this day"},
	CodeLunchBreakBooked: {KindConflict, "existing appointments fall inside the lunch break"},

	CodeNotAuthorized: {KindUnauthorized, "schedule belongs to another doctor"},
}

// Kind returns the taxonomy bucket of c.
func (c Code) Kind() Kind {
	return codes[c].kind
}

// Message returns the human-readable description of c.
func (c Code) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return strings.ToLower(strings.ReplaceAll(string(c), "_", " "))
}

// Error is a scheduling failure with structured context. Two errors match
// under errors.Is when their codes are equal, regardless of details.
type Error struct {
	Code    Code
	Details map[string]string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("scheduling: %s: %s", e.Code, e.Code.Message())
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("scheduling: %s: %s (%s)", e.Code, e.Code.Message(), strings.Join(parts, ", "))
}

// Kind returns the taxonomy bucket of the error.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// newError builds an Error from a code and alternating key/value pairs.
func newError(code Code, kv ...string) *Error {
	err := &Error{Code: code}
	if len(kv) > 1 {
		err.Details = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			err.Details[kv[i]] = kv[i+1]
		}
	}
	return err
}

var (
	ErrDoctorNotFound      = &Error{Code: CodeDoctorNotFound}
	ErrPatientNotFound     = &Error{Code: CodePatientNotFound}
	ErrAppointmentNotFound = &Error{Code: CodeAppointmentNotFound}
	ErrScheduleNotFound    = &Error{Code: CodeScheduleNotFound}

	ErrInvalidDuration     = &Error{Code: CodeInvalidDuration}
	ErrDurationOutOfRange  = &Error{Code: CodeDurationOutOfRange}
	ErrDurationNotMultiple = &Error{Code: CodeDurationNotMultiple}
	ErrInvalidShiftType    = &Error{Code: CodeInvalidShiftType}
	ErrInvalidWeekday      = &Error{Code: CodeInvalidWeekday}
	ErrInvalidStatus       = &Error{Code: CodeInvalidStatus}
	ErrInvalidDate         = &Error{Code: CodeInvalidDate}
	ErrInvalidTime         = &Error{Code: CodeInvalidTime}
	ErrPastDate            = &Error{Code: CodePastDate}
	ErrDoctorNotWorking    = &Error{Code: CodeDoctorNotWorking}
	ErrOutsideHours        = &Error{Code: CodeOutsideWorkingHours}
	ErrExceedsHours        = &Error{Code: CodeExceedsWorkingHours}
	ErrDuringLunchBreak    = &Error{Code: CodeDuringLunchBreak}

	ErrTimeSlotBooked   = &Error{Code: CodeTimeSlotBooked}
	ErrScheduleExists   = &Error{Code: CodeScheduleExists}
	ErrLunchBreakBooked = &Error{Code: CodeLunchBreakBooked}

	ErrNotAuthorized = &Error{Code: CodeNotAuthorized}
)
