package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-scheduling/internal/audit"
	"github.com/wolfman30/clinic-scheduling/internal/directory"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// ScheduleStore persists weekly schedule entries.
type ScheduleStore interface {
	// GetSchedule returns ErrScheduleNotFound when id is unknown.
	GetSchedule(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error)
	// FindSchedule returns the doctor's entry for weekday, working or not,
	// or ErrScheduleNotFound.
	FindSchedule(ctx context.Context, doctorID uuid.UUID, weekday Weekday) (*ScheduleEntry, error)
	ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error)
	InsertSchedule(ctx context.Context, entry ScheduleEntry) error
	UpdateSchedule(ctx context.Context, entry ScheduleEntry) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	// GetAppointment returns ErrAppointmentNotFound when id is unknown.
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, appt Appointment) error
	UpdateAppointment(ctx context.Context, appt Appointment) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	// ListActiveInRange returns non-rejected appointments of doctorID whose
	// start lies in [from, to), ordered by start.
	ListActiveInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	// ListActiveByDoctor returns every non-rejected appointment of doctorID.
	ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
}

// AuditRecorder receives an event for every committed mutation.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event) error
}

// Deps wires the engine to its collaborators. Rules, Schedules,
// Appointments and Directory are required. The catalog and the lifecycle
// must share one Locker for shift changes to serialise with bookings.
type Deps struct {
	Rules        Rules
	Schedules    ScheduleStore
	Appointments AppointmentStore
	Directory    directory.Lookup
	Locker       locking.Locker
	Audit        AuditRecorder
	Metrics      *metrics.SchedulingMetrics
	Logger       *logging.Logger
	Now          func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Schedules == nil || d.Appointments == nil || d.Directory == nil {
		panic("scheduling: schedule store, appointment store and directory required")
	}
	if d.rulesUnset() {
		d.Rules = DefaultRules()
	}
	if d.Locker == nil {
		d.Locker = locking.NewLocalLocker()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) rulesUnset() bool {
	return d.Rules.shifts == nil
}

// uncachedStore is implemented by caching decorators of a ScheduleStore.
type uncachedStore interface {
	Uncached() ScheduleStore
}

// authoritative strips caching layers so reads made under the doctor lock
// see only committed rows.
func authoritative(s ScheduleStore) ScheduleStore {
	for {
		u, ok := s.(uncachedStore)
		if !ok {
			return s
		}
		s = u.Uncached()
	}
}

func doctorLockKey(doctorID uuid.UUID) string {
	return "doctor:" + doctorID.String()
}

func findDoctor(ctx context.Context, dir directory.Lookup, id uuid.UUID) (*directory.Person, error) {
	p, err := dir.Find(ctx, id, directory.RoleDoctor)
	if errors.Is(err, directory.ErrPersonNotFound) {
		return nil, newError(CodeDoctorNotFound, "doctor_id", id.String())
	}
	return p, err
}

func findPatient(ctx context.Context, dir directory.Lookup, id uuid.UUID) (*directory.Person, error) {
	p, err := dir.Find(ctx, id, directory.RolePatient)
	if errors.Is(err, directory.ErrPersonNotFound) {
		return nil, newError(CodePatientNotFound, "patient_id", id.String())
	}
	return p, err
}

// outcome labels a metrics observation with the error code, "ok" or "error".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var se *Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
