package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling/internal/audit"
	"github.com/wolfman30/clinic-scheduling/internal/directory"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// AppointmentLifecycle books, moves, reviews and cancels appointments.
// Every check-then-write runs under the doctor's lock.
type AppointmentLifecycle struct {
	rules        Rules
	source       ScheduleStore
	appointments AppointmentStore
	directory    directory.Lookup
	validator    *ConflictValidator
	locker       locking.Locker
	audit        AuditRecorder
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
	now          func() time.Time
}

// NewAppointmentLifecycle creates a lifecycle over deps. Booking rules run
// against the uncached schedule store. It panics when a required dependency
// is missing.
func NewAppointmentLifecycle(deps Deps) *AppointmentLifecycle {
	deps = deps.withDefaults()
	return &AppointmentLifecycle{
		rules:        deps.Rules,
		source:       authoritative(deps.Schedules),
		appointments: deps.Appointments,
		directory:    deps.Directory,
		validator:    NewConflictValidator(deps.Rules, deps.Schedules, deps.Appointments),
		locker:       deps.Locker,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		now:          deps.Now,
	}
}

// Validator exposes the conflict validator bound to the same stores.
func (l *AppointmentLifecycle) Validator() *ConflictValidator {
	return l.validator
}

// Create books a PENDING appointment of the doctor's slot length.
func (l *AppointmentLifecycle) Create(ctx context.Context, patientID, doctorID uuid.UUID, scheduledAt time.Time) (appt *Appointment, err error) {
	ctx, span := startSpan(ctx, opAppointmentCreate,
		attribute.String("doctor.id", doctorID.String()),
		attribute.String("patient.id", patientID.String()),
		attribute.String("appointment.time", scheduledAt.Format(time.RFC3339)),
	)
	defer func() { finish(span, l.metrics, opAppointmentCreate, err) }()

	release, err := acquireDoctor(ctx, l.locker, l.metrics, opAppointmentCreate, doctorID)
	if err != nil {
		return nil, err
	}
	defer release()

	entry, err := l.validateSlot(ctx, doctorID, scheduledAt, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if _, err = findPatient(ctx, l.directory, patientID); err != nil {
		return nil, err
	}
	if _, err = findDoctor(ctx, l.directory, doctorID); err != nil {
		return nil, err
	}

	now := l.now()
	a := Appointment{
		ID:              uuid.New(),
		DoctorID:        doctorID,
		PatientID:       patientID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: entry.SlotDurationMinutes,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = l.appointments.InsertAppointment(ctx, a); err != nil {
		return nil, fmt.Errorf("scheduling: insert appointment: %w", err)
	}

	l.logger.Info("appointment created",
		"appointment_id", a.ID.String(),
		"doctor_id", doctorID.String(),
		"patient_id", patientID.String(),
		"scheduled_at", scheduledAt.Format(time.RFC3339),
	)
	recordAudit(ctx, l.audit, l.logger, appointmentEvent(audit.EventAppointmentCreated, a, map[string]any{
		"scheduled_at":     a.ScheduledAt,
		"duration_minutes": a.DurationMinutes,
	}))
	return &a, nil
}

// Reschedule moves an appointment to newTime and returns it to PENDING.
func (l *AppointmentLifecycle) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time) (appt *Appointment, err error) {
	ctx, span := startSpan(ctx, opAppointmentResched,
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.time", newTime.Format(time.RFC3339)),
	)
	defer func() { finish(span, l.metrics, opAppointmentResched, err) }()

	current, err := l.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := acquireDoctor(ctx, l.locker, l.metrics, opAppointmentResched, current.DoctorID)
	if err != nil {
		return nil, err
	}
	defer release()

	// re-read under the lock; a concurrent delete must win
	current, err = l.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	entry, err := l.validateSlot(ctx, current.DoctorID, newTime, id)
	if err != nil {
		return nil, err
	}

	previous := current.ScheduledAt
	current.ScheduledAt = newTime
	current.DurationMinutes = entry.SlotDurationMinutes
	current.Status = StatusPending
	current.UpdatedAt = l.now()
	if err = l.appointments.UpdateAppointment(ctx, *current); err != nil {
		return nil, fmt.Errorf("scheduling: update appointment: %w", err)
	}

	l.logger.Info("appointment rescheduled",
		"appointment_id", id.String(),
		"doctor_id", current.DoctorID.String(),
		"from", previous.Format(time.RFC3339),
		"to", newTime.Format(time.RFC3339),
	)
	recordAudit(ctx, l.audit, l.logger, appointmentEvent(audit.EventAppointmentRescheduled, *current, map[string]any{
		"from": previous,
		"to":   newTime,
	}))
	return current, nil
}

// UpdateStatus sets the review state. Beyond existence, one extra check
// applies: moving a REJECTED appointment back to PENDING or APPROVED re-runs
// the overlap check, and fails with TIME_SLOT_BOOKED when another booking
// has taken the interval since the rejection.
func (l *AppointmentLifecycle) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (err error) {
	ctx, span := startSpan(ctx, opAppointmentStatus,
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.status", string(status)),
	)
	defer func() { finish(span, l.metrics, opAppointmentStatus, err) }()

	if !status.Valid() {
		return newError(CodeInvalidStatus, "status", string(status))
	}
	current, err := l.getAppointment(ctx, id)
	if err != nil {
		return err
	}

	release, err := acquireDoctor(ctx, l.locker, l.metrics, opAppointmentStatus, current.DoctorID)
	if err != nil {
		return err
	}
	defer release()

	current, err = l.getAppointment(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusRejected && status != StatusRejected {
		overlap, overlapErr := l.validator.HasOverlap(ctx, current.DoctorID, current.ScheduledAt, current.DurationMinutes, id)
		if overlapErr != nil {
			return overlapErr
		}
		if overlap {
			return newError(CodeTimeSlotBooked,
				"doctor_id", current.DoctorID.String(),
				"time", current.ScheduledAt.Format(time.RFC3339),
			)
		}
	}

	previous := current.Status
	current.Status = status
	current.UpdatedAt = l.now()
	if err = l.appointments.UpdateAppointment(ctx, *current); err != nil {
		return fmt.Errorf("scheduling: update appointment status: %w", err)
	}

	l.logger.Info("appointment status changed",
		"appointment_id", id.String(),
		"from", string(previous),
		"to", string(status),
	)
	recordAudit(ctx, l.audit, l.logger, appointmentEvent(audit.EventAppointmentStatusChanged, *current, map[string]any{
		"from": previous,
		"to":   status,
	}))
	return nil
}

// AddNote replaces the appointment note.
func (l *AppointmentLifecycle) AddNote(ctx context.Context, id uuid.UUID, note string) (err error) {
	ctx, span := startSpan(ctx, opAppointmentNote, attribute.String("appointment.id", id.String()))
	defer func() { finish(span, l.metrics, opAppointmentNote, err) }()

	current, err := l.getAppointment(ctx, id)
	if err != nil {
		return err
	}
	current.Note = note
	current.UpdatedAt = l.now()
	if err = l.appointments.UpdateAppointment(ctx, *current); err != nil {
		return fmt.Errorf("scheduling: update appointment note: %w", err)
	}

	l.logger.Info("appointment note added", "appointment_id", id.String())
	recordAudit(ctx, l.audit, l.logger, appointmentEvent(audit.EventAppointmentNoteAdded, *current, nil))
	return nil
}

// Delete removes the appointment whatever its state.
func (l *AppointmentLifecycle) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, opAppointmentDelete, attribute.String("appointment.id", id.String()))
	defer func() { finish(span, l.metrics, opAppointmentDelete, err) }()

	current, err := l.getAppointment(ctx, id)
	if err != nil {
		return err
	}

	release, err := acquireDoctor(ctx, l.locker, l.metrics, opAppointmentDelete, current.DoctorID)
	if err != nil {
		return err
	}
	defer release()

	if err = l.appointments.DeleteAppointment(ctx, id); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return newError(CodeAppointmentNotFound, "appointment_id", id.String())
		}
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}

	l.logger.Info("appointment deleted", "appointment_id", id.String(), "doctor_id", current.DoctorID.String())
	recordAudit(ctx, l.audit, l.logger, appointmentEvent(audit.EventAppointmentDeleted, *current, nil))
	return nil
}

// Get returns one appointment with both display names.
func (l *AppointmentLifecycle) Get(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	a, err := l.getAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	names := newNameCache(l.directory)
	view, err := names.view(ctx, *a)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListByPatient returns the patient's appointments ordered by time.
func (l *AppointmentLifecycle) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentView, error) {
	if _, err := findPatient(ctx, l.directory, patientID); err != nil {
		return nil, err
	}
	appts, err := l.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments by patient: %w", err)
	}
	return l.views(ctx, appts)
}

// ListByDoctor returns the doctor's appointments ordered by time.
func (l *AppointmentLifecycle) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentView, error) {
	if _, err := findDoctor(ctx, l.directory, doctorID); err != nil {
		return nil, err
	}
	appts, err := l.appointments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments by doctor: %w", err)
	}
	return l.views(ctx, appts)
}

// validateSlot runs the booking rules for a visit at at: not in the past,
// on a working day, inside the shift, clear of lunch and of other bookings.
func (l *AppointmentLifecycle) validateSlot(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude uuid.UUID) (*ScheduleEntry, error) {
	if at.Before(l.now()) {
		return nil, newError(CodePastDate, "time", at.Format(time.RFC3339))
	}

	local := l.rules.Local(at)
	weekday := WeekdayOf(local.Weekday())
	entry, err := l.source.FindSchedule(ctx, doctorID, weekday)
	if err != nil && !errors.Is(err, ErrScheduleNotFound) {
		return nil, fmt.Errorf("scheduling: find schedule: %w", err)
	}
	if err != nil || !entry.IsWorkingDay {
		return nil, newError(CodeDoctorNotWorking,
			"doctor_id", doctorID.String(),
			"day_of_week", string(weekday),
		)
	}

	if err := checkWindow(l.rules, *entry, TimeOfDayOf(local)); err != nil {
		return nil, err
	}

	overlap, err := l.validator.HasOverlap(ctx, doctorID, at, entry.SlotDurationMinutes, exclude)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, newError(CodeTimeSlotBooked,
			"doctor_id", doctorID.String(),
			"time", at.Format(time.RFC3339),
		)
	}
	return entry, nil
}

func (l *AppointmentLifecycle) getAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := l.appointments.GetAppointment(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, newError(CodeAppointmentNotFound, "appointment_id", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return a, nil
}

func (l *AppointmentLifecycle) views(ctx context.Context, appts []Appointment) ([]AppointmentView, error) {
	slices.SortStableFunc(appts, func(a, b Appointment) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
	names := newNameCache(l.directory)
	out := make([]AppointmentView, 0, len(appts))
	for _, a := range appts {
		v, err := names.view(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// nameCache memoises directory lookups while building a list of views.
type nameCache struct {
	dir   directory.Lookup
	names map[uuid.UUID]string
}

func newNameCache(dir directory.Lookup) *nameCache {
	return &nameCache{dir: dir, names: make(map[uuid.UUID]string)}
}

func (c *nameCache) view(ctx context.Context, a Appointment) (AppointmentView, error) {
	doctor, err := c.name(ctx, a.DoctorID, directory.RoleDoctor)
	if err != nil {
		return AppointmentView{}, err
	}
	patient, err := c.name(ctx, a.PatientID, directory.RolePatient)
	if err != nil {
		return AppointmentView{}, err
	}
	return AppointmentView{Appointment: a, DoctorName: doctor, PatientName: patient}, nil
}

// name returns "" for identities that no longer resolve.
func (c *nameCache) name(ctx context.Context, id uuid.UUID, role directory.Role) (string, error) {
	if n, ok := c.names[id]; ok {
		return n, nil
	}
	p, err := c.dir.Find(ctx, id, role)
	switch {
	case errors.Is(err, directory.ErrPersonNotFound):
		c.names[id] = ""
		return "", nil
	case err != nil:
		return "", fmt.Errorf("scheduling: resolve %s name: %w", role, err)
	}
	c.names[id] = p.FullName()
	return c.names[id], nil
}

func appointmentEvent(t audit.EventType, a Appointment, details map[string]any) audit.Event {
	if details == nil {
		details = map[string]any{}
	}
	details["status"] = a.Status
	return audit.Event{
		EventType:  t,
		EntityType: audit.EntityAppointment,
		EntityID:   a.ID,
		DoctorID:   a.DoctorID,
		PatientID:  a.PatientID,
		Details:    audit.Details(details),
	}
}
