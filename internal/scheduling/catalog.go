package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling/internal/audit"
	"github.com/wolfman30/clinic-scheduling/internal/directory"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// NoScheduleSummary is the weekly summary of a doctor without working days.
const NoScheduleSummary = "No weekly schedule has been defined for this doctor."

// ScheduleCatalog owns each doctor's per-weekday shift definitions.
type ScheduleCatalog struct {
	rules        Rules
	schedules    ScheduleStore
	source       ScheduleStore
	appointments AppointmentStore
	directory    directory.Lookup
	locker       locking.Locker
	audit        AuditRecorder
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
}

// NewScheduleCatalog creates a catalog over deps. It panics when a required
// dependency is missing.
func NewScheduleCatalog(deps Deps) *ScheduleCatalog {
	deps = deps.withDefaults()
	return &ScheduleCatalog{
		rules:        deps.Rules,
		schedules:    deps.Schedules,
		source:       authoritative(deps.Schedules),
		appointments: deps.Appointments,
		directory:    deps.Directory,
		locker:       deps.Locker,
		audit:        deps.Audit,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// Create defines the doctor's shift for one weekday and returns its id.
func (c *ScheduleCatalog) Create(ctx context.Context, doctorID uuid.UUID, in ScheduleInput) (id uuid.UUID, err error) {
	ctx, span := startSpan(ctx, opScheduleCreate,
		attribute.String("doctor.id", doctorID.String()),
		attribute.String("schedule.day_of_week", string(in.Weekday)),
	)
	defer func() { finish(span, c.metrics, opScheduleCreate, err) }()

	if _, err = findDoctor(ctx, c.directory, doctorID); err != nil {
		return uuid.Nil, err
	}
	if err = validateEnums(in); err != nil {
		return uuid.Nil, err
	}

	release, err := acquireDoctor(ctx, c.locker, c.metrics, opScheduleCreate, doctorID)
	if err != nil {
		return uuid.Nil, err
	}
	defer release()

	existing, err := c.source.FindSchedule(ctx, doctorID, in.Weekday)
	switch {
	case err == nil:
		return uuid.Nil, newError(CodeScheduleExists,
			"doctor_id", doctorID.String(),
			"day_of_week", string(in.Weekday),
			"schedule_id", existing.ID.String(),
		)
	case !errors.Is(err, ErrScheduleNotFound):
		return uuid.Nil, fmt.Errorf("scheduling: find schedule: %w", err)
	}

	entry, err := c.buildEntry(uuid.New(), doctorID, in)
	if err != nil {
		return uuid.Nil, err
	}
	if err = c.checkLunchBookings(ctx, entry); err != nil {
		return uuid.Nil, err
	}
	if err = c.schedules.InsertSchedule(ctx, entry); err != nil {
		return uuid.Nil, fmt.Errorf("scheduling: insert schedule: %w", err)
	}

	c.logger.Info("schedule created",
		"schedule_id", entry.ID.String(),
		"doctor_id", doctorID.String(),
		"day_of_week", string(entry.Weekday),
		"shift_type", string(entry.ShiftType),
	)
	recordAudit(ctx, c.audit, c.logger, scheduleEvent(audit.EventScheduleCreated, entry))
	return entry.ID, nil
}

// Update replaces the fields of scheduleID, which must belong to doctorID.
func (c *ScheduleCatalog) Update(ctx context.Context, doctorID, scheduleID uuid.UUID, in ScheduleInput) (err error) {
	ctx, span := startSpan(ctx, opScheduleUpdate,
		attribute.String("doctor.id", doctorID.String()),
		attribute.String("schedule.id", scheduleID.String()),
	)
	defer func() { finish(span, c.metrics, opScheduleUpdate, err) }()

	if _, err = findDoctor(ctx, c.directory, doctorID); err != nil {
		return err
	}

	release, err := acquireDoctor(ctx, c.locker, c.metrics, opScheduleUpdate, doctorID)
	if err != nil {
		return err
	}
	defer release()

	current, err := c.ownedSchedule(ctx, doctorID, scheduleID)
	if err != nil {
		return err
	}
	if err = validateEnums(in); err != nil {
		return err
	}
	if in.Weekday != current.Weekday {
		other, findErr := c.source.FindSchedule(ctx, doctorID, in.Weekday)
		switch {
		case findErr == nil && other.ID != scheduleID:
			return newError(CodeScheduleExists,
				"doctor_id", doctorID.String(),
				"day_of_week", string(in.Weekday),
				"schedule_id", other.ID.String(),
			)
		case findErr != nil && !errors.Is(findErr, ErrScheduleNotFound):
			return fmt.Errorf("scheduling: find schedule: %w", findErr)
		}
	}

	entry, err := c.buildEntry(scheduleID, doctorID, in)
	if err != nil {
		return err
	}
	if err = c.checkLunchBookings(ctx, entry); err != nil {
		return err
	}
	if err = c.schedules.UpdateSchedule(ctx, entry); err != nil {
		return fmt.Errorf("scheduling: update schedule: %w", err)
	}

	c.logger.Info("schedule updated",
		"schedule_id", scheduleID.String(),
		"doctor_id", doctorID.String(),
		"day_of_week", string(entry.Weekday),
	)
	recordAudit(ctx, c.audit, c.logger, scheduleEvent(audit.EventScheduleUpdated, entry))
	return nil
}

// Delete removes scheduleID. Appointments already booked on that weekday
// stay as they are.
func (c *ScheduleCatalog) Delete(ctx context.Context, doctorID, scheduleID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, opScheduleDelete,
		attribute.String("doctor.id", doctorID.String()),
		attribute.String("schedule.id", scheduleID.String()),
	)
	defer func() { finish(span, c.metrics, opScheduleDelete, err) }()

	release, err := acquireDoctor(ctx, c.locker, c.metrics, opScheduleDelete, doctorID)
	if err != nil {
		return err
	}
	defer release()

	current, err := c.ownedSchedule(ctx, doctorID, scheduleID)
	if err != nil {
		return err
	}
	if err = c.schedules.DeleteSchedule(ctx, scheduleID); err != nil {
		return fmt.Errorf("scheduling: delete schedule: %w", err)
	}

	c.logger.Info("schedule deleted", "schedule_id", scheduleID.String(), "doctor_id", doctorID.String())
	recordAudit(ctx, c.audit, c.logger, scheduleEvent(audit.EventScheduleDeleted, *current))
	return nil
}

// Get returns the doctor's entry for weekday, if any.
func (c *ScheduleCatalog) Get(ctx context.Context, doctorID uuid.UUID, weekday Weekday) (*ScheduleEntry, bool, error) {
	entry, err := c.schedules.FindSchedule(ctx, doctorID, weekday)
	if errors.Is(err, ErrScheduleNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scheduling: find schedule: %w", err)
	}
	return entry, true, nil
}

// ListWorkingDays returns the doctor's working-day entries, Monday first.
func (c *ScheduleCatalog) ListWorkingDays(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	if _, err := findDoctor(ctx, c.directory, doctorID); err != nil {
		return nil, err
	}
	all, err := c.schedules.ListSchedules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list schedules: %w", err)
	}
	working := make([]ScheduleEntry, 0, len(all))
	for _, e := range all {
		if e.IsWorkingDay {
			working = append(working, e)
		}
	}
	slices.SortFunc(working, func(a, b ScheduleEntry) int {
		return a.Weekday.Index() - b.Weekday.Index()
	})
	return working, nil
}

// ListDoctors returns the bookable doctors.
func (c *ScheduleCatalog) ListDoctors(ctx context.Context) ([]directory.Person, error) {
	doctors, err := c.directory.List(ctx, directory.RoleDoctor)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list doctors: %w", err)
	}
	return doctors, nil
}

// WeeklySummary renders one line per working day, for example
// "MONDAY: 09:00 - 12:00 (MORNING, 30 minutes)".
func (c *ScheduleCatalog) WeeklySummary(ctx context.Context, doctorID uuid.UUID) (string, error) {
	working, err := c.ListWorkingDays(ctx, doctorID)
	if err != nil {
		return "", err
	}
	if len(working) == 0 {
		return NoScheduleSummary, nil
	}
	lines := make([]string, 0, len(working))
	for _, e := range working {
		lines = append(lines, fmt.Sprintf("%s: %s - %s (%s, %d minutes)",
			e.Weekday, e.StartTime, e.EndTime, e.ShiftType, e.SlotDurationMinutes))
	}
	return strings.Join(lines, "\n"), nil
}

func (c *ScheduleCatalog) ownedSchedule(ctx context.Context, doctorID, scheduleID uuid.UUID) (*ScheduleEntry, error) {
	entry, err := c.schedules.GetSchedule(ctx, scheduleID)
	if errors.Is(err, ErrScheduleNotFound) {
		return nil, newError(CodeScheduleNotFound, "schedule_id", scheduleID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get schedule: %w", err)
	}
	if entry.DoctorID != doctorID {
		return nil, newError(CodeNotAuthorized,
			"schedule_id", scheduleID.String(),
			"doctor_id", doctorID.String(),
		)
	}
	return entry, nil
}

// buildEntry validates the duration and derives the window from the preset.
func (c *ScheduleCatalog) buildEntry(id, doctorID uuid.UUID, in ScheduleInput) (ScheduleEntry, error) {
	if err := c.rules.ValidateDuration(in.DurationMinutes); err != nil {
		return ScheduleEntry{}, err
	}
	window, ok := c.rules.Shift(in.ShiftType)
	if !ok {
		return ScheduleEntry{}, newError(CodeInvalidShiftType, "shift_type", string(in.ShiftType))
	}
	return ScheduleEntry{
		ID:                  id,
		DoctorID:            doctorID,
		Weekday:             in.Weekday,
		IsWorkingDay:        in.IsWorkingDay,
		ShiftType:           in.ShiftType,
		StartTime:           window.Start,
		EndTime:             window.End,
		SlotDurationMinutes: *in.DurationMinutes,
	}, nil
}

// checkLunchBookings rejects a FULL_DAY entry when an active appointment on
// the same weekday would overlap the lunch break at the new slot length.
func (c *ScheduleCatalog) checkLunchBookings(ctx context.Context, entry ScheduleEntry) error {
	if entry.ShiftType != ShiftFullDay {
		return nil
	}
	appts, err := c.appointments.ListActiveByDoctor(ctx, entry.DoctorID)
	if err != nil {
		return fmt.Errorf("scheduling: list appointments for lunch check: %w", err)
	}
	for _, a := range appts {
		if a.Status == StatusRejected {
			continue
		}
		local := c.rules.Local(a.ScheduledAt)
		if WeekdayOf(local.Weekday()) != entry.Weekday {
			continue
		}
		tod := TimeOfDayOf(local)
		if c.rules.IntersectsLunch(ShiftFullDay, tod, entry.SlotDurationMinutes) {
			return newError(CodeLunchBreakBooked,
				"appointment_id", a.ID.String(),
				"time", tod.String(),
				"duration", strconv.Itoa(entry.SlotDurationMinutes),
			)
		}
	}
	return nil
}

func validateEnums(in ScheduleInput) error {
	if !in.Weekday.Valid() {
		return newError(CodeInvalidWeekday, "day_of_week", string(in.Weekday))
	}
	switch in.ShiftType {
	case ShiftMorning, ShiftAfternoon, ShiftFullDay:
		return nil
	}
	return newError(CodeInvalidShiftType, "shift_type", string(in.ShiftType))
}

func scheduleEvent(t audit.EventType, e ScheduleEntry) audit.Event {
	return audit.Event{
		EventType:  t,
		EntityType: audit.EntitySchedule,
		EntityID:   e.ID,
		DoctorID:   e.DoctorID,
		Details: audit.Details(map[string]any{
			"day_of_week":                  e.Weekday,
			"is_working_day":               e.IsWorkingDay,
			"shift_type":                   e.ShiftType,
			"appointment_duration_minutes": e.SlotDurationMinutes,
		}),
	}
}
