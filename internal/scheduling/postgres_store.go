package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists schedules and appointments in Postgres. Instants
// are written as UTC timestamptz; shift bounds are time columns.
type PostgresStore struct {
	db querier
}

// NewPostgresStore creates a store backed by the doctor_schedules and
// appointments tables.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q querier) *PostgresStore {
	if q == nil {
		panic("scheduling: querier required")
	}
	return &PostgresStore{db: q}
}

const scheduleColumns = `id, doctor_id, day_of_week, is_working_day, shift_type, start_time, end_time, appointment_duration_minutes`

func (s *PostgresStore) GetSchedule(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	query := `SELECT ` + scheduleColumns + ` FROM doctor_schedules WHERE id = $1`
	entry, err := scanSchedule(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scheduling: select schedule: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) FindSchedule(ctx context.Context, doctorID uuid.UUID, weekday Weekday) (*ScheduleEntry, error) {
	query := `SELECT ` + scheduleColumns + ` FROM doctor_schedules WHERE doctor_id = $1 AND day_of_week = $2`
	entry, err := scanSchedule(s.db.QueryRow(ctx, query, doctorID, string(weekday)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scheduling: select schedule by weekday: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListSchedules(ctx context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM doctor_schedules
		WHERE doctor_id = $1
		ORDER BY CASE day_of_week
			WHEN 'MONDAY' THEN 1 WHEN 'TUESDAY' THEN 2 WHEN 'WEDNESDAY' THEN 3
			WHEN 'THURSDAY' THEN 4 WHEN 'FRIDAY' THEN 5 WHEN 'SATURDAY' THEN 6
			ELSE 7 END
	`
	rows, err := s.db.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list schedules: %w", err)
	}
	defer rows.Close()

	out := []ScheduleEntry{}
	for rows.Next() {
		entry, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan schedule: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate schedules: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertSchedule(ctx context.Context, e ScheduleEntry) error {
	query := `
		INSERT INTO doctor_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Exec(ctx, query,
		e.ID,
		e.DoctorID,
		string(e.Weekday),
		e.IsWorkingDay,
		string(e.ShiftType),
		pgTime(e.StartTime),
		pgTime(e.EndTime),
		e.SlotDurationMinutes,
	)
	if err != nil {
		return mapWriteError(err, "insert schedule")
	}
	return nil
}

func (s *PostgresStore) UpdateSchedule(ctx context.Context, e ScheduleEntry) error {
	query := `
		UPDATE doctor_schedules
		SET day_of_week = $2, is_working_day = $3, shift_type = $4,
			start_time = $5, end_time = $6, appointment_duration_minutes = $7,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		e.ID,
		string(e.Weekday),
		e.IsWorkingDay,
		string(e.ShiftType),
		pgTime(e.StartTime),
		pgTime(e.EndTime),
		e.SlotDurationMinutes,
	)
	if err != nil {
		return mapWriteError(err, "update schedule")
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM doctor_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

const appointmentColumns = `id, doctor_id, patient_id, scheduled_at, duration_minutes, status, note, created_at, updated_at`

func (s *PostgresStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: select appointment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) InsertAppointment(ctx context.Context, a Appointment) error {
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, scheduled_at, ends_at, duration_minutes,
			status, note, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Exec(ctx, query,
		a.ID,
		a.DoctorID,
		a.PatientID,
		a.ScheduledAt.UTC(),
		a.EndsAt().UTC(),
		a.DurationMinutes,
		string(a.Status),
		a.Note,
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapWriteError(err, "insert appointment")
	}
	return nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, a Appointment) error {
	query := `
		UPDATE appointments
		SET scheduled_at = $2, ends_at = $3, duration_minutes = $4,
			status = $5, note = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query,
		a.ID,
		a.ScheduledAt.UTC(),
		a.EndsAt().UTC(),
		a.DurationMinutes,
		string(a.Status),
		a.Note,
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapWriteError(err, "update appointment")
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND status <> 'REJECTED'
			AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at
	`
	return s.listAppointments(ctx, query, doctorID, from.UTC(), to.UTC())
}

func (s *PostgresStore) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND status <> 'REJECTED'
		ORDER BY scheduled_at
	`
	return s.listAppointments(ctx, query, doctorID)
}

func (s *PostgresStore) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE doctor_id = $1 ORDER BY scheduled_at`
	return s.listAppointments(ctx, query, doctorID)
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY scheduled_at`
	return s.listAppointments(ctx, query, patientID)
}

func (s *PostgresStore) listAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate appointments: %w", err)
	}
	return out, nil
}

func scanSchedule(row pgx.Row) (*ScheduleEntry, error) {
	var (
		e                  ScheduleEntry
		weekday, shift     string
		startTime, endTime pgtype.Time
	)
	if err := row.Scan(&e.ID, &e.DoctorID, &weekday, &e.IsWorkingDay, &shift, &startTime, &endTime, &e.SlotDurationMinutes); err != nil {
		return nil, err
	}
	e.Weekday = Weekday(weekday)
	e.ShiftType = ShiftType(shift)
	e.StartTime = fromPgTime(startTime)
	e.EndTime = fromPgTime(endTime)
	return &e, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.ScheduledAt, &a.DurationMinutes, &status, &a.Note, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

// mapWriteError turns constraint violations into scheduling conflicts.
func mapWriteError(err error, action string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgExclusionViolation:
			return newError(CodeTimeSlotBooked, "constraint", pgErr.ConstraintName)
		case pgErr.Code == pgUniqueViolation && pgErr.TableName == "doctor_schedules":
			return newError(CodeScheduleExists, "constraint", pgErr.ConstraintName)
		case pgErr.Code == pgUniqueViolation && pgErr.TableName == "appointments":
			return newError(CodeTimeSlotBooked, "constraint", pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("scheduling: %s: %w", action, err)
}
