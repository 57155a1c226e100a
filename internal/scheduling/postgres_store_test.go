package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scheduleCols = []string{"id", "doctor_id", "day_of_week", "is_working_day", "shift_type", "start_time", "end_time", "appointment_duration_minutes"}

var appointmentCols = []string{"id", "doctor_id", "patient_id", "scheduled_at", "duration_minutes", "status", "note", "created_at", "updated_at"}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newPostgresStoreWithQuerier(mock)
}

func TestPostgresStore_FindSchedule(t *testing.T) {
	mock, store := newMockStore(t)
	id, doctorID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM doctor_schedules").
		WithArgs(doctorID, "MONDAY").
		WillReturnRows(pgxmock.NewRows(scheduleCols).
			AddRow(id, doctorID, "MONDAY", true, "FULL_DAY", pgTime(NewTimeOfDay(9, 0)), pgTime(NewTimeOfDay(18, 0)), 45))

	entry, err := store.FindSchedule(context.Background(), doctorID, Monday)
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, ShiftFullDay, entry.ShiftType)
	assert.Equal(t, "09:00", entry.StartTime.String())
	assert.Equal(t, "18:00", entry.EndTime.String())
	assert.Equal(t, 45, entry.SlotDurationMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ScheduleNotFound(t *testing.T) {
	mock, store := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("FROM doctor_schedules").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err := store.GetSchedule(context.Background(), id)
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	mock.ExpectQuery("FROM doctor_schedules").WillReturnError(errors.New("conn reset"))
	_, err = store.FindSchedule(context.Background(), id, Friday)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrScheduleNotFound)
	assert.Contains(t, err.Error(), "scheduling: select schedule by weekday")
}

func TestPostgresStore_ListSchedules(t *testing.T) {
	mock, store := newMockStore(t)
	doctorID := uuid.New()

	mock.ExpectQuery("FROM doctor_schedules").
		WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows(scheduleCols).
			AddRow(uuid.New(), doctorID, "MONDAY", true, "MORNING", pgTime(NewTimeOfDay(9, 0)), pgTime(NewTimeOfDay(12, 0)), 30).
			AddRow(uuid.New(), doctorID, "SUNDAY", false, "AFTERNOON", pgTime(NewTimeOfDay(13, 0)), pgTime(NewTimeOfDay(18, 0)), 15))

	entries, err := store.ListSchedules(context.Background(), doctorID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Monday, entries[0].Weekday)
	assert.False(t, entries[1].IsWorkingDay)
	assert.Equal(t, NewTimeOfDay(13, 0), entries[1].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertSchedule(t *testing.T) {
	mock, store := newMockStore(t)
	e := ScheduleEntry{
		ID: uuid.New(), DoctorID: uuid.New(), Weekday: Tuesday, IsWorkingDay: true,
		ShiftType: ShiftMorning, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), SlotDurationMinutes: 30,
	}

	mock.ExpectExec("INSERT INTO doctor_schedules").
		WithArgs(e.ID, e.DoctorID, "TUESDAY", true, "MORNING", pgTime(e.StartTime), pgTime(e.EndTime), 30).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.InsertSchedule(context.Background(), e))

	mock.ExpectExec("INSERT INTO doctor_schedules").
		WithArgs(e.ID, e.DoctorID, "TUESDAY", true, "MORNING", pgTime(e.StartTime), pgTime(e.EndTime), 30).
		WillReturnError(&pgconn.PgError{Code: "23505", TableName: "doctor_schedules", ConstraintName: "doctor_schedules_doctor_id_day_of_week_key"})
	err := store.InsertSchedule(context.Background(), e)
	requireCode(t, err, CodeScheduleExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAndDeleteSchedule(t *testing.T) {
	mock, store := newMockStore(t)
	e := ScheduleEntry{ID: uuid.New(), DoctorID: uuid.New(), Weekday: Friday, ShiftType: ShiftAfternoon,
		StartTime: NewTimeOfDay(13, 0), EndTime: NewTimeOfDay(18, 0), SlotDurationMinutes: 60}

	mock.ExpectExec("UPDATE doctor_schedules").
		WithArgs(e.ID, "FRIDAY", false, "AFTERNOON", pgTime(e.StartTime), pgTime(e.EndTime), 60).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateSchedule(context.Background(), e))

	mock.ExpectExec("UPDATE doctor_schedules").
		WithArgs(e.ID, "FRIDAY", false, "AFTERNOON", pgTime(e.StartTime), pgTime(e.EndTime), 60).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.UpdateSchedule(context.Background(), e), ErrScheduleNotFound)

	mock.ExpectExec("DELETE FROM doctor_schedules").WithArgs(e.ID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.DeleteSchedule(context.Background(), e.ID))

	mock.ExpectExec("DELETE FROM doctor_schedules").WithArgs(e.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.DeleteSchedule(context.Background(), e.ID), ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAppointment(t *testing.T) {
	mock, store := newMockStore(t)
	id, doctorID, patientID := uuid.New(), uuid.New(), uuid.New()
	when := time.Date(2030, 1, 7, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(id, doctorID, patientID, when, 45, "APPROVED", "bring x-rays", when, when))

	a, err := store.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, a.Status)
	assert.Equal(t, "bring x-rays", a.Note)
	assert.Equal(t, when.Add(45*time.Minute), a.EndsAt())

	mock.ExpectQuery("FROM appointments").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = store.GetAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertAppointmentMapsConflicts(t *testing.T) {
	mock, store := newMockStore(t)
	when := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	a := Appointment{ID: uuid.New(), DoctorID: uuid.New(), PatientID: uuid.New(), ScheduledAt: when,
		DurationMinutes: 30, Status: StatusPending, CreatedAt: when, UpdatedAt: when}

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(a.ID, a.DoctorID, a.PatientID, when, when.Add(30*time.Minute), 30, "PENDING", "", when, when).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.InsertAppointment(context.Background(), a))

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(a.ID, a.DoctorID, a.PatientID, when, when.Add(30*time.Minute), 30, "PENDING", "", when, when).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	requireCode(t, store.InsertAppointment(context.Background(), a), CodeTimeSlotBooked)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(a.ID, a.DoctorID, a.PatientID, when, when.Add(30*time.Minute), 30, "PENDING", "", when, when).
		WillReturnError(&pgconn.PgError{Code: "23505", TableName: "appointments"})
	requireCode(t, store.InsertAppointment(context.Background(), a), CodeTimeSlotBooked)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(a.ID, a.DoctorID, a.PatientID, when, when.Add(30*time.Minute), 30, "PENDING", "", when, when).
		WillReturnError(errors.New("disk full"))
	err := store.InsertAppointment(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduling: insert appointment: disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAndDeleteAppointment(t *testing.T) {
	mock, store := newMockStore(t)
	when := time.Date(2030, 1, 8, 14, 0, 0, 0, time.UTC)
	a := Appointment{ID: uuid.New(), ScheduledAt: when, DurationMinutes: 60, Status: StatusApproved, UpdatedAt: when}

	mock.ExpectExec("UPDATE appointments").
		WithArgs(a.ID, when, when.Add(time.Hour), 60, "APPROVED", "", when).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateAppointment(context.Background(), a))

	mock.ExpectExec("UPDATE appointments").
		WithArgs(a.ID, when, when.Add(time.Hour), 60, "APPROVED", "", when).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.UpdateAppointment(context.Background(), a), ErrAppointmentNotFound)

	mock.ExpectExec("DELETE FROM appointments").WithArgs(a.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.DeleteAppointment(context.Background(), a.ID), ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActiveInRange(t *testing.T) {
	mock, store := newMockStore(t)
	doctorID := uuid.New()
	from := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	to := from.Add(3 * time.Hour)

	mock.ExpectQuery("FROM appointments").
		WithArgs(doctorID, from, to).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(uuid.New(), doctorID, uuid.New(), from, 30, "PENDING", "", from, from).
			AddRow(uuid.New(), doctorID, uuid.New(), from.Add(time.Hour), 30, "APPROVED", "", from, from))

	got, err := store.ListActiveInRange(context.Background(), doctorID, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, from.Add(time.Hour), got[1].ScheduledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByPatientEmpty(t *testing.T) {
	mock, store := newMockStore(t)
	patientID := uuid.New()

	mock.ExpectQuery("FROM appointments").
		WithArgs(patientID).
		WillReturnRows(pgxmock.NewRows(appointmentCols))

	got, err := store.ListByPatient(context.Background(), patientID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgTimeRoundTrip(t *testing.T) {
	tod := NewTimeOfDay(13, 45)
	assert.Equal(t, pgtype.Time{Microseconds: int64(13*60+45) * 60_000_000, Valid: true}, pgTime(tod))
	assert.Equal(t, tod, fromPgTime(pgTime(tod)))
}
