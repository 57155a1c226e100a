package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflict_HasOverlapUsesStoredDuration(t *testing.T) {
	f := newFixture(t)
	v := f.lifecycle.Validator()
	f.schedule(t, Monday, ShiftMorning, 90)
	long := f.book(t, at(monday, 9, 0))

	// the 90 minute booking reaches 10:30 even for a 15 minute candidate
	overlap, err := v.HasOverlap(context.Background(), f.doctor.ID, at(monday, 10, 15), 15, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, overlap)

	overlap, err = v.HasOverlap(context.Background(), f.doctor.ID, at(monday, 10, 30), 15, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, overlap)

	overlap, err = v.HasOverlap(context.Background(), f.doctor.ID, at(monday, 10, 15), 15, long.ID)
	require.NoError(t, err)
	assert.False(t, overlap)

	overlap, err = v.HasOverlap(context.Background(), uuid.New(), at(monday, 9, 0), 15, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, overlap)
}

func TestConflict_BookedSlotsOn(t *testing.T) {
	f := newFixture(t)
	v := f.lifecycle.Validator()
	f.schedule(t, Monday, ShiftMorning, 30)
	f.book(t, at(monday, 11, 0))
	f.book(t, at(monday, 9, 30))
	rejected := f.book(t, at(monday, 10, 0))
	require.NoError(t, f.lifecycle.UpdateStatus(context.Background(), rejected.ID, StatusRejected))

	booked, err := v.BookedSlotsOn(context.Background(), f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30", "11:00"}, booked)

	_, err = v.BookedSlotsOn(context.Background(), f.doctor.ID, tuesday)
	requireCode(t, err, CodeDoctorNotWorking)
}

func TestConflict_BookedSlotsConvertToLocalZone(t *testing.T) {
	f := newFixture(t)
	zone := time.FixedZone("UTC+3", 3*60*60)
	rules := DefaultRules().WithLocation(zone)
	v := NewConflictValidator(rules, f.store, f.store)

	entry := ScheduleEntry{
		ID: uuid.New(), DoctorID: f.doctor.ID, Weekday: Monday, IsWorkingDay: true,
		ShiftType: ShiftMorning, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(12, 0), SlotDurationMinutes: 30,
	}
	require.NoError(t, f.store.InsertSchedule(context.Background(), entry))

	// 06:30 UTC is 09:30 local
	require.NoError(t, f.store.InsertAppointment(context.Background(), Appointment{
		ID: uuid.New(), DoctorID: f.doctor.ID, PatientID: f.patient.ID,
		ScheduledAt: time.Date(2030, 1, 7, 6, 30, 0, 0, time.UTC), DurationMinutes: 30, Status: StatusApproved,
	}))

	localMonday := time.Date(2030, 1, 7, 0, 0, 0, 0, zone)
	booked, err := v.BookedSlotsOn(context.Background(), f.doctor.ID, localMonday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30"}, booked)

	available, err := v.AvailableSlotsOn(context.Background(), f.doctor.ID, localMonday)
	require.NoError(t, err)
	assert.NotContains(t, available, "09:30")
	assert.Contains(t, available, "09:00")
}

func TestConflict_AvailableSlotsOn(t *testing.T) {
	f := newFixture(t)
	v := f.lifecycle.Validator()
	f.schedule(t, Monday, ShiftMorning, 30)
	f.book(t, at(monday, 9, 30))
	f.book(t, at(monday, 11, 30))

	first, err := v.AvailableSlotsOn(context.Background(), f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "10:30", "11:00"}, first)

	second, err := v.AvailableSlotsOn(context.Background(), f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	none, err := v.AvailableSlotsOn(context.Background(), f.doctor.ID, tuesday)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestConflict_AvailableSlotsHidePartialOverlap(t *testing.T) {
	f := newFixture(t)
	v := f.lifecycle.Validator()
	id := f.schedule(t, Monday, ShiftMorning, 30)
	f.book(t, at(monday, 9, 0))

	// a slot length change leaves a 30 minute booking inside a 60 minute grid
	require.NoError(t, f.catalog.Update(context.Background(), f.doctor.ID, id, ScheduleInput{
		Weekday: Monday, IsWorkingDay: true, DurationMinutes: intPtr(60), ShiftType: ShiftMorning,
	}))
	f.book(t, at(monday, 10, 30))

	available, err := v.AvailableSlotsOn(context.Background(), f.doctor.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{}, available)
}

func TestConflict_IsDoctorAvailable(t *testing.T) {
	f := newFixture(t)
	v := f.lifecycle.Validator()
	f.schedule(t, Monday, ShiftFullDay, 60)

	cases := []struct {
		tod  TimeOfDay
		want bool
	}{
		{NewTimeOfDay(9, 0), true},
		{NewTimeOfDay(11, 0), true},
		{NewTimeOfDay(11, 30), false},
		{NewTimeOfDay(12, 15), false},
		{NewTimeOfDay(13, 0), true},
		{NewTimeOfDay(16, 0), true},
		{NewTimeOfDay(17, 0), true},
		{NewTimeOfDay(17, 30), false},
		{NewTimeOfDay(8, 0), false},
	}
	for _, c := range cases {
		got, err := v.IsDoctorAvailable(context.Background(), f.doctor.ID, monday, c.tod)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.tod.String())
	}

	got, err := v.IsDoctorAvailable(context.Background(), f.doctor.ID, tuesday, NewTimeOfDay(9, 0))
	require.NoError(t, err)
	assert.False(t, got)
}
