package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling/internal/audit"
	"github.com/wolfman30/clinic-scheduling/internal/directory"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// 2030-01-07 is a Monday.
var (
	monday  = time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)
	tuesday = monday.AddDate(0, 0, 1)
	testNow = monday.Add(7 * time.Hour)
)

func intPtr(n int) *int { return &n }

func at(day time.Time, hour, minute int) time.Time {
	return NewTimeOfDay(hour, minute).On(day)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *recordingAudit) Record(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type fixture struct {
	rules     Rules
	store     *MemoryStore
	dir       *directory.MemoryDirectory
	audit     *recordingAudit
	catalog   *ScheduleCatalog
	lifecycle *AppointmentLifecycle
	doctor    directory.Person
	patient   directory.Person
	now       time.Time
	deps      Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets configure replace collaborators before the catalog
// and lifecycle are built.
func newFixtureWith(t *testing.T, configure func(f *fixture, d *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		rules:   DefaultRules().WithLocation(time.UTC),
		store:   NewMemoryStore(),
		audit:   &recordingAudit{},
		doctor:  directory.Person{ID: uuid.New(), FirstName: "Meredith", LastName: "Grey", Role: directory.RoleDoctor},
		patient: directory.Person{ID: uuid.New(), FirstName: "John", LastName: "Doe", Role: directory.RolePatient},
		now:     testNow,
	}
	f.dir = directory.NewMemoryDirectory(f.doctor, f.patient)
	deps := Deps{
		Rules:        f.rules,
		Schedules:    f.store,
		Appointments: f.store,
		Directory:    f.dir,
		Locker:       locking.NewLocalLocker(),
		Audit:        f.audit,
		Logger:       logging.Default(),
		Now:          func() time.Time { return f.now },
	}
	if configure != nil {
		configure(f, &deps)
	}
	f.deps = deps
	f.catalog = NewScheduleCatalog(deps)
	f.lifecycle = NewAppointmentLifecycle(deps)
	return f
}

func (f *fixture) schedule(t *testing.T, weekday Weekday, shift ShiftType, minutes int) uuid.UUID {
	t.Helper()
	id, err := f.catalog.Create(context.Background(), f.doctor.ID, ScheduleInput{
		Weekday:         weekday,
		IsWorkingDay:    true,
		DurationMinutes: intPtr(minutes),
		ShiftType:       shift,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) book(t *testing.T, when time.Time) *Appointment {
	t.Helper()
	appt, err := f.lifecycle.Create(context.Background(), f.patient.ID, f.doctor.ID, when)
	require.NoError(t, err)
	return appt
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, &Error{Code: code}, "got %v", err)
}
