package scheduling

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps schedules and appointments in process memory. It
// satisfies both ScheduleStore and AppointmentStore.
type MemoryStore struct {
	mu           sync.RWMutex
	schedules    map[uuid.UUID]ScheduleEntry
	appointments map[uuid.UUID]Appointment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schedules:    make(map[uuid.UUID]ScheduleEntry),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (s *MemoryStore) GetSchedule(_ context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &e, nil
}

func (s *MemoryStore) FindSchedule(_ context.Context, doctorID uuid.UUID, weekday Weekday) (*ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.schedules {
		if e.DoctorID == doctorID && e.Weekday == weekday {
			return &e, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (s *MemoryStore) ListSchedules(_ context.Context, doctorID uuid.UUID) ([]ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []ScheduleEntry{}
	for _, e := range s.schedules {
		if e.DoctorID == doctorID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b ScheduleEntry) int { return a.Weekday.Index() - b.Weekday.Index() })
	return out, nil
}

func (s *MemoryStore) InsertSchedule(_ context.Context, entry ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.schedules {
		if e.DoctorID == entry.DoctorID && e.Weekday == entry.Weekday {
			return ErrScheduleExists
		}
	}
	s.schedules[entry.ID] = entry
	return nil
}

func (s *MemoryStore) UpdateSchedule(_ context.Context, entry ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[entry.ID]; !ok {
		return ErrScheduleNotFound
	}
	for id, e := range s.schedules {
		if id != entry.ID && e.DoctorID == entry.DoctorID && e.Weekday == entry.Weekday {
			return ErrScheduleExists
		}
	}
	s.schedules[entry.ID] = entry
	return nil
}

func (s *MemoryStore) DeleteSchedule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return ErrScheduleNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *MemoryStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *MemoryStore) InsertAppointment(_ context.Context, appt Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) UpdateAppointment(_ context.Context, appt Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[appt.ID]; !ok {
		return ErrAppointmentNotFound
	}
	s.appointments[appt.ID] = appt
	return nil
}

func (s *MemoryStore) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(s.appointments, id)
	return nil
}

func (s *MemoryStore) ListActiveInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return s.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID &&
			a.Status != StatusRejected &&
			!a.ScheduledAt.Before(from) &&
			a.ScheduledAt.Before(to)
	}), nil
}

func (s *MemoryStore) ListActiveByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID && a.Status != StatusRejected
	}), nil
}

func (s *MemoryStore) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.filter(func(a Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (s *MemoryStore) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.filter(func(a Appointment) bool { return a.PatientID == patientID }), nil
}

func (s *MemoryStore) filter(keep func(Appointment) bool) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Appointment{}
	for _, a := range s.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return a.ScheduledAt.Compare(b.ScheduledAt) })
	return out
}
