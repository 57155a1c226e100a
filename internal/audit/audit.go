// Package audit keeps an append-only trail of schedule and appointment mutations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to an entity.
type EventType string

const (
	EventScheduleCreated EventType = "schedule.created"
	EventScheduleUpdated EventType = "schedule.updated"
	EventScheduleDeleted EventType = "schedule.deleted"

	EventAppointmentCreated       EventType = "appointment.created"
	EventAppointmentRescheduled   EventType = "appointment.rescheduled"
	EventAppointmentStatusChanged EventType = "appointment.status_changed"
	EventAppointmentNoteAdded     EventType = "appointment.note_added"
	EventAppointmentDeleted       EventType = "appointment.deleted"
)

// EntitySchedule and EntityAppointment are the two audited entity kinds.
const (
	EntitySchedule    = "schedule"
	EntityAppointment = "appointment"
)

// Event represents an immutable audit record.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	EventType  EventType       `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	DoctorID   uuid.UUID       `json:"doctor_id"`
	PatientID  uuid.UUID       `json:"patient_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Details is a convenience encoder for the free-form details column.
func Details(kv map[string]any) json.RawMessage {
	if len(kv) == 0 {
		return nil
	}
	raw, err := json.Marshal(kv)
	if err != nil {
		return nil
	}
	return raw
}

// Service writes and reads audit events.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Record stores event, filling in the id and timestamp when missing.
func (s *Service) Record(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, entity_type, entity_id, doctor_id, patient_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.EntityType,
		event.EntityID,
		nullUUID(event.DoctorID),
		nullUUID(event.PatientID),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", event.EventType, err)
	}
	return nil
}

// ListByEntity returns the history of one entity, oldest first.
func (s *Service) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]Event, error) {
	query := `
		SELECT id, event_type, entity_type, entity_id, doctor_id, patient_id, details, created_at
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e         Event
			eventType string
			doctorID  uuid.NullUUID
			patientID uuid.NullUUID
			details   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &e.EntityType, &e.EntityID, &doctorID, &patientID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.DoctorID = doctorID.UUID
		e.PatientID = patientID.UUID
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
