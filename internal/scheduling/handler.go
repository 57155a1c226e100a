package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduling/internal/audit"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// HistoryReader lists the audit trail of an entity.
type HistoryReader interface {
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]audit.Event, error)
}

// Handler exposes the catalog and lifecycle over JSON HTTP.
type Handler struct {
	catalog   *ScheduleCatalog
	lifecycle *AppointmentLifecycle
	validator *ConflictValidator
	rules     Rules
	history   HistoryReader
	logger    *logging.Logger
}

// NewHandler creates a scheduling handler. history may be nil, in which case
// the appointment history route is not served.
func NewHandler(catalog *ScheduleCatalog, lifecycle *AppointmentLifecycle, history HistoryReader, logger *logging.Logger) *Handler {
	if catalog == nil || lifecycle == nil {
		panic("scheduling: catalog and lifecycle required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		catalog:   catalog,
		lifecycle: lifecycle,
		validator: lifecycle.Validator(),
		rules:     lifecycle.rules,
		history:   history,
		logger:    logger,
	}
}

// ScheduleRoutes serves /api/doctor-schedules.
func (h *Handler) ScheduleRoutes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{doctorID}", func(r chi.Router) {
		r.Post("/", h.CreateSchedule)
		r.Get("/", h.ListSchedules)
		r.Get("/available-slots", h.AvailableSlots)
		r.Get("/availability", h.Availability)
		r.Get("/weekly-summary", h.WeeklySummary)
		r.Put("/{scheduleID}", h.UpdateSchedule)
		r.Delete("/{scheduleID}", h.DeleteSchedule)
	})
	return r
}

// DoctorRoutes serves /api/doctors.
func (h *Handler) DoctorRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDoctors)
	return r
}

// ListDoctors handles GET /api/doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.catalog.ListDoctors(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doctors)
}

// AppointmentRoutes serves /api/appointments.
func (h *Handler) AppointmentRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateAppointment)
	r.Get("/booked-slots", h.BookedSlots)
	r.Get("/patient/{patientID}", h.ListByPatient)
	r.Get("/doctor/{doctorID}", h.ListByDoctor)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetAppointment)
		r.Delete("/", h.DeleteAppointment)
		r.Patch("/status", h.UpdateStatus)
		r.Post("/notes", h.AddNote)
		r.Put("/reschedule", h.Reschedule)
		if h.history != nil {
			r.Get("/history", h.History)
		}
	})
	return r
}

// CreateSchedule handles POST /api/doctor-schedules/{doctorID}.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	var in ScheduleInput
	if !h.decode(w, r, &in) {
		return
	}
	id, err := h.catalog.Create(r.Context(), doctorID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

// ListSchedules handles GET /api/doctor-schedules/{doctorID}.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	entries, err := h.catalog.ListWorkingDays(r.Context(), doctorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// UpdateSchedule handles PUT /api/doctor-schedules/{doctorID}/{scheduleID}.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	scheduleID, ok := h.uuidParam(w, r, "scheduleID")
	if !ok {
		return
	}
	var in ScheduleInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.catalog.Update(r.Context(), doctorID, scheduleID, in); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSchedule handles DELETE /api/doctor-schedules/{doctorID}/{scheduleID}.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	scheduleID, ok := h.uuidParam(w, r, "scheduleID")
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), doctorID, scheduleID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AvailableSlots handles GET /api/doctor-schedules/{doctorID}/available-slots?date=.
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	date, err := h.rules.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.validator.AvailableSlotsOn(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// Availability handles GET /api/doctor-schedules/{doctorID}/availability?date=&time=.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := h.rules.ParseDate(q.Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tod, err := ParseTimeOfDay(q.Get("time"))
	if err != nil {
		h.writeError(w, r, newError(CodeInvalidTime, "time", q.Get("time")))
		return
	}
	available, err := h.validator.IsDoctorAvailable(r.Context(), doctorID, date, tod)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isAvailable": available})
}

// WeeklySummary handles GET /api/doctor-schedules/{doctorID}/weekly-summary.
func (h *Handler) WeeklySummary(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	summary, err := h.catalog.WeeklySummary(r.Context(), doctorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

type createAppointmentRequest struct {
	PatientID uuid.UUID `json:"patientId"`
	DoctorID  uuid.UUID `json:"doctorId"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
}

// CreateAppointment handles POST /api/appointments.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	at, err := h.rules.ParseDateTime(req.Date, req.Time)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.lifecycle.Create(r.Context(), req.PatientID, req.DoctorID, at)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// GetAppointment handles GET /api/appointments/{id}.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	view, err := h.lifecycle.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListByPatient handles GET /api/appointments/patient/{patientID}.
func (h *Handler) ListByPatient(w http.ResponseWriter, r *http.Request) {
	patientID, ok := h.uuidParam(w, r, "patientID")
	if !ok {
		return
	}
	views, err := h.lifecycle.ListByPatient(r.Context(), patientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ListByDoctor handles GET /api/appointments/doctor/{doctorID}.
func (h *Handler) ListByDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.uuidParam(w, r, "doctorID")
	if !ok {
		return
	}
	views, err := h.lifecycle.ListByDoctor(r.Context(), doctorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// UpdateStatus handles PATCH /api/appointments/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status Status `json:"status"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.lifecycle.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddNote handles POST /api/appointments/{id}/notes.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.lifecycle.AddNote(r.Context(), id, req.Note); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reschedule handles PUT /api/appointments/{id}/reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	at, err := h.rules.ParseDateTime(req.Date, req.Time)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.lifecycle.Reschedule(r.Context(), id, at); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAppointment handles DELETE /api/appointments/{id}.
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.lifecycle.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BookedSlots handles GET /api/appointments/booked-slots?doctorId=&date=.
func (h *Handler) BookedSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doctorID, err := uuid.Parse(q.Get("doctorId"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_ID", "doctorId must be a UUID")
		return
	}
	date, err := h.rules.ParseDate(q.Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.validator.BookedSlotsOn(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// History handles GET /api/appointments/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	events, err := h.history.ListByEntity(r.Context(), audit.EntityAppointment, id, 100)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// apiError is the JSON body of every failed request.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *Error
	if errors.As(err, &se) {
		status := StatusFor(se.Kind())
		h.logger.Info("scheduling request rejected",
			"path", r.URL.Path,
			"code", string(se.Code),
			"status", status,
		)
		writeAPIError(w, status, string(se.Code), se.Code.Message())
		return
	}
	if errors.Is(err, context.Canceled) {
		h.logger.Warn("scheduling request canceled", "path", r.URL.Path)
		writeAPIError(w, http.StatusServiceUnavailable, "REQUEST_CANCELED", "request canceled")
		return
	}
	h.logger.Error("scheduling request failed", "path", r.URL.Path, "error", err)
	writeAPIError(w, http.StatusInternalServerError, "SERVER_ERROR", "internal server error")
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_ID", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request", "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return false
	}
	return true
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Status: status, Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
