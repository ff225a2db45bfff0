package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// AppointmentsHandler serves the direct scheduling API, used by clinic
// staff tooling and integrations that bypass the conversational flow.
type AppointmentsHandler struct {
	svc    *assistant.Service
	logger *logging.Logger
}

// NewAppointmentsHandler creates the handler. Panics on a nil service.
func NewAppointmentsHandler(svc *assistant.Service, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("handlers: nil assistant service")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

type availabilityResponse struct {
	Slots []availability.Slot `json:"slots"`
	Page  int                 `json:"page"`
}

// Availability is GET /api/availability. The appointment type is required;
// doctor_id, from, to, and page narrow the search.
func (h *AppointmentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := availability.Query{
		AppointmentType: r.URL.Query().Get("type"),
		DoctorID:        r.URL.Query().Get("doctor_id"),
	}
	if q.AppointmentType == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	var ok bool
	if q.From, ok = parseTimeParam(w, r, "from"); !ok {
		return
	}
	if q.To, ok = parseTimeParam(w, r, "to"); !ok {
		return
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		q.Page = page
	}
	if q.From.IsZero() {
		q.From = time.Now()
	}

	slots, err := h.svc.Availability(r.Context(), q)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Slots: slots, Page: q.Page})
}

type bookRequest struct {
	AppointmentType string               `json:"appointment_type"`
	DoctorID        string               `json:"doctor_id"`
	Start           time.Time            `json:"start"`
	Patient         schedule.PatientInfo `json:"patient"`
}

// Book is POST /api/book: books a specific slot directly.
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.Book(r.Context(), availability.BookRequest{
		AppointmentType: req.AppointmentType,
		DoctorID:        req.DoctorID,
		Start:           req.Start,
		Patient:         req.Patient,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// Get is GET /api/appointments/{id}: looks up an appointment in any status.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Appointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type rescheduleRequest struct {
	DoctorID string    `json:"doctor_id"` // empty keeps the current doctor
	Start    time.Time `json:"start"`
}

// Reschedule is PUT /api/appointments/{id}: moves the appointment to a new
// slot. The confirmation id does not change.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "start is required")
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), chi.URLParam(r, "id"), req.DoctorID, req.Start)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type cancelResponse struct {
	Appointment   *schedule.Appointment `json:"appointment"`
	FeeCents      int                   `json:"fee_cents"`
	PolicyMessage string                `json:"policy_message"`
}

// Cancel is DELETE /api/appointments/{id}: cancels and reports any fee.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("reason"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		Appointment:   result.Appointment,
		FeeCents:      result.FeeCents,
		PolicyMessage: result.PolicyMessage,
	})
}

// Health is GET /healthz.
func (h *AppointmentsHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}
