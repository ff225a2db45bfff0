package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/internal/session"
)

// Monday, 08:00 UTC.
var handlerNow = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

func handlerDataset() *clinicdata.Dataset {
	week := make(map[string][]clinicdata.ScheduleWindow)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		week[day] = []clinicdata.ScheduleWindow{
			{Start: "09:00", End: "17:00", Kind: "clinic", StartMin: 9 * 60, EndMin: 17 * 60},
		}
	}
	clinic := clinicdata.ClinicInfo{
		Name:    "Downtown Medical Center",
		Parking: "Free patient parking in the Oak Street garage.",
	}
	types := []clinicdata.AppointmentType{
		{Name: "General Consultation", DurationMinutes: 30, PriceCents: 15000},
	}
	doctors := []*clinicdata.Doctor{
		{ID: "dr_a", Name: "Dr. Alice Chen", Specialty: "Family Medicine",
			AppointmentTypes: []string{"General Consultation"},
			Schedule:         week, Location: time.UTC},
	}
	return clinicdata.NewDataset(clinic, types, doctors)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	data := handlerDataset()
	now := func() time.Time { return handlerNow }

	eng := availability.NewEngine(data, schedule.NewMemoryStore(), nil,
		availability.WithClock(now))
	kb := knowledge.NewBase(nil)
	require.NoError(t, kb.Add(context.Background(), knowledge.DeriveEntries(data)))
	machine := dialogue.NewMachine(data, eng, kb, nil, dialogue.WithClock(now))
	registry := session.NewRegistry(nil, session.WithClock(now))
	svc := assistant.NewService(nil, machine, registry, eng, kb)

	r := chi.NewRouter()
	chat := NewChatHandler(svc, nil)
	appts := NewAppointmentsHandler(svc, nil)
	r.Post("/api/chat", chat.HandleMessage)
	r.Post("/api/faq", chat.HandleFAQ)
	r.Get("/api/availability", appts.Availability)
	r.Post("/api/book", appts.Book)
	r.Get("/api/appointments/{id}", appts.Get)
	r.Put("/api/appointments/{id}", appts.Reschedule)
	r.Delete("/api/appointments/{id}", appts.Cancel)
	r.Get("/healthz", appts.Health)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestRouter(t), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChatStartsSession(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/api/chat", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[map[string]any](t, rec)
	assert.NotEmpty(t, resp["session_id"])
	assert.Contains(t, resp["reply"], "Downtown Medical Center")

	// Continue the same session.
	rec = doJSON(t, h, http.MethodPost, "/api/chat", map[string]string{
		"session_id": resp["session_id"].(string),
		"message":    "I'd like to book a general consultation",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[map[string]any](t, rec)
	assert.Equal(t, resp["session_id"], next["session_id"])
	assert.Equal(t, string(dialogue.StateCollectingDate), next["state"])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	rec := doJSON(t, newTestRouter(t), http.MethodPost, "/api/chat", map[string]string{"message": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFAQEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/api/faq", map[string]string{"question": "where do I park?"})
	require.Equal(t, http.StatusOK, rec.Code)
	ans := decodeBody[knowledge.Answer](t, rec)
	assert.True(t, ans.Found)
	assert.Contains(t, ans.Text, "Oak Street")

	rec = doJSON(t, h, http.MethodPost, "/api/faq", map[string]string{"question": "weather on the moon?"})
	require.Equal(t, http.StatusOK, rec.Code)
	miss := decodeBody[knowledge.Answer](t, rec)
	assert.False(t, miss.Found)
}

func TestAvailabilityEndpoint(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet,
		"/api/availability?type=General+Consultation&from=2026-01-06T00:00:00Z&to=2026-01-07T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[availabilityResponse](t, rec)
	require.NotEmpty(t, resp.Slots)
	assert.Equal(t, "dr_a", resp.Slots[0].DoctorID)

	// Missing type is a client error.
	rec = doJSON(t, h, http.MethodGet, "/api/availability", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown type maps through the engine error.
	rec = doJSON(t, h, http.MethodGet, "/api/availability?type=Dentistry", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad timestamp.
	rec = doJSON(t, h, http.MethodGet, "/api/availability?type=General+Consultation&from=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func bookPayload(start time.Time) map[string]any {
	return map[string]any{
		"appointment_type": "General Consultation",
		"doctor_id":        "dr_a",
		"start":            start.Format(time.RFC3339),
		"patient": map[string]string{
			"name":  "Jordan Reyes",
			"phone": "555-010-7788",
			"email": "jordan@example.com",
		},
	}
}

func TestBookLifecycle(t *testing.T) {
	h := newTestRouter(t)
	start := time.Date(2026, time.January, 6, 9, 0, 0, 0, time.UTC)

	rec := doJSON(t, h, http.MethodPost, "/api/book", bookPayload(start))
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decodeBody[schedule.Appointment](t, rec)
	require.NotEmpty(t, appt.ConfirmationID)

	// The same slot books exactly once.
	rec = doJSON(t, h, http.MethodPost, "/api/book", bookPayload(start))
	require.Equal(t, http.StatusConflict, rec.Code)

	// Lookup.
	rec = doJSON(t, h, http.MethodGet, "/api/appointments/"+appt.ConfirmationID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Reschedule to a free slot.
	rec = doJSON(t, h, http.MethodPut, "/api/appointments/"+appt.ConfirmationID, map[string]any{
		"start": start.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decodeBody[schedule.Appointment](t, rec)
	assert.Equal(t, appt.ConfirmationID, moved.ConfirmationID)
	assert.Equal(t, start.Add(time.Hour), moved.Start)

	// Cancel; the slot is within 24h so the default late fee applies.
	rec = doJSON(t, h, http.MethodDelete,
		fmt.Sprintf("/api/appointments/%s?reason=conflict", appt.ConfirmationID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decodeBody[cancelResponse](t, rec)
	assert.Equal(t, 5000, cancelled.FeeCents)
	assert.Equal(t, schedule.StatusCancelled, cancelled.Appointment.Status)

	// Cancelled appointments cannot be cancelled again.
	rec = doJSON(t, h, http.MethodDelete, "/api/appointments/"+appt.ConfirmationID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookValidationErrors(t *testing.T) {
	h := newTestRouter(t)

	payload := bookPayload(time.Date(2026, time.January, 6, 9, 0, 0, 0, time.UTC))
	payload["patient"] = map[string]string{"name": "J"}
	rec := doJSON(t, h, http.MethodPost, "/api/book", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Problems)
}

func TestUnknownAppointmentReturns404(t *testing.T) {
	rec := doJSON(t, newTestRouter(t), http.MethodGet, "/api/appointments/APT00000000000000000", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
