package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/internal/session"
)

// Monday, 08:00 UTC.
var serviceNow = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

func serviceDataset() *clinicdata.Dataset {
	week := make(map[string][]clinicdata.ScheduleWindow)
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		week[day] = []clinicdata.ScheduleWindow{
			{Start: "09:00", End: "17:00", Kind: "clinic", StartMin: 9 * 60, EndMin: 17 * 60},
		}
	}
	clinic := clinicdata.ClinicInfo{
		Name:    "Downtown Medical Center",
		Phone:   "(555) 010-2200",
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

func newTestService(t *testing.T) *Service {
	t.Helper()
	data := serviceDataset()

	now := func() time.Time { return serviceNow }
	eng := availability.NewEngine(data, schedule.NewMemoryStore(), nil,
		availability.WithClock(now))

	kb := knowledge.NewBase(nil)
	require.NoError(t, kb.Add(context.Background(), knowledge.DeriveEntries(data)))

	machine := dialogue.NewMachine(data, eng, kb, nil, dialogue.WithClock(now))
	registry := session.NewRegistry(nil, session.WithClock(now))
	return NewService(nil, machine, registry, eng, kb)
}

func TestHandleMessageAssignsSessionID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := svc.HandleMessage(ctx, "", "hello")
	require.NotEmpty(t, first.SessionID)
	assert.Contains(t, first.Text, "Downtown Medical Center")

	// Same id continues the same conversation.
	second := svc.HandleMessage(ctx, first.SessionID, "I'd like to book a general consultation")
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, dialogue.StateCollectingDate, second.Snapshot.State)
}

func TestDirectBookingRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	slots, err := svc.Availability(ctx, availability.Query{
		AppointmentType: "General Consultation",
		From:            serviceNow,
		To:              serviceNow.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	appt, err := svc.Book(ctx, availability.BookRequest{
		AppointmentType: slots[0].AppointmentType,
		DoctorID:        slots[0].DoctorID,
		Start:           slots[0].Start,
		Patient: schedule.PatientInfo{
			Name:        "Jordan Reyes",
			Phone:       "555-010-7788",
			Email:       "jordan@example.com",
		},
	})
	require.NoError(t, err)

	got, err := svc.Appointment(ctx, appt.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusConfirmed, got.Status)

	moved, err := svc.Reschedule(ctx, appt.ConfirmationID, "", slots[1].Start)
	require.NoError(t, err)
	assert.Equal(t, slots[1].Start, moved.Start)

	// The appointment starts within the default 24h cutoff, so the flat
	// late-cancellation fee applies.
	result, err := svc.Cancel(ctx, appt.ConfirmationID, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, 5000, result.FeeCents)
}

func TestFAQDelegation(t *testing.T) {
	svc := newTestService(t)

	ans := svc.FAQ(context.Background(), "where can I park?")
	require.True(t, ans.Found)
	assert.Contains(t, ans.Text, "Oak Street")
}
