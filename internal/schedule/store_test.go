package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppointment(id, doctorID string, start time.Time) *Appointment {
	return &Appointment{
		ConfirmationID:  id,
		DoctorID:        doctorID,
		DoctorName:      "Emily Chen",
		AppointmentType: "General Consultation",
		Start:           start,
		End:             start.Add(30 * time.Minute),
		Patient: PatientInfo{
			Name:  "John Smith",
			Phone: "555-123-4567",
			Email: "john@example.com",
		},
		Status:    StatusConfirmed,
		CreatedAt: start.Add(-time.Hour),
		UpdatedAt: start.Add(-time.Hour),
	}
}

// runStoreSuite exercises the AppointmentStore contract against any backend.
func runStoreSuite(t *testing.T, store AppointmentStore) {
	ctx := context.Background()
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "APT00000000000000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		appt := newTestAppointment("APT20260907090000001", "dr_chen", start)
		require.NoError(t, store.Put(ctx, appt))

		got, err := store.Get(ctx, appt.ConfirmationID)
		require.NoError(t, err)
		assert.Equal(t, appt.ConfirmationID, got.ConfirmationID)
		assert.Equal(t, appt.DoctorID, got.DoctorID)
		assert.True(t, appt.Start.Equal(got.Start))
		assert.Equal(t, appt.Patient, got.Patient)
		assert.Equal(t, StatusConfirmed, got.Status)
	})

	t.Run("duplicate put fails", func(t *testing.T) {
		appt := newTestAppointment("APT20260907090000001", "dr_chen", start)
		assert.Error(t, store.Put(ctx, appt))
	})

	t.Run("update missing returns ErrNotFound", func(t *testing.T) {
		appt := newTestAppointment("APT99999999999999999", "dr_chen", start)
		assert.ErrorIs(t, store.Update(ctx, appt), ErrNotFound)
	})

	t.Run("update mutates status", func(t *testing.T) {
		appt := newTestAppointment("APT20260907090000001", "dr_chen", start)
		now := start.Add(time.Hour)
		appt.Status = StatusCancelled
		appt.CancelledAt = &now
		require.NoError(t, store.Update(ctx, appt))

		got, err := store.Get(ctx, appt.ConfirmationID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		require.NotNil(t, got.CancelledAt)
	})

	t.Run("list by doctor follows reschedule across doctors", func(t *testing.T) {
		appt := newTestAppointment("APT20260907100000002", "dr_chen", start.Add(time.Hour))
		require.NoError(t, store.Put(ctx, appt))

		moved := appt.Clone()
		moved.DoctorID = "dr_reyes"
		moved.Status = StatusRescheduled
		require.NoError(t, store.Update(ctx, moved))

		chen, err := store.ListByDoctor(ctx, "dr_chen")
		require.NoError(t, err)
		for _, a := range chen {
			assert.NotEqual(t, moved.ConfirmationID, a.ConfirmationID)
		}

		reyes, err := store.ListByDoctor(ctx, "dr_reyes")
		require.NoError(t, err)
		require.Len(t, reyes, 1)
		assert.Equal(t, moved.ConfirmationID, reyes[0].ConfirmationID)
	})

	t.Run("list for unknown doctor is empty", func(t *testing.T) {
		out, err := store.ListByDoctor(ctx, "dr_nobody")
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	appt := newTestAppointment("APT20260907090000003", "dr_chen", start)
	require.NoError(t, store.Put(ctx, appt))

	got, err := store.Get(ctx, appt.ConfirmationID)
	require.NoError(t, err)
	got.Status = StatusCancelled

	again, err := store.Get(ctx, appt.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, again.Status)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	runStoreSuite(t, NewRedisStore(client))
}
