package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptColumns = []string{
	"confirmation_id", "doctor_id", "doctor_name", "appointment_type",
	"start_at", "end_at", "status", "patient",
	"created_at", "updated_at", "cancelled_at", "cancellation_reason", "rescheduled_from",
}

func apptRow(appt *Appointment) *pgxmock.Rows {
	patient, _ := json.Marshal(appt.Patient)
	return pgxmock.NewRows(apptColumns).AddRow(
		appt.ConfirmationID, appt.DoctorID, appt.DoctorName, appt.AppointmentType,
		appt.Start, appt.End, string(appt.Status), patient,
		appt.CreatedAt, appt.UpdatedAt, appt.CancelledAt, appt.CancellationReason, appt.RescheduledFrom,
	)
}

func TestPostgresStorePutAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	appt := newTestAppointment("APT20260907090000001", "dr_chen", start)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(
			appt.ConfirmationID, appt.DoctorID, appt.DoctorName, appt.AppointmentType,
			appt.Start, appt.End, string(appt.Status), pgxmock.AnyArg(),
			appt.CreatedAt, appt.UpdatedAt, appt.CancelledAt, appt.CancellationReason, appt.RescheduledFrom,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Put(context.Background(), appt))

	mock.ExpectQuery("SELECT confirmation_id").
		WithArgs(appt.ConfirmationID).
		WillReturnRows(apptRow(appt))

	got, err := store.Get(context.Background(), appt.ConfirmationID)
	require.NoError(t, err)
	assert.Equal(t, appt.DoctorID, got.DoctorID)
	assert.Equal(t, appt.Patient.Email, got.Patient.Email)
	assert.Equal(t, StatusConfirmed, got.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery("SELECT confirmation_id").
		WithArgs("APT404").
		WillReturnRows(pgxmock.NewRows(apptColumns))

	_, err = store.Get(context.Background(), "APT404")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	appt := newTestAppointment("APT404", "dr_chen", start)

	mock.ExpectExec("UPDATE appointments").
		WithArgs(
			appt.ConfirmationID, appt.DoctorID, appt.DoctorName, appt.AppointmentType,
			appt.Start, appt.End, string(appt.Status), pgxmock.AnyArg(),
			appt.UpdatedAt, appt.CancelledAt, appt.CancellationReason, appt.RescheduledFrom,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, store.Update(context.Background(), appt), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListByDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	a := newTestAppointment("APT20260907090000001", "dr_chen", start)
	b := newTestAppointment("APT20260907100000002", "dr_chen", start.Add(time.Hour))

	patientA, _ := json.Marshal(a.Patient)
	patientB, _ := json.Marshal(b.Patient)
	rows := pgxmock.NewRows(apptColumns).
		AddRow(a.ConfirmationID, a.DoctorID, a.DoctorName, a.AppointmentType,
			a.Start, a.End, string(a.Status), patientA,
			a.CreatedAt, a.UpdatedAt, a.CancelledAt, a.CancellationReason, a.RescheduledFrom).
		AddRow(b.ConfirmationID, b.DoctorID, b.DoctorName, b.AppointmentType,
			b.Start, b.End, string(b.Status), patientB,
			b.CreatedAt, b.UpdatedAt, b.CancelledAt, b.CancellationReason, b.RescheduledFrom)

	mock.ExpectQuery("SELECT confirmation_id").
		WithArgs("dr_chen").
		WillReturnRows(rows)

	got, err := store.ListByDoctor(context.Background(), "dr_chen")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ConfirmationID, got[0].ConfirmationID)
	assert.Equal(t, b.ConfirmationID, got[1].ConfirmationID)

	require.NoError(t, mock.ExpectationsWereMet())
}
