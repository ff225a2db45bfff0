package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments in the appointments table created by
// cmd/migrate.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore creates a Postgres-backed appointment store.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("schedule: pgx pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

const insertAppointmentSQL = `
INSERT INTO appointments (
	confirmation_id, doctor_id, doctor_name, appointment_type,
	start_at, end_at, status, patient,
	created_at, updated_at, cancelled_at, cancellation_reason, rescheduled_from
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

const selectAppointmentSQL = `
SELECT confirmation_id, doctor_id, doctor_name, appointment_type,
	start_at, end_at, status, patient,
	created_at, updated_at, cancelled_at, cancellation_reason, rescheduled_from
FROM appointments`

const updateAppointmentSQL = `
UPDATE appointments SET
	doctor_id = $2, doctor_name = $3, appointment_type = $4,
	start_at = $5, end_at = $6, status = $7, patient = $8,
	updated_at = $9, cancelled_at = $10, cancellation_reason = $11, rescheduled_from = $12
WHERE confirmation_id = $1`

// Put inserts a new appointment row.
func (s *PostgresStore) Put(ctx context.Context, appt *Appointment) error {
	patient, err := json.Marshal(appt.Patient)
	if err != nil {
		return fmt.Errorf("schedule: marshal patient: %w", err)
	}
	_, err = s.pool.Exec(ctx, insertAppointmentSQL,
		appt.ConfirmationID, appt.DoctorID, appt.DoctorName, appt.AppointmentType,
		appt.Start, appt.End, string(appt.Status), patient,
		appt.CreatedAt, appt.UpdatedAt, appt.CancelledAt, appt.CancellationReason, appt.RescheduledFrom,
	)
	if err != nil {
		return fmt.Errorf("schedule: insert appointment: %w", err)
	}
	return nil
}

// Get loads one appointment by confirmation id.
func (s *PostgresStore) Get(ctx context.Context, confirmationID string) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, selectAppointmentSQL+" WHERE confirmation_id = $1", confirmationID)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("schedule: load appointment: %w", err)
	}
	return appt, nil
}

// Update rewrites an existing appointment row.
func (s *PostgresStore) Update(ctx context.Context, appt *Appointment) error {
	patient, err := json.Marshal(appt.Patient)
	if err != nil {
		return fmt.Errorf("schedule: marshal patient: %w", err)
	}
	tag, err := s.pool.Exec(ctx, updateAppointmentSQL,
		appt.ConfirmationID, appt.DoctorID, appt.DoctorName, appt.AppointmentType,
		appt.Start, appt.End, string(appt.Status), patient,
		appt.UpdatedAt, appt.CancelledAt, appt.CancellationReason, appt.RescheduledFrom,
	)
	if err != nil {
		return fmt.Errorf("schedule: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByDoctor returns the doctor's full timeline ordered by start time.
func (s *PostgresStore) ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	rows, err := s.pool.Query(ctx, selectAppointmentSQL+" WHERE doctor_id = $1 ORDER BY start_at", doctorID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list doctor timeline: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: list doctor timeline: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt    Appointment
		status  string
		patient []byte
	)
	err := row.Scan(
		&appt.ConfirmationID, &appt.DoctorID, &appt.DoctorName, &appt.AppointmentType,
		&appt.Start, &appt.End, &status, &patient,
		&appt.CreatedAt, &appt.UpdatedAt, &appt.CancelledAt, &appt.CancellationReason, &appt.RescheduledFrom,
	)
	if err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	if len(patient) > 0 {
		if err := json.Unmarshal(patient, &appt.Patient); err != nil {
			return nil, fmt.Errorf("decode patient: %w", err)
		}
	}
	return &appt, nil
}
