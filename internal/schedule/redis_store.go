package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	apptKeyPrefix   = "appt:"
	doctorKeyPrefix = "appt:doctor:"
)

// RedisStore persists appointments in Redis: one JSON value per appointment
// plus a per-doctor id set for timeline scans.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed appointment store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("schedule: redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

func apptKey(id string) string   { return apptKeyPrefix + id }
func doctorKey(id string) string { return doctorKeyPrefix + id }

// Put stores a new appointment and indexes it under its doctor.
func (s *RedisStore) Put(ctx context.Context, appt *Appointment) error {
	raw, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("schedule: marshal appointment: %w", err)
	}
	ok, err := s.client.SetNX(ctx, apptKey(appt.ConfirmationID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("schedule: store appointment: %w", err)
	}
	if !ok {
		return fmt.Errorf("schedule: appointment %s already exists", appt.ConfirmationID)
	}
	if err := s.client.SAdd(ctx, doctorKey(appt.DoctorID), appt.ConfirmationID).Err(); err != nil {
		return fmt.Errorf("schedule: index appointment: %w", err)
	}
	return nil
}

// Get loads one appointment or returns ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, confirmationID string) (*Appointment, error) {
	raw, err := s.client.Get(ctx, apptKey(confirmationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: load appointment: %w", err)
	}
	var appt Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, fmt.Errorf("schedule: decode appointment: %w", err)
	}
	return &appt, nil
}

// Update overwrites an existing appointment, moving the doctor index entry
// if the appointment changed doctors.
func (s *RedisStore) Update(ctx context.Context, appt *Appointment) error {
	prev, err := s.Get(ctx, appt.ConfirmationID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("schedule: marshal appointment: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, apptKey(appt.ConfirmationID), raw, 0)
	if prev.DoctorID != appt.DoctorID {
		pipe.SRem(ctx, doctorKey(prev.DoctorID), appt.ConfirmationID)
		pipe.SAdd(ctx, doctorKey(appt.DoctorID), appt.ConfirmationID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule: update appointment: %w", err)
	}
	return nil
}

// ListByDoctor returns all appointments indexed under the doctor.
func (s *RedisStore) ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	ids, err := s.client.SMembers(ctx, doctorKey(doctorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("schedule: list doctor timeline: %w", err)
	}
	out := make([]*Appointment, 0, len(ids))
	for _, id := range ids {
		appt, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, nil
}
