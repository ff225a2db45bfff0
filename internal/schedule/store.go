package schedule

import (
	"context"
	"fmt"
	"sync"
)

// AppointmentStore maps confirmation ids to appointments and doctor ids to
// their booked timelines. Implementations must be safe for concurrent use;
// the availability engine layers its own per-doctor serialization on top, so
// stores only need point-operation atomicity, not transactions.
type AppointmentStore interface {
	Put(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, confirmationID string) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) error
	ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error)
}

// MemoryStore keeps appointments in process memory. It is the default
// backend and the reference semantics for the persistent ones.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Appointment
	byDoctor map[string][]string
}

// NewMemoryStore creates an empty in-memory appointment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Appointment),
		byDoctor: make(map[string][]string),
	}
}

// Put stores a new appointment.
func (s *MemoryStore) Put(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[appt.ConfirmationID]; exists {
		return fmt.Errorf("schedule: appointment %s already exists", appt.ConfirmationID)
	}
	s.byID[appt.ConfirmationID] = appt.Clone()
	s.byDoctor[appt.DoctorID] = append(s.byDoctor[appt.DoctorID], appt.ConfirmationID)
	return nil
}

// Get returns a copy of the appointment or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, confirmationID string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.byID[confirmationID]
	if !ok {
		return nil, ErrNotFound
	}
	return appt.Clone(), nil
}

// Update replaces an existing appointment. A reschedule may move the
// appointment to a different doctor's timeline.
func (s *MemoryStore) Update(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[appt.ConfirmationID]
	if !ok {
		return ErrNotFound
	}
	if prev.DoctorID != appt.DoctorID {
		s.byDoctor[prev.DoctorID] = removeID(s.byDoctor[prev.DoctorID], appt.ConfirmationID)
		s.byDoctor[appt.DoctorID] = append(s.byDoctor[appt.DoctorID], appt.ConfirmationID)
	}
	s.byID[appt.ConfirmationID] = appt.Clone()
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ListByDoctor returns copies of every appointment on the doctor's timeline,
// cancelled ones included.
func (s *MemoryStore) ListByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDoctor[doctorID]
	out := make([]*Appointment, 0, len(ids))
	for _, id := range ids {
		if appt, ok := s.byID[id]; ok {
			out = append(out, appt.Clone())
		}
	}
	return out, nil
}
