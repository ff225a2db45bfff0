package notify

import (
	"context"
	"sync"

	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// CalendarSync mirrors appointment changes into an external calendar.
type CalendarSync interface {
	Upsert(ctx context.Context, appt *schedule.Appointment) error
	Remove(ctx context.Context, confirmationID string) error
}

// MemoryCalendar keeps the mirrored events in memory. It backs local runs
// and tests; a hosted-calendar implementation satisfies the same interface.
type MemoryCalendar struct {
	logger *logging.Logger

	mu     sync.Mutex
	events map[string]*schedule.Appointment
}

// NewMemoryCalendar creates an empty in-memory calendar.
func NewMemoryCalendar(logger *logging.Logger) *MemoryCalendar {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryCalendar{
		logger: logger,
		events: make(map[string]*schedule.Appointment),
	}
}

// Upsert stores or replaces the calendar event for the appointment.
func (c *MemoryCalendar) Upsert(_ context.Context, appt *schedule.Appointment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[appt.ConfirmationID] = appt.Clone()
	c.logger.Debug("calendar event upserted",
		"confirmation_id", appt.ConfirmationID, "doctor_id", appt.DoctorID)
	return nil
}

// Remove deletes the calendar event, if present.
func (c *MemoryCalendar) Remove(_ context.Context, confirmationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, confirmationID)
	return nil
}

// Event returns the mirrored appointment, if any.
func (c *MemoryCalendar) Event(confirmationID string) (*schedule.Appointment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	appt, ok := c.events[confirmationID]
	if !ok {
		return nil, false
	}
	return appt.Clone(), true
}

// Len reports the number of mirrored events.
func (c *MemoryCalendar) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
