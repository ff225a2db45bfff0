package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// Dispatcher consumes booking events off a buffered channel and fans them
// out to email and calendar. It satisfies availability.EventSink, so the
// engine's booking path never waits on or fails with a notification.
type Dispatcher struct {
	email      EmailSender
	calendar   CalendarSync
	clinicName string
	logger     *logging.Logger

	ch        chan availability.Event
	closeOnce sync.Once
	done      chan struct{}
}

// DispatcherConfig sizes and labels the dispatcher.
type DispatcherConfig struct {
	ClinicName string
	Buffer     int // event channel capacity, default 128
}

// NewDispatcher creates a dispatcher. Either sink may be nil; nil sinks are
// skipped. Call Run to start consuming.
func NewDispatcher(email EmailSender, calendar CalendarSync, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 128
	}
	name := cfg.ClinicName
	if name == "" {
		name = "the clinic"
	}
	return &Dispatcher{
		email:      email,
		calendar:   calendar,
		clinicName: name,
		logger:     logger,
		ch:         make(chan availability.Event, buffer),
		done:       make(chan struct{}),
	}
}

// Publish enqueues an event without blocking. When the buffer is full the
// event is dropped and logged; the booking it describes is already
// committed and unaffected.
func (d *Dispatcher) Publish(evt availability.Event) {
	select {
	case <-d.done:
		d.logger.Warn("notification dropped, dispatcher closed",
			"kind", string(evt.Kind), "confirmation_id", confirmationID(evt))
	case d.ch <- evt:
	default:
		d.logger.Warn("notification dropped, buffer full",
			"kind", string(evt.Kind), "confirmation_id", confirmationID(evt))
	}
}

// Run consumes events until the context is cancelled, then drains whatever
// is already buffered before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case evt := <-d.ch:
			d.handle(context.WithoutCancel(ctx), evt)
		}
	}
}

// Close stops accepting events. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) drain() {
	for {
		select {
		case evt := <-d.ch:
			d.handle(context.Background(), evt)
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, evt availability.Event) {
	if evt.Appointment == nil {
		return
	}
	d.syncCalendar(ctx, evt)
	d.sendEmail(ctx, evt)
}

func (d *Dispatcher) syncCalendar(ctx context.Context, evt availability.Event) {
	if d.calendar == nil {
		return
	}
	var err error
	switch evt.Kind {
	case availability.EventCancelled:
		err = d.calendar.Remove(ctx, evt.Appointment.ConfirmationID)
	default:
		err = d.calendar.Upsert(ctx, evt.Appointment)
	}
	if err != nil {
		d.logger.Error("calendar sync failed",
			"error", err,
			"kind", string(evt.Kind),
			"confirmation_id", evt.Appointment.ConfirmationID,
		)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, evt availability.Event) {
	if d.email == nil || evt.Appointment.Patient.Email == "" {
		return
	}
	msg := d.compose(evt)
	if err := d.email.Send(ctx, msg); err != nil {
		d.logger.Error("notification email failed",
			"error", err,
			"kind", string(evt.Kind),
			"confirmation_id", evt.Appointment.ConfirmationID,
		)
	}
}

func (d *Dispatcher) compose(evt availability.Event) EmailMessage {
	appt := evt.Appointment
	when := appt.Start.Format("Monday, January 2 at 3:04 PM")

	switch evt.Kind {
	case availability.EventCancelled:
		body := fmt.Sprintf(`Hi %s,

Your %s with %s on %s has been cancelled.
`, appt.Patient.Name, appt.AppointmentType, appt.DoctorName, when)
		if evt.FeeCents > 0 {
			body += fmt.Sprintf("\nA cancellation fee of $%.2f applies.\n", float64(evt.FeeCents)/100)
		}
		body += fmt.Sprintf("\nConfirmation number: %s\n\n— %s", appt.ConfirmationID, d.clinicName)
		return EmailMessage{
			To:      appt.Patient.Email,
			ToName:  appt.Patient.Name,
			Subject: fmt.Sprintf("Appointment cancelled - %s", appt.ConfirmationID),
			Body:    body,
		}

	case availability.EventRescheduled:
		return EmailMessage{
			To:      appt.Patient.Email,
			ToName:  appt.Patient.Name,
			Subject: fmt.Sprintf("Appointment rescheduled - %s", appt.ConfirmationID),
			Body: fmt.Sprintf(`Hi %s,

Your %s has been moved to %s with %s.

Your confirmation number is unchanged: %s

— %s`, appt.Patient.Name, appt.AppointmentType, when, appt.DoctorName, appt.ConfirmationID, d.clinicName),
		}

	default:
		return EmailMessage{
			To:      appt.Patient.Email,
			ToName:  appt.Patient.Name,
			Subject: fmt.Sprintf("Appointment confirmed - %s", appt.ConfirmationID),
			Body: fmt.Sprintf(`Hi %s,

Your %s with %s is confirmed for %s.

Confirmation number: %s

Please arrive 10 minutes early. To reschedule or cancel, reply with your confirmation number.

— %s`, appt.Patient.Name, appt.AppointmentType, appt.DoctorName, when, appt.ConfirmationID, d.clinicName),
		}
	}
}

func confirmationID(evt availability.Event) string {
	if evt.Appointment == nil {
		return ""
	}
	return evt.Appointment.ConfirmationID
}

var _ availability.EventSink = (*Dispatcher)(nil)
var _ CalendarSync = (*MemoryCalendar)(nil)
var _ EmailSender = (*SendGridSender)(nil)
var _ EmailSender = (*StubEmailSender)(nil)
