package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
)

// BookRequest identifies the slot being committed and the patient taking it.
type BookRequest struct {
	AppointmentType string
	DoctorID        string
	Start           time.Time
	Patient         schedule.PatientInfo
}

// CancellationResult reports the fee outcome of a cancel call.
type CancellationResult struct {
	Appointment    *schedule.Appointment
	FeeCents       int
	RefundEligible bool
	PolicyMessage  string
}

// Book re-validates the slot inside the doctor's critical section and
// commits the appointment. Returns ErrSlotNoLongerAvailable when the slot
// was taken between presentation and commit.
func (e *Engine) Book(ctx context.Context, req BookRequest) (*schedule.Appointment, error) {
	ctx, span := tracer.Start(ctx, "availability.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", req.DoctorID),
		attribute.String("appointment_type", req.AppointmentType),
	)

	if err := req.Patient.Validate(); err != nil {
		e.metrics.ObserveOperation("book", "invalid_patient")
		return nil, err
	}
	apptType, doc, err := e.resolveSlot(req.AppointmentType, req.DoctorID, req.Start)
	if err != nil {
		e.metrics.ObserveOperation("book", "invalid_slot")
		return nil, err
	}

	end := req.Start.Add(apptType.Duration())
	now := e.now()

	unlock := e.lockDoctors(doc.ID, "")
	defer unlock()

	booked, err := e.store.ListByDoctor(ctx, doc.ID)
	if err != nil {
		e.metrics.ObserveOperation("book", "store_error")
		return nil, err
	}
	if conflicts(booked, req.Start, end, e.buffer) {
		e.metrics.ObserveOperation("book", "conflict")
		return nil, ErrSlotNoLongerAvailable
	}

	appt := &schedule.Appointment{
		ConfirmationID:  e.newConfirmationID(),
		DoctorID:        doc.ID,
		DoctorName:      doc.Name,
		AppointmentType: apptType.Name,
		Start:           req.Start,
		End:             end,
		Patient:         req.Patient,
		Status:          schedule.StatusConfirmed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.Put(ctx, appt); err != nil {
		e.metrics.ObserveOperation("book", "store_error")
		return nil, fmt.Errorf("availability: commit booking: %w", err)
	}

	e.metrics.ObserveOperation("book", "success")
	e.logger.Info("appointment booked",
		"confirmation_id", appt.ConfirmationID,
		"doctor_id", appt.DoctorID,
		"start", appt.Start,
	)
	e.publish(Event{Kind: EventBooked, Appointment: appt.Clone()})
	return appt.Clone(), nil
}

// Reschedule atomically releases the old slot and commits the new one.
// The appointment keeps its type; the new slot may be with another doctor.
func (e *Engine) Reschedule(ctx context.Context, confirmationID string, newDoctorID string, newStart time.Time) (*schedule.Appointment, error) {
	ctx, span := tracer.Start(ctx, "availability.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("confirmation_id", confirmationID))

	existing, err := e.activeAppointment(ctx, confirmationID)
	if err != nil {
		e.metrics.ObserveOperation("reschedule", "not_found")
		return nil, err
	}
	if newDoctorID == "" {
		newDoctorID = existing.DoctorID
	}
	apptType, doc, err := e.resolveSlot(existing.AppointmentType, newDoctorID, newStart)
	if err != nil {
		e.metrics.ObserveOperation("reschedule", "invalid_slot")
		return nil, err
	}
	newEnd := newStart.Add(apptType.Duration())

	unlock := e.lockDoctors(existing.DoctorID, doc.ID)
	defer unlock()

	// Re-load inside the critical section; the appointment may have been
	// cancelled or moved since the first read.
	existing, err = e.activeAppointment(ctx, confirmationID)
	if err != nil {
		e.metrics.ObserveOperation("reschedule", "not_found")
		return nil, err
	}

	booked, err := e.store.ListByDoctor(ctx, doc.ID)
	if err != nil {
		e.metrics.ObserveOperation("reschedule", "store_error")
		return nil, err
	}
	// The appointment's own slot does not block its move.
	others := booked[:0:0]
	for _, b := range booked {
		if b.ConfirmationID != confirmationID {
			others = append(others, b)
		}
	}
	if conflicts(others, newStart, newEnd, e.buffer) {
		e.metrics.ObserveOperation("reschedule", "conflict")
		return nil, ErrSlotNoLongerAvailable
	}

	oldStart := existing.Start
	updated := existing.Clone()
	updated.DoctorID = doc.ID
	updated.DoctorName = doc.Name
	updated.Start = newStart
	updated.End = newEnd
	updated.Status = schedule.StatusRescheduled
	updated.RescheduledFrom = &oldStart
	updated.UpdatedAt = e.now()

	if err := e.store.Update(ctx, updated); err != nil {
		e.metrics.ObserveOperation("reschedule", "store_error")
		return nil, fmt.Errorf("availability: commit reschedule: %w", err)
	}

	e.metrics.ObserveOperation("reschedule", "success")
	e.logger.Info("appointment rescheduled",
		"confirmation_id", confirmationID,
		"old_start", oldStart,
		"new_start", newStart,
	)
	e.publish(Event{Kind: EventRescheduled, Appointment: updated.Clone()})
	return updated.Clone(), nil
}

// Cancel marks the appointment cancelled and reports the fee owed under the
// appointment type's cancellation policy. The slot frees immediately.
func (e *Engine) Cancel(ctx context.Context, confirmationID, reason string) (*CancellationResult, error) {
	ctx, span := tracer.Start(ctx, "availability.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("confirmation_id", confirmationID))

	existing, err := e.activeAppointment(ctx, confirmationID)
	if err != nil {
		e.metrics.ObserveOperation("cancel", "not_found")
		return nil, err
	}

	unlock := e.lockDoctors(existing.DoctorID, "")
	defer unlock()

	existing, err = e.activeAppointment(ctx, confirmationID)
	if err != nil {
		e.metrics.ObserveOperation("cancel", "not_found")
		return nil, err
	}

	now := e.now()
	feeCents, policyMessage := e.cancellationFee(existing, now)

	cancelled := existing.Clone()
	cancelled.Status = schedule.StatusCancelled
	cancelled.CancelledAt = &now
	cancelled.CancellationReason = reason
	cancelled.UpdatedAt = now

	if err := e.store.Update(ctx, cancelled); err != nil {
		e.metrics.ObserveOperation("cancel", "store_error")
		return nil, fmt.Errorf("availability: commit cancel: %w", err)
	}

	e.metrics.ObserveOperation("cancel", "success")
	e.metrics.ObserveCancellationFee(feeCents)
	e.logger.Info("appointment cancelled",
		"confirmation_id", confirmationID,
		"fee_cents", feeCents,
	)
	e.publish(Event{Kind: EventCancelled, Appointment: cancelled.Clone(), FeeCents: feeCents})

	return &CancellationResult{
		Appointment:    cancelled.Clone(),
		FeeCents:       feeCents,
		RefundEligible: feeCents == 0,
		PolicyMessage:  policyMessage,
	}, nil
}

// Get returns any appointment, cancelled ones included, for status checks.
func (e *Engine) Get(ctx context.Context, confirmationID string) (*schedule.Appointment, error) {
	appt, err := e.store.Get(ctx, confirmationID)
	if errors.Is(err, schedule.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	return appt, err
}

// activeAppointment loads a non-cancelled appointment or reports not found.
func (e *Engine) activeAppointment(ctx context.Context, confirmationID string) (*schedule.Appointment, error) {
	appt, err := e.store.Get(ctx, confirmationID)
	if errors.Is(err, schedule.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if !appt.Active() {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// resolveSlot validates the type/doctor pair and that the interval sits
// inside one of the doctor's clinic windows, in the future.
func (e *Engine) resolveSlot(appointmentType, doctorID string, start time.Time) (*clinicdata.AppointmentType, *clinicdata.Doctor, error) {
	apptType, ok := e.data.TypeByName(appointmentType)
	if !ok {
		return nil, nil, ErrUnknownAppointmentType
	}
	doc, ok := e.data.DoctorByID(doctorID)
	if !ok {
		return nil, nil, ErrUnknownDoctor
	}
	if !doc.Offers(apptType.Name) {
		return nil, nil, ErrUnknownAppointmentType
	}
	if !start.After(e.now()) {
		return nil, nil, &schedule.ValidationError{Problems: []string{"appointment start must be in the future"}}
	}
	if !e.withinClinicWindow(doc, start, start.Add(apptType.Duration())) {
		return nil, nil, &schedule.ValidationError{Problems: []string{"requested time is outside the doctor's clinic hours"}}
	}
	return apptType, doc, nil
}

func (e *Engine) withinClinicWindow(doc *clinicdata.Doctor, start, end time.Time) bool {
	local := start.In(doc.Location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, doc.Location)
	startMin := int(local.Sub(midnight) / time.Minute)
	endMin := startMin + int(end.Sub(start)/time.Minute)
	for _, w := range doc.ClinicWindows(local.Weekday()) {
		if startMin >= w.StartMin && endMin <= w.EndMin {
			return true
		}
	}
	return false
}

// cancellationFee applies the type's policy, falling back to the clinic
// defaults. At or past the start time the no-show tier applies.
func (e *Engine) cancellationFee(appt *schedule.Appointment, now time.Time) (int, string) {
	policy := clinicdata.CancellationPolicy{}
	if apptType, ok := e.data.TypeByName(appt.AppointmentType); ok {
		policy = apptType.Cancellation
	}
	cutoff := policy.CutoffHours
	if cutoff == 0 {
		cutoff = e.fees.CutoffHours
	}
	noShow := policy.NoShowFeeCents
	if noShow == 0 {
		noShow = e.fees.NoShowFeeCents
	}

	untilStart := appt.Start.Sub(now)
	switch {
	case untilStart <= 0:
		return noShow, "Same-day cancellation after the appointment start: no-show fee applies"
	case untilStart < time.Duration(cutoff)*time.Hour:
		fee := policy.LateFeeCents
		if policy.LatePercent > 0 {
			if apptType, ok := e.data.TypeByName(appt.AppointmentType); ok {
				fee = apptType.PriceCents * policy.LatePercent / 100
			}
		}
		if fee == 0 {
			fee = e.fees.LateFeeCents
		}
		return fee, fmt.Sprintf("Late cancellation within %d hours: fee applies", cutoff)
	default:
		return 0, fmt.Sprintf("Cancelled more than %d hours in advance: no fee", cutoff)
	}
}
