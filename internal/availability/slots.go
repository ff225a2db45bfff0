package availability

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
)

// Slot is a concrete bookable interval. Slots are derived on demand and are
// a snapshot: they can go stale under concurrent demand and are re-validated
// at booking time.
type Slot struct {
	DoctorID        string    `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	Specialty       string    `json:"specialty"`
	AppointmentType string    `json:"appointment_type"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

// End returns the exclusive end of the slot.
func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Query selects which slots to enumerate.
type Query struct {
	AppointmentType string
	DoctorID        string // optional filter
	From            time.Time
	To              time.Time // zero means From plus the engine horizon

	// Optional doctor-local time-of-day constraints, minutes since midnight.
	AfterMinutes  int
	BeforeMinutes int

	// Days restricts results to these doctor-local weekdays; empty means any.
	Days []time.Weekday

	Page     int // zero-based
	PageSize int // zero means the engine default
}

// ComputeAvailability enumerates free slots for the query in chronological
// order, ties broken by doctor id. Results are paginated; an entirely past
// range yields an empty page, not an error.
func (e *Engine) ComputeAvailability(ctx context.Context, q Query) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "availability.compute")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_type", q.AppointmentType))

	apptType, ok := e.data.TypeByName(q.AppointmentType)
	if !ok {
		return nil, ErrUnknownAppointmentType
	}

	doctors := e.data.DoctorsForType(apptType.Name)
	if q.DoctorID != "" {
		doc, ok := e.data.DoctorByID(q.DoctorID)
		if !ok {
			return nil, ErrUnknownDoctor
		}
		if !doc.Offers(apptType.Name) {
			return nil, ErrUnknownAppointmentType
		}
		doctors = []*clinicdata.Doctor{doc}
	}

	now := e.now()
	from := q.From
	if from.IsZero() {
		from = now
	}
	to := q.To
	if to.IsZero() {
		to = from.Add(e.horizon)
	}
	if !to.After(now) {
		return []Slot{}, nil
	}

	var slots []Slot
	for _, doc := range doctors {
		booked, err := e.store.ListByDoctor(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		slots = append(slots, e.doctorSlots(doc, apptType, booked, from, to, now, q)...)
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].DoctorID < slots[j].DoctorID
	})

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = e.pageSize
	}
	offset := q.Page * pageSize
	if offset >= len(slots) {
		return []Slot{}, nil
	}
	end := offset + pageSize
	if end > len(slots) {
		end = len(slots)
	}
	return slots[offset:end], nil
}

// doctorSlots walks the doctor's weekly template day by day and keeps the
// candidates that survive the buffered conflict check.
func (e *Engine) doctorSlots(
	doc *clinicdata.Doctor,
	apptType *clinicdata.AppointmentType,
	booked []*schedule.Appointment,
	from, to, now time.Time,
	q Query,
) []Slot {
	duration := apptType.Duration()
	var out []Slot

	day := time.Date(
		from.In(doc.Location).Year(), from.In(doc.Location).Month(), from.In(doc.Location).Day(),
		0, 0, 0, 0, doc.Location,
	)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		if !dayAllowed(q.Days, day.Weekday()) {
			continue
		}
		for _, w := range doc.ClinicWindows(day.Weekday()) {
			startMin, endMin := w.StartMin, w.EndMin
			if q.AfterMinutes > 0 && startMin < q.AfterMinutes {
				startMin = q.AfterMinutes
			}
			if q.BeforeMinutes > 0 && endMin > q.BeforeMinutes {
				endMin = q.BeforeMinutes
			}
			windowEnd := day.Add(time.Duration(endMin) * time.Minute)
			for start := day.Add(time.Duration(startMin) * time.Minute); !start.Add(duration).After(windowEnd); start = start.Add(duration) {
				if !start.After(now) || start.Before(from) || !start.Before(to) {
					continue
				}
				if conflicts(booked, start, start.Add(duration), e.buffer) {
					continue
				}
				out = append(out, Slot{
					DoctorID:        doc.ID,
					DoctorName:      doc.Name,
					Specialty:       doc.Specialty,
					AppointmentType: apptType.Name,
					Start:           start,
					DurationMinutes: apptType.DurationMinutes,
				})
			}
		}
	}
	return out
}

func dayAllowed(days []time.Weekday, d time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, want := range days {
		if want == d {
			return true
		}
	}
	return false
}

// conflicts reports whether [start, end) overlaps any active appointment
// extended by the buffer on both sides. Exact abutment is not a conflict.
func conflicts(booked []*schedule.Appointment, start, end time.Time, buffer time.Duration) bool {
	for _, appt := range booked {
		if !appt.Active() {
			continue
		}
		bStart := appt.Start.Add(-buffer)
		bEnd := appt.End.Add(buffer)
		if start.Before(bEnd) && end.After(bStart) {
			return true
		}
	}
	return false
}

// NextAvailable returns the first free slot at or after the given time,
// searching well past the normal horizon. The boolean is false when nothing
// is free in the extended window.
func (e *Engine) NextAvailable(ctx context.Context, appointmentType, doctorID string, after time.Time) (Slot, bool, error) {
	slots, err := e.ComputeAvailability(ctx, Query{
		AppointmentType: appointmentType,
		DoctorID:        doctorID,
		From:            after,
		To:              after.Add(60 * 24 * time.Hour),
		PageSize:        1,
	})
	if err != nil {
		return Slot{}, false, err
	}
	if len(slots) == 0 {
		return Slot{}, false, nil
	}
	return slots[0], true, nil
}
