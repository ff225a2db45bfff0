package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment. Appointments are never
// deleted; cancelled rows are kept for audit and fee computation.
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
)

// ErrNotFound is returned by stores when no appointment matches the id.
var ErrNotFound = errors.New("schedule: appointment not found")

// PatientInfo is the patient snapshot attached to an appointment.
type PatientInfo struct {
	Name                  string `json:"name"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email"`
	DateOfBirth           string `json:"date_of_birth,omitempty"`
	InsuranceProvider     string `json:"insurance_provider,omitempty"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
	MedicalHistory        string `json:"medical_history,omitempty"`
}

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate checks required fields and basic phone/email plausibility.
func (p PatientInfo) Validate() error {
	var problems []string

	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "patient name is required")
	}
	if digits := countDigits(p.Phone); digits < 10 {
		problems = append(problems, "phone number must have at least 10 digits")
	}
	if !emailRE.MatchString(strings.TrimSpace(p.Email)) {
		problems = append(problems, "invalid email format")
	}
	if p.DateOfBirth != "" {
		if _, err := time.Parse("2006-01-02", p.DateOfBirth); err != nil {
			problems = append(problems, "date of birth must be YYYY-MM-DD")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// ValidationError carries all the problems found in a piece of user input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schedule: invalid input: %s", strings.Join(e.Problems, "; "))
}

// Appointment is a committed booking on a doctor's timeline.
type Appointment struct {
	ConfirmationID     string      `json:"confirmation_id"`
	DoctorID           string      `json:"doctor_id"`
	DoctorName         string      `json:"doctor_name"`
	AppointmentType    string      `json:"appointment_type"`
	Start              time.Time   `json:"start"`
	End                time.Time   `json:"end"`
	Patient            PatientInfo `json:"patient"`
	Status             Status      `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	RescheduledFrom    *time.Time  `json:"rescheduled_from,omitempty"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// Clone returns a deep copy so callers can never mutate stored state.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		cp.CancelledAt = &t
	}
	if a.RescheduledFrom != nil {
		t := *a.RescheduledFrom
		cp.RescheduledFrom = &t
	}
	return &cp
}
