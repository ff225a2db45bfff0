package clinicdata

import (
	"strings"
	"time"
)

// CancellationPolicy describes the fee schedule applied when an appointment
// is cancelled close to its start time. Zero values fall back to the
// engine-wide defaults.
type CancellationPolicy struct {
	CutoffHours    int `json:"cutoff_hours"`
	LateFeeCents   int `json:"late_fee_cents"`
	LatePercent    int `json:"late_percent"`
	NoShowFeeCents int `json:"no_show_fee_cents"`
}

// AppointmentType is immutable reference data describing a bookable visit kind.
type AppointmentType struct {
	Name            string             `json:"name"`
	DurationMinutes int                `json:"duration_minutes"`
	PriceCents      int                `json:"price_cents"`
	Description     string             `json:"description,omitempty"`
	Cancellation    CancellationPolicy `json:"cancellation"`
}

// Duration returns the appointment length as a time.Duration.
func (t AppointmentType) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// ScheduleWindow is one open interval in a doctor's weekly template.
// Times are clinic-local "15:04" strings in the JSON; StartMin/EndMin are
// filled at load time. Only windows of kind "clinic" are bookable.
type ScheduleWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Kind  string `json:"type"`

	StartMin int `json:"-"`
	EndMin   int `json:"-"`
}

// Doctor holds a doctor's profile and weekly recurring availability.
type Doctor struct {
	ID               string                      `json:"id"`
	Name             string                      `json:"name"`
	Specialty        string                      `json:"specialty"`
	Timezone         string                      `json:"timezone"`
	Languages        []string                    `json:"languages,omitempty"`
	AppointmentTypes []string                    `json:"appointment_types"`
	Schedule         map[string][]ScheduleWindow `json:"schedule"`

	Location *time.Location `json:"-"`
}

// Offers reports whether the doctor supports the named appointment type.
func (d *Doctor) Offers(typeName string) bool {
	for _, t := range d.AppointmentTypes {
		if strings.EqualFold(t, typeName) {
			return true
		}
	}
	return false
}

// ClinicWindows returns the bookable windows for a weekday.
func (d *Doctor) ClinicWindows(day time.Weekday) []ScheduleWindow {
	windows := d.Schedule[strings.ToLower(day.String())]
	out := make([]ScheduleWindow, 0, len(windows))
	for _, w := range windows {
		if w.Kind == "clinic" {
			out = append(out, w)
		}
	}
	return out
}

// ClinicInfo carries the informational clinic profile used for FAQ answers.
type ClinicInfo struct {
	Name              string            `json:"name"`
	Address           string            `json:"address"`
	Phone             string            `json:"phone"`
	OperatingHours    map[string]string `json:"operating_hours"`
	Policies          map[string]string `json:"policies"`
	Services          []string          `json:"services"`
	InsuranceAccepted []string          `json:"insurance_accepted"`
	LanguagesSpoken   []string          `json:"languages_spoken"`
	Parking           string            `json:"parking,omitempty"`
	PaymentMethods    []string          `json:"payment_methods,omitempty"`
}

// Dataset is the immutable startup snapshot of clinic reference data.
type Dataset struct {
	Clinic  ClinicInfo
	Doctors []*Doctor
	Types   []AppointmentType

	byType   map[string]*AppointmentType
	byDoctor map[string]*Doctor
}

// NewDataset indexes reference data built in code. Load is the usual entry
// point; callers here are responsible for window minutes and locations.
func NewDataset(clinic ClinicInfo, types []AppointmentType, doctors []*Doctor) *Dataset {
	ds := &Dataset{
		Clinic:   clinic,
		Doctors:  doctors,
		Types:    types,
		byType:   make(map[string]*AppointmentType, len(types)),
		byDoctor: make(map[string]*Doctor, len(doctors)),
	}
	for i := range ds.Types {
		ds.byType[strings.ToLower(ds.Types[i].Name)] = &ds.Types[i]
	}
	for _, d := range doctors {
		if d.Location == nil {
			d.Location = time.UTC
		}
		ds.byDoctor[d.ID] = d
	}
	return ds
}

// TypeByName resolves an appointment type, case-insensitively.
func (ds *Dataset) TypeByName(name string) (*AppointmentType, bool) {
	t, ok := ds.byType[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// DoctorByID resolves a doctor by id.
func (ds *Dataset) DoctorByID(id string) (*Doctor, bool) {
	d, ok := ds.byDoctor[id]
	return d, ok
}

// DoctorsForType returns doctors offering the appointment type, ordered by id.
func (ds *Dataset) DoctorsForType(typeName string) []*Doctor {
	var out []*Doctor
	for _, d := range ds.Doctors {
		if d.Offers(typeName) {
			out = append(out, d)
		}
	}
	return out
}
