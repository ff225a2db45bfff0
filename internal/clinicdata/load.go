package clinicdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// File names expected under the data directory.
const (
	scheduleFile = "doctor_schedule.json"
	clinicFile   = "clinic_info.json"
)

var weekdays = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
}

// Load reads and validates the static clinic dataset. A missing or malformed
// dataset is a hard failure: without it neither availability nor FAQ answers
// can be trusted.
func Load(dir string) (*Dataset, error) {
	var scheduleDoc struct {
		AppointmentTypes []AppointmentType `json:"appointment_types"`
		Doctors          []*Doctor         `json:"doctors"`
	}
	if err := readJSON(filepath.Join(dir, scheduleFile), &scheduleDoc); err != nil {
		return nil, err
	}

	var clinicDoc struct {
		Clinic ClinicInfo `json:"clinic"`
	}
	if err := readJSON(filepath.Join(dir, clinicFile), &clinicDoc); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Clinic:   clinicDoc.Clinic,
		Doctors:  scheduleDoc.Doctors,
		Types:    scheduleDoc.AppointmentTypes,
		byType:   make(map[string]*AppointmentType, len(scheduleDoc.AppointmentTypes)),
		byDoctor: make(map[string]*Doctor, len(scheduleDoc.Doctors)),
	}

	if len(ds.Types) == 0 {
		return nil, fmt.Errorf("clinicdata: %s declares no appointment types", scheduleFile)
	}
	if len(ds.Doctors) == 0 {
		return nil, fmt.Errorf("clinicdata: %s declares no doctors", scheduleFile)
	}

	for i := range ds.Types {
		t := &ds.Types[i]
		if t.Name == "" || t.DurationMinutes <= 0 {
			return nil, fmt.Errorf("clinicdata: appointment type %q has no name or non-positive duration", t.Name)
		}
		key := strings.ToLower(t.Name)
		if _, dup := ds.byType[key]; dup {
			return nil, fmt.Errorf("clinicdata: duplicate appointment type %q", t.Name)
		}
		ds.byType[key] = t
	}

	sort.Slice(ds.Doctors, func(i, j int) bool { return ds.Doctors[i].ID < ds.Doctors[j].ID })

	for _, d := range ds.Doctors {
		if d.ID == "" || d.Name == "" {
			return nil, fmt.Errorf("clinicdata: doctor entry missing id or name")
		}
		if _, dup := ds.byDoctor[d.ID]; dup {
			return nil, fmt.Errorf("clinicdata: duplicate doctor id %q", d.ID)
		}
		for _, tn := range d.AppointmentTypes {
			if _, ok := ds.byType[strings.ToLower(tn)]; !ok {
				return nil, fmt.Errorf("clinicdata: doctor %s offers unknown appointment type %q", d.ID, tn)
			}
		}
		loc, err := loadLocation(d.Timezone)
		if err != nil {
			return nil, fmt.Errorf("clinicdata: doctor %s: %w", d.ID, err)
		}
		d.Location = loc

		for day, windows := range d.Schedule {
			if _, ok := weekdays[day]; !ok {
				return nil, fmt.Errorf("clinicdata: doctor %s schedule has unknown day %q", d.ID, day)
			}
			for i := range windows {
				w := &windows[i]
				start, err := parseClock(w.Start)
				if err != nil {
					return nil, fmt.Errorf("clinicdata: doctor %s %s window: %w", d.ID, day, err)
				}
				end, err := parseClock(w.End)
				if err != nil {
					return nil, fmt.Errorf("clinicdata: doctor %s %s window: %w", d.ID, day, err)
				}
				if end <= start {
					return nil, fmt.Errorf("clinicdata: doctor %s %s window %s-%s is inverted", d.ID, day, w.Start, w.End)
				}
				w.StartMin, w.EndMin = start, end
			}
		}
		ds.byDoctor[d.ID] = d
	}

	return ds, nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("clinicdata: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("clinicdata: parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// parseClock converts "15:04" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return h*60 + m, nil
}
