package clinicdata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSchedule = `{
  "appointment_types": [
    {"name": "General Consultation", "duration_minutes": 30, "price_cents": 15000},
    {"name": "Follow-up", "duration_minutes": 15, "price_cents": 8000}
  ],
  "doctors": [
    {
      "id": "dr_b",
      "name": "Bea Second",
      "specialty": "Family Medicine",
      "timezone": "America/New_York",
      "appointment_types": ["General Consultation"],
      "schedule": {"monday": [{"start": "09:00", "end": "17:00", "type": "clinic"}]}
    },
    {
      "id": "dr_a",
      "name": "Al First",
      "specialty": "Family Medicine",
      "appointment_types": ["General Consultation", "Follow-up"],
      "schedule": {
        "monday": [
          {"start": "09:00", "end": "12:00", "type": "clinic"},
          {"start": "13:00", "end": "17:00", "type": "rounds"}
        ]
      }
    }
  ]
}`

const validClinic = `{
  "clinic": {
    "name": "Test Clinic",
    "operating_hours": {"monday": "8:00 AM - 6:00 PM"},
    "policies": {"cancellation": "24 hour notice required."},
    "services": ["Primary Care"],
    "insurance_accepted": ["Aetna"],
    "languages_spoken": ["English"]
  }
}`

func writeDataset(t *testing.T, schedule, clinic string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, scheduleFile), []byte(schedule), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, clinicFile), []byte(clinic), 0o600))
	return dir
}

func TestLoadValidDataset(t *testing.T) {
	dir := writeDataset(t, validSchedule, validClinic)

	ds, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Test Clinic", ds.Clinic.Name)
	assert.Len(t, ds.Doctors, 2)

	// Doctors are ordered by id regardless of file order.
	assert.Equal(t, "dr_a", ds.Doctors[0].ID)
	assert.Equal(t, "dr_b", ds.Doctors[1].ID)

	apt, ok := ds.TypeByName("general consultation")
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, apt.Duration())

	dr, ok := ds.DoctorByID("dr_a")
	require.True(t, ok)
	assert.True(t, dr.Offers("Follow-up"))
	assert.Equal(t, time.UTC, dr.Location)

	// Non-clinic windows are not bookable.
	windows := dr.ClinicWindows(time.Monday)
	require.Len(t, windows, 1)
	assert.Equal(t, 9*60, windows[0].StartMin)
	assert.Equal(t, 12*60, windows[0].EndMin)
}

func TestDoctorsForTypeOrderedByID(t *testing.T) {
	dir := writeDataset(t, validSchedule, validClinic)
	ds, err := Load(dir)
	require.NoError(t, err)

	doctors := ds.DoctorsForType("General Consultation")
	require.Len(t, doctors, 2)
	assert.Equal(t, "dr_a", doctors[0].ID)
	assert.Equal(t, "dr_b", doctors[1].ID)
}

func TestLoadRejectsMalformedData(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		clinic   string
	}{
		{"invalid json", `{`, validClinic},
		{"no doctors", `{"appointment_types":[{"name":"X","duration_minutes":30}],"doctors":[]}`, validClinic},
		{"no appointment types", `{"appointment_types":[],"doctors":[{"id":"d","name":"D"}]}`, validClinic},
		{
			"unknown appointment type reference",
			`{"appointment_types":[{"name":"X","duration_minutes":30}],
			  "doctors":[{"id":"d","name":"D","appointment_types":["Y"],"schedule":{}}]}`,
			validClinic,
		},
		{
			"inverted window",
			`{"appointment_types":[{"name":"X","duration_minutes":30}],
			  "doctors":[{"id":"d","name":"D","appointment_types":["X"],
			  "schedule":{"monday":[{"start":"17:00","end":"09:00","type":"clinic"}]}}]}`,
			validClinic,
		},
		{
			"bad clock time",
			`{"appointment_types":[{"name":"X","duration_minutes":30}],
			  "doctors":[{"id":"d","name":"D","appointment_types":["X"],
			  "schedule":{"monday":[{"start":"nine","end":"17:00","type":"clinic"}]}}]}`,
			validClinic,
		},
		{
			"unknown weekday",
			`{"appointment_types":[{"name":"X","duration_minutes":30}],
			  "doctors":[{"id":"d","name":"D","appointment_types":["X"],
			  "schedule":{"payday":[{"start":"09:00","end":"17:00","type":"clinic"}]}}]}`,
			validClinic,
		},
		{
			"bad timezone",
			`{"appointment_types":[{"name":"X","duration_minutes":30}],
			  "doctors":[{"id":"d","name":"D","timezone":"Mars/Olympus","appointment_types":["X"],"schedule":{}}]}`,
			validClinic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeDataset(t, tt.schedule, tt.clinic)
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, scheduleFile), []byte(validSchedule), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadShippedDataset(t *testing.T) {
	ds, err := Load(filepath.Join("..", "..", "data"))
	require.NoError(t, err)

	assert.NotEmpty(t, ds.Doctors)
	assert.NotEmpty(t, ds.Types)
	_, ok := ds.TypeByName("General Consultation")
	assert.True(t, ok)
}
