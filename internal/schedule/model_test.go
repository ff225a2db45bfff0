package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientInfoValidate(t *testing.T) {
	valid := PatientInfo{
		Name:  "John Smith",
		Phone: "555-123-4567",
		Email: "john@example.com",
	}

	tests := []struct {
		name    string
		mutate  func(*PatientInfo)
		wantErr bool
	}{
		{"valid", func(p *PatientInfo) {}, false},
		{"valid with dob", func(p *PatientInfo) { p.DateOfBirth = "1985-03-14" }, false},
		{"missing name", func(p *PatientInfo) { p.Name = "  " }, true},
		{"short phone", func(p *PatientInfo) { p.Phone = "555-1234" }, true},
		{"email without at", func(p *PatientInfo) { p.Email = "john.example.com" }, true},
		{"email without domain dot", func(p *PatientInfo) { p.Email = "john@example" }, true},
		{"bad dob", func(p *PatientInfo) { p.DateOfBirth = "March 14" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	err := PatientInfo{}.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 3)
}
