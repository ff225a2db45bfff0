package dialogue

import (
	"time"

	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
)

// State is the dialogue machine's position in the booking flow.
type State string

const (
	StateIdle                   State = "idle"
	StateCollectingType         State = "collecting_appointment_type"
	StateCollectingDate         State = "collecting_date_preference"
	StatePresentingOptions      State = "presenting_options"
	StateCollectingPatient      State = "collecting_patient_info"
	StateAwaitingConfirmation   State = "awaiting_confirmation"
	StateCollectingCancelID     State = "collecting_cancel_target"
	StateCollectingRescheduleID State = "collecting_reschedule_target"
)

// FlowAction says what the draft commits as once confirmed.
type FlowAction string

const (
	ActionBook       FlowAction = "book"
	ActionReschedule FlowAction = "reschedule"
)

// Turn is one utterance in the bounded history.
type Turn struct {
	Role    string    `json:"role"` // "patient" or "assistant"
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
	Intent  Intent    `json:"intent,omitempty"`
}

// Draft is the partially filled booking request carried across turns.
type Draft struct {
	Action          FlowAction
	AppointmentType string
	DoctorID        string
	Preference      DatePreference
	Options         []availability.Slot
	OptionsPage     int
	PresentedAt     time.Time
	Selected        *availability.Slot
	Patient         schedule.PatientInfo
	TargetID        string // confirmation id for reschedule
}

// Session is one conversation's mutable state. It is owned by the session
// registry and only ever mutated by the single turn being processed for it.
type Session struct {
	ID           string
	State        State
	Draft        Draft
	History      []Turn
	Retries      map[State]int
	CreatedAt    time.Time
	LastActivity time.Time

	historyLimit int
}

// NewSession creates an idle session.
func NewSession(id string, now time.Time, historyLimit int) *Session {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &Session{
		ID:           id,
		State:        StateIdle,
		Retries:      make(map[State]int),
		CreatedAt:    now,
		LastActivity: now,
		historyLimit: historyLimit,
	}
}

func (s *Session) remember(role, text string, intent Intent, now time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, At: now, Intent: intent})
	if len(s.History) > s.historyLimit {
		s.History = s.History[len(s.History)-s.historyLimit:]
	}
}

// reset clears the in-progress flow and returns to idle. Committed
// appointments are unaffected; only the draft is dropped.
func (s *Session) reset() {
	s.State = StateIdle
	s.Draft = Draft{}
	s.Retries = make(map[State]int)
}

// retry bumps the state's retry counter and reports whether the bound was
// exceeded.
func (s *Session) retry(limit int) bool {
	s.Retries[s.State]++
	return s.Retries[s.State] >= limit
}

// Snapshot is the read-only view handed back to the transport layer.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	State         State     `json:"state"`
	Intent        Intent    `json:"intent,omitempty"`
	MissingFields []string  `json:"missing_fields,omitempty"`
	LastActivity  time.Time `json:"last_activity"`
}

// Snapshot builds the transport view of the session.
func (s *Session) Snapshot(lastIntent Intent) Snapshot {
	snap := Snapshot{
		SessionID:    s.ID,
		State:        s.State,
		Intent:       lastIntent,
		LastActivity: s.LastActivity,
	}
	if s.State == StateCollectingPatient {
		snap.MissingFields = MissingPatientFields(s.Draft.Patient)
	}
	return snap
}
