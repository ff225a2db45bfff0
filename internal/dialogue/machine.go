// Package dialogue turns free-form patient messages into booking operations.
// A Machine holds no per-conversation state of its own; everything mutable
// lives in the Session, so one Machine serves every conversation.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/observability/metrics"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// Machine drives the conversation state transitions.
type Machine struct {
	data       *clinicdata.Dataset
	engine     *availability.Engine
	kb         *knowledge.Base
	classifier IntentClassifier
	logger     *logging.Logger
	metrics    *metrics.ConversationMetrics

	now        func() time.Time
	maxRetries int
	optionsTTL time.Duration
}

// MachineOption configures the machine.
type MachineOption func(*Machine)

// WithClock injects the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c IntentClassifier) MachineOption {
	return func(m *Machine) {
		if c != nil {
			m.classifier = c
		}
	}
}

// WithMaxRetries bounds unparseable replies per collecting state.
func WithMaxRetries(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.maxRetries = n
		}
	}
}

// WithOptionsTTL sets how long a presented option list stays selectable.
func WithOptionsTTL(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.optionsTTL = d
		}
	}
}

// WithMetrics attaches conversation counters.
func WithMetrics(mx *metrics.ConversationMetrics) MachineOption {
	return func(m *Machine) { m.metrics = mx }
}

// NewMachine creates a dialogue machine over the clinic dataset, booking
// engine and knowledge base.
func NewMachine(data *clinicdata.Dataset, engine *availability.Engine, kb *knowledge.Base, logger *logging.Logger, opts ...MachineOption) *Machine {
	if data == nil {
		panic("dialogue: dataset required")
	}
	if engine == nil {
		panic("dialogue: availability engine required")
	}
	if kb == nil {
		panic("dialogue: knowledge base required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	m := &Machine{
		data:       data,
		engine:     engine,
		kb:         kb,
		classifier: KeywordClassifier{},
		logger:     logger,
		now:        time.Now,
		maxRetries: 3,
		optionsTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleTurn processes one patient message against the session and returns
// the assistant's reply. The caller must serialize turns per session.
func (m *Machine) HandleTurn(ctx context.Context, s *Session, text string) (string, Snapshot) {
	now := m.now()
	s.LastActivity = now

	intent := m.classifier.Classify(ctx, text)
	m.metrics.ObserveTurn(string(intent))
	s.remember("patient", text, intent, now)

	var reply string
	switch s.State {
	case StateIdle:
		reply = m.handleIdle(ctx, s, text, intent)
	case StateCollectingType:
		reply = m.handleCollectType(ctx, s, text, intent)
	case StateCollectingDate:
		reply = m.handleCollectDate(ctx, s, text, intent)
	case StatePresentingOptions:
		reply = m.handlePresenting(ctx, s, text, intent)
	case StateCollectingPatient:
		reply = m.handleCollectPatient(ctx, s, text, intent)
	case StateAwaitingConfirmation:
		reply = m.handleConfirm(ctx, s, text, intent)
	case StateCollectingCancelID:
		reply = m.handleCancelTarget(ctx, s, text, intent)
	case StateCollectingRescheduleID:
		reply = m.handleRescheduleTarget(ctx, s, text, intent)
	default:
		s.reset()
		reply = m.handleIdle(ctx, s, text, intent)
	}

	s.remember("assistant", reply, "", m.now())
	return reply, s.Snapshot(intent)
}

func (m *Machine) handleIdle(ctx context.Context, s *Session, text string, intent Intent) string {
	switch intent {
	case IntentGreeting:
		return fmt.Sprintf("Hello! Welcome to %s. I can help you book, reschedule or cancel an appointment, or answer questions about the clinic. What can I do for you?", m.data.Clinic.Name)

	case IntentBook:
		s.Draft = Draft{Action: ActionBook}
		if doc, ok := MatchDoctor(m.data, text); ok {
			s.Draft.DoctorID = doc.ID
		}
		if at, ok := MatchAppointmentType(m.data, text); ok {
			s.Draft.AppointmentType = at.Name
			if pref, ok := ExtractDatePreference(text, m.now()); ok {
				s.Draft.Preference = pref
				return m.presentOptions(ctx, s)
			}
			s.State = StateCollectingDate
			return fmt.Sprintf("Sure, a %s. When would suit you? You can say things like \"tomorrow morning\" or \"next week after 4pm\".", at.Name)
		}
		s.State = StateCollectingType
		return "I can help with that. What type of appointment do you need? We offer: " + m.typeList() + "."

	case IntentReschedule:
		if id, ok := ExtractConfirmationID(text); ok {
			return m.startReschedule(ctx, s, id)
		}
		s.State = StateCollectingRescheduleID
		return "I can move your appointment. What's the confirmation number? It starts with APT."

	case IntentCancel:
		if id, ok := ExtractConfirmationID(text); ok {
			return m.doCancel(ctx, s, id)
		}
		s.State = StateCollectingCancelID
		return "I can cancel that for you. What's the confirmation number? It starts with APT."

	case IntentStatus:
		if id, ok := ExtractConfirmationID(text); ok {
			return m.describeAppointment(ctx, id)
		}
		return "I can look that up if you give me the confirmation number, for example APT20260105093000001."

	case IntentFAQ:
		return m.answerFAQ(ctx, text)

	default:
		return "I'm not sure I follow. I can book, reschedule or cancel appointments, or answer questions about the clinic — for example \"I'd like to book a checkup\" or \"what are your hours?\"."
	}
}

func (m *Machine) handleCollectType(ctx context.Context, s *Session, text string, intent Intent) string {
	if reply, handled := m.midFlowInterrupt(ctx, s, text, intent); handled {
		return reply
	}

	if at, ok := MatchAppointmentType(m.data, text); ok {
		s.Draft.AppointmentType = at.Name
		if doc, ok := MatchDoctor(m.data, text); ok {
			s.Draft.DoctorID = doc.ID
		}
		if pref, ok := ExtractDatePreference(text, m.now()); ok {
			s.Draft.Preference = pref
			return m.presentOptions(ctx, s)
		}
		s.State = StateCollectingDate
		return fmt.Sprintf("Got it, a %s. When would suit you?", at.Name)
	}

	if s.retry(m.maxRetries) {
		s.reset()
		return "I'm sorry, I couldn't work out which appointment you need. Let's start over whenever you're ready."
	}
	return "I didn't recognize that appointment type. We offer: " + m.typeList() + ". Which one would you like?"
}

func (m *Machine) handleCollectDate(ctx context.Context, s *Session, text string, intent Intent) string {
	if reply, handled := m.midFlowInterrupt(ctx, s, text, intent); handled {
		return reply
	}

	if doc, ok := MatchDoctor(m.data, text); ok {
		s.Draft.DoctorID = doc.ID
	}
	if pref, ok := ExtractDatePreference(text, m.now()); ok {
		s.Draft.Preference = pref
		s.Draft.OptionsPage = 0
		return m.presentOptions(ctx, s)
	}

	if s.retry(m.maxRetries) {
		s.reset()
		return "I'm having trouble understanding the timing, sorry about that. Let's start fresh — just tell me when you'd like to come in."
	}
	return "When works for you? You can give a day (\"Tuesday\", \"tomorrow\"), a date (\"2026-03-14\"), or a time of day (\"mornings\", \"after 4pm\")."
}

func (m *Machine) handlePresenting(ctx context.Context, s *Session, text string, intent Intent) string {
	if reply, handled := m.midFlowInterrupt(ctx, s, text, intent); handled {
		return reply
	}

	// A stale option list may no longer reflect real availability.
	if m.now().Sub(s.Draft.PresentedAt) > m.optionsTTL {
		s.Draft.OptionsPage = 0
		return "It's been a little while, so let me refresh the options.\n" + m.presentOptions(ctx, s)
	}

	lower := strings.ToLower(text)
	if containsAny(lower, "more", "other", "later", "next page", "else") {
		s.Draft.OptionsPage++
		return m.presentOptions(ctx, s)
	}

	// A reply carrying a date or time signal ("tomorrow at 3pm") is a new
	// preference, not a pick of whatever option its digits happen to name.
	if pref, ok := ExtractDatePreference(text, m.now()); ok {
		s.Draft.Preference = pref
		s.Draft.OptionsPage = 0
		return m.presentOptions(ctx, s)
	}

	if n, ok := ExtractSelection(text); ok {
		if n < 1 || n > len(s.Draft.Options) {
			if s.retry(m.maxRetries) {
				s.reset()
				return "Let's start over — none of those picks matched the list, sorry."
			}
			return fmt.Sprintf("Please pick a number between 1 and %d, or say \"more\" for other times.", len(s.Draft.Options))
		}
		slot := s.Draft.Options[n-1]
		s.Draft.Selected = &slot

		if s.Draft.Action == ActionReschedule {
			return m.commitReschedule(ctx, s)
		}
		s.State = StateCollectingPatient
		return fmt.Sprintf("Great choice: %s. Now I need a few details — your full name, phone number and email.", renderSlot(slot))
	}

	if s.retry(m.maxRetries) {
		s.reset()
		return "I couldn't match that to the list, sorry. Let's start over whenever you're ready."
	}
	return fmt.Sprintf("Just reply with a number from 1 to %d, or say \"more\" for other times.", len(s.Draft.Options))
}

func (m *Machine) handleCollectPatient(ctx context.Context, s *Session, text string, intent Intent) string {
	if reply, handled := m.midFlowInterrupt(ctx, s, text, intent); handled {
		return reply
	}

	before := s.Draft.Patient
	s.Draft.Patient = ExtractPatientInfo(text, s.Draft.Patient)
	missing := MissingPatientFields(s.Draft.Patient)

	if len(missing) == 0 {
		if err := s.Draft.Patient.Validate(); err != nil {
			var verr *schedule.ValidationError
			if errors.As(err, &verr) {
				// Force re-collection of whichever fields failed.
				s.Draft.Patient = clearInvalidFields(s.Draft.Patient, verr.Problems)
				return "A couple of details look off: " + strings.Join(verr.Problems, "; ") + ". Could you send those again?"
			}
			return "Something looks off with those details, could you send them again?"
		}
		s.State = StateAwaitingConfirmation
		return m.renderSummary(s)
	}

	progressed := s.Draft.Patient != before
	if !progressed && s.retry(m.maxRetries) {
		s.reset()
		return "I couldn't read those details, sorry. Let's start the booking again whenever you're ready."
	}
	return "Thanks! I still need your " + humanJoin(missing) + "."
}

func (m *Machine) handleConfirm(ctx context.Context, s *Session, text string, intent Intent) string {
	if reply, handled := m.midFlowInterrupt(ctx, s, text, intent); handled {
		return reply
	}

	switch {
	case IsAffirmative(text):
		slot := s.Draft.Selected
		appt, err := m.engine.Book(ctx, availability.BookRequest{
			AppointmentType: s.Draft.AppointmentType,
			DoctorID:        slot.DoctorID,
			Start:           slot.Start,
			Patient:         s.Draft.Patient,
		})
		switch {
		case err == nil:
			reply := m.renderConfirmation(appt)
			s.reset()
			return reply
		case errors.Is(err, availability.ErrSlotNoLongerAvailable):
			s.Draft.Selected = nil
			s.Draft.OptionsPage = 0
			return "I'm sorry, that time was just taken by another patient. Here are the current options:\n" + m.presentOptions(ctx, s)
		default:
			var verr *schedule.ValidationError
			if errors.As(err, &verr) {
				s.State = StateCollectingPatient
				s.Draft.Patient = clearInvalidFields(s.Draft.Patient, verr.Problems)
				return "Before I can book: " + strings.Join(verr.Problems, "; ") + ". Could you send those again?"
			}
			m.logger.Error("booking failed", "session_id", s.ID, "error", err)
			return "Something went wrong on my end while booking. Your details are saved — just say \"yes\" to try again."
		}

	case IsNegative(text):
		s.State = StateCollectingDate
		s.Draft.Options = nil
		s.Draft.Selected = nil
		s.Draft.OptionsPage = 0
		return "No problem. What time would work better?"

	default:
		if s.retry(m.maxRetries) {
			s.reset()
			return "I'll stop there so I don't book anything you didn't ask for. Start again whenever you're ready."
		}
		return "Shall I book it? Please reply yes or no."
	}
}

func (m *Machine) handleCancelTarget(ctx context.Context, s *Session, text string, intent Intent) string {
	if id, ok := ExtractConfirmationID(text); ok {
		return m.doCancel(ctx, s, id)
	}
	if s.retry(m.maxRetries) {
		s.reset()
		return "I couldn't find a confirmation number in your messages. Please check your confirmation email and try again."
	}
	return "I need the confirmation number to cancel — it starts with APT and is in your confirmation email."
}

func (m *Machine) handleRescheduleTarget(ctx context.Context, s *Session, text string, intent Intent) string {
	if id, ok := ExtractConfirmationID(text); ok {
		return m.startReschedule(ctx, s, id)
	}
	if s.retry(m.maxRetries) {
		s.reset()
		return "I couldn't find a confirmation number in your messages. Please check your confirmation email and try again."
	}
	return "I need the confirmation number to reschedule — it starts with APT and is in your confirmation email."
}

// midFlowInterrupt handles turns that suspend or abort the booking flow.
// FAQ questions are answered in place without losing progress.
func (m *Machine) midFlowInterrupt(ctx context.Context, s *Session, text string, intent Intent) (string, bool) {
	lower := strings.ToLower(text)
	if containsAny(lower, "never mind", "nevermind", "start over", "forget it", "stop") {
		s.reset()
		return "Okay, I've dropped that request. Let me know if you need anything else.", true
	}
	if intent == IntentFAQ || (s.State != StateAwaitingConfirmation && ClassifyIntent(text) == IntentFAQ) {
		answer := m.answerFAQ(ctx, text)
		return answer + "\n\nNow, back to your booking: " + m.rePrompt(s), true
	}
	return "", false
}

// rePrompt restates the question for the current state after an interruption.
func (m *Machine) rePrompt(s *Session) string {
	switch s.State {
	case StateCollectingType:
		return "which appointment type would you like? We offer: " + m.typeList() + "."
	case StateCollectingDate:
		return "when would you like to come in?"
	case StatePresentingOptions:
		return fmt.Sprintf("please pick an option from 1 to %d.", len(s.Draft.Options))
	case StateCollectingPatient:
		return "I still need your " + humanJoin(MissingPatientFields(s.Draft.Patient)) + "."
	case StateAwaitingConfirmation:
		return "shall I book it? Yes or no."
	default:
		return "how can I help?"
	}
}

func (m *Machine) presentOptions(ctx context.Context, s *Session) string {
	at, ok := m.data.TypeByName(s.Draft.AppointmentType)
	if !ok {
		s.reset()
		return "Something went wrong with that appointment type. Let's start over."
	}

	pref := s.Draft.Preference
	q := availability.Query{
		AppointmentType: at.Name,
		DoctorID:        s.Draft.DoctorID,
		From:            pref.From,
		To:              pref.To,
		AfterMinutes:    pref.AfterMinutes,
		BeforeMinutes:   pref.BeforeMinutes,
		Days:            pref.DaysOfWeek,
		Page:            s.Draft.OptionsPage,
	}
	slots, err := m.engine.ComputeAvailability(ctx, q)
	if err != nil {
		m.logger.Error("availability query failed", "session_id", s.ID, "error", err)
		s.reset()
		return "I'm having trouble checking the calendar right now. Please try again in a moment."
	}

	if len(slots) == 0 {
		if s.Draft.OptionsPage > 0 {
			s.Draft.OptionsPage--
			return "That's all the times matching your preference. " + m.rePrompt(s)
		}
		s.State = StateCollectingDate
		from := pref.From
		if from.IsZero() {
			from = m.now()
		}
		next, found, err := m.engine.NextAvailable(ctx, at.Name, s.Draft.DoctorID, from)
		if err == nil && found {
			return fmt.Sprintf("I don't see anything matching that preference. The next available %s is %s — does that work, or would another time suit?", at.Name, renderSlot(next))
		}
		return fmt.Sprintf("I don't see any %s availability matching that, and nothing in the next two months. Could you try a different time or doctor?", at.Name)
	}

	s.Draft.Options = slots
	s.Draft.PresentedAt = m.now()
	s.State = StatePresentingOptions

	var b strings.Builder
	b.WriteString("Here's what I have")
	if s.Draft.OptionsPage > 0 {
		fmt.Fprintf(&b, " (page %d)", s.Draft.OptionsPage+1)
	}
	b.WriteString(":\n")
	for i, slot := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, renderSlot(slot))
	}
	b.WriteString("Reply with a number, or say \"more\" for other times.")
	return b.String()
}

func (m *Machine) commitReschedule(ctx context.Context, s *Session) string {
	slot := s.Draft.Selected
	appt, err := m.engine.Reschedule(ctx, s.Draft.TargetID, slot.DoctorID, slot.Start)
	switch {
	case err == nil:
		reply := fmt.Sprintf("Done! Your %s is now %s. The confirmation number is still %s.",
			appt.AppointmentType, renderStart(appt.Start, appt.DoctorName), appt.ConfirmationID)
		s.reset()
		return reply
	case errors.Is(err, availability.ErrSlotNoLongerAvailable):
		s.Draft.Selected = nil
		s.Draft.OptionsPage = 0
		return "That time was just taken. Here are the current options:\n" + m.presentOptions(ctx, s)
	case errors.Is(err, availability.ErrAppointmentNotFound):
		s.reset()
		return "That appointment seems to have been cancelled in the meantime, so there's nothing to move."
	default:
		m.logger.Error("reschedule failed", "session_id", s.ID, "error", err)
		s.reset()
		return "Something went wrong while moving the appointment. Please try again."
	}
}

func (m *Machine) startReschedule(ctx context.Context, s *Session, id string) string {
	appt, err := m.engine.Get(ctx, id)
	if err != nil || !appt.Active() {
		if s.State == StateIdle {
			s.State = StateCollectingRescheduleID
		}
		if s.retry(m.maxRetries) {
			s.reset()
			return "I can't find an active appointment under that number. Please double-check it and start again."
		}
		return fmt.Sprintf("I can't find an active appointment with the number %s. Could you check it?", id)
	}

	s.Draft = Draft{
		Action:          ActionReschedule,
		AppointmentType: appt.AppointmentType,
		TargetID:        appt.ConfirmationID,
	}
	s.State = StateCollectingDate
	return fmt.Sprintf("I found your %s with %s on %s. When would you like to move it to?",
		appt.AppointmentType, appt.DoctorName, appt.Start.Format("Monday, January 2 at 3:04 PM"))
}

func (m *Machine) doCancel(ctx context.Context, s *Session, id string) string {
	res, err := m.engine.Cancel(ctx, id, "patient request")
	if err != nil {
		if errors.Is(err, availability.ErrAppointmentNotFound) {
			if s.State == StateIdle {
				s.State = StateCollectingCancelID
			}
			if s.retry(m.maxRetries) {
				s.reset()
				return "I can't find an active appointment under that number. Please double-check your confirmation email."
			}
			return fmt.Sprintf("I can't find an active appointment with the number %s. Could you check it?", id)
		}
		m.logger.Error("cancel failed", "session_id", s.ID, "error", err)
		s.reset()
		return "Something went wrong while cancelling. Please try again."
	}

	s.reset()
	appt := res.Appointment
	reply := fmt.Sprintf("Your %s with %s on %s has been cancelled.",
		appt.AppointmentType, appt.DoctorName, appt.Start.Format("Monday, January 2 at 3:04 PM"))
	if res.FeeCents > 0 {
		reply += fmt.Sprintf(" %s, so a fee of %s applies.", res.PolicyMessage, formatCents(res.FeeCents))
	} else {
		reply += " No cancellation fee applies."
	}
	return reply
}

func (m *Machine) describeAppointment(ctx context.Context, id string) string {
	appt, err := m.engine.Get(ctx, id)
	if err != nil {
		return fmt.Sprintf("I can't find an appointment with the number %s. Could you check it?", id)
	}
	return fmt.Sprintf("Appointment %s: %s with %s on %s — status %s.",
		appt.ConfirmationID, appt.AppointmentType, appt.DoctorName,
		appt.Start.Format("Monday, January 2 at 3:04 PM"), appt.Status)
}

func (m *Machine) answerFAQ(ctx context.Context, text string) string {
	ans := m.kb.Query(ctx, text)
	if !ans.Found {
		return ans.Text + " Is there anything else I can help with, like booking an appointment?"
	}
	return ans.Text
}

func (m *Machine) renderSummary(s *Session) string {
	slot := s.Draft.Selected
	at, _ := m.data.TypeByName(s.Draft.AppointmentType)
	p := s.Draft.Patient

	var b strings.Builder
	b.WriteString("Here's what I have:\n")
	fmt.Fprintf(&b, "- %s (%d min", at.Name, at.DurationMinutes)
	if at.PriceCents > 0 {
		fmt.Fprintf(&b, ", %s", formatCents(at.PriceCents))
	}
	b.WriteString(")\n")
	fmt.Fprintf(&b, "- %s\n", renderSlot(*slot))
	fmt.Fprintf(&b, "- %s, %s, %s\n", p.Name, p.Phone, p.Email)
	b.WriteString("Shall I book it?")
	return b.String()
}

func (m *Machine) renderConfirmation(appt *schedule.Appointment) string {
	return fmt.Sprintf("You're all set! %s with %s on %s.\nConfirmation number: %s — keep it for any changes.\nA confirmation email is on its way to %s.",
		appt.AppointmentType, appt.DoctorName,
		appt.Start.Format("Monday, January 2 at 3:04 PM"),
		appt.ConfirmationID, appt.Patient.Email)
}

func (m *Machine) typeList() string {
	names := make([]string, 0, len(m.data.Types))
	for _, t := range m.data.Types {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

func renderSlot(s availability.Slot) string {
	return renderStart(s.Start, s.DoctorName)
}

func renderStart(t time.Time, doctorName string) string {
	return fmt.Sprintf("%s with %s", t.Format("Monday, January 2 at 3:04 PM"), doctorName)
}

func formatCents(cents int) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func humanJoin(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

// clearInvalidFields blanks whichever patient fields a validation error
// names so they are collected again.
func clearInvalidFields(p schedule.PatientInfo, problems []string) schedule.PatientInfo {
	for _, problem := range problems {
		lower := strings.ToLower(problem)
		switch {
		case strings.Contains(lower, "phone"):
			p.Phone = ""
		case strings.Contains(lower, "email"):
			p.Email = ""
		case strings.Contains(lower, "name"):
			p.Name = ""
		case strings.Contains(lower, "birth"):
			p.DateOfBirth = ""
		}
	}
	return p
}
