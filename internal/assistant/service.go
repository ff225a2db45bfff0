// Package assistant is the application facade: one service that the HTTP
// and websocket layers talk to, wrapping the dialogue machine, the session
// registry, the availability engine, and the knowledge base.
package assistant

import (
	"context"
	"time"

	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/internal/session"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// Reply is the outcome of one conversational turn.
type Reply struct {
	SessionID string
	Text      string
	Snapshot  dialogue.Snapshot
}

// Service routes conversational and direct API traffic to the underlying
// components. All required collaborators are checked at construction.
type Service struct {
	logger   *logging.Logger
	machine  *dialogue.Machine
	registry *session.Registry
	engine   *availability.Engine
	kb       *knowledge.Base
}

// NewService wires the facade. Panics on nil collaborators so that broken
// wiring fails at startup, not on first request.
func NewService(
	logger *logging.Logger,
	machine *dialogue.Machine,
	registry *session.Registry,
	engine *availability.Engine,
	kb *knowledge.Base,
) *Service {
	if machine == nil {
		panic("assistant: nil dialogue machine")
	}
	if registry == nil {
		panic("assistant: nil session registry")
	}
	if engine == nil {
		panic("assistant: nil availability engine")
	}
	if kb == nil {
		panic("assistant: nil knowledge base")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		logger:   logger,
		machine:  machine,
		registry: registry,
		engine:   engine,
		kb:       kb,
	}
}

// HandleMessage processes one patient message. A blank session id creates a
// new session; the assigned id comes back in the reply. Turns for the same
// session are serialized by the registry.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) Reply {
	var reply Reply
	s.registry.WithSession(sessionID, func(sess *dialogue.Session) {
		out, snap := s.machine.HandleTurn(ctx, sess, text)
		reply = Reply{SessionID: sess.ID, Text: out, Snapshot: snap}
	})
	s.logger.Debug("turn handled",
		"session_id", reply.SessionID,
		"state", string(reply.Snapshot.State),
		"intent", string(reply.Snapshot.Intent),
	)
	return reply
}

// Availability lists open slots for the query.
func (s *Service) Availability(ctx context.Context, q availability.Query) ([]availability.Slot, error) {
	return s.engine.ComputeAvailability(ctx, q)
}

// NextAvailable finds the earliest open slot after the given time.
func (s *Service) NextAvailable(ctx context.Context, appointmentType, doctorID string, after time.Time) (availability.Slot, bool, error) {
	return s.engine.NextAvailable(ctx, appointmentType, doctorID, after)
}

// Book creates an appointment directly, bypassing the dialogue flow.
func (s *Service) Book(ctx context.Context, req availability.BookRequest) (*schedule.Appointment, error) {
	return s.engine.Book(ctx, req)
}

// Reschedule moves an appointment to a new slot, keeping its confirmation id.
func (s *Service) Reschedule(ctx context.Context, confirmationID, newDoctorID string, newStart time.Time) (*schedule.Appointment, error) {
	return s.engine.Reschedule(ctx, confirmationID, newDoctorID, newStart)
}

// Cancel cancels an appointment and reports any fee owed.
func (s *Service) Cancel(ctx context.Context, confirmationID, reason string) (*availability.CancellationResult, error) {
	return s.engine.Cancel(ctx, confirmationID, reason)
}

// Appointment looks up an appointment in any status.
func (s *Service) Appointment(ctx context.Context, confirmationID string) (*schedule.Appointment, error) {
	return s.engine.Get(ctx, confirmationID)
}

// FAQ answers a standalone question from the knowledge base.
func (s *Service) FAQ(ctx context.Context, question string) knowledge.Answer {
	return s.kb.Query(ctx, question)
}
