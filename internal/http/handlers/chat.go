package handlers

import (
	"net/http"
	"strings"

	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// ChatHandler serves the conversational endpoints.
type ChatHandler struct {
	svc    *assistant.Service
	logger *logging.Logger
}

// NewChatHandler creates the handler. Panics on a nil service.
func NewChatHandler(svc *assistant.Service, logger *logging.Logger) *ChatHandler {
	if svc == nil {
		panic("handlers: nil assistant service")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{svc: svc, logger: logger}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID     string   `json:"session_id"`
	Reply         string   `json:"reply"`
	State         string   `json:"state"`
	Intent        string   `json:"intent"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// HandleMessage is POST /api/chat: one patient message in, one reply out.
// Omitting session_id starts a new conversation; the reply carries the
// assigned id for subsequent turns.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply := h.svc.HandleMessage(r.Context(), req.SessionID, req.Message)
	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:     reply.SessionID,
		Reply:         reply.Text,
		State:         string(reply.Snapshot.State),
		Intent:        string(reply.Snapshot.Intent),
		MissingFields: reply.Snapshot.MissingFields,
	})
}

type faqRequest struct {
	Question string `json:"question"`
}

// HandleFAQ is POST /api/faq: a standalone knowledge-base lookup without a
// conversation. Unanswerable questions return found=false, not an error.
func (h *ChatHandler) HandleFAQ(w http.ResponseWriter, r *http.Request) {
	var req faqRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.FAQ(r.Context(), req.Question))
}
