// Package webchat serves the embeddable chat widget over a websocket,
// bridging socket frames to the assistant service.
package webchat

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

// InboundFrame is what the widget sends.
type InboundFrame struct {
	Type      string `json:"type"` // "message" or "ping"
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// OutboundFrame is what the widget receives.
type OutboundFrame struct {
	Type      string `json:"type"` // "message", "typing", "session", "pong", "error"
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Handler upgrades widget connections and relays messages.
type Handler struct {
	svc      *assistant.Service
	logger   *logging.Logger
	widgetJS []byte
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket handler. Panics on a nil service.
func NewHandler(svc *assistant.Service, widgetJS []byte, logger *logging.Logger) *Handler {
	if svc == nil {
		panic("webchat: nil assistant service")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		svc:      svc,
		logger:   logger,
		widgetJS: widgetJS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The widget is embedded on clinic sites; origin policy is
			// enforced by the CORS allowlist on the HTTP routes instead.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades to a websocket and relays frames until the peer
// disconnects. One goroutine per connection; the assistant serializes
// concurrent turns per session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("webchat upgrade failed", "error", err, "remote_ip", r.RemoteAddr)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session")
	h.logger.Info("webchat connection opened", "session_id", sessionID)

	for {
		var frame InboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("webchat connection closed", "error", err)
			}
			return
		}

		switch frame.Type {
		case "ping":
			if err := conn.WriteJSON(OutboundFrame{Type: "pong"}); err != nil {
				return
			}

		case "message":
			if strings.TrimSpace(frame.Text) == "" {
				continue
			}
			if frame.SessionID != "" {
				sessionID = frame.SessionID
			}
			_ = conn.WriteJSON(OutboundFrame{Type: "typing"})

			reply := h.svc.HandleMessage(r.Context(), sessionID, frame.Text)
			sessionID = reply.SessionID
			if err := conn.WriteJSON(OutboundFrame{
				Type:      "message",
				Text:      reply.Text,
				SessionID: reply.SessionID,
				State:     string(reply.Snapshot.State),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}

		default:
			_ = conn.WriteJSON(OutboundFrame{Type: "error", Text: "unsupported frame type"})
		}
	}
}

// HandleWidgetJS serves the embeddable widget script.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(h.widgetJS)
}
