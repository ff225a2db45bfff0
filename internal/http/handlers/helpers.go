// Package handlers exposes the scheduling assistant over HTTP: the chat
// endpoint the web widget talks to, plus direct booking and FAQ APIs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
)

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeEngineError maps availability engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:    "invalid request",
			Problems: verr.Problems,
		})
	case errors.Is(err, availability.ErrUnknownAppointmentType),
		errors.Is(err, availability.ErrUnknownDoctor):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, availability.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, availability.ErrSlotNoLongerAvailable):
		writeError(w, http.StatusConflict, "slot no longer available")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
