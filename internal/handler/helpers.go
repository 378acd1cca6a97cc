package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campuschat/internal/chat"
	"github.com/campuschat/internal/logger"
)

// envelope is the body of every Query Service answer: {"success": ..., <payload fields>}.
type envelope map[string]any

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeOK(w http.ResponseWriter, body envelope) {
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}

// writeServiceError maps the chat error kinds onto HTTP statuses. Storage failures are
// answered with fallback only.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrConflict):
		status = http.StatusConflict
	}
	writeError(w, status, chat.PublicMessage(err, fallback))
}
