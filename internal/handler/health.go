package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health always answers 200 so the process can be told apart from its database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	database := "Connected"
	if h.db == nil || h.db.Ping(ctx) != nil {
		database = "Disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"database":  database,
		"message":   "Campus chat server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
