// Package api serves the local status endpoints of a running jobwatch
// process: the current session, webhook delivery stats and probes.
package api

import (
	"encoding/json"
	"jobtracker/internal/dispatcher"
	"jobtracker/internal/notify"
	"jobtracker/internal/tracker"
	"log/slog"
	"net/http"
)

// SessionSource exposes the session being watched.
// *tracker.Tracker satisfies it.
type SessionSource interface {
	Snapshot() tracker.Snapshot
	LastRefreshedText() string
}

// Handler contains the HTTP handlers of the status API.
type Handler struct {
	session    SessionSource
	dispatcher dispatcher.Dispatcher
}

// NewHandler creates a handler. d may be nil when webhooks are disabled.
func NewHandler(session SessionSource, d dispatcher.Dispatcher) *Handler {
	return &Handler{
		session:    session,
		dispatcher: d,
	}
}

// GetSession handles GET /v1/session. It answers 404 until the tracker
// has a job handle.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeError(w, http.StatusNotFound, "No session")
		return
	}

	snap := h.session.Snapshot()
	if snap.Handle == "" {
		writeError(w, http.StatusNotFound, "No session")
		return
	}
	data := notify.SnapshotData(snap)
	data["severity"] = string(tracker.SeverityOf(snap.View))
	if text := h.session.LastRefreshedText(); text != "" {
		data["lastRefreshedText"] = text
	}

	writeJSON(w, http.StatusOK, data)
}

// GetWebhookStats handles GET /v1/webhooks
func (h *Handler) GetWebhookStats(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		writeError(w, http.StatusNotFound, "Webhooks are not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Stats())
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
