package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tenant-hub/internal/identity"
	"tenant-hub/internal/poll"

	"github.com/gorilla/mux"
)

// maxEventBytes bounds one inbound long-poll event body.
const maxEventBytes = 64 * 1024

type PollHandlers struct {
	manager *poll.Manager
}

func NewPollHandlers(manager *poll.Manager) *PollHandlers {
	return &PollHandlers{manager: manager}
}

// OpenSession handles POST /poll: it creates a long-poll connection and
// returns its identifier.
func (h *PollHandlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	claims, claimsErr := identity.FromRequest(r)
	session := h.manager.Open(r.RemoteAddr, r.UserAgent(), claims, claimsErr)

	writeJSON(w, http.StatusCreated, map[string]string{
		"connectionId": session.ID(),
	})
}

// EmitEvent handles POST /poll/{id}/events: one inbound protocol event.
// A malformed event is accepted at the HTTP layer and dropped by the
// protocol handler, matching the socket transport's silent-drop behavior.
func (h *PollHandlers) EmitEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if err := h.manager.Emit(sessionID, body); err != nil {
		if errors.Is(err, poll.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "emit failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// FetchEvents handles GET /poll/{id}/events: it returns queued outbound
// events, holding the request open briefly when the queue is empty.
func (h *PollHandlers) FetchEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	events, err := h.manager.Events(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	// Events are already JSON-encoded envelopes; emit them as a raw array.
	raw := make([]json.RawMessage, len(events))
	for i, e := range events {
		raw[i] = e
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": raw,
	})
}

// CloseSession handles DELETE /poll/{id}: an explicit client disconnect.
func (h *PollHandlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := h.manager.Close(sessionID, "client disconnect"); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
