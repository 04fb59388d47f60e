package handlers

import (
	"net/http"

	"chat-server/internal/realtime"

	"github.com/go-chi/chi/v5"
)

type PresenceHandlers struct {
	hub *realtime.Hub
}

func NewPresenceHandlers(hub *realtime.Hub) *PresenceHandlers {
	return &PresenceHandlers{hub: hub}
}

func (h *PresenceHandlers) Online(w http.ResponseWriter, r *http.Request) {
	online := h.hub.OnlineUsers()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": online,
		"count": len(online),
	})
}

func (h *PresenceHandlers) UserPresence(w http.ResponseWriter, r *http.Request) {
	rec, found, err := h.hub.Presence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, realtime.PersistenceFailed(err, "presence lookup failed"))
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no presence recorded")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
