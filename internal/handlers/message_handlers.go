package handlers

import (
	"net/http"

	"chat-server/internal/services"

	"github.com/go-chi/chi/v5"
)

type MessageHandlers struct {
	messageService *services.MessageService
}

func NewMessageHandlers(messageService *services.MessageService) *MessageHandlers {
	return &MessageHandlers{messageService: messageService}
}

// Conversation returns the direct history between the caller and {userId},
// oldest first.
func (h *MessageHandlers) Conversation(w http.ResponseWriter, r *http.Request) {
	q, err := historyQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.messageService.Conversation(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "userId"), q)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
