package handlers

import (
	"encoding/json"
	"net/http"

	"chat-server/internal/models"
	"chat-server/internal/services"
	"chat-server/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type GroupHandlers struct {
	groupService   *services.GroupService
	messageService *services.MessageService
}

func NewGroupHandlers(groupService *services.GroupService, messageService *services.MessageService) *GroupHandlers {
	return &GroupHandlers{
		groupService:   groupService,
		messageService: messageService,
	}
}

func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	group, err := h.groupService.CreateGroup(r.Context(), &req, userIDFrom(r.Context()))
	if err != nil {
		logger.Error("Create group error: %v", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groupService.ListUserGroups(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		logger.Error("List groups error: %v", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req models.AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	groupID := chi.URLParam(r, "id")
	if err := h.groupService.AddMember(r.Context(), groupID, userIDFrom(r.Context()), &req); err != nil {
		logger.Warn("Add member error: %v", err)
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "member added"})
}

func (h *GroupHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	if err := h.groupService.RemoveMember(r.Context(), groupID, userIDFrom(r.Context()), userID); err != nil {
		logger.Warn("Remove member error: %v", err)
		writeFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandlers) GetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.groupService.GetGroupMembers(r.Context(), chi.URLParam(r, "id"), userIDFrom(r.Context()))
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *GroupHandlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	q, err := historyQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.messageService.GroupHistory(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), q)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}
