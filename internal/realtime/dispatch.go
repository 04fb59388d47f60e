package realtime

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"chat-server/internal/metrics"
	"chat-server/internal/models"
)

// MaxBodyLength bounds a message body in bytes.
const MaxBodyLength = 8192

// validateSend checks addressing and content. An empty kind means text.
func validateSend(req *models.SendRequest) error {
	hasRecipient := req.RecipientID != ""
	hasGroup := req.GroupID != ""
	if hasRecipient == hasGroup {
		return InvalidRequest("exactly one of recipientId and groupId is required")
	}

	if req.Kind == "" {
		req.Kind = models.KindText
	}
	switch req.Kind {
	case models.KindText:
		if strings.TrimSpace(req.Body) == "" {
			return InvalidRequest("body is required for text messages")
		}
	case models.KindMedia:
		if strings.TrimSpace(req.Body) == "" && req.AttachmentRef == "" {
			return InvalidRequest("media messages need a body or an attachmentRef")
		}
	case models.KindSystem:
		return InvalidRequest("system messages cannot be sent by clients")
	default:
		return InvalidRequest("unknown message kind %q", req.Kind)
	}

	return checkBody(req.Body)
}

// checkBody applies the size and encoding limits shared by sends and edits.
func checkBody(body string) error {
	if len(body) > MaxBodyLength {
		return InvalidRequest("body too long (max %d bytes)", MaxBodyLength)
	}
	if !utf8.ValidString(body) {
		return InvalidRequest("body is not valid UTF-8")
	}
	return nil
}

// Send validates, authorizes and persists a message, then fans it out:
//
//  1. the originating session gets delivered{message};
//  2. direct: every session of the recipient gets receive{message};
//  3. the conversation or group room gets the same event for every other
//     subscriber, never the originating session.
//
// Each session receives a given message at most once. Nothing is fanned out
// unless the store write succeeded.
func (h *Hub) Send(ctx context.Context, origin *Session, req models.SendRequest) (*models.Message, error) {
	if err := validateSend(&req); err != nil {
		return nil, err
	}
	if err := h.authorizeSend(ctx, origin.UserID, req); err != nil {
		return nil, err
	}

	sctx, cancel := h.storeCtx(ctx)
	start := time.Now()
	saved, err := h.store.CreateMessage(sctx, &models.Message{
		SenderID:      origin.UserID,
		RecipientID:   req.RecipientID,
		GroupID:       req.GroupID,
		Kind:          req.Kind,
		Body:          req.Body,
		AttachmentRef: req.AttachmentRef,
	})
	observeStore("create_message", start)
	cancel()
	if err != nil {
		h.log.Error().Err(err).Str("user", origin.UserID).Msg("failed to persist message")
		return nil, PersistenceFailed(err, "message could not be saved")
	}

	h.deliverTo(origin, models.Delivered{Message: saved})

	if saved.IsGroup() {
		metrics.MessagesDispatched.WithLabelValues("group").Inc()
		h.Fanout(saved.GroupID, models.GroupReceive{GroupID: saved.GroupID, Message: saved}, origin.ID)
		return saved, nil
	}

	metrics.MessagesDispatched.WithLabelValues("direct").Inc()
	roomID := models.DirectRoomID(saved.SenderID, saved.RecipientID)

	h.mu.Lock()
	targets := append(h.userSessionsLocked(saved.RecipientID), h.subscribersLocked(roomID)...)
	h.mu.Unlock()

	h.deliver(dedupe(targets, origin.ID), models.Receive{Message: saved})
	return saved, nil
}

// authorizeSend checks the addressee exists and, for groups, that the
// sender is a member right now. Membership is looked up on every send.
func (h *Hub) authorizeSend(ctx context.Context, senderID string, req models.SendRequest) error {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()

	if req.RecipientID != "" {
		exists, err := h.directory.UserExists(sctx, req.RecipientID)
		if err != nil {
			return PersistenceFailed(err, "recipient lookup failed")
		}
		if !exists {
			return NotFound("recipient %s not found", req.RecipientID)
		}
		return nil
	}

	exists, err := h.directory.GroupExists(sctx, req.GroupID)
	if err != nil {
		return PersistenceFailed(err, "group lookup failed")
	}
	if !exists {
		return NotFound("group %s not found", req.GroupID)
	}
	member, err := h.directory.IsGroupMember(sctx, senderID, req.GroupID)
	if err != nil {
		return PersistenceFailed(err, "membership lookup failed")
	}
	if !member {
		return Unauthorized("not a member of group %s", req.GroupID)
	}
	return nil
}
