package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
)

// Post-send mutations. Each one is persisted first and then broadcast as a
// small delta event so clients patch their local copy.

func (h *Hub) loadMessage(ctx context.Context, messageID string) (*models.Message, error) {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()

	msg, err := h.store.GetMessage(sctx, messageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, NotFound("message %s not found", messageID)
		}
		return nil, PersistenceFailed(err, "message lookup failed")
	}
	return msg, nil
}

func (h *Hub) isMember(ctx context.Context, userID, groupID string) (bool, error) {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	ok, err := h.directory.IsGroupMember(sctx, userID, groupID)
	if err != nil {
		return false, PersistenceFailed(err, "membership lookup failed")
	}
	return ok, nil
}

func (h *Hub) isAdmin(ctx context.Context, userID, groupID string) (bool, error) {
	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	ok, err := h.directory.IsGroupAdmin(sctx, userID, groupID)
	if err != nil {
		return false, PersistenceFailed(err, "membership lookup failed")
	}
	return ok, nil
}

// authorizeAccess allows participants of a direct message and current
// members of a group.
func (h *Hub) authorizeAccess(ctx context.Context, userID string, msg *models.Message) error {
	if !msg.IsGroup() {
		if !msg.Participant(userID) {
			return Unauthorized("not a participant of message %s", msg.ID)
		}
		return nil
	}
	member, err := h.isMember(ctx, userID, msg.GroupID)
	if err != nil {
		return err
	}
	if !member {
		return Unauthorized("not a member of group %s", msg.GroupID)
	}
	return nil
}

// mutationError maps a store failure after the message was already loaded.
func mutationError(err error, messageID string) error {
	if errors.Is(err, database.ErrNotFound) {
		return NotFound("message %s not found", messageID)
	}
	return PersistenceFailed(err, "update could not be saved")
}

// broadcastDelta sends a delta to everyone interested in msg: for direct
// messages every session of both participants plus the conversation room,
// for group messages the group room. The origin session is always included
// as its confirmation.
func (h *Hub) broadcastDelta(origin *Session, msg *models.Message, ev models.Event) int {
	h.mu.Lock()
	var targets []*Session
	if msg.IsGroup() {
		targets = h.subscribersLocked(msg.GroupID)
	} else {
		targets = append(targets, h.userSessionsLocked(msg.SenderID)...)
		targets = append(targets, h.userSessionsLocked(msg.RecipientID)...)
		targets = append(targets, h.subscribersLocked(models.DirectRoomID(msg.SenderID, msg.RecipientID))...)
	}
	h.mu.Unlock()

	targets = append(targets, origin)
	return h.deliver(dedupe(targets, ""), ev)
}

// MarkRead records that the origin's user read a message. Direct messages
// can only be marked read by their recipient; group messages by any member.
func (h *Hub) MarkRead(ctx context.Context, origin *Session, messageID string) error {
	msg, err := h.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.IsGroup() && msg.RecipientID != origin.UserID {
		return Unauthorized("only the recipient can mark message %s read", messageID)
	}
	if err := h.authorizeAccess(ctx, origin.UserID, msg); err != nil {
		return err
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	updated, err := h.store.MarkRead(sctx, messageID, origin.UserID)
	observeStore("mark_read", start)
	if err != nil {
		return mutationError(err, messageID)
	}

	h.broadcastDelta(origin, updated, models.ReadReceipt{MessageID: messageID, ReaderID: origin.UserID})
	return nil
}

// AddReaction adds the origin user's emoji to a message. Adding the same
// reaction twice keeps one.
func (h *Hub) AddReaction(ctx context.Context, origin *Session, messageID, emoji string) error {
	return h.react(ctx, origin, messageID, emoji, true)
}

// RemoveReaction removes the origin user's emoji from a message.
func (h *Hub) RemoveReaction(ctx context.Context, origin *Session, messageID, emoji string) error {
	return h.react(ctx, origin, messageID, emoji, false)
}

func (h *Hub) react(ctx context.Context, origin *Session, messageID, emoji string, add bool) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > 64 {
		return InvalidRequest("emoji must be 1-64 bytes")
	}
	msg, err := h.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return NotFound("message %s not found", messageID)
	}
	if err := h.authorizeAccess(ctx, origin.UserID, msg); err != nil {
		return err
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	var reactions []models.Reaction
	if add {
		reactions, err = h.store.AddReaction(sctx, messageID, origin.UserID, emoji)
		observeStore("add_reaction", start)
	} else {
		reactions, err = h.store.RemoveReaction(sctx, messageID, origin.UserID, emoji)
		observeStore("remove_reaction", start)
	}
	if err != nil {
		return mutationError(err, messageID)
	}
	if reactions == nil {
		reactions = []models.Reaction{}
	}

	h.broadcastDelta(origin, msg, models.ReactionChanged{MessageID: messageID, Reactions: reactions})
	return nil
}

// Edit replaces a message body. Only the original sender may edit, and only
// while the message is younger than the edit window.
func (h *Hub) Edit(ctx context.Context, origin *Session, messageID, newBody string) error {
	if strings.TrimSpace(newBody) == "" {
		return InvalidRequest("body is required")
	}
	if err := checkBody(newBody); err != nil {
		return err
	}

	msg, err := h.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != origin.UserID {
		return Unauthorized("only the sender can edit message %s", messageID)
	}
	if h.now().Sub(msg.CreatedAt) >= h.cfg.EditWindow {
		return Unauthorized("edit window of %s has passed", h.cfg.EditWindow)
	}
	if msg.IsDeleted {
		return NotFound("message %s not found", messageID)
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	updated, err := h.store.EditMessage(sctx, messageID, newBody)
	observeStore("edit_message", start)
	if err != nil {
		return mutationError(err, messageID)
	}

	h.broadcastDelta(origin, updated, models.MessageEdited{MessageID: messageID, NewBody: updated.Body})
	return nil
}

// SoftDelete marks a message deleted. Allowed for the sender and, in a
// group, for admins and moderators.
func (h *Hub) SoftDelete(ctx context.Context, origin *Session, messageID string) error {
	msg, err := h.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != origin.UserID {
		if !msg.IsGroup() {
			return Unauthorized("only the sender can delete message %s", messageID)
		}
		admin, err := h.isAdmin(ctx, origin.UserID, msg.GroupID)
		if err != nil {
			return err
		}
		if !admin {
			return Unauthorized("only the sender or a group admin can delete message %s", messageID)
		}
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	updated, err := h.store.SoftDelete(sctx, messageID)
	observeStore("soft_delete", start)
	if err != nil {
		return mutationError(err, messageID)
	}

	h.broadcastDelta(origin, updated, models.MessageDeleted{MessageID: messageID})
	return nil
}

// SetPinned pins or unpins a message. Either participant may pin a direct
// message; group messages need an admin or moderator.
func (h *Hub) SetPinned(ctx context.Context, origin *Session, messageID string, pinned bool) error {
	msg, err := h.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return NotFound("message %s not found", messageID)
	}
	if msg.IsGroup() {
		admin, err := h.isAdmin(ctx, origin.UserID, msg.GroupID)
		if err != nil {
			return err
		}
		if !admin {
			return Unauthorized("only group admins can pin messages")
		}
	} else if !msg.Participant(origin.UserID) {
		return Unauthorized("not a participant of message %s", messageID)
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	start := time.Now()
	updated, err := h.store.SetPinned(sctx, messageID, pinned)
	observeStore("set_pinned", start)
	if err != nil {
		return mutationError(err, messageID)
	}

	h.broadcastDelta(origin, updated, models.MessagePinned{MessageID: messageID, IsPinned: updated.IsPinned})
	return nil
}
