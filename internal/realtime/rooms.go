package realtime

import (
	"context"
	"time"

	"chat-server/internal/models"
)

// Join subscribes a session to a room. Direct rooms admit only their two
// participants; group rooms admit current group members. Joining a room the
// session is already in is a no-op.
func (h *Hub) Join(ctx context.Context, s *Session, roomID string) error {
	ref, err := models.ParseRoomID(roomID)
	if err != nil {
		return InvalidRequest("%v", err)
	}
	if err := h.authorizeJoin(ctx, s.UserID, ref); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// The session may have disconnected while the directory was consulted.
	if _, ok := h.sessions[s.ID]; !ok {
		return NotFound("session %s is not connected", s.ID)
	}

	r, ok := h.rooms[ref.ID]
	if !ok {
		r = &room{ref: ref, subscribers: make(map[string]*Session)}
		h.rooms[ref.ID] = r
	}
	r.subscribers[s.ID] = s

	joined := h.sessionRooms[s.ID]
	if joined == nil {
		joined = make(map[string]struct{})
		h.sessionRooms[s.ID] = joined
	}
	joined[ref.ID] = struct{}{}
	return nil
}

func (h *Hub) authorizeJoin(ctx context.Context, userID string, ref models.RoomRef) error {
	if ref.Kind == models.RoomDirect {
		if !ref.Includes(userID) {
			return Unauthorized("not a participant of %s", ref.ID)
		}
		return nil
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	defer observeStore("is_group_member", time.Now())

	exists, err := h.directory.GroupExists(sctx, ref.GroupID)
	if err != nil {
		return PersistenceFailed(err, "group lookup failed")
	}
	if !exists {
		return NotFound("group %s not found", ref.GroupID)
	}
	member, err := h.directory.IsGroupMember(sctx, userID, ref.GroupID)
	if err != nil {
		return PersistenceFailed(err, "membership lookup failed")
	}
	if !member {
		return Unauthorized("not a member of group %s", ref.GroupID)
	}
	return nil
}

// Leave unsubscribes a session from a room. Leaving a room that was never
// joined, or that does not exist, is a no-op.
func (h *Hub) Leave(s *Session, roomID string) {
	roomID = models.CanonicalRoomID(roomID)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeSubscriberLocked(roomID, s.ID)
	if joined := h.sessionRooms[s.ID]; joined != nil {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(h.sessionRooms, s.ID)
		}
	}
}

// removeSubscriberLocked drops a subscriber and garbage-collects the room
// once it is empty.
func (h *Hub) removeSubscriberLocked(roomID, sessionID string) {
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(r.subscribers, sessionID)
	if len(r.subscribers) == 0 {
		delete(h.rooms, roomID)
	}
}

// EvictUserFromRoom unsubscribes every session of a user from a room, for
// example after removal from a group.
func (h *Hub) EvictUserFromRoom(userID, roomID string) int {
	roomID = models.CanonicalRoomID(roomID)
	h.mu.Lock()
	defer h.mu.Unlock()

	var n int
	for _, s := range h.byUser[userID] {
		if joined := h.sessionRooms[s.ID]; joined != nil {
			if _, ok := joined[roomID]; ok {
				delete(joined, roomID)
				h.removeSubscriberLocked(roomID, s.ID)
				n++
			}
		}
	}
	return n
}

// Fanout delivers ev to every subscriber of a room except excludeSessionID.
// Subscribers are snapshotted under mu and delivered to outside it.
func (h *Hub) Fanout(roomID string, ev models.Event, excludeSessionID string) int {
	h.mu.Lock()
	targets := h.subscribersLocked(models.CanonicalRoomID(roomID))
	h.mu.Unlock()

	return h.deliver(dedupe(targets, excludeSessionID), ev)
}

// Subscribers returns a snapshot of a room's subscriber sessions.
func (h *Hub) Subscribers(roomID string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribersLocked(models.CanonicalRoomID(roomID))
}

// InRoom reports whether a session is subscribed to a room.
func (h *Hub) InRoom(sessionID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessionRooms[sessionID][models.CanonicalRoomID(roomID)]
	return ok
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) subscribersLocked(roomID string) []*Session {
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		out = append(out, s)
	}
	return out
}
