package realtime

import (
	"chat-server/internal/metrics"
	"chat-server/internal/models"
)

// Register adds a session for an authenticated user. The new session is
// sent the online-users snapshot first; if the user had no other session,
// every other connected session is told the user came online.
//
// Presence events are enqueued while mu is held so that transitions for the
// same user reach observers in the order they happened. Enqueueing never
// blocks.
func (h *Hub) Register(userID string) *Session {
	now := h.now()
	s := newSession(userID, now, h.cfg.SendBuffer)

	h.mu.Lock()
	h.sessions[s.ID] = s
	owned := h.byUser[userID]
	if owned == nil {
		owned = make(map[string]*Session)
		h.byUser[userID] = owned
	}
	owned[s.ID] = s

	var (
		slow       []*Session
		rec        models.PresenceRecord
		cameOnline = len(owned) == 1
	)
	if cameOnline {
		rec = h.markOnlineLocked(userID, now)
	}

	// s is brand new, so the snapshot is first in its queue.
	s.enqueue(models.OnlineUsersSnapshot{Users: h.onlineLocked()})
	if cameOnline {
		slow = enqueueLocked(h.allSessionsLocked(s.ID), models.PresenceChanged{
			UserID:   rec.UserID,
			IsOnline: true,
			LastSeen: rec.LastSeen,
		}, slow)
	}
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Info().Str("user", userID).Str("session", s.ID).Bool("first", cameOnline).Msg("session registered")
	if cameOnline {
		metrics.PresenceTransitions.WithLabelValues("online").Inc()
		h.persistPresence(rec)
	}
	h.evict(slow)
	return s
}

// Deregister removes a session, its room subscriptions, and, if it was the
// user's last session, flips the user offline with lastSeen set to now.
// Deregistering an unknown or already removed session is a no-op.
func (h *Hub) Deregister(sessionID string) {
	now := h.now()

	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)

	wentOffline := false
	if owned := h.byUser[s.UserID]; owned != nil {
		delete(owned, sessionID)
		if len(owned) == 0 {
			delete(h.byUser, s.UserID)
			wentOffline = true
		}
	}

	for roomID := range h.sessionRooms[sessionID] {
		h.removeSubscriberLocked(roomID, sessionID)
	}
	delete(h.sessionRooms, sessionID)

	// Closing under mu guarantees no later fan-out snapshot includes s.
	s.close()

	var (
		slow []*Session
		rec  models.PresenceRecord
	)
	if wentOffline {
		rec = h.markOfflineLocked(s.UserID, now)
		slow = enqueueLocked(h.allSessionsLocked(""), models.PresenceChanged{
			UserID:   rec.UserID,
			IsOnline: false,
			LastSeen: rec.LastSeen,
		}, slow)
	}
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.log.Info().Str("user", s.UserID).Str("session", sessionID).Bool("last", wentOffline).Msg("session deregistered")
	if wentOffline {
		metrics.PresenceTransitions.WithLabelValues("offline").Inc()
		h.persistPresence(rec)
	}
	h.evict(slow)
}

// Session looks up a live session.
func (h *Hub) Session(sessionID string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	return s, ok
}

// SessionsOf returns a snapshot of a user's live sessions.
func (h *Hub) SessionsOf(userID string) []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userSessionsLocked(userID)
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) userSessionsLocked(userID string) []*Session {
	owned := h.byUser[userID]
	out := make([]*Session, 0, len(owned))
	for _, s := range owned {
		out = append(out, s)
	}
	return out
}

func (h *Hub) allSessionsLocked(excludeID string) []*Session {
	out := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id != excludeID {
			out = append(out, s)
		}
	}
	return out
}

func (h *Hub) updateGaugesLocked() {
	metrics.ActiveSessions.Set(float64(len(h.sessions)))
	metrics.OnlineUsers.Set(float64(len(h.byUser)))
}
