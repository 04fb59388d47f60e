package realtime

import (
	"context"
	"errors"
	"sort"
	"time"

	"chat-server/internal/database"
	"chat-server/internal/models"
)

var _ PresenceStore = (*database.RedisPresenceStore)(nil)

func (h *Hub) recordLocked(userID string) *models.PresenceRecord {
	rec, ok := h.presence[userID]
	if !ok {
		rec = &models.PresenceRecord{UserID: userID}
		h.presence[userID] = rec
	}
	return rec
}

func (h *Hub) markOnlineLocked(userID string, now time.Time) models.PresenceRecord {
	rec := h.recordLocked(userID)
	rec.IsOnline = true
	rec.LastSeen = now
	rec.LastActivity = now
	return *rec
}

func (h *Hub) markOfflineLocked(userID string, lastSeen time.Time) models.PresenceRecord {
	rec := h.recordLocked(userID)
	rec.IsOnline = false
	rec.LastSeen = lastSeen
	return *rec
}

func (h *Hub) onlineLocked() []models.PresenceRecord {
	out := make([]models.PresenceRecord, 0, len(h.byUser))
	for userID := range h.byUser {
		if rec, ok := h.presence[userID]; ok {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// RecordActivity notes a liveness ping from an online user. Pings closer
// together than the activity interval are ignored; it reports whether the
// ping was recorded.
func (h *Hub) RecordActivity(userID string) bool {
	now := h.now()

	h.mu.Lock()
	rec, ok := h.presence[userID]
	if !ok || !rec.IsOnline {
		h.mu.Unlock()
		return false
	}
	if !rec.LastActivity.IsZero() && now.Sub(rec.LastActivity) < h.cfg.ActivityInterval {
		h.mu.Unlock()
		return false
	}
	rec.LastActivity = now
	rec.LastSeen = now
	snapshot := *rec
	h.mu.Unlock()

	h.persistPresence(snapshot)
	return true
}

// OnlineUsers returns the presence of every online user, sorted by id.
func (h *Hub) OnlineUsers() []models.PresenceRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onlineLocked()
}

// IsOnline reports whether the user holds at least one session.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byUser[userID]) > 0
}

// Presence returns the last known state of a user. Users not seen by this
// process fall back to the presence store.
func (h *Hub) Presence(ctx context.Context, userID string) (models.PresenceRecord, bool, error) {
	h.mu.Lock()
	rec, ok := h.presence[userID]
	var snapshot models.PresenceRecord
	if ok {
		snapshot = *rec
	}
	h.mu.Unlock()

	if ok {
		return snapshot, true, nil
	}
	if h.presenceStore == nil {
		return models.PresenceRecord{}, false, nil
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	stored, err := h.presenceStore.GetPresence(sctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.PresenceRecord{}, false, nil
		}
		return models.PresenceRecord{}, false, err
	}
	if stored == nil {
		return models.PresenceRecord{}, false, nil
	}
	// A stored record can only claim online for sessions held by this process.
	stored.IsOnline = false
	return *stored, true, nil
}

func (h *Hub) persistPresence(rec models.PresenceRecord) {
	if h.presenceStore == nil {
		return
	}
	ctx, cancel := h.storeCtx(context.Background())
	defer cancel()
	if err := h.presenceStore.SavePresence(ctx, rec); err != nil {
		h.log.Error().Err(err).Str("user", rec.UserID).Msg("failed to persist presence")
	}
}
