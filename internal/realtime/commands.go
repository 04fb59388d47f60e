package realtime

import (
	"context"

	"chat-server/internal/metrics"
	"chat-server/internal/models"
)

// HandleFrame decodes one inbound frame and runs it. Failures are reported
// to the originating session only and never fan out.
func (h *Hub) HandleFrame(ctx context.Context, s *Session, data []byte) error {
	cmd, typ, err := models.DecodeCommand(data)
	if err != nil {
		err = InvalidRequest("%v", err)
	} else {
		err = h.Handle(ctx, s, cmd)
	}
	if err != nil {
		h.reportError(s, typ, err)
	}
	return err
}

// Handle runs one decoded command on behalf of a session.
func (h *Hub) Handle(ctx context.Context, s *Session, cmd models.Command) error {
	switch c := cmd.(type) {
	case *models.JoinRoom:
		roomID := models.CanonicalRoomID(c.RoomID)
		if err := h.Join(ctx, s, roomID); err != nil {
			return err
		}
		h.deliverTo(s, models.RoomJoined{RoomID: roomID})

	case *models.LeaveRoom:
		roomID := models.CanonicalRoomID(c.RoomID)
		h.Leave(s, roomID)
		h.deliverTo(s, models.RoomLeft{RoomID: roomID})

	case *models.SendDirect:
		if c.RecipientID == "" {
			return InvalidRequest("recipientId is required")
		}
		_, err := h.Send(ctx, s, c.SendRequest)
		return err

	case *models.SendGroup:
		if c.GroupID == "" {
			return InvalidRequest("groupId is required")
		}
		_, err := h.Send(ctx, s, c.SendRequest)
		return err

	case *models.MarkRead:
		return h.MarkRead(ctx, s, c.MessageID)

	case *models.React:
		return h.AddReaction(ctx, s, c.MessageID, c.Emoji)

	case *models.Unreact:
		return h.RemoveReaction(ctx, s, c.MessageID, c.Emoji)

	case *models.Edit:
		return h.Edit(ctx, s, c.MessageID, c.Body)

	case *models.Delete:
		return h.SoftDelete(ctx, s, c.MessageID)

	case *models.Pin:
		return h.SetPinned(ctx, s, c.MessageID, c.Pinned)

	case *models.Typing:
		roomID := models.CanonicalRoomID(c.RoomID)
		if !h.InRoom(s.ID, roomID) {
			return Unauthorized("join %s before sending typing updates", roomID)
		}
		h.Fanout(roomID, models.TypingChanged{RoomID: roomID, UserID: s.UserID, IsTyping: c.IsTyping}, s.ID)

	case *models.ActivityPing:
		h.RecordActivity(s.UserID)

	default:
		return InvalidRequest("unsupported command %s", cmd.CommandType())
	}
	return nil
}

func (h *Hub) reportError(s *Session, ref models.CommandType, err error) {
	code := CodeOf(err)
	metrics.CommandErrors.WithLabelValues(string(code)).Inc()
	h.log.Debug().Err(err).Str("session", s.ID).Str("command", string(ref)).Msg("command rejected")

	h.deliverTo(s, models.ErrorEvent{Code: string(code), Detail: DetailOf(err), Ref: ref})
}
