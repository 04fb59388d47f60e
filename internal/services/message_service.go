package services

import (
	"context"
	"fmt"

	"chat-server/internal/database"
	"chat-server/internal/models"
)

// MessageService serves persisted history. The store is the source of truth
// for anything a user missed while offline.
type MessageService struct {
	db database.Database
}

func NewMessageService(db database.Database) *MessageService {
	return &MessageService{db: db}
}

func (s *MessageService) Conversation(ctx context.Context, userID, peerID string, q models.HistoryQuery) ([]*models.Message, error) {
	exists, err := s.db.UserExists(ctx, peerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserMissing
	}
	return s.db.FindConversation(ctx, userID, peerID, q)
}

func (s *MessageService) GroupHistory(ctx context.Context, userID, groupID string, q models.HistoryQuery) ([]*models.Message, error) {
	exists, err := s.db.GroupExists(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrGroupMissing
	}

	isMember, err := s.db.IsGroupMember(ctx, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !isMember {
		return nil, ErrForbidden
	}
	return s.db.FindGroupHistory(ctx, groupID, q)
}
