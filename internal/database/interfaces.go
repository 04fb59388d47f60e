package database

import (
	"context"
	"errors"

	"chat-server/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UserExists(ctx context.Context, id string) (bool, error)
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, req *models.CreateGroupRequest, ownerID string) (*models.Group, error)
	GetGroupByID(ctx context.Context, id string) (*models.Group, error)
	GroupExists(ctx context.Context, id string) (bool, error)
	ListUserGroups(ctx context.Context, userID string) ([]*models.Group, error)
}

// MessageRepository is the durable message store. Every create yields a new
// record; mutations are in place and deletes are soft.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	FindConversation(ctx context.Context, userA, userB string, q models.HistoryQuery) ([]*models.Message, error)
	FindGroupHistory(ctx context.Context, groupID string, q models.HistoryQuery) ([]*models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, body string) (*models.Message, error)
	SoftDelete(ctx context.Context, messageID string) (*models.Message, error)
	SetPinned(ctx context.Context, messageID string, pinned bool) (*models.Message, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
}

type MembershipRepository interface {
	AddMembership(ctx context.Context, userID, groupID string, role models.GroupRole) error
	RemoveMembership(ctx context.Context, userID, groupID string) error
	IsGroupMember(ctx context.Context, userID, groupID string) (bool, error)
	IsGroupAdmin(ctx context.Context, userID, groupID string) (bool, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]*models.Member, error)
}

type Database interface {
	UserRepository
	GroupRepository
	MessageRepository
	MembershipRepository
	Close() error
}

func normalizeRole(role models.GroupRole) models.GroupRole {
	switch role {
	case models.RoleAdmin, models.RoleModerator:
		return role
	}
	return models.RoleMember
}

var (
	_ Database = (*PostgresDB)(nil)
	_ Database = (*MemoryDB)(nil)
)
