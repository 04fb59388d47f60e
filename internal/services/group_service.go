package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-server/internal/database"
	"chat-server/internal/models"
	"chat-server/pkg/logger"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrGroupMissing = errors.New("group not found")
	ErrUserMissing  = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
)

// RoomEvictor removes a user's live sessions from a room.
type RoomEvictor interface {
	EvictUserFromRoom(userID, roomID string) int
}

type GroupService struct {
	db      database.Database
	evictor RoomEvictor
}

func NewGroupService(db database.Database, evictor RoomEvictor) *GroupService {
	return &GroupService{db: db, evictor: evictor}
}

func (s *GroupService) CreateGroup(ctx context.Context, req *models.CreateGroupRequest, ownerID string) (*models.Group, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 100 {
		return nil, fmt.Errorf("%w: group name must be 1-100 characters", ErrInvalidInput)
	}

	return s.db.CreateGroup(ctx, req, ownerID)
}

func (s *GroupService) ListUserGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	return s.db.ListUserGroups(ctx, userID)
}

// AddMember adds or re-roles a user. Only admins and moderators may do it,
// and only admins may hand out the admin role.
func (s *GroupService) AddMember(ctx context.Context, groupID, actorID string, req *models.AddMemberRequest) error {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return err
	}

	actor, err := s.memberRole(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if !actor.CanModerate() {
		return fmt.Errorf("%w: not authorized to add members", ErrForbidden)
	}
	if req.Role == models.RoleAdmin && actor != models.RoleAdmin {
		return fmt.Errorf("%w: only admins can add admins", ErrForbidden)
	}

	exists, err := s.db.UserExists(ctx, req.UserID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUserMissing
	}

	return s.db.AddMembership(ctx, req.UserID, groupID, req.Role)
}

// RemoveMember removes a member, either by a moderator or by the member
// themselves. Live sessions of the removed user leave the group room.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorID, userID string) error {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return err
	}

	if actorID != userID {
		actor, err := s.memberRole(ctx, groupID, actorID)
		if err != nil {
			return err
		}
		if !actor.CanModerate() {
			return fmt.Errorf("%w: not authorized to remove members", ErrForbidden)
		}
	}

	isMember, err := s.db.IsGroupMember(ctx, userID, groupID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if !isMember {
		return fmt.Errorf("%w: not a member of this group", ErrUserMissing)
	}

	if err := s.db.RemoveMembership(ctx, userID, groupID); err != nil {
		return err
	}

	if s.evictor != nil {
		if n := s.evictor.EvictUserFromRoom(userID, groupID); n > 0 {
			logger.Info("Evicted %d session(s) of user %s from group room %s", n, userID, groupID)
		}
	}
	return nil
}

func (s *GroupService) GetGroupMembers(ctx context.Context, groupID, userID string) ([]*models.Member, error) {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}

	isMember, err := s.db.IsGroupMember(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrForbidden
	}

	return s.db.GetGroupMembers(ctx, groupID)
}

func (s *GroupService) requireGroup(ctx context.Context, groupID string) error {
	exists, err := s.db.GroupExists(ctx, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrGroupMissing
	}
	return nil
}

func (s *GroupService) memberRole(ctx context.Context, groupID, userID string) (models.GroupRole, error) {
	members, err := s.db.GetGroupMembers(ctx, groupID)
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if m.UserID == userID {
			return m.Role, nil
		}
	}
	return "", fmt.Errorf("%w: not a member of this group", ErrForbidden)
}
