package models

import "time"

// GroupRole is a member's standing inside a group. Admins and moderators may
// soft-delete other members' messages and pin group messages.
type GroupRole string

const (
	RoleMember    GroupRole = "member"
	RoleModerator GroupRole = "moderator"
	RoleAdmin     GroupRole = "admin"
)

// CanModerate reports whether the role carries moderation rights.
func (r GroupRole) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     GroupRole `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`
}

type AddMemberRequest struct {
	UserID string    `json:"user_id"`
	Role   GroupRole `json:"role,omitempty"`
}
