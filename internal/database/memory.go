package database

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-server/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// MemoryDB is a process-local Database used for development and tests.
// Messages keep insertion order, which is the store write order.
type MemoryDB struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	byEmail  map[string]string
	groups   map[string]*models.Group
	members  map[string]map[string]*models.Member // groupID -> userID -> member
	messages map[string]*models.Message
	order    []string
	now      func() time.Time
	failNext error
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:    make(map[string]*models.User),
		byEmail:  make(map[string]string),
		groups:   make(map[string]*models.Group),
		members:  make(map[string]map[string]*models.Member),
		messages: make(map[string]*models.Message),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source for created rows.
func (db *MemoryDB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

// FailNextWrite makes the next message write return err. Used to exercise
// persistence failure paths.
func (db *MemoryDB) FailNextWrite(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failNext = err
}

// MessageCount returns the number of persisted messages.
func (db *MemoryDB) MessageCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.order)
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) takeFailure() error {
	err := db.failNext
	db.failNext = nil
	return err
}

func copyMessage(m *models.Message) *models.Message {
	out := *m
	out.ReadBy = slices.Clone(m.ReadBy)
	out.Reactions = slices.Clone(m.Reactions)
	if out.Reactions == nil {
		out.Reactions = []models.Reaction{}
	}
	redactDeleted(&out)
	return &out
}

// User Repository Implementation
func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	user := *db.users[id]
	return &user, nil
}

func (db *MemoryDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	email := strings.ToLower(req.Email)
	if _, exists := db.byEmail[email]; exists {
		return nil, fmt.Errorf("failed to create user: email already registered")
	}
	for _, u := range db.users {
		if u.Username == req.Username {
			return nil, fmt.Errorf("failed to create user: username already taken")
		}
	}

	user := &models.User{
		ID:           newID(),
		Username:     req.Username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    db.now(),
	}
	db.users[user.ID] = user
	db.byEmail[email] = user.ID

	out := *user
	return &out, nil
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	user, ok := db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	out.PasswordHash = ""
	return &out, nil
}

func (db *MemoryDB) UserExists(ctx context.Context, id string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.users[id]
	return ok, nil
}

// Group Repository Implementation
func (db *MemoryDB) CreateGroup(ctx context.Context, req *models.CreateGroupRequest, ownerID string) (*models.Group, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[ownerID]; !ok {
		return nil, fmt.Errorf("failed to create group: owner %s: %w", ownerID, ErrNotFound)
	}

	group := &models.Group{ID: newID(), Name: req.Name, OwnerID: ownerID, CreatedAt: db.now()}
	db.groups[group.ID] = group
	db.members[group.ID] = map[string]*models.Member{
		ownerID: {UserID: ownerID, Username: db.users[ownerID].Username, Role: models.RoleAdmin, JoinedAt: group.CreatedAt},
	}

	out := *group
	return &out, nil
}

func (db *MemoryDB) GetGroupByID(ctx context.Context, id string) (*models.Group, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	group, ok := db.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *group
	return &out, nil
}

func (db *MemoryDB) GroupExists(ctx context.Context, id string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.groups[id]
	return ok, nil
}

func (db *MemoryDB) ListUserGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var groups []*models.Group
	for id, members := range db.members {
		if _, ok := members[userID]; ok {
			g := *db.groups[id]
			groups = append(groups, &g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// Message Repository Implementation
func (db *MemoryDB) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.takeFailure(); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	stored := *msg
	stored.ID = newID()
	stored.CreatedAt = db.now()
	stored.Reactions = []models.Reaction{}
	stored.ReadBy = nil
	stored.Read = false
	db.messages[stored.ID] = &stored
	db.order = append(db.order, stored.ID)

	return copyMessage(&stored), nil
}

func (db *MemoryDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	msg, ok := db.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (db *MemoryDB) FindConversation(ctx context.Context, userA, userB string, q models.HistoryQuery) ([]*models.Message, error) {
	return db.history(q, func(m *models.Message) bool {
		if m.GroupID != "" {
			return false
		}
		return (m.SenderID == userA && m.RecipientID == userB) || (m.SenderID == userB && m.RecipientID == userA)
	}), nil
}

func (db *MemoryDB) FindGroupHistory(ctx context.Context, groupID string, q models.HistoryQuery) ([]*models.Message, error) {
	return db.history(q, func(m *models.Message) bool {
		return m.GroupID == groupID
	}), nil
}

func (db *MemoryDB) history(q models.HistoryQuery, match func(*models.Message) bool) []*models.Message {
	q = q.Normalize()

	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []*models.Message
	for i := len(db.order) - 1; i >= 0 && len(out) < q.Limit; i-- {
		m := db.messages[db.order[i]]
		if !match(m) {
			continue
		}
		if !q.Before.IsZero() && !m.CreatedAt.Before(q.Before) {
			continue
		}
		out = append(out, copyMessage(m))
	}
	slices.Reverse(out)
	return out
}

func (db *MemoryDB) mutate(id string, fn func(m *models.Message) bool) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.takeFailure(); err != nil {
		return nil, err
	}
	msg, ok := db.messages[id]
	if !ok || !fn(msg) {
		return nil, ErrNotFound
	}
	return copyMessage(msg), nil
}

func (db *MemoryDB) MarkRead(ctx context.Context, messageID, userID string) (*models.Message, error) {
	return db.mutate(messageID, func(m *models.Message) bool {
		if m.GroupID == "" {
			m.Read = true
		} else if !slices.Contains(m.ReadBy, userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
		return true
	})
}

func (db *MemoryDB) EditMessage(ctx context.Context, messageID, body string) (*models.Message, error) {
	return db.mutate(messageID, func(m *models.Message) bool {
		if m.IsDeleted {
			return false
		}
		m.Body = body
		m.IsEdited = true
		return true
	})
}

func (db *MemoryDB) SoftDelete(ctx context.Context, messageID string) (*models.Message, error) {
	return db.mutate(messageID, func(m *models.Message) bool {
		m.IsDeleted = true
		m.IsPinned = false
		return true
	})
}

func (db *MemoryDB) SetPinned(ctx context.Context, messageID string, pinned bool) (*models.Message, error) {
	return db.mutate(messageID, func(m *models.Message) bool {
		if m.IsDeleted {
			return false
		}
		m.IsPinned = pinned
		return true
	})
}

func (db *MemoryDB) AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	msg, err := db.mutate(messageID, func(m *models.Message) bool {
		r := models.Reaction{UserID: userID, Emoji: emoji}
		if !slices.Contains(m.Reactions, r) {
			m.Reactions = append(m.Reactions, r)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return msg.Reactions, nil
}

func (db *MemoryDB) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	msg, err := db.mutate(messageID, func(m *models.Message) bool {
		m.Reactions = slices.DeleteFunc(m.Reactions, func(r models.Reaction) bool {
			return r.UserID == userID && r.Emoji == emoji
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return msg.Reactions, nil
}

// Membership Repository Implementation
func (db *MemoryDB) AddMembership(ctx context.Context, userID, groupID string, role models.GroupRole) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	members, ok := db.members[groupID]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	if existing, ok := members[userID]; ok {
		existing.Role = normalizeRole(role)
		return nil
	}
	members[userID] = &models.Member{UserID: userID, Username: user.Username, Role: normalizeRole(role), JoinedAt: db.now()}
	return nil
}

func (db *MemoryDB) RemoveMembership(ctx context.Context, userID, groupID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if members, ok := db.members[groupID]; ok {
		delete(members, userID)
	}
	return nil
}

func (db *MemoryDB) IsGroupMember(ctx context.Context, userID, groupID string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, ok := db.members[groupID][userID]
	return ok, nil
}

func (db *MemoryDB) IsGroupAdmin(ctx context.Context, userID, groupID string) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.members[groupID][userID]
	return ok && m.Role.CanModerate(), nil
}

func (db *MemoryDB) GetGroupMembers(ctx context.Context, groupID string) ([]*models.Member, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var members []*models.Member
	for _, m := range db.members[groupID] {
		out := *m
		members = append(members, &out)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}
