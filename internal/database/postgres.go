package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-server/internal/models"
	"chat-server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

//go:embed schema.sql
var schemaSQL string

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, strings.ToLower(email)).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, username, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, newID(), req.Username, strings.ToLower(req.Email), string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, username, email, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	return user, nil
}

func (db *PostgresDB) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Group Repository Implementation
func (db *PostgresDB) CreateGroup(ctx context.Context, req *models.CreateGroupRequest, ownerID string) (*models.Group, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	group := &models.Group{}
	err = tx.QueryRow(ctx, `
		INSERT INTO groups (id, name, owner_id, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, name, owner_id, created_at`,
		newID(), req.Name, ownerID,
	).Scan(&group.ID, &group.Name, &group.OwnerID, &group.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	// The owner is the first admin.
	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)`,
		group.ID, ownerID, string(models.RoleAdmin),
	); err != nil {
		return nil, fmt.Errorf("failed to add group owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return group, nil
}

func (db *PostgresDB) GetGroupByID(ctx context.Context, id string) (*models.Group, error) {
	query := `SELECT id, name, owner_id, created_at FROM groups WHERE id = $1`

	group := &models.Group{}
	err := db.pool.QueryRow(ctx, query, id).Scan(&group.ID, &group.Name, &group.OwnerID, &group.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return group, nil
}

func (db *PostgresDB) GroupExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) ListUserGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	query := `
		SELECT g.id, g.name, g.owner_id, g.created_at
		FROM groups g
		JOIN group_members m ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.name`

	rows, err := db.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.OwnerID, &group.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// Message Repository Implementation
const messageColumns = `
	m.id, m.sender_id, COALESCE(m.recipient_id, ''), COALESCE(m.group_id, ''),
	m.kind, m.body, m.attachment_ref, m.created_at,
	m.is_read, m.read_by, m.is_edited, m.is_deleted, m.is_pinned,
	COALESCE((
		SELECT json_agg(json_build_object('userId', r.user_id, 'emoji', r.emoji) ORDER BY r.created_at)
		FROM message_reactions r WHERE r.message_id = m.id
	), '[]'::json)`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg       models.Message
		kind      string
		reactions []byte
	)
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.GroupID,
		&kind, &msg.Body, &msg.AttachmentRef, &msg.CreatedAt,
		&msg.Read, &msg.ReadBy, &msg.IsEdited, &msg.IsDeleted, &msg.IsPinned,
		&reactions,
	)
	if err != nil {
		return nil, err
	}
	msg.Kind = models.MessageKind(kind)
	if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
		return nil, fmt.Errorf("failed to decode reactions: %w", err)
	}
	if msg.Reactions == nil {
		msg.Reactions = []models.Reaction{}
	}
	redactDeleted(&msg)
	return &msg, nil
}

// redactDeleted hides the content of soft-deleted messages from readers.
func redactDeleted(msg *models.Message) {
	if msg.IsDeleted {
		msg.Body = ""
		msg.AttachmentRef = ""
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, sender_id, recipient_id, group_id, kind, body, attachment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`

	out := *msg
	out.ID = newID()
	err := db.pool.QueryRow(ctx, query,
		out.ID, out.SenderID, nullable(out.RecipientID), nullable(out.GroupID),
		string(out.Kind), out.Body, out.AttachmentRef,
	).Scan(&out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	out.Reactions = []models.Reaction{}
	return &out, nil
}

func (db *PostgresDB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(db.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return msg, nil
}

func beforeArg(q models.HistoryQuery) *time.Time {
	if q.Before.IsZero() {
		return nil
	}
	return &q.Before
}

func (db *PostgresDB) FindConversation(ctx context.Context, userA, userB string, q models.HistoryQuery) ([]*models.Message, error) {
	q = q.Normalize()
	query := `SELECT ` + messageColumns + `
		FROM messages m
		WHERE ((m.sender_id = $1 AND m.recipient_id = $2) OR (m.sender_id = $2 AND m.recipient_id = $1))
		  AND ($3::timestamptz IS NULL OR m.created_at < $3)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4`
	return db.queryHistory(ctx, query, userA, userB, beforeArg(q), q.Limit)
}

func (db *PostgresDB) FindGroupHistory(ctx context.Context, groupID string, q models.HistoryQuery) ([]*models.Message, error) {
	q = q.Normalize()
	query := `SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.group_id = $1
		  AND ($2::timestamptz IS NULL OR m.created_at < $2)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3`
	return db.queryHistory(ctx, query, groupID, beforeArg(q), q.Limit)
}

func (db *PostgresDB) queryHistory(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (db *PostgresDB) mutate(ctx context.Context, id, query string, args ...any) (*models.Message, error) {
	tag, err := db.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return db.GetMessage(ctx, id)
}

func (db *PostgresDB) MarkRead(ctx context.Context, messageID, userID string) (*models.Message, error) {
	query := `
		UPDATE messages SET
			is_read = CASE WHEN group_id IS NULL THEN TRUE ELSE is_read END,
			read_by = CASE
				WHEN group_id IS NOT NULL AND NOT ($2::text = ANY(read_by)) THEN array_append(read_by, $2::text)
				ELSE read_by
			END
		WHERE id = $1`
	return db.mutate(ctx, messageID, query, messageID, userID)
}

func (db *PostgresDB) EditMessage(ctx context.Context, messageID, body string) (*models.Message, error) {
	query := `UPDATE messages SET body = $2, is_edited = TRUE WHERE id = $1 AND NOT is_deleted`
	return db.mutate(ctx, messageID, query, messageID, body)
}

func (db *PostgresDB) SoftDelete(ctx context.Context, messageID string) (*models.Message, error) {
	query := `UPDATE messages SET is_deleted = TRUE, is_pinned = FALSE WHERE id = $1`
	return db.mutate(ctx, messageID, query, messageID)
}

func (db *PostgresDB) SetPinned(ctx context.Context, messageID string, pinned bool) (*models.Message, error) {
	query := `UPDATE messages SET is_pinned = $2 WHERE id = $1 AND NOT is_deleted`
	return db.mutate(ctx, messageID, query, messageID, pinned)
}

func (db *PostgresDB) AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`
	if _, err := db.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return nil, err
	}
	return db.listReactions(ctx, messageID)
}

func (db *PostgresDB) RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error) {
	query := `DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`
	if _, err := db.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return nil, err
	}
	return db.listReactions(ctx, messageID)
}

func (db *PostgresDB) listReactions(ctx context.Context, messageID string) ([]models.Reaction, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT user_id, emoji FROM message_reactions WHERE message_id = $1 ORDER BY created_at`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := []models.Reaction{}
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.UserID, &r.Emoji); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}

// Membership Repository Implementation
func (db *PostgresDB) AddMembership(ctx context.Context, userID, groupID string, role models.GroupRole) error {
	query := `
		INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role`

	_, err := db.pool.Exec(ctx, query, groupID, userID, string(normalizeRole(role)))
	return err
}

func (db *PostgresDB) RemoveMembership(ctx context.Context, userID, groupID string) error {
	query := `DELETE FROM group_members WHERE user_id = $1 AND group_id = $2`
	_, err := db.pool.Exec(ctx, query, userID, groupID)
	return err
}

func (db *PostgresDB) IsGroupMember(ctx context.Context, userID, groupID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE user_id = $1 AND group_id = $2)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, userID, groupID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) IsGroupAdmin(ctx context.Context, userID, groupID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM group_members
			WHERE user_id = $1 AND group_id = $2 AND role IN ('admin', 'moderator')
		)`

	var exists bool
	err := db.pool.QueryRow(ctx, query, userID, groupID).Scan(&exists)
	return exists, err
}

func (db *PostgresDB) GetGroupMembers(ctx context.Context, groupID string) ([]*models.Member, error) {
	query := `
		SELECT u.id, u.username, m.role, m.joined_at
		FROM group_members m
		JOIN users u ON m.user_id = u.id
		WHERE m.group_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		var role string
		if err := rows.Scan(&member.UserID, &member.Username, &role, &member.JoinedAt); err != nil {
			return nil, err
		}
		member.Role = models.GroupRole(role)
		members = append(members, member)
	}

	return members, rows.Err()
}
