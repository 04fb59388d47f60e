package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-server/internal/models"

	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a last-known record survives without updates.
const presenceTTL = 30 * 24 * time.Hour

// RedisPresenceStore keeps the last known presence of every user so that
// lastSeen survives process restarts.
type RedisPresenceStore struct {
	client *redis.Client
}

// NewRedisPresenceStore connects to Redis and verifies the connection.
func NewRedisPresenceStore(ctx context.Context, redisURL string) (*RedisPresenceStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisPresenceStore{client: client}, nil
}

// NewRedisPresenceStoreFromClient wraps an existing client.
func NewRedisPresenceStoreFromClient(client *redis.Client) *RedisPresenceStore {
	return &RedisPresenceStore{client: client}
}

func (s *RedisPresenceStore) Close() error {
	return s.client.Close()
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SavePresence writes the record as a hash.
func (s *RedisPresenceStore) SavePresence(ctx context.Context, rec models.PresenceRecord) error {
	key := presenceKey(rec.UserID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"online", boolString(rec.IsOnline),
		"last_seen", rec.LastSeen.UnixMilli(),
		"last_activity", rec.LastActivity.UnixMilli(),
	)
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetPresence reads a record back. Missing users yield ErrNotFound.
func (s *RedisPresenceStore) GetPresence(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	var raw struct {
		Online       string `redis:"online"`
		LastSeen     int64  `redis:"last_seen"`
		LastActivity int64  `redis:"last_activity"`
	}

	res := s.client.HGetAll(ctx, presenceKey(userID))
	if err := res.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(res.Val()) == 0 {
		return nil, ErrNotFound
	}
	if err := res.Scan(&raw); err != nil {
		return nil, err
	}

	return &models.PresenceRecord{
		UserID:       userID,
		IsOnline:     raw.Online == "1",
		LastSeen:     time.UnixMilli(raw.LastSeen).UTC(),
		LastActivity: time.UnixMilli(raw.LastActivity).UTC(),
	}, nil
}

// MarkAllOffline flips every stored online flag. Called on startup, since a
// previous process may have died without recording disconnects.
func (s *RedisPresenceStore) MarkAllOffline(ctx context.Context, at time.Time) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "presence:*", 200).Result()
		if err != nil {
			return n, err
		}
		for _, key := range keys {
			online, err := s.client.HGet(ctx, key, "online").Result()
			if err != nil || online != "1" {
				continue
			}
			if err := s.client.HSet(ctx, key, "online", "0", "last_seen", at.UnixMilli()).Err(); err != nil {
				return n, err
			}
			n++
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
