package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	hub   *Hub
	db    *database.MemoryDB
	clock *fakeClock
	ctx   context.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := newFakeClock()
	db := database.NewMemoryDB()
	db.SetClock(clock.Now)

	cfg := config.DefaultRealtime()
	cfg.SendBuffer = 64
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	return &fixture{
		hub:   NewHub(db, db, cfg, opts...),
		db:    db,
		clock: clock,
		ctx:   context.Background(),
	}
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u, err := f.db.CreateUser(f.ctx, &models.RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) group(t *testing.T, ownerID string, members ...string) string {
	t.Helper()
	g, err := f.db.CreateGroup(f.ctx, &models.CreateGroupRequest{Name: "team"}, ownerID)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, f.db.AddMembership(f.ctx, m, g.ID, models.RoleMember))
	}
	return g.ID
}

// drain returns everything queued on a session without blocking.
func drain(s *Session) []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-s.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType[T models.Event](evs []models.Event) []T {
	var out []T
	for _, ev := range evs {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}
