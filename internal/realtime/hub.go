package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/metrics"
	"chat-server/internal/models"
	"chat-server/pkg/logger"

	"github.com/rs/zerolog"
)

// MessageStore is the durable message store the core writes through.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, body string) (*models.Message, error)
	SoftDelete(ctx context.Context, messageID string) (*models.Message, error)
	SetPinned(ctx context.Context, messageID string, pinned bool) (*models.Message, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) ([]models.Reaction, error)
}

// Directory answers user and group membership questions. Answers are never
// cached by the core.
type Directory interface {
	UserExists(ctx context.Context, id string) (bool, error)
	GroupExists(ctx context.Context, id string) (bool, error)
	IsGroupMember(ctx context.Context, userID, groupID string) (bool, error)
	IsGroupAdmin(ctx context.Context, userID, groupID string) (bool, error)
}

//go:generate mockgen -destination=mocks/mock_presence_store.go -package=mocks chat-server/internal/realtime PresenceStore

// PresenceStore persists last known presence. Optional.
type PresenceStore interface {
	SavePresence(ctx context.Context, rec models.PresenceRecord) error
	GetPresence(ctx context.Context, userID string) (*models.PresenceRecord, error)
}

type room struct {
	ref         models.RoomRef
	subscribers map[string]*Session
}

// Hub is the single ownership boundary for the session table, the presence
// table and the room subscriber sets. All three are guarded by mu and only
// mutated through Hub methods. Store and directory calls never run under mu.
type Hub struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	byUser       map[string]map[string]*Session
	presence     map[string]*models.PresenceRecord
	rooms        map[string]*room
	sessionRooms map[string]map[string]struct{}

	store         MessageStore
	directory     Directory
	presenceStore PresenceStore
	cfg           config.RealtimeConfig
	now           func() time.Time
	log           zerolog.Logger
}

type Option func(*Hub)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithPresenceStore persists presence transitions and activity.
func WithPresenceStore(ps PresenceStore) Option {
	return func(h *Hub) { h.presenceStore = ps }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func NewHub(store MessageStore, directory Directory, cfg config.RealtimeConfig, opts ...Option) *Hub {
	h := &Hub{
		sessions:     make(map[string]*Session),
		byUser:       make(map[string]map[string]*Session),
		presence:     make(map[string]*models.PresenceRecord),
		rooms:        make(map[string]*room),
		sessionRooms: make(map[string]map[string]struct{}),
		store:        store,
		directory:    directory,
		cfg:          cfg,
		now:          time.Now,
		log:          logger.With().Str("component", "hub").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the realtime settings the hub runs with.
func (h *Hub) Config() config.RealtimeConfig {
	return h.cfg
}

// storeCtx bounds a collaborator call by the configured store timeout.
func (h *Hub) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.cfg.StoreTimeout)
}

func observeStore(op string, start time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// deliver enqueues ev on every target and evicts targets whose buffer is
// full. Must be called without mu held.
func (h *Hub) deliver(targets []*Session, ev models.Event) int {
	var (
		n    int
		slow []*Session
	)
	for _, s := range targets {
		switch s.enqueue(ev) {
		case enqueued:
			n++
		case enqueueFull:
			slow = append(slow, s)
		}
	}
	metrics.Deliveries.Add(float64(n))
	h.evict(slow)
	return n
}

func (h *Hub) deliverTo(s *Session, ev models.Event) bool {
	return h.deliver([]*Session{s}, ev) == 1
}

// enqueueLocked is deliver for callers holding mu. Slow sessions are
// returned for eviction once mu is released.
func enqueueLocked(targets []*Session, ev models.Event, slow []*Session) []*Session {
	var n int
	for _, s := range targets {
		switch s.enqueue(ev) {
		case enqueued:
			n++
		case enqueueFull:
			slow = append(slow, s)
		}
	}
	metrics.Deliveries.Add(float64(n))
	return slow
}

func (h *Hub) evict(slow []*Session) {
	for _, s := range slow {
		h.log.Warn().Str("session", s.ID).Str("user", s.UserID).Msg("send buffer full, evicting session")
		metrics.SlowConsumerEvictions.Inc()
		h.Deregister(s.ID)
	}
}

// dedupe drops nil entries, repeats and the excluded session.
func dedupe(sessions []*Session, excludeID string) []*Session {
	seen := make(map[string]struct{}, len(sessions))
	out := sessions[:0:0]
	for _, s := range sessions {
		if s == nil || s.ID == excludeID {
			continue
		}
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close deregisters every session.
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Deregister(id)
	}
}
