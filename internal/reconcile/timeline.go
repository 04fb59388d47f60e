// Package reconcile keeps a client's local view of a conversation
// consistent while sends are in flight.
//
// A submitted message is shown at once as a pending echo with a local id.
// Durable messages coming back from the server are matched to echoes by
// sender, body and a bounded time window, because the echo has no durable
// id to match on. Once a durable id is on the timeline it is the only
// de-duplication key for that message.
package reconcile

import (
	"slices"
	"strings"
	"sync"
	"time"

	"chat-server/internal/models"

	"github.com/oklog/ulid/v2"
)

// LocalIDPrefix marks ids that were never issued by the store.
const LocalIDPrefix = "local-"

const DefaultWindow = 5 * time.Second

// Outcome says what applying a durable message did to the timeline.
type Outcome int

const (
	Appended Outcome = iota
	Replaced
	Dropped
	Patched
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case Dropped:
		return "dropped"
	case Patched:
		return "patched"
	}
	return "ignored"
}

// Item is one entry on the timeline. Pending items carry a local id in
// Message.ID until the server confirms them.
type Item struct {
	Message   models.Message
	Pending   bool
	Failed    bool
	Submitted time.Time
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

type Option func(*Timeline)

// WithWindow sets how far apart an echo and its confirmation may be.
func WithWindow(d time.Duration) Option {
	return func(t *Timeline) { t.window = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Timeline) { t.now = now }
}

// Timeline is safe for concurrent use.
type Timeline struct {
	mu      sync.Mutex
	selfID  string
	window  time.Duration
	now     func() time.Time
	items   []*Item
	durable map[string]*Item
}

// New returns an empty timeline for the user selfID.
func New(selfID string, opts ...Option) *Timeline {
	t := &Timeline{
		selfID:  selfID,
		window:  DefaultWindow,
		now:     time.Now,
		durable: make(map[string]*Item),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit renders a pending echo for a request about to be sent.
func (t *Timeline) Submit(req models.SendRequest) Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	kind := req.Kind
	if kind == "" {
		kind = models.KindText
	}
	item := &Item{
		Message: models.Message{
			ID:            LocalIDPrefix + ulid.Make().String(),
			SenderID:      t.selfID,
			RecipientID:   req.RecipientID,
			GroupID:       req.GroupID,
			Kind:          kind,
			Body:          req.Body,
			AttachmentRef: req.AttachmentRef,
			CreatedAt:     now,
		},
		Pending:   true,
		Submitted: now,
	}
	t.items = append(t.items, item)
	return *item
}

// Confirm applies a delivered confirmation for one of our own sends.
func (t *Timeline) Confirm(msg *models.Message) Outcome {
	return t.reconcile(msg)
}

// Observe applies a receive or group-receive event.
func (t *Timeline) Observe(msg *models.Message) Outcome {
	return t.reconcile(msg)
}

// Fail marks a pending echo as failed so it is never matched. It reports
// whether the echo existed.
func (t *Timeline) Fail(localID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, it := range t.items {
		if it.Pending && it.Message.ID == localID {
			it.Failed = true
			return true
		}
	}
	return false
}

// FailOldestPending marks the oldest live echo as failed. Servers report
// send errors without an id, so the oldest outstanding send is blamed.
func (t *Timeline) FailOldestPending() (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, it := range t.items {
		if it.Pending && !it.Failed {
			it.Failed = true
			return *it, true
		}
	}
	return Item{}, false
}

func (t *Timeline) reconcile(msg *models.Message) Outcome {
	if msg == nil || msg.ID == "" {
		return Ignored
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Already confirmed: redundant delivery.
	if _, ok := t.durable[msg.ID]; ok {
		return Dropped
	}

	if echo := t.matchLocked(msg); echo != nil {
		echo.Message = *msg
		echo.Pending = false
		echo.Failed = false
		t.durable[msg.ID] = echo
		return Replaced
	}

	item := &Item{Message: *msg, Submitted: msg.CreatedAt}
	t.items = append(t.items, item)
	t.durable[msg.ID] = item
	return Appended
}

// matchLocked finds the oldest pending echo with the same sender and body
// whose submit time is within the window of the durable message.
func (t *Timeline) matchLocked(msg *models.Message) *Item {
	at := msg.CreatedAt
	if at.IsZero() {
		at = t.now()
	}
	for _, it := range t.items {
		if !it.Pending || it.Failed {
			continue
		}
		if it.Message.SenderID != msg.SenderID || it.Message.Body != msg.Body {
			continue
		}
		if d := at.Sub(it.Submitted).Abs(); d <= t.window {
			return it
		}
	}
	return nil
}

// Apply patches the timeline from any server event. Events about messages
// not on the timeline are ignored.
func (t *Timeline) Apply(ev models.Event) Outcome {
	switch e := ev.(type) {
	case *models.Delivered:
		return t.Confirm(e.Message)
	case *models.Receive:
		return t.Observe(e.Message)
	case *models.GroupReceive:
		return t.Observe(e.Message)
	case *models.MessageEdited:
		return t.patch(e.MessageID, func(m *models.Message) {
			m.Body = e.NewBody
			m.IsEdited = true
		})
	case *models.MessageDeleted:
		return t.patch(e.MessageID, func(m *models.Message) {
			m.IsDeleted = true
			m.Body = ""
			m.AttachmentRef = ""
		})
	case *models.MessagePinned:
		return t.patch(e.MessageID, func(m *models.Message) {
			m.IsPinned = e.IsPinned
		})
	case *models.ReactionChanged:
		return t.patch(e.MessageID, func(m *models.Message) {
			m.Reactions = slices.Clone(e.Reactions)
		})
	case *models.ReadReceipt:
		return t.patch(e.MessageID, func(m *models.Message) {
			if m.IsGroup() {
				if !slices.Contains(m.ReadBy, e.ReaderID) {
					m.ReadBy = append(m.ReadBy, e.ReaderID)
				}
				return
			}
			m.Read = true
		})
	}
	return Ignored
}

func (t *Timeline) patch(messageID string, fn func(*models.Message)) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, ok := t.durable[messageID]
	if !ok {
		return Ignored
	}
	fn(&it.Message)
	return Patched
}

// Messages returns a copy of the timeline in display order.
func (t *Timeline) Messages() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Item, len(t.items))
	for i, it := range t.items {
		out[i] = *it
		out[i].Message.ReadBy = slices.Clone(it.Message.ReadBy)
		out[i].Message.Reactions = slices.Clone(it.Message.Reactions)
	}
	return out
}

// Pending returns the number of unconfirmed, unfailed echoes.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, it := range t.items {
		if it.Pending && !it.Failed {
			n++
		}
	}
	return n
}
