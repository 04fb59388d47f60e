package models

import "time"

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindMedia  MessageKind = "media"
	KindSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindMedia, KindSystem:
		return true
	}
	return false
}

type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message is the persisted chat message. Exactly one of RecipientID and
// GroupID is set.
//
// Read state is deliberately asymmetric: a direct message carries a single
// Read flag, a group message carries the set of readers in ReadBy.
type Message struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"senderId"`
	RecipientID   string      `json:"recipientId,omitempty"`
	GroupID       string      `json:"groupId,omitempty"`
	Kind          MessageKind `json:"kind"`
	Body          string      `json:"body"`
	AttachmentRef string      `json:"attachmentRef,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	Read          bool        `json:"read,omitempty"`
	ReadBy        []string    `json:"readBy,omitempty"`
	IsEdited      bool        `json:"isEdited"`
	IsDeleted     bool        `json:"isDeleted"`
	IsPinned      bool        `json:"isPinned"`
	Reactions     []Reaction  `json:"reactions"`
}

func (m *Message) IsGroup() bool {
	return m.GroupID != ""
}

// Participant reports whether userID is the sender or the direct recipient.
func (m *Message) Participant(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// HistoryQuery pages backwards through persisted history.
type HistoryQuery struct {
	Limit  int
	Before time.Time
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Normalize clamps the limit into [1, MaxHistoryLimit].
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return q
}
