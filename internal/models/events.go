package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a server-to-client event on the realtime connection.
type EventType string

const (
	EventOnlineUsersSnapshot EventType = "online-users-snapshot"
	EventPresenceChanged     EventType = "presence-changed"
	EventDelivered           EventType = "delivered"
	EventReceive             EventType = "receive"
	EventGroupReceive        EventType = "group-receive"
	EventMessageEdited       EventType = "message-edited"
	EventMessageDeleted      EventType = "message-deleted"
	EventMessagePinned       EventType = "message-pinned"
	EventReactionChanged     EventType = "reaction-changed"
	EventReadReceipt         EventType = "read-receipt"
	EventTyping              EventType = "typing"
	EventRoomJoined          EventType = "room-joined"
	EventRoomLeft            EventType = "room-left"
	EventError               EventType = "error"
)

// Event is one variant of the outbound tagged union. Each concrete payload
// type maps to exactly one EventType.
type Event interface {
	EventType() EventType
}

type OnlineUsersSnapshot struct {
	Users []PresenceRecord `json:"users"`
}

type PresenceChanged struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Delivered goes to the originating session only.
type Delivered struct {
	Message *Message `json:"message"`
}

type Receive struct {
	Message *Message `json:"message"`
}

type GroupReceive struct {
	GroupID string   `json:"groupId"`
	Message *Message `json:"message"`
}

type MessageEdited struct {
	MessageID string `json:"messageId"`
	NewBody   string `json:"newBody"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

type MessagePinned struct {
	MessageID string `json:"messageId"`
	IsPinned  bool   `json:"isPinned"`
}

type ReactionChanged struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type ReadReceipt struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

type TypingChanged struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type RoomJoined struct {
	RoomID string `json:"roomId"`
}

type RoomLeft struct {
	RoomID string `json:"roomId"`
}

// ErrorEvent reports a failed command. Ref echoes the command type.
type ErrorEvent struct {
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
	Ref    CommandType `json:"ref,omitempty"`
}

func (OnlineUsersSnapshot) EventType() EventType { return EventOnlineUsersSnapshot }
func (PresenceChanged) EventType() EventType     { return EventPresenceChanged }
func (Delivered) EventType() EventType           { return EventDelivered }
func (Receive) EventType() EventType             { return EventReceive }
func (GroupReceive) EventType() EventType        { return EventGroupReceive }
func (MessageEdited) EventType() EventType       { return EventMessageEdited }
func (MessageDeleted) EventType() EventType      { return EventMessageDeleted }
func (MessagePinned) EventType() EventType       { return EventMessagePinned }
func (ReactionChanged) EventType() EventType     { return EventReactionChanged }
func (ReadReceipt) EventType() EventType         { return EventReadReceipt }
func (TypingChanged) EventType() EventType       { return EventTyping }
func (RoomJoined) EventType() EventType          { return EventRoomJoined }
func (RoomLeft) EventType() EventType            { return EventRoomLeft }
func (ErrorEvent) EventType() EventType          { return EventError }

// Envelope is the wire frame shared by events and commands.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEvent marshals an event into its envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.EventType(), err)
	}
	return json.Marshal(Envelope{Type: string(ev.EventType()), Payload: payload})
}

// DecodeEvent parses an envelope into its concrete event variant.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	var ev Event
	switch EventType(env.Type) {
	case EventOnlineUsersSnapshot:
		ev = &OnlineUsersSnapshot{}
	case EventPresenceChanged:
		ev = &PresenceChanged{}
	case EventDelivered:
		ev = &Delivered{}
	case EventReceive:
		ev = &Receive{}
	case EventGroupReceive:
		ev = &GroupReceive{}
	case EventMessageEdited:
		ev = &MessageEdited{}
	case EventMessageDeleted:
		ev = &MessageDeleted{}
	case EventMessagePinned:
		ev = &MessagePinned{}
	case EventReactionChanged:
		ev = &ReactionChanged{}
	case EventReadReceipt:
		ev = &ReadReceipt{}
	case EventTyping:
		ev = &TypingChanged{}
	case EventRoomJoined:
		ev = &RoomJoined{}
	case EventRoomLeft:
		ev = &RoomLeft{}
	case EventError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
	}
	return ev, nil
}
