package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CommandType names a client-to-server command.
type CommandType string

const (
	CmdJoinRoom     CommandType = "join-room"
	CmdLeaveRoom    CommandType = "leave-room"
	CmdSendDirect   CommandType = "send-direct"
	CmdSendGroup    CommandType = "send-group"
	CmdMarkRead     CommandType = "mark-read"
	CmdReact        CommandType = "react"
	CmdUnreact      CommandType = "unreact"
	CmdEdit         CommandType = "edit"
	CmdDelete       CommandType = "delete"
	CmdPin          CommandType = "pin"
	CmdTyping       CommandType = "typing"
	CmdActivityPing CommandType = "activity-ping"
)

// ErrMalformedCommand wraps every decode failure.
var ErrMalformedCommand = errors.New("malformed command")

// Command is one variant of the inbound tagged union.
type Command interface {
	CommandType() CommandType
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// SendRequest is the addressing and content of a send. Exactly one of
// RecipientID and GroupID must be set; the dispatch pipeline enforces it.
type SendRequest struct {
	RecipientID   string      `json:"recipientId,omitempty"`
	GroupID       string      `json:"groupId,omitempty"`
	Body          string      `json:"body"`
	Kind          MessageKind `json:"kind"`
	AttachmentRef string      `json:"attachmentRef,omitempty"`
}

type SendDirect struct {
	SendRequest
}

type SendGroup struct {
	SendRequest
}

type MarkRead struct {
	MessageID string `json:"messageId"`
}

type React struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type Unreact struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type Edit struct {
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

type Delete struct {
	MessageID string `json:"messageId"`
}

type Pin struct {
	MessageID string `json:"messageId"`
	Pinned    bool   `json:"pinned"`
}

type Typing struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type ActivityPing struct{}

func (JoinRoom) CommandType() CommandType     { return CmdJoinRoom }
func (LeaveRoom) CommandType() CommandType    { return CmdLeaveRoom }
func (SendDirect) CommandType() CommandType   { return CmdSendDirect }
func (SendGroup) CommandType() CommandType    { return CmdSendGroup }
func (MarkRead) CommandType() CommandType     { return CmdMarkRead }
func (React) CommandType() CommandType        { return CmdReact }
func (Unreact) CommandType() CommandType      { return CmdUnreact }
func (Edit) CommandType() CommandType         { return CmdEdit }
func (Delete) CommandType() CommandType       { return CmdDelete }
func (Pin) CommandType() CommandType          { return CmdPin }
func (Typing) CommandType() CommandType       { return CmdTyping }
func (ActivityPing) CommandType() CommandType { return CmdActivityPing }

// EncodeCommand marshals a command into its envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(cmd.CommandType()), Payload: payload})
}

// DecodeCommand parses and shape-checks an inbound frame. The returned
// CommandType is set whenever the envelope itself parsed, even on error, so
// the caller can reference it in the error reply.
func DecodeCommand(data []byte) (Command, CommandType, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	typ := CommandType(env.Type)

	var cmd Command
	switch typ {
	case CmdJoinRoom:
		cmd = &JoinRoom{}
	case CmdLeaveRoom:
		cmd = &LeaveRoom{}
	case CmdSendDirect:
		cmd = &SendDirect{}
	case CmdSendGroup:
		cmd = &SendGroup{}
	case CmdMarkRead:
		cmd = &MarkRead{}
	case CmdReact:
		cmd = &React{}
	case CmdUnreact:
		cmd = &Unreact{}
	case CmdEdit:
		cmd = &Edit{}
	case CmdDelete:
		cmd = &Delete{}
	case CmdPin:
		cmd = &Pin{}
	case CmdTyping:
		cmd = &Typing{}
	case CmdActivityPing:
		cmd = &ActivityPing{}
	default:
		return nil, typ, fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, cmd); err != nil {
			return nil, typ, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
	}
	if err := checkShape(cmd); err != nil {
		return nil, typ, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return cmd, typ, nil
}

func checkShape(cmd Command) error {
	switch c := cmd.(type) {
	case *JoinRoom:
		c.RoomID = CanonicalRoomID(c.RoomID)
		return required("roomId", c.RoomID)
	case *LeaveRoom:
		c.RoomID = CanonicalRoomID(c.RoomID)
		return required("roomId", c.RoomID)
	case *Typing:
		c.RoomID = CanonicalRoomID(c.RoomID)
		return required("roomId", c.RoomID)
	case *MarkRead:
		return required("messageId", c.MessageID)
	case *Delete:
		return required("messageId", c.MessageID)
	case *Pin:
		return required("messageId", c.MessageID)
	case *Edit:
		return required("messageId", c.MessageID)
	case *React:
		if err := required("messageId", c.MessageID); err != nil {
			return err
		}
		return required("emoji", c.Emoji)
	case *Unreact:
		if err := required("messageId", c.MessageID); err != nil {
			return err
		}
		return required("emoji", c.Emoji)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}
