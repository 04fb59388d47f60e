package models

import (
	"fmt"
	"strings"
)

type RoomKind int

const (
	RoomDirect RoomKind = iota + 1
	RoomGroup
)

func (k RoomKind) String() string {
	switch k {
	case RoomDirect:
		return "direct"
	case RoomGroup:
		return "group"
	}
	return "unknown"
}

const (
	directRoomPrefix = "dm:"
	directRoomSep    = ":"
)

// DirectRoomID derives the conversation room shared by two users. It is a
// pure, symmetric function: DirectRoomID(a, b) == DirectRoomID(b, a). Client
// and server compute it independently, so the format is part of the wire
// contract: "dm:<lower id>:<higher id>" ordered bytewise.
func DirectRoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return directRoomPrefix + a + directRoomSep + b
}

// RoomRef is a parsed room identifier.
type RoomRef struct {
	ID           string
	Kind         RoomKind
	Participants [2]string // direct rooms only
	GroupID      string    // group rooms only
}

// Includes reports whether userID is one of a direct room's participants.
func (r RoomRef) Includes(userID string) bool {
	return r.Kind == RoomDirect && (r.Participants[0] == userID || r.Participants[1] == userID)
}

// CanonicalRoomID is the form under which a room is subscribed and looked
// up. Every room id entering the hub goes through it.
func CanonicalRoomID(id string) string {
	return strings.TrimSpace(id)
}

// ParseRoomID classifies a room id. Ids carrying the direct prefix must name
// exactly two participants in canonical order; anything else is a group id.
func ParseRoomID(id string) (RoomRef, error) {
	id = CanonicalRoomID(id)
	if id == "" {
		return RoomRef{}, fmt.Errorf("empty room id")
	}

	rest, ok := strings.CutPrefix(id, directRoomPrefix)
	if !ok {
		if strings.Contains(id, directRoomSep) {
			return RoomRef{}, fmt.Errorf("invalid group room id %q", id)
		}
		return RoomRef{ID: id, Kind: RoomGroup, GroupID: id}, nil
	}

	parts := strings.Split(rest, directRoomSep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RoomRef{}, fmt.Errorf("invalid direct room id %q", id)
	}
	if DirectRoomID(parts[0], parts[1]) != id {
		return RoomRef{}, fmt.Errorf("direct room id %q is not canonical", id)
	}
	return RoomRef{ID: id, Kind: RoomDirect, Participants: [2]string{parts[0], parts[1]}}, nil
}
