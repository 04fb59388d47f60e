package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectRoomIDIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"0190a5c2-7f00-7000-8000-000000000001", "0190a5c2-7f00-7000-8000-000000000002"},
		{"same", "same"},
	}
	for _, p := range pairs {
		assert.Equal(t, DirectRoomID(p[0], p[1]), DirectRoomID(p[1], p[0]))
	}
	assert.Equal(t, "dm:alice:bob", DirectRoomID("bob", "alice"))
}

func TestParseRoomID(t *testing.T) {
	ref, err := ParseRoomID(DirectRoomID("bob", "alice"))
	require.NoError(t, err)
	assert.Equal(t, RoomDirect, ref.Kind)
	assert.Equal(t, [2]string{"alice", "bob"}, ref.Participants)
	assert.True(t, ref.Includes("alice"))
	assert.False(t, ref.Includes("eve"))

	ref, err = ParseRoomID("group-42")
	require.NoError(t, err)
	assert.Equal(t, RoomGroup, ref.Kind)
	assert.Equal(t, "group-42", ref.GroupID)
	assert.False(t, ref.Includes("group-42"))

	for _, bad := range []string{"", "  ", "dm:bob:alice", "dm:alice", "dm::bob", "dm:a:b:c", "weird:group"} {
		_, err := ParseRoomID(bad)
		assert.Error(t, err, bad)
	}
}
