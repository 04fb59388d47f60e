package realtime

import (
	"testing"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	room := models.DirectRoomID(alice, bob)

	require.NoError(t, f.hub.Join(f.ctx, a, room))
	require.NoError(t, f.hub.Join(f.ctx, a, room))
	assert.Len(t, f.hub.Subscribers(room), 1)
	assert.True(t, f.hub.InRoom(a.ID, room))

	f.hub.Leave(a, room)
	f.hub.Leave(a, room)
	f.hub.Leave(a, "never-joined")
	assert.False(t, f.hub.InRoom(a.ID, room))
	assert.Equal(t, 0, f.hub.RoomCount())
}

func TestDirectRoomIsSymmetric(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	b := f.hub.Register(bob)

	require.NoError(t, f.hub.Join(f.ctx, a, models.DirectRoomID(alice, bob)))
	require.NoError(t, f.hub.Join(f.ctx, b, models.DirectRoomID(bob, alice)))

	assert.Equal(t, 1, f.hub.RoomCount())
	assert.Len(t, f.hub.Subscribers(models.DirectRoomID(alice, bob)), 2)
}

func TestJoinAuthorization(t *testing.T) {
	f := newFixture(t)
	alice, bob, eve := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "eve")
	groupID := f.group(t, alice, bob)
	e := f.hub.Register(eve)

	err := f.hub.Join(f.ctx, e, models.DirectRoomID(alice, bob))
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.hub.Join(f.ctx, e, groupID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.hub.Join(f.ctx, e, "no-such-group")
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.hub.Join(f.ctx, e, "dm:zzz:aaa")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, f.hub.RoomCount())
}

func TestJoinAfterDeregister(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	f.hub.Deregister(a.ID)

	err := f.hub.Join(f.ctx, a, models.DirectRoomID(alice, bob))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.hub.RoomCount())
}

func TestFanoutExcludesSession(t *testing.T) {
	f := newFixture(t)
	owner, bob := f.user(t, "owner"), f.user(t, "bob")
	groupID := f.group(t, owner, bob)
	o := f.hub.Register(owner)
	b := f.hub.Register(bob)
	require.NoError(t, f.hub.Join(f.ctx, o, groupID))
	require.NoError(t, f.hub.Join(f.ctx, b, groupID))
	drain(o)
	drain(b)

	n := f.hub.Fanout(groupID, models.TypingChanged{RoomID: groupID, UserID: owner, IsTyping: true}, o.ID)
	assert.Equal(t, 1, n)
	assert.Empty(t, drain(o))
	assert.Len(t, drain(b), 1)

	assert.Equal(t, 0, f.hub.Fanout("empty-room", models.RoomLeft{RoomID: "x"}, ""))
}

func TestEvictUserFromRoom(t *testing.T) {
	f := newFixture(t)
	owner, bob := f.user(t, "owner"), f.user(t, "bob")
	groupID := f.group(t, owner, bob)
	o := f.hub.Register(owner)
	b1 := f.hub.Register(bob)
	b2 := f.hub.Register(bob)
	for _, s := range []*Session{o, b1, b2} {
		require.NoError(t, f.hub.Join(f.ctx, s, groupID))
	}

	assert.Equal(t, 2, f.hub.EvictUserFromRoom(bob, groupID))
	assert.False(t, f.hub.InRoom(b1.ID, groupID))
	assert.False(t, f.hub.InRoom(b2.ID, groupID))
	assert.Len(t, f.hub.Subscribers(groupID), 1)
}

func TestPaddedRoomIDResolvesToCanonicalRoom(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	groupID := f.group(t, alice)
	a := f.hub.Register(alice)
	padded := " " + groupID + " "

	require.NoError(t, f.hub.Join(f.ctx, a, padded))
	assert.True(t, f.hub.InRoom(a.ID, groupID))
	assert.True(t, f.hub.InRoom(a.ID, padded))
	assert.Len(t, f.hub.Subscribers(padded), 1)

	f.hub.Leave(a, padded)
	assert.False(t, f.hub.InRoom(a.ID, groupID))
	assert.Empty(t, f.hub.Subscribers(groupID))
	assert.Equal(t, 0, f.hub.RoomCount())
}
