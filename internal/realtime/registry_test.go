package realtime

import (
	"testing"
	"time"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSendsSnapshotFirst(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	f.hub.Register(alice)
	s := f.hub.Register(bob)

	evs := drain(s)
	require.NotEmpty(t, evs)
	snap, ok := evs[0].(models.OnlineUsersSnapshot)
	require.True(t, ok, "first event must be the snapshot, got %T", evs[0])

	var ids []string
	for _, rec := range snap.Users {
		ids = append(ids, rec.UserID)
		assert.True(t, rec.IsOnline)
	}
	assert.ElementsMatch(t, []string{alice, bob}, ids)
}

func TestPresenceFollowsSessionCount(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	observer := f.hub.Register(bob)
	drain(observer)

	tab1 := f.hub.Register(alice)
	tab2 := f.hub.Register(alice)
	assert.True(t, f.hub.IsOnline(alice))

	changes := ofType[models.PresenceChanged](drain(observer))
	require.Len(t, changes, 1, "a second tab must not announce again")
	assert.Equal(t, alice, changes[0].UserID)
	assert.True(t, changes[0].IsOnline)

	f.clock.Advance(time.Minute)
	f.hub.Deregister(tab1.ID)
	assert.True(t, f.hub.IsOnline(alice))
	assert.Empty(t, ofType[models.PresenceChanged](drain(observer)))

	f.clock.Advance(time.Minute)
	f.hub.Deregister(tab2.ID)
	assert.False(t, f.hub.IsOnline(alice))

	changes = ofType[models.PresenceChanged](drain(observer))
	require.Len(t, changes, 1)
	assert.False(t, changes[0].IsOnline)
	assert.Equal(t, f.clock.Now(), changes[0].LastSeen)

	rec, found, err := f.hub.Presence(f.ctx, alice)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, rec.IsOnline)
	assert.Equal(t, f.clock.Now(), rec.LastSeen)
}

func TestDeregisterIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	observer := f.hub.Register(bob)
	s := f.hub.Register(alice)
	drain(observer)

	f.hub.Deregister(s.ID)
	f.hub.Deregister(s.ID)
	f.hub.Deregister("no-such-session")

	assert.True(t, s.Closed())
	assert.Len(t, ofType[models.PresenceChanged](drain(observer)), 1)
	assert.Equal(t, 1, f.hub.SessionCount())
}

func TestDeregisteredSessionGetsNoFanout(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	a := f.hub.Register(alice)
	b := f.hub.Register(bob)
	room := models.DirectRoomID(alice, bob)
	require.NoError(t, f.hub.Join(f.ctx, b, room))

	f.hub.Deregister(b.ID)
	drain(b)

	_, err := f.hub.Send(f.ctx, a, models.SendRequest{RecipientID: bob, Body: "hi"})
	require.NoError(t, err)
	assert.Empty(t, drain(b))
	assert.Equal(t, 0, f.hub.RoomCount())
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	f := newFixture(t)
	f.hub.cfg.SendBuffer = 2
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	slow := f.hub.Register(bob) // snapshot takes one slot
	a := f.hub.Register(alice)  // presence-changed takes the other
	drain(a)

	_, err := f.hub.Send(f.ctx, a, models.SendRequest{RecipientID: bob, Body: "one"})
	require.NoError(t, err)

	assert.True(t, slow.Closed())
	assert.False(t, f.hub.IsOnline(bob))

	changes := ofType[models.PresenceChanged](drain(a))
	require.Len(t, changes, 1)
	assert.Equal(t, bob, changes[0].UserID)
	assert.False(t, changes[0].IsOnline)
}

func TestActivityPingIsThrottled(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	f.hub.Register(alice)

	assert.False(t, f.hub.RecordActivity(alice), "connect already counts as activity")

	f.clock.Advance(f.hub.cfg.ActivityInterval)
	assert.True(t, f.hub.RecordActivity(alice))

	f.clock.Advance(time.Second)
	assert.False(t, f.hub.RecordActivity(alice))

	rec, _, err := f.hub.Presence(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(-time.Second), rec.LastActivity)

	assert.False(t, f.hub.RecordActivity("offline-user"))
}

func TestCloseDeregistersEverything(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	b := f.hub.Register(bob)

	f.hub.Close()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Equal(t, 0, f.hub.SessionCount())
	assert.Empty(t, f.hub.OnlineUsers())
}
