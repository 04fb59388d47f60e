package realtime

import (
	"testing"
	"time"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directPair(t *testing.T, f *fixture) (a, b *Session, msg *models.Message) {
	t.Helper()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a = f.hub.Register(alice)
	b = f.hub.Register(bob)

	msg, err := f.hub.Send(f.ctx, a, models.SendRequest{RecipientID: bob, Body: "original"})
	require.NoError(t, err)
	drain(a)
	drain(b)
	return a, b, msg
}

func TestEditWithinWindowBySender(t *testing.T) {
	f := newFixture(t)
	a, b, msg := directPair(t, f)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.hub.Edit(f.ctx, a, msg.ID, "fixed"))

	for _, s := range []*Session{a, b} {
		edits := ofType[models.MessageEdited](drain(s))
		require.Len(t, edits, 1)
		assert.Equal(t, models.MessageEdited{MessageID: msg.ID, NewBody: "fixed"}, edits[0])
	}

	stored, err := f.db.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEdited)
	assert.Equal(t, "fixed", stored.Body)
}

func TestEditRejections(t *testing.T) {
	f := newFixture(t)
	a, b, msg := directPair(t, f)

	err := f.hub.Edit(f.ctx, b, msg.ID, "not mine")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.hub.Edit(f.ctx, a, msg.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = f.hub.Edit(f.ctx, a, msg.ID, "bad\xff")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = f.hub.Edit(f.ctx, a, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.db.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsEdited)

	f.clock.Advance(f.hub.cfg.EditWindow)
	err = f.hub.Edit(f.ctx, a, msg.ID, "too late")
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Empty(t, drain(a))
	assert.Empty(t, drain(b))
}

func TestSoftDeleteBySenderRedacts(t *testing.T) {
	f := newFixture(t)
	a, b, msg := directPair(t, f)

	assert.ErrorIs(t, f.hub.SoftDelete(f.ctx, b, msg.ID), ErrUnauthorized)
	require.NoError(t, f.hub.SoftDelete(f.ctx, a, msg.ID))

	assert.Len(t, ofType[models.MessageDeleted](drain(b)), 1)

	stored, err := f.db.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Empty(t, stored.Body)

	assert.ErrorIs(t, f.hub.AddReaction(f.ctx, b, msg.ID, "👍"), ErrNotFound)
	assert.ErrorIs(t, f.hub.Edit(f.ctx, a, msg.ID, "again"), ErrNotFound)
}

func TestSoftDeleteByGroupModerator(t *testing.T) {
	f := newFixture(t)
	owner, bob, mod := f.user(t, "owner"), f.user(t, "bob"), f.user(t, "mod")
	groupID := f.group(t, owner, bob)
	require.NoError(t, f.db.AddMembership(f.ctx, mod, groupID, models.RoleModerator))

	b := f.hub.Register(bob)
	m := f.hub.Register(mod)
	o := f.hub.Register(owner)
	for _, s := range []*Session{b, m, o} {
		require.NoError(t, f.hub.Join(f.ctx, s, groupID))
	}

	msg, err := f.hub.Send(f.ctx, o, models.SendRequest{GroupID: groupID, Body: "spam"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.hub.SoftDelete(f.ctx, b, msg.ID), ErrUnauthorized)

	drain(b)
	drain(m)
	drain(o)
	require.NoError(t, f.hub.SoftDelete(f.ctx, m, msg.ID))

	for _, s := range []*Session{b, m, o} {
		assert.Len(t, ofType[models.MessageDeleted](drain(s)), 1)
	}
}

func TestMarkReadDirectAndGroup(t *testing.T) {
	f := newFixture(t)
	a, b, msg := directPair(t, f)

	assert.ErrorIs(t, f.hub.MarkRead(f.ctx, a, msg.ID), ErrUnauthorized)
	require.NoError(t, f.hub.MarkRead(f.ctx, b, msg.ID))

	receipts := ofType[models.ReadReceipt](drain(a))
	require.Len(t, receipts, 1)
	assert.Equal(t, b.UserID, receipts[0].ReaderID)

	stored, err := f.db.GetMessage(f.ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)

	groupID := f.group(t, a.UserID, b.UserID)
	gm, err := f.hub.Send(f.ctx, a, models.SendRequest{GroupID: groupID, Body: "all"})
	require.NoError(t, err)
	require.NoError(t, f.hub.MarkRead(f.ctx, b, gm.ID))
	require.NoError(t, f.hub.MarkRead(f.ctx, b, gm.ID))

	stored, err = f.db.GetMessage(f.ctx, gm.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.UserID}, stored.ReadBy)
	assert.False(t, stored.Read)
}

func TestReactionsAddAndRemove(t *testing.T) {
	f := newFixture(t)
	a, b, msg := directPair(t, f)

	require.NoError(t, f.hub.AddReaction(f.ctx, b, msg.ID, "👍"))
	require.NoError(t, f.hub.AddReaction(f.ctx, b, msg.ID, "👍"))

	changes := ofType[models.ReactionChanged](drain(a))
	require.Len(t, changes, 2)
	assert.Equal(t, []models.Reaction{{UserID: b.UserID, Emoji: "👍"}}, changes[1].Reactions)

	require.NoError(t, f.hub.RemoveReaction(f.ctx, b, msg.ID, "👍"))
	changes = ofType[models.ReactionChanged](drain(a))
	require.Len(t, changes, 1)
	assert.Empty(t, changes[0].Reactions)

	assert.ErrorIs(t, f.hub.AddReaction(f.ctx, b, msg.ID, ""), ErrInvalidRequest)

	eve := f.hub.Register(f.user(t, "eve"))
	assert.ErrorIs(t, f.hub.AddReaction(f.ctx, eve, msg.ID, "👀"), ErrUnauthorized)
}

func TestPinRules(t *testing.T) {
	f := newFixture(t)
	a, b, msg := directPair(t, f)

	require.NoError(t, f.hub.SetPinned(f.ctx, b, msg.ID, true))
	pins := ofType[models.MessagePinned](drain(a))
	require.Len(t, pins, 1)
	assert.True(t, pins[0].IsPinned)

	groupID := f.group(t, a.UserID, b.UserID)
	gm, err := f.hub.Send(f.ctx, b, models.SendRequest{GroupID: groupID, Body: "pin me"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.hub.SetPinned(f.ctx, b, gm.ID, true), ErrUnauthorized)
	require.NoError(t, f.hub.SetPinned(f.ctx, a, gm.ID, true))
}
