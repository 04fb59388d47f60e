package realtime

import (
	"testing"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, cmd models.Command) []byte {
	t.Helper()
	data, err := models.EncodeCommand(cmd)
	require.NoError(t, err)
	return data
}

func TestHandleFrameJoinAcknowledges(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	drain(a)
	room := models.DirectRoomID(alice, bob)

	require.NoError(t, f.hub.HandleFrame(f.ctx, a, frame(t, models.JoinRoom{RoomID: room})))
	assert.Equal(t, []models.Event{models.RoomJoined{RoomID: room}}, drain(a))

	require.NoError(t, f.hub.HandleFrame(f.ctx, a, frame(t, models.LeaveRoom{RoomID: room})))
	assert.Equal(t, []models.Event{models.RoomLeft{RoomID: room}}, drain(a))
}

func TestHandleFrameReportsErrorsToOriginOnly(t *testing.T) {
	f := newFixture(t)
	owner, eve := f.user(t, "owner"), f.user(t, "eve")
	groupID := f.group(t, owner)
	o := f.hub.Register(owner)
	e := f.hub.Register(eve)
	require.NoError(t, f.hub.Join(f.ctx, o, groupID))
	drain(o)
	drain(e)

	err := f.hub.HandleFrame(f.ctx, e, frame(t, models.SendGroup{SendRequest: models.SendRequest{GroupID: groupID, Body: "hi"}}))
	assert.ErrorIs(t, err, ErrUnauthorized)

	evs := drain(e)
	require.Len(t, evs, 1)
	errEv, ok := evs[0].(models.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, string(CodeUnauthorized), errEv.Code)
	assert.Equal(t, models.CmdSendGroup, errEv.Ref)
	assert.NotEmpty(t, errEv.Detail)

	assert.Empty(t, drain(o))
}

func TestHandleFrameMalformed(t *testing.T) {
	f := newFixture(t)
	a := f.hub.Register(f.user(t, "alice"))
	drain(a)

	for _, raw := range []string{
		`not json`,
		`{"type":"no-such-command","payload":{}}`,
		`{"type":"send-direct","payload":{"body":"missing recipient"}}`,
		`{"type":"mark-read","payload":{}}`,
	} {
		err := f.hub.HandleFrame(f.ctx, a, []byte(raw))
		assert.ErrorIs(t, err, ErrInvalidRequest, raw)
	}

	errs := ofType[models.ErrorEvent](drain(a))
	require.Len(t, errs, 4)
	for _, e := range errs {
		assert.Equal(t, string(CodeInvalidRequest), e.Code)
	}
	assert.Equal(t, models.CmdSendDirect, errs[2].Ref)
}

func TestTypingRequiresJoin(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	b := f.hub.Register(bob)
	room := models.DirectRoomID(alice, bob)
	require.NoError(t, f.hub.Join(f.ctx, b, room))
	drain(a)
	drain(b)

	err := f.hub.Handle(f.ctx, a, &models.Typing{RoomID: room, IsTyping: true})
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.hub.Join(f.ctx, a, room))
	require.NoError(t, f.hub.Handle(f.ctx, a, &models.Typing{RoomID: room, IsTyping: true}))

	assert.Equal(t, []models.Event{models.TypingChanged{RoomID: room, UserID: alice, IsTyping: true}}, drain(b))
	assert.Empty(t, drain(a))
}

func TestHandleSendDirectRoutesThroughPipeline(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	a := f.hub.Register(alice)
	b := f.hub.Register(bob)
	drain(a)
	drain(b)

	data := frame(t, models.SendDirect{SendRequest: models.SendRequest{RecipientID: bob, Body: "via frame"}})
	require.NoError(t, f.hub.HandleFrame(f.ctx, a, data))

	assert.Len(t, ofType[models.Delivered](drain(a)), 1)
	assert.Len(t, ofType[models.Receive](drain(b)), 1)
}

func TestHandleFramePaddedRoomID(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	groupID := f.group(t, alice, bob)
	a := f.hub.Register(alice)
	b := f.hub.Register(bob)
	require.NoError(t, f.hub.Join(f.ctx, b, groupID))
	drain(a)
	drain(b)
	padded := "  " + groupID + "\t"

	require.NoError(t, f.hub.HandleFrame(f.ctx, a, frame(t, models.JoinRoom{RoomID: padded})))
	assert.Equal(t, []models.Event{models.RoomJoined{RoomID: groupID}}, drain(a))

	require.NoError(t, f.hub.HandleFrame(f.ctx, a, frame(t, models.Typing{RoomID: padded, IsTyping: true})))
	assert.Equal(t, []models.Event{models.TypingChanged{RoomID: groupID, UserID: alice, IsTyping: true}}, drain(b))

	require.NoError(t, f.hub.HandleFrame(f.ctx, a, frame(t, models.LeaveRoom{RoomID: padded})))
	assert.Equal(t, []models.Event{models.RoomLeft{RoomID: groupID}}, drain(a))
	assert.False(t, f.hub.InRoom(a.ID, groupID))

	// No longer subscribed, so group typing from bob does not reach alice.
	require.NoError(t, f.hub.Handle(f.ctx, b, &models.Typing{RoomID: groupID, IsTyping: true}))
	assert.Empty(t, drain(a))
}
