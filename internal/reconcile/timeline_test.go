package reconcile

import (
	"testing"
	"time"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func durable(id, sender, body string, at time.Time) *models.Message {
	return &models.Message{ID: id, SenderID: sender, RecipientID: "bob", Kind: models.KindText, Body: body, CreatedAt: at}
}

func TestConfirmationReplacesEchoOnce(t *testing.T) {
	c := &clock{now: t0}
	tl := New("alice", WithClock(c.Now))

	echo := tl.Submit(models.SendRequest{RecipientID: "bob", Body: "hello"})
	assert.True(t, IsLocalID(echo.Message.ID))
	assert.True(t, echo.Pending)

	msg := durable("m1", "alice", "hello", t0.Add(2*time.Second))
	assert.Equal(t, Replaced, tl.Confirm(msg))

	items := tl.Messages()
	require.Len(t, items, 1)
	assert.Equal(t, "m1", items[0].Message.ID)
	assert.False(t, items[0].Pending)

	// The same message arriving again through the room is redundant.
	assert.Equal(t, Dropped, tl.Observe(msg))
	assert.Len(t, tl.Messages(), 1)
	assert.Equal(t, 0, tl.Pending())
}

func TestObserveBeforeConfirm(t *testing.T) {
	c := &clock{now: t0}
	tl := New("alice", WithClock(c.Now))
	tl.Submit(models.SendRequest{RecipientID: "bob", Body: "race"})

	msg := durable("m1", "alice", "race", t0.Add(time.Second))
	assert.Equal(t, Replaced, tl.Observe(msg))
	assert.Equal(t, Dropped, tl.Confirm(msg))
	assert.Len(t, tl.Messages(), 1)
}

func TestNoMatchOutsideWindow(t *testing.T) {
	c := &clock{now: t0}
	tl := New("alice", WithClock(c.Now), WithWindow(5*time.Second))
	tl.Submit(models.SendRequest{RecipientID: "bob", Body: "slow"})

	assert.Equal(t, Appended, tl.Confirm(durable("m1", "alice", "slow", t0.Add(6*time.Second))))
	assert.Len(t, tl.Messages(), 2)
	assert.Equal(t, 1, tl.Pending())
}

func TestMatchRequiresSenderAndBody(t *testing.T) {
	c := &clock{now: t0}
	tl := New("alice", WithClock(c.Now))
	tl.Submit(models.SendRequest{RecipientID: "bob", Body: "hi"})

	assert.Equal(t, Appended, tl.Observe(durable("m1", "bob", "hi", t0)))
	assert.Equal(t, Appended, tl.Observe(durable("m2", "alice", "hi!", t0)))
	assert.Equal(t, 1, tl.Pending())
}

func TestIdenticalSendsMatchOldestFirst(t *testing.T) {
	c := &clock{now: t0}
	tl := New("alice", WithClock(c.Now))
	first := tl.Submit(models.SendRequest{RecipientID: "bob", Body: "ok"})
	c.now = t0.Add(time.Second)
	second := tl.Submit(models.SendRequest{RecipientID: "bob", Body: "ok"})
	assert.NotEqual(t, first.Message.ID, second.Message.ID)

	assert.Equal(t, Replaced, tl.Confirm(durable("m1", "alice", "ok", t0.Add(time.Second))))
	assert.Equal(t, Replaced, tl.Confirm(durable("m2", "alice", "ok", t0.Add(2*time.Second))))

	items := tl.Messages()
	require.Len(t, items, 2)
	assert.Equal(t, "m1", items[0].Message.ID)
	assert.Equal(t, "m2", items[1].Message.ID)
}

func TestFailedEchoIsNeverMatched(t *testing.T) {
	c := &clock{now: t0}
	tl := New("alice", WithClock(c.Now))
	echo := tl.Submit(models.SendRequest{RecipientID: "bob", Body: "nope"})

	assert.True(t, tl.Fail(echo.Message.ID))
	assert.False(t, tl.Fail("local-unknown"))
	assert.Equal(t, 0, tl.Pending())

	assert.Equal(t, Appended, tl.Confirm(durable("m1", "alice", "nope", t0)))

	_, ok := tl.FailOldestPending()
	assert.False(t, ok)
}

func TestApplyPatchesDurableMessages(t *testing.T) {
	tl := New("bob")
	msg := durable("m1", "alice", "v1", t0)

	assert.Equal(t, Appended, tl.Apply(&models.Receive{Message: msg}))
	assert.Equal(t, Patched, tl.Apply(&models.MessageEdited{MessageID: "m1", NewBody: "v2"}))
	assert.Equal(t, Patched, tl.Apply(&models.ReadReceipt{MessageID: "m1", ReaderID: "bob"}))
	assert.Equal(t, Patched, tl.Apply(&models.ReactionChanged{MessageID: "m1", Reactions: []models.Reaction{{UserID: "bob", Emoji: "🎉"}}}))
	assert.Equal(t, Ignored, tl.Apply(&models.MessageDeleted{MessageID: "unknown"}))
	assert.Equal(t, Ignored, tl.Apply(&models.TypingChanged{RoomID: "x"}))

	got := tl.Messages()[0].Message
	assert.Equal(t, "v2", got.Body)
	assert.True(t, got.IsEdited)
	assert.True(t, got.Read)
	assert.Len(t, got.Reactions, 1)

	assert.Equal(t, Patched, tl.Apply(&models.MessageDeleted{MessageID: "m1"}))
	got = tl.Messages()[0].Message
	assert.True(t, got.IsDeleted)
	assert.Empty(t, got.Body)
}
