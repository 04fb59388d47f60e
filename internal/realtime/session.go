package realtime

import (
	"sync"
	"time"

	"chat-server/internal/models"

	"github.com/google/uuid"
)

// Session is one live connection of a user. The Hub owns it from Register
// to Deregister; the transport only reads Events and watches Done.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	send      chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(userID string, now time.Time, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: now,
		send:        make(chan models.Event, buffer),
		done:        make(chan struct{}),
	}
}

// Events yields the events queued for this session, in enqueue order.
func (s *Session) Events() <-chan models.Event {
	return s.send
}

// Done is closed once the session is deregistered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has been deregistered.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type enqueueResult int

const (
	enqueued enqueueResult = iota
	enqueueClosed
	enqueueFull
)

// enqueue never blocks. The send channel is never closed, so a racing
// deregistration cannot panic a sender.
func (s *Session) enqueue(ev models.Event) enqueueResult {
	if s.Closed() {
		return enqueueClosed
	}
	select {
	case s.send <- ev:
		return enqueued
	default:
		return enqueueFull
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) String() string {
	return s.UserID + "/" + s.ID
}
