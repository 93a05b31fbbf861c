package session

import (
	"sync"

	"github.com/ashureev/botgate/internal/domain"
)

// UnreadSession decorates an authenticated session with a FIFO buffer of
// events that pull-style clients have not collected yet. Push-style
// transports consume the undecorated session directly and never touch
// the buffer.
//
// Every operation other than the queue operations delegates to the
// wrapped session, so callers cannot tell a decorated session from a
// plain one.
type UnreadSession struct {
	*Authenticated

	mu     sync.Mutex
	unread []domain.Event
}

// NewUnreadSession wraps an authenticated session with an empty unread
// queue. At most one decorator may exist per session key; installation
// goes through Manager.ResolveUnread, which enforces that.
func NewUnreadSession(s *Authenticated) *UnreadSession {
	return &UnreadSession{Authenticated: s}
}

// EnqueueUnread appends an event to the queue. Non-blocking; called by
// the runtime event dispatcher.
func (s *UnreadSession) EnqueueUnread(ev domain.Event) {
	s.mu.Lock()
	s.unread = append(s.unread, ev)
	s.mu.Unlock()
}

// DrainUnread atomically empties the queue and returns its contents in
// arrival order.
func (s *UnreadSession) DrainUnread() []domain.Event {
	s.mu.Lock()
	out := s.unread
	s.unread = nil
	s.mu.Unlock()
	return out
}

// Len reports the number of pending events.
func (s *UnreadSession) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unread)
}

// Close discards any pending events, then delegates.
func (s *UnreadSession) Close() {
	s.mu.Lock()
	s.unread = nil
	s.mu.Unlock()
	s.Authenticated.Close()
}
