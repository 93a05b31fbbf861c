package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/botgate/internal/bot"
)

// SubscribeFunc is invoked when a session is authenticated so the bot
// runtime's event feed starts forwarding events for that session key.
type SubscribeFunc func(sessionKey string, binding bot.Binding)

// Hooks couples the manager to the event-subscription mechanism. The
// hooks are injected at construction so the manager never reaches out to
// any global context; either field may be nil. Hooks run while the
// registry lock is held so their invocation order always matches the
// order of registry mutations; they must not call back into the Manager.
type Hooks struct {
	Subscribe   SubscribeFunc
	Unsubscribe func(sessionKey string)
}

// Manager owns the registry of live sessions. All registry mutations go
// through the manager and are serialized by a single mutex; lookups run
// concurrently under the read lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]Session
	timeout  time.Duration
	hooks    Hooks
}

// NewManager creates a session manager. Temporary sessions that are not
// authenticated within timeout are reclaimed.
func NewManager(timeout time.Duration, hooks Hooks) *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		timeout:  timeout,
		hooks:    hooks,
	}
}

// CreateTemporary allocates a fresh unique key, registers a temporary
// session under it, and arms a one-shot reclamation timer.
func (m *Manager) CreateTemporary() *Temporary {
	m.mu.Lock()
	key := newSessionKey()
	for _, exists := m.sessions[key]; exists; _, exists = m.sessions[key] {
		key = newSessionKey()
	}
	s := &Temporary{key: key, createdAt: time.Now()}
	m.sessions[key] = s
	m.mu.Unlock()

	time.AfterFunc(m.timeout, func() { m.reap(key) })

	slog.Info("Temporary session created", "session", key, "timeout", m.timeout)
	return s
}

// reap evicts the entry at key if it is still present and still temporary.
// Authentication racing the timer wins by replacing the entry first: the
// timer then observes an authenticated session and does nothing.
func (m *Manager) reap(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, temp := s.(*Temporary); !temp {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, key)
	m.mu.Unlock()

	s.Close()
	slog.Info("Temporary session expired", "session", key)
}

// Authenticate installs an authenticated session bound to binding under
// key, closing and evicting any existing entry first. It always succeeds:
// an absent key simply gets a fresh entry. The subscribe hook is invoked
// so future runtime events reach this key.
func (m *Manager) Authenticate(key string, binding bot.Binding) *Authenticated {
	auth := &Authenticated{key: key, binding: binding}

	m.mu.Lock()
	prev := m.sessions[key]
	m.sessions[key] = auth
	if m.hooks.Subscribe != nil {
		m.hooks.Subscribe(key, binding)
	}
	m.mu.Unlock()

	// Teardown of the replaced entry happens outside the registry lock.
	if prev != nil {
		prev.Close()
	}

	slog.Info("Session authenticated", "session", key, "bot", binding.Key())
	return auth
}

// Lookup returns the live entry for key, or nil if absent. It never
// observes a partially updated entry.
func (m *Manager) Lookup(key string) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[key]
}

// CloseSession removes the entry at key and closes it. Closing an absent
// key is a no-op. Removal and close are atomic with respect to other
// registry mutations: once removed, no caller can resolve the key again.
func (m *Manager) CloseSession(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
		if m.hooks.Unsubscribe != nil && !isTemporary(s) {
			m.hooks.Unsubscribe(key)
		}
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Close()
	slog.Info("Session closed", "session", key)
}

func isTemporary(s Session) bool {
	_, ok := s.(*Temporary)
	return ok
}

// CloseAll closes every registered session. Used at process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	closing := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		closing = append(closing, s)
		if m.hooks.Unsubscribe != nil && !isTemporary(s) {
			m.hooks.Unsubscribe(s.Key())
		}
	}
	m.sessions = make(map[string]Session)
	m.mu.Unlock()

	for _, s := range closing {
		s.Close()
	}
	if len(closing) > 0 {
		slog.Info("All sessions closed", "count", len(closing))
	}
}

// ListAuthenticated returns every authenticated session, decorated or
// not, for operations that broadcast across all live bot bindings.
func (m *Manager) ListAuthenticated() []*Authenticated {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Authenticated, 0, len(m.sessions))
	for _, s := range m.sessions {
		switch v := s.(type) {
		case *Authenticated:
			out = append(out, v)
		case *UnreadSession:
			out = append(out, v.Authenticated)
		}
	}
	return out
}
