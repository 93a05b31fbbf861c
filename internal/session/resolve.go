package session

import (
	"errors"
	"net/http"
)

// SessionHeaderName carries the claimed session key on HTTP requests.
const SessionHeaderName = "X-Botgate-Session"

var (
	// ErrIllegalSession means the claimed key is not in the registry.
	ErrIllegalSession = errors.New("illegal session key")
	// ErrNotAuthenticated means the claimed key resolves to a temporary
	// session; the client must finish authenticating first.
	ErrNotAuthenticated = errors.New("session not authenticated")
)

// ResolveUnread resolves key for a pull-style request. On the first touch
// of an authenticated session it installs the unread decorator under the
// same key; later touches return the existing decorator. The install is
// serialized with all other registry mutations so no two decorators can
// ever exist for one key.
func (m *Manager) ResolveUnread(key string) (*UnreadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrIllegalSession
	}
	switch v := s.(type) {
	case *UnreadSession:
		return v, nil
	case *Authenticated:
		u := NewUnreadSession(v)
		m.sessions[key] = u
		return u, nil
	default:
		return nil, ErrNotAuthenticated
	}
}

// ResolveStream resolves key for a push-style connection. The session is
// returned undecorated; streaming clients consume runtime events directly
// and need no unread buffering.
func (m *Manager) ResolveStream(key string) (*Authenticated, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrIllegalSession
	}
	switch v := s.(type) {
	case *UnreadSession:
		return v.Authenticated, nil
	case *Authenticated:
		return v, nil
	default:
		return nil, ErrNotAuthenticated
	}
}

// KeyFromRequest extracts the claimed session key from an HTTP request:
// header first, then query parameter, then the configured single-session
// key for deployments that serve exactly one bot binding.
func KeyFromRequest(r *http.Request, singleSessionKey string) string {
	if k := r.Header.Get(SessionHeaderName); k != "" {
		return k
	}
	if k := r.URL.Query().Get("session"); k != "" {
		return k
	}
	return singleSessionKey
}
