// Package session implements session lifecycle management for API clients.
//
// A session is the capability token that scopes all API access. Clients
// start with a temporary session, promote it to an authenticated session
// bound to one bot runtime, and present the session key on every
// subsequent request. The Manager owns the registry of live sessions and
// is the single serialization point for registry mutations.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/ashureev/botgate/internal/bot"
)

// Session is a live entry in the registry.
type Session interface {
	// Key returns the opaque session key. Immutable for the session's lifetime.
	Key() string

	// Close releases any resources the session holds. Closed sessions are
	// terminal; a key is never reused after close.
	Close()
}

// Temporary is an unauthenticated session. It is valid only until it is
// authenticated or its expiry deadline elapses.
type Temporary struct {
	key       string
	createdAt time.Time
}

// Key returns the session key.
func (s *Temporary) Key() string { return s.key }

// CreatedAt returns the creation time used by the reclamation check.
func (s *Temporary) CreatedAt() time.Time { return s.createdAt }

// Close implements Session. A temporary session holds no resources.
func (s *Temporary) Close() {}

// Authenticated is a session bound to exactly one bot runtime. It has no
// expiry and remains valid until explicitly closed.
type Authenticated struct {
	key     string
	binding bot.Binding
}

// Key returns the session key.
func (s *Authenticated) Key() string { return s.key }

// Binding returns the bound bot runtime. The binding is not owned by the
// session: the runtime outlives the session and is never closed here.
func (s *Authenticated) Binding() bot.Binding { return s.binding }

// Close implements Session. The binding is not owned, so there is nothing
// to release.
func (s *Authenticated) Close() {}

// newSessionKey returns a fresh opaque session key.
func newSessionKey() string {
	buf := make([]byte, 16)
	rand.Read(buf) //nolint:errcheck // never fails as of go1.24
	return hex.EncodeToString(buf)
}
