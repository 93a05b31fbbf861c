// Package bot connects botgate to the external bot runtime that holds the
// actual chat network connection and account login.
package bot

import (
	"context"

	"github.com/ashureev/botgate/internal/domain"
)

// Binding is the opaque handle to one bot runtime. Sessions hold a
// non-owning reference to a binding; the runtime outlives the sessions
// acting on its behalf.
type Binding interface {
	// Key returns the stable identity of the bound bot account.
	Key() string

	// Alive reports whether the runtime connection is still usable.
	Alive(ctx context.Context) bool

	// Send delivers an outbound chat message through the runtime.
	Send(ctx context.Context, msg domain.OutboundMessage) error

	// Close releases the runtime connection.
	Close() error
}
