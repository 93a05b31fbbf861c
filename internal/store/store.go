// Package store provides the event and message archive.
//
// Sessions themselves are never persisted; the registry is purely
// in-memory. The archive keeps a queryable history of delivered events
// and sent messages for debugging and audit.
package store

import (
	"context"
	"time"

	"github.com/ashureev/botgate/internal/domain"
)

// Repository defines the interface for the chat archive.
type Repository interface {
	// SaveEvent records one delivered chat event.
	SaveEvent(ctx context.Context, ev *domain.Event) error

	// SaveMessage records one outbound message sent through a binding.
	SaveMessage(ctx context.Context, botKey string, msg *domain.OutboundMessage) error

	// RecentEvents returns up to limit events for a bot, newest first.
	RecentEvents(ctx context.Context, botKey string, limit int) ([]*domain.Event, error)

	// CleanupOldEvents removes archived records older than the retention
	// window and returns how many were deleted.
	CleanupOldEvents(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
