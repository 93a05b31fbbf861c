package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/botgate/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndQueryEvents(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"e1", "e2", "e3"} {
		ev := &domain.Event{
			ID:        id,
			Type:      domain.EventTypeMessage,
			BotKey:    "bot-1",
			From:      "alice",
			Body:      "hello " + id,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}

	got, err := repo.RecentEvents(ctx, "bot-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	// Newest first.
	if got[0].ID != "e3" || got[2].ID != "e1" {
		t.Errorf("Expected newest-first ordering, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].From != "alice" {
		t.Errorf("Expected sender alice, got %q", got[0].From)
	}
}

func TestRecentEventsFiltersByBot(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for _, botKey := range []string{"bot-1", "bot-2"} {
		ev := &domain.Event{
			ID:        "ev-" + botKey,
			Type:      domain.EventTypeMessage,
			BotKey:    botKey,
			Timestamp: time.Now(),
		}
		if err := repo.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}

	got, err := repo.RecentEvents(ctx, "bot-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 1 || got[0].BotKey != "bot-1" {
		t.Errorf("Expected only bot-1 events, got %v", got)
	}
}

func TestSaveEventIsIdempotent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	ev := &domain.Event{
		ID:        "e1",
		Type:      domain.EventTypeMessage,
		BotKey:    "bot-1",
		Timestamp: time.Now(),
	}
	if err := repo.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := repo.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("Duplicate SaveEvent failed: %v", err)
	}

	got, err := repo.RecentEvents(ctx, "bot-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 event after duplicate save, got %d", len(got))
	}
}

func TestSaveMessage(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	msg := &domain.OutboundMessage{
		ID:        "m1",
		To:        "alice",
		Body:      "hi",
		CreatedAt: time.Now(),
	}
	if err := repo.SaveMessage(ctx, "bot-1", msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
}

func TestCleanupOldEvents(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	ev := &domain.Event{
		ID:        "old",
		Type:      domain.EventTypeMessage,
		BotKey:    "bot-1",
		Timestamp: time.Now(),
	}
	if err := repo.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	// Zero retention makes everything archived "before" the cutoff.
	deleted, err := repo.CleanupOldEvents(ctx, -time.Second)
	if err != nil {
		t.Fatalf("CleanupOldEvents failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted event, got %d", deleted)
	}

	got, err := repo.RecentEvents(ctx, "bot-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no events after cleanup, got %d", len(got))
	}
}
