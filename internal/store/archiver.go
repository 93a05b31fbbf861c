package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/botgate/internal/domain"
	"github.com/ashureev/botgate/internal/shared"
)

// archiveItem is one pending write.
type archiveItem struct {
	event   *domain.Event
	botKey  string
	message *domain.OutboundMessage
}

// Archiver writes events and messages to the repository from a background
// goroutine so delivery paths never block on the database. When the queue
// is full new items are dropped and counted rather than stalling callers.
type Archiver struct {
	repo    Repository
	queue   chan archiveItem
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewArchiver creates an archiver with the given queue size and starts
// its writer goroutine.
func NewArchiver(repo Repository, queueSize int, logger *slog.Logger) *Archiver {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		repo:   repo,
		queue:  make(chan archiveItem, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a
}

// ArchiveEvent enqueues one delivered event. Non-blocking.
func (a *Archiver) ArchiveEvent(ev domain.Event) {
	a.enqueue(archiveItem{event: &ev})
}

// ArchiveMessage enqueues one sent message. Non-blocking.
func (a *Archiver) ArchiveMessage(botKey string, msg domain.OutboundMessage) {
	a.enqueue(archiveItem{botKey: botKey, message: &msg})
}

// Dropped returns how many items were discarded due to a full queue.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Archiver) enqueue(item archiveItem) {
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.queue <- item:
	default:
		n := a.dropped.Add(1)
		if n%100 == 1 {
			a.logger.Warn("archive queue full, dropping", "dropped_total", n)
		}
	}
}

func (a *Archiver) writeLoop() {
	defer a.wg.Done()
	for {
		select {
		case item := <-a.queue:
			a.write(item)
		case <-a.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case item := <-a.queue:
					a.write(item)
				default:
					return
				}
			}
		}
	}
}

// write persists one item, retrying with exponential backoff on SQLite
// concurrency errors.
func (a *Archiver) write(item archiveItem) {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if item.event != nil {
			err = a.repo.SaveEvent(ctx, item.event)
		} else {
			err = a.repo.SaveMessage(ctx, item.botKey, item.message)
		}
		cancel()

		if err == nil {
			return
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			a.logger.Debug("archive write conflict, retrying", "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		a.logger.Error("archive write failed", "error", err)
		return
	}
}

// Close stops accepting new items, flushes the queue, and returns once
// the writer goroutine has exited.
func (a *Archiver) Close() {
	a.once.Do(func() { close(a.done) })
	a.wg.Wait()
}

const retentionWorkerInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically
// prunes archived records older than the retention window.
func StartRetentionWorker(ctx context.Context, repo Repository, retention time.Duration) {
	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionWorkerInterval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupOldEvents(ctx, retention)
				if err != nil {
					slog.Error("Retention worker cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Retention worker pruned archive", "deleted", deleted)
				}
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
