package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/botgate/internal/domain"
)

// EventHandler consumes one translated chat event.
type EventHandler func(ev domain.Event)

// DeliverFunc is the fallback delivery path for a session key with no
// attached stream, typically "enqueue on the session's unread queue if it
// is decorated". Wired in by main to avoid a dependency cycle between the
// dispatcher and the session manager.
type DeliverFunc func(sessionKey string, ev domain.Event)

// routing state for one registered session key.
type subscription struct {
	botKey  string
	streams map[int64]EventHandler
}

// Dispatcher fans runtime events out to the sessions bound to the
// originating bot. Push-style connections attach a handler per stream;
// everything else is delivered through the DeliverFunc.
type Dispatcher struct {
	mu      sync.RWMutex
	subs    map[string]*subscription // session key -> routing state
	nextID  int64
	deliver DeliverFunc
}

// NewDispatcher creates a dispatcher. deliver may be nil.
func NewDispatcher(deliver DeliverFunc) *Dispatcher {
	return &Dispatcher{
		subs:    make(map[string]*subscription),
		deliver: deliver,
	}
}

// SetDeliver installs the fallback delivery path. Must be called before
// Run; it exists because the session manager and the dispatcher are
// constructed in sequence and reference each other.
func (d *Dispatcher) SetDeliver(deliver DeliverFunc) {
	d.mu.Lock()
	d.deliver = deliver
	d.mu.Unlock()
}

// Subscribe registers a session key for events from the given bot. Called
// by the session manager's authentication hook.
func (d *Dispatcher) Subscribe(sessionKey, botKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sub, ok := d.subs[sessionKey]; ok {
		sub.botKey = botKey
		return
	}
	d.subs[sessionKey] = &subscription{
		botKey:  botKey,
		streams: make(map[int64]EventHandler),
	}
	slog.Info("Event subscription registered", "session", sessionKey, "bot", botKey)
}

// Unsubscribe drops all routing state for a session key. Called when the
// session is closed.
func (d *Dispatcher) Unsubscribe(sessionKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, sessionKey)
}

// Attach adds a push-style stream handler for a session key and returns
// an id for Detach. The second return is false if the key is not
// subscribed.
func (d *Dispatcher) Attach(sessionKey string, h EventHandler) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.subs[sessionKey]
	if !ok {
		return 0, false
	}
	d.nextID++
	sub.streams[d.nextID] = h
	return d.nextID, true
}

// Detach removes a previously attached stream handler.
func (d *Dispatcher) Detach(sessionKey string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sub, ok := d.subs[sessionKey]; ok {
		delete(sub.streams, id)
	}
}

// Dispatch delivers one event to every session subscribed to its bot:
// attached streams get it directly, and the fallback path gets it for
// pull-style buffering.
func (d *Dispatcher) Dispatch(ev domain.Event) {
	type target struct {
		sessionKey string
		handlers   []EventHandler
	}

	d.mu.RLock()
	deliver := d.deliver
	targets := make([]target, 0, len(d.subs))
	for key, sub := range d.subs {
		if sub.botKey != ev.BotKey {
			continue
		}
		t := target{sessionKey: key}
		for _, h := range sub.streams {
			t.handlers = append(t.handlers, h)
		}
		targets = append(targets, t)
	}
	d.mu.RUnlock()

	// Handlers run outside the dispatcher lock; a slow stream must not
	// stall subscription changes.
	for _, t := range targets {
		for _, h := range t.handlers {
			h(ev)
		}
		if deliver != nil {
			deliver(t.sessionKey, ev)
		}
	}
}

// Run pumps events from the runtime feed into Dispatch until the channel
// closes or ctx is done. tap, when non-nil, observes every event exactly
// once before fanout; the archive hangs off it.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Event, tap EventHandler) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				slog.Info("Runtime event feed closed")
				return
			}
			if tap != nil {
				tap(ev)
			}
			d.Dispatch(ev)
		case <-ctx.Done():
			slog.Info("Event dispatcher shutting down", "reason", ctx.Err())
			return
		}
	}
}
