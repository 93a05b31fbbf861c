package session

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestResolveUnreadErrors(t *testing.T) {
	m := NewManager(time.Minute, Hooks{})

	if _, err := m.ResolveUnread("unknown"); err != ErrIllegalSession {
		t.Errorf("Expected ErrIllegalSession for unknown key, got %v", err)
	}

	temp := m.CreateTemporary()
	if _, err := m.ResolveUnread(temp.Key()); err != ErrNotAuthenticated {
		t.Errorf("Expected ErrNotAuthenticated for temporary key, got %v", err)
	}
}

func TestResolveUnreadInstallsDecoratorOnce(t *testing.T) {
	m := NewManager(time.Minute, Hooks{})
	binding := &fakeBinding{key: "bot-1"}
	m.Authenticate("k1", binding)

	first, err := m.ResolveUnread("k1")
	if err != nil {
		t.Fatalf("ResolveUnread failed: %v", err)
	}
	second, err := m.ResolveUnread("k1")
	if err != nil {
		t.Fatalf("ResolveUnread failed: %v", err)
	}
	if first != second {
		t.Error("Expected the same decorator on repeated resolution")
	}

	if _, ok := m.Lookup("k1").(*UnreadSession); !ok {
		t.Error("Expected registry entry to be the decorator after first touch")
	}
}

func TestConcurrentFirstTouchYieldsOneDecorator(t *testing.T) {
	m := NewManager(time.Minute, Hooks{})
	binding := &fakeBinding{key: "bot-1"}
	m.Authenticate("k1", binding)

	const n = 32
	results := make(chan *UnreadSession, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			us, err := m.ResolveUnread("k1")
			if err != nil {
				t.Errorf("ResolveUnread failed: %v", err)
				return
			}
			results <- us
		}()
	}
	wg.Wait()
	close(results)

	var first *UnreadSession
	for us := range results {
		if first == nil {
			first = us
			continue
		}
		if us != first {
			t.Fatal("Concurrent first touch produced two decorators for one key")
		}
	}
}

func TestResolveStreamReturnsUndecoratedSession(t *testing.T) {
	m := NewManager(time.Minute, Hooks{})
	binding := &fakeBinding{key: "bot-1"}
	auth := m.Authenticate("k1", binding)

	got, err := m.ResolveStream("k1")
	if err != nil {
		t.Fatalf("ResolveStream failed: %v", err)
	}
	if got != auth {
		t.Errorf("Expected undecorated session %v, got %v", auth, got)
	}

	// Decoration must be invisible to the stream path.
	if _, err := m.ResolveUnread("k1"); err != nil {
		t.Fatalf("ResolveUnread failed: %v", err)
	}
	got, err = m.ResolveStream("k1")
	if err != nil {
		t.Fatalf("ResolveStream failed: %v", err)
	}
	if got != auth {
		t.Errorf("Expected the same underlying session after decoration, got %v", got)
	}
}

func TestResolveStreamErrors(t *testing.T) {
	m := NewManager(time.Minute, Hooks{})

	if _, err := m.ResolveStream("unknown"); err != ErrIllegalSession {
		t.Errorf("Expected ErrIllegalSession, got %v", err)
	}

	temp := m.CreateTemporary()
	if _, err := m.ResolveStream(temp.Key()); err != ErrNotAuthenticated {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
}

func TestKeyFromRequest(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		query     string
		singleKey string
		want      string
	}{
		{"header wins", "from-header", "from-query", "single", "from-header"},
		{"query fallback", "", "from-query", "single", "from-query"},
		{"single session fallback", "", "", "single", "single"},
		{"no fallback configured", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/api/events"
			if tt.query != "" {
				url += "?session=" + tt.query
			}
			r := httptest.NewRequest("GET", url, nil)
			if tt.header != "" {
				r.Header.Set(SessionHeaderName, tt.header)
			}

			if got := KeyFromRequest(r, tt.singleKey); got != tt.want {
				t.Errorf("Expected key %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPullThenDrainScenario(t *testing.T) {
	m := NewManager(time.Minute, Hooks{})
	binding := &fakeBinding{key: "bot-1"}

	temp := m.CreateTemporary()
	if _, ok := m.Lookup(temp.Key()).(*Temporary); !ok {
		t.Fatal("Expected temporary session after create")
	}

	m.Authenticate(temp.Key(), binding)

	us, err := m.ResolveUnread(temp.Key())
	if err != nil {
		t.Fatalf("ResolveUnread failed: %v", err)
	}
	us.EnqueueUnread(event("e1"))
	us.EnqueueUnread(event("e2"))

	got := us.DrainUnread()
	if len(got) != 2 || got[0].ID != "e1" || got[1].ID != "e2" {
		t.Fatalf("Expected [e1 e2], got %v", got)
	}
	if again := us.DrainUnread(); len(again) != 0 {
		t.Errorf("Expected empty drain, got %d events", len(again))
	}
}
