package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		run   func(t *testing.T, rl *RateLimiter)
	}{
		{
			name:  "allows up to the limit then denies",
			limit: 3,
			run: func(t *testing.T, rl *RateLimiter) {
				for i := 0; i < 3; i++ {
					if !rl.Allow("1.2.3.4") {
						t.Fatalf("Expected request %d to be allowed", i+1)
					}
				}
				if rl.Allow("1.2.3.4") {
					t.Error("Expected request over the limit to be denied")
				}
			},
		},
		{
			name:  "window expiry readmits the client",
			limit: 1,
			run: func(t *testing.T, rl *RateLimiter) {
				if !rl.Allow("1.2.3.4") {
					t.Fatal("Expected first request to be allowed")
				}
				if rl.Allow("1.2.3.4") {
					t.Fatal("Expected second request in the window to be denied")
				}
				time.Sleep(60 * time.Millisecond)
				if !rl.Allow("1.2.3.4") {
					t.Error("Expected request after the window elapsed to be allowed")
				}
			},
		},
		{
			name:  "keys are throttled independently",
			limit: 1,
			run: func(t *testing.T, rl *RateLimiter) {
				if !rl.Allow("1.2.3.4") {
					t.Fatal("Expected first key to be allowed")
				}
				if !rl.Allow("5.6.7.8") {
					t.Error("Expected a different key to have its own budget")
				}
				if rl.Allow("1.2.3.4") {
					t.Error("Expected exhausted key to stay denied")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.limit, 50*time.Millisecond)
			tt.run(t, rl)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"host and port", "10.0.0.1:54321", "10.0.0.1"},
		{"bare host", "10.0.0.1", "10.0.0.1"},
		{"ipv6 with port", "[::1]:8080", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if got := clientIP(r); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
