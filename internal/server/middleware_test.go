package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pitchside/pitchside/internal/config"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(1, 3, slog.Default())

	for i := 0; i < 3; i++ {
		if !rl.Allow("ip1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if rl.Allow("ip1") {
		t.Fatal("request allowed past the burst")
	}
	// A different key has its own bucket.
	if !rl.Allow("ip2") {
		t.Fatal("second key shares the first key's bucket")
	}
}

func TestLimitResponds429(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, slog.Default())
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("GET", "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("GET", "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := clientIP(r); got != r.RemoteAddr {
		t.Fatalf("clientIP without header = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("clientIP with forwarded chain = %q", got)
	}
}

// The limiter guards only the credential endpoints; the rest of the API
// stays unthrottled.
func TestRateLimitScopedToAuthRoutes(t *testing.T) {
	hub := NewHub(0, time.Second, slog.Default())
	srv := New(&config.Config{}, nil, nil, hub, NewMetrics(), slog.Default())
	h := srv.Handler()

	for i := 0; i < authRateBurst; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("login attempt %d limited within burst", i)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("login past burst: status = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics throttled: status = %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := NewMetrics()
	m.IncrWSConn()
	m.IncrRooms()
	m.IncrGoals()
	m.IncrGoals()
	m.IncrMatches()
	m.DecrWSConn()

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("metrics not json: %v", err)
	}
	if got["ws_connections"].(float64) != 0 {
		t.Fatalf("ws_connections = %v", got["ws_connections"])
	}
	if got["active_rooms"].(float64) != 1 {
		t.Fatalf("active_rooms = %v", got["active_rooms"])
	}
	if got["total_goals"].(float64) != 2 {
		t.Fatalf("total_goals = %v", got["total_goals"])
	}
	if got["total_matches"].(float64) != 1 {
		t.Fatalf("total_matches = %v", got["total_matches"])
	}
}
