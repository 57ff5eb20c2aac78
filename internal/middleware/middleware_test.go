package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	h := rl.Middleware(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)

		if i == 2 {
			var body map[string]map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"]["code"] != "RATE_LIMITED" {
				t.Errorf("Expected RATE_LIMITED, got %q", body["error"]["code"])
			}
			if rr.Header().Get("Retry-After") != "60" {
				t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
			}
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: expected %d, got %d", i+1, want[i], codes[i])
		}
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	if !rl.Allow("a") {
		t.Fatal("first request from a should pass")
	}
	if !rl.Allow("b") {
		t.Fatal("first request from b should pass")
	}
	if rl.Allow("a") {
		t.Error("second request from a should be limited")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	if rl.Allow("a") {
		t.Fatal("second request inside the window should be limited")
	}

	now = now.Add(2 * time.Minute)
	if !rl.Allow("a") {
		t.Error("request after the window should pass")
	}

	now = now.Add(2 * time.Minute)
	rl.sweep()
	if len(rl.visitors) != 0 {
		t.Errorf("Expected stale visitors to be swept, got %d", len(rl.visitors))
	}
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("handler should see a request ID")
	}
	if rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("response ID %q does not match request ID %q", rr.Header().Get(RequestIDHeader), seen)
	}
}

func TestRequestID_KeepsClientID(t *testing.T) {
	h := RequestID(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected abc-123, got %q", got)
	}
}
