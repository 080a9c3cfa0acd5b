package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, opts ...Option) *Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	all := append([]Option{WithRate(1, 3), WithTTL(100 * time.Millisecond)}, opts...)
	return New(ctx, all...)
}

func TestAllow_BurstThenReject(t *testing.T) {
	l := newTestLimiter(t)
	for i := range 3 {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed (within burst)", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request 4 should be denied")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("other clients have their own bucket")
	}
}

func TestHooks(t *testing.T) {
	var first, every atomic.Int32
	l := newTestLimiter(t,
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	for range 6 {
		l.allow("10.0.0.1")
	}
	if first.Load() != 1 {
		t.Fatalf("first-denied hook = %d, want 1", first.Load())
	}
	if every.Load() != 3 {
		t.Fatalf("denied hook = %d, want 3", every.Load())
	}
}

func TestCleanup_EvictsIdleClients(t *testing.T) {
	var first atomic.Int32
	l := newTestLimiter(t, WithOnFirstDenied(func(string) { first.Add(1) }))
	for range 4 {
		l.allow("10.0.0.1")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		l.mu.Lock()
		n := len(l.visitors)
		l.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle client was never evicted")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// a fresh bucket and a fresh first-denial log after eviction
	for range 4 {
		l.allow("10.0.0.1")
	}
	if first.Load() != 2 {
		t.Fatalf("first-denied hook = %d, want 2", first.Load())
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLimiter(t, WithRate(0.001, 1))
	var reached atomic.Int32
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
	}))

	req := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/files/a", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	if rec := req("192.0.2.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := req("192.0.2.1:5678")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request from same host = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 should carry Retry-After")
	}
	if rec := req("192.0.2.2:1234"); rec.Code != http.StatusOK {
		t.Fatalf("other host = %d", rec.Code)
	}
	if reached.Load() != 2 {
		t.Fatalf("handler reached %d times, want 2", reached.Load())
	}
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"
	if got := clientKey(r); got != "2001:db8::1" {
		t.Fatalf("clientKey = %q", got)
	}
	r.RemoteAddr = "203.0.113.9"
	if got := clientKey(r); got != "203.0.113.9" {
		t.Fatalf("clientKey without port = %q", got)
	}
}
