package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/httpmw"
)

func newLimiter(t *testing.T, opts ...Option) *Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, opts...)
}

func TestAllow_BurstThenDeny(t *testing.T) {
	var first, every []string
	l := newLimiter(t,
		WithRate(0.0001, 3),
		WithOnFirstDenied(func(k string) { first = append(first, k) }),
		WithOnDenied(func(k string) { every = append(every, k) }),
	)

	for i := range 3 {
		if !l.Allow("203.0.113.1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	for range 3 {
		if l.Allow("203.0.113.1") {
			t.Fatal("request allowed past burst")
		}
	}
	if len(first) != 1 || len(every) != 3 {
		t.Fatalf("first = %v every = %v", first, every)
	}
	if !l.Allow("203.0.113.2") {
		t.Fatal("independent key was limited")
	}
}

func TestAllow_Capacity(t *testing.T) {
	var full atomic.Int32
	l := newLimiter(t, WithMaxVisitors(2), WithOnCapacity(func() { full.Add(1) }))

	if !l.Allow("a") || !l.Allow("b") {
		t.Fatal("keys under the cap denied")
	}
	if l.Allow("c") {
		t.Fatal("key past the cap allowed")
	}
	if !l.Allow("a") {
		t.Fatal("known key denied at capacity")
	}
	if full.Load() != 1 || l.Len() != 2 {
		t.Fatalf("capacity hits = %d len = %d", full.Load(), l.Len())
	}
}

func TestEvict(t *testing.T) {
	l := newLimiter(t, WithTTL(time.Minute), WithRate(0.0001, 1))
	l.Allow("old")
	l.Allow("old") // denied, marks logged
	l.mu.Lock()
	l.visitors["old"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()
	l.Allow("fresh")

	l.evict(time.Now())
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	// evicted key starts with a full bucket again
	if !l.Allow("old") {
		t.Fatal("evicted key still limited")
	}
}

func TestCleanupLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx, WithTTL(20*time.Millisecond))
	l.Allow("x")
	deadline := time.Now().Add(2 * time.Second)
	for l.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if l.Len() != 0 {
		t.Fatal("idle key never evicted")
	}
}

func TestMiddleware(t *testing.T) {
	l := newLimiter(t, WithRate(0.0001, 1), WithRetryAfter(1500*time.Millisecond))
	h := httpmw.ClientIP(l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func(remote string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sites/sign", http.NoBody)
		req.RemoteAddr = remote
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("198.51.100.1:1000"); rec.Code != http.StatusNoContent {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do("198.51.100.1:2000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if rec.Body.String() != `{"error":{"code":"rate_limited","message":"too many requests"}}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec := do("198.51.100.2:1000"); rec.Code != http.StatusNoContent {
		t.Fatalf("other client = %d", rec.Code)
	}
}

func TestMiddleware_KeyFunc(t *testing.T) {
	l := newLimiter(t, WithRate(0.0001, 1), WithKeyFunc(func(r *http.Request) string {
		return r.Header.Get("X-Owner")
	}))
	h := l.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	codes := make([]int, 0, 3)
	for _, owner := range []string{"alice", "alice", "bob"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sites/init", http.NoBody)
		req.Header.Set("X-Owner", owner)
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusOK {
		t.Fatalf("codes = %v", codes)
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := newLimiter(t, WithRate(0.0001, 50))
	var ok atomic.Int32
	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := ok.Load(); got != 50 {
		t.Fatalf("allowed = %d, want 50", got)
	}
}

func TestFormatSeconds(t *testing.T) {
	for d, want := range map[time.Duration]string{0: "1", time.Second: "1", 1500 * time.Millisecond: "2", time.Minute: "60"} {
		if got := formatSeconds(d); got != want {
			t.Errorf("formatSeconds(%v) = %q, want %q", d, got, want)
		}
	}
}
