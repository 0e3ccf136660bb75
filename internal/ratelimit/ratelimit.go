package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrescak/Draftboard-sub002/internal/httpmw"
)

// visitor tracks a single key's limiter and last activity.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is set after the first denial and resets on eviction
	logged bool
}

// Limiter holds per-key rate limiters.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int
	retryAfter  string
	keyFunc     func(*http.Request) string

	onFirstDenied func(key string)
	onDenied      func(key string)
	onCapacity    func()
}

type Option func(*Limiter)

// WithRate sets the refill rate and bucket size. WithRate(10, 50) allows 50
// requests at once, then 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle key stays in the table.
func WithTTL(d time.Duration) Option {
	return func(l *Limiter) { l.ttl = d }
}

// WithMaxVisitors caps the number of tracked keys. New keys beyond the cap
// are denied until eviction frees room.
func WithMaxVisitors(n int) Option {
	return func(l *Limiter) { l.maxVisitors = n }
}

// WithKeyFunc selects what requests are bucketed by. The default is the
// client IP resolved by httpmw.ClientIPWithOptions.
func WithKeyFunc(fn func(*http.Request) string) Option {
	return func(l *Limiter) { l.keyFunc = fn }
}

// WithRetryAfter sets the Retry-After value, in seconds, sent on 429.
func WithRetryAfter(d time.Duration) Option {
	return func(l *Limiter) { l.retryAfter = formatSeconds(d) }
}

// WithOnFirstDenied runs once per key when it is first limited, for logging.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onFirstDenied = fn }
}

// WithOnDenied runs on every denied request, for counters.
func WithOnDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithOnCapacity runs whenever a new key is refused because the table is full.
func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) { l.onCapacity = fn }
}

// New creates a Limiter whose eviction loop stops when ctx is done.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		visitors:    make(map[string]*visitor),
		perSecond:   10,
		burst:       30,
		ttl:         5 * time.Minute,
		maxVisitors: 100_000,
		retryAfter:  "30",
		keyFunc:     func(r *http.Request) string { return httpmw.ClientIPFromContext(r.Context()) },
	}
	for _, o := range opts {
		o(l)
	}
	if l.ttl <= 0 {
		l.ttl = 5 * time.Minute
	}
	go l.cleanup(ctx)
	return l
}

type decision uint8

const (
	allowed decision = iota
	denied
	full
)

func (l *Limiter) decide(key string, now time.Time) (decision, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		if l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
			return full, false
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	if v.limiter.AllowN(now, 1) {
		return allowed, false
	}
	first := !v.logged
	v.logged = true
	return denied, first
}

// Allow reports whether a request for key may proceed. Hooks run outside
// the lock.
func (l *Limiter) Allow(key string) bool {
	d, first := l.decide(key, time.Now())
	switch d {
	case full:
		if l.onCapacity != nil {
			l.onCapacity()
		}
		return false
	case denied:
		if first && l.onFirstDenied != nil {
			l.onFirstDenied(key)
		}
		if l.onDenied != nil {
			l.onDenied(key)
		}
		return false
	}
	return true
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *Limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}
}

// cleanup runs every ttl/2 so entries outlive their ttl by at most half.
func (l *Limiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// Middleware rejects requests over the limit with 429 and the API error body.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.keyFunc(r)) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Retry-After", l.retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			// no detail about limits or refill time
			_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func formatSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
