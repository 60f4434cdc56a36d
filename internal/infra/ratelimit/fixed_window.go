// Package ratelimit provides fixed-window request limiters: an in-process
// one and a Redis-backed one shared by every replica.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow counts requests per key in fixed windows held in memory.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
	now     func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option customizes a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// NewFixedWindow allows limit requests per key every period.
// Call Close to stop the background sweep goroutine.
func NewFixedWindow(limit int, period time.Duration, opts ...Option) *FixedWindow {
	if period <= 0 {
		period = time.Minute
	}
	l := &FixedWindow{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.sweep()
	return l
}

// Allow counts one request for key and reports whether it fits the window.
func (l *FixedWindow) Allow(_ context.Context, key string) (domain.RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}

	if w.count >= l.limit {
		return domain.RateDecision{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			RetryAfter: w.resetAt.Sub(now),
		}, nil
	}
	w.count++
	return domain.RateDecision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
	}, nil
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *FixedWindow) sweep() {
	defer close(l.done)
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictExpired()
		}
	}
}

func (l *FixedWindow) evictExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (l *FixedWindow) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
}
