// Package limiter gates inbound message volume per connection using a
// rolling timestamp window.
package limiter

import (
	"sync"
	"time"
)

// SlidingWindow admits at most limit events per rolling window for each key.
type SlidingWindow struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewSlidingWindow constructs a limiter allowing up to limit events per window.
// A zero window or limit disables enforcement.
func NewSlidingWindow(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindow {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindow{
		window: window,
		limit:  limit,
		now:    timeSource,
		events: make(map[string][]time.Time),
	}
}

// Allow reports whether the keyed caller may proceed under the current limits.
func (l *SlidingWindow) Allow(key string) bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false
	}
	l.events[key] = append(kept, now)
	return true
}

// Forget drops all recorded events for the key, releasing its memory.
func (l *SlidingWindow) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.events, key)
	l.mu.Unlock()
}
