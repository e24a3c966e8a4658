// Package timers provides keyed, cancellable one-shot timers with
// replace-don't-stack semantics. Scheduling a timer for a key that already
// has one pending first cancels the old timer, and a cancelled timer is
// guaranteed never to run its callback.
package timers

import (
	"sync"
	"time"
)

// Kind distinguishes the independently scheduled timer families.
type Kind string

const (
	// KindSessionIdle fires when a session sees no qualifying activity.
	KindSessionIdle Kind = "session_idle"
	// KindEmptyTeardown fires after the last connected human drops.
	KindEmptyTeardown Kind = "empty_teardown"
	// KindPlayerReversion fires when a disconnected slot is converted to a stand-in.
	KindPlayerReversion Kind = "player_reversion"
)

// Key identifies one pending timer. PlayerID is zero for session-scoped kinds.
type Key struct {
	Kind      Kind
	SessionID string
	PlayerID  int
}

// SessionKey builds a key for a session-scoped timer kind.
func SessionKey(kind Kind, sessionID string) Key {
	return Key{Kind: kind, SessionID: sessionID}
}

// PlayerKey builds a key for a player-reversion timer.
func PlayerKey(sessionID string, playerID int) Key {
	return Key{Kind: KindPlayerReversion, SessionID: sessionID, PlayerID: playerID}
}

// StopFunc cancels a started timer; it reports whether the timer had not fired.
type StopFunc func() bool

// StartFunc arms a one-shot timer. The default implementation is time.AfterFunc.
type StartFunc func(delay time.Duration, fire func()) StopFunc

// Option configures optional Scheduler behaviour at construction time.
type Option func(*Scheduler)

// WithStartFunc overrides the timer mechanism; primarily used in tests.
func WithStartFunc(start StartFunc) Option {
	return func(s *Scheduler) {
		if start != nil {
			s.start = start
		}
	}
}

type entry struct {
	generation uint64
	stop       StopFunc
}

// Scheduler owns every pending timer handle, keyed by (kind, scope).
type Scheduler struct {
	mu      sync.Mutex
	start   StartFunc
	entries map[Key]*entry
	nextGen uint64
}

// NewScheduler constructs a scheduler backed by real timers unless overridden.
func NewScheduler(opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		start: func(delay time.Duration, fire func()) StopFunc {
			timer := time.AfterFunc(delay, fire)
			return timer.Stop
		},
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(scheduler)
		}
	}
	return scheduler
}

// Schedule arms fn to run once after delay, replacing any pending timer for key.
// Callbacks must re-validate their precondition against current state: the
// world may have changed between scheduling and firing.
func (s *Scheduler) Schedule(key Key, delay time.Duration, fn func()) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	//1.- A nil stop means the superseded entry is still arming; the generation
	// check below stops its timer as soon as its start returns.
	if existing, ok := s.entries[key]; ok && existing.stop != nil {
		existing.stop()
	}
	s.nextGen++
	generation := s.nextGen
	pending := &entry{generation: generation}
	s.entries[key] = pending
	s.mu.Unlock()

	stop := s.start(delay, func() {
		//1.- Confirm this firing still owns the key before running the callback,
		// so a stop that raced the underlying timer stays a no-op.
		s.mu.Lock()
		current, ok := s.entries[key]
		if !ok || current.generation != generation {
			s.mu.Unlock()
			return
		}
		delete(s.entries, key)
		s.mu.Unlock()
		fn()
	})

	s.mu.Lock()
	if current, ok := s.entries[key]; ok && current.generation == generation {
		current.stop = stop
	} else {
		stop()
	}
	s.mu.Unlock()
}

// Cancel stops the pending timer for key, reporting whether one was pending.
func (s *Scheduler) Cancel(key Key) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	if pending.stop != nil {
		pending.stop()
	}
	return true
}

// CancelSession stops every timer scoped to the session, returning the count.
func (s *Scheduler) CancelSession(sessionID string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for key, pending := range s.entries {
		if key.SessionID != sessionID {
			continue
		}
		delete(s.entries, key)
		if pending.stop != nil {
			pending.stop()
		}
		cancelled++
	}
	return cancelled
}

// Pending reports whether a timer is armed for key.
func (s *Scheduler) Pending(key Key) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Active returns the number of armed timers across all keys.
func (s *Scheduler) Active() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
