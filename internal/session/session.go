// Package session owns the in-memory store of active matches and the
// player-slot state machine. All mutation funnels through Store methods so
// the rest of the coordinator observes sessions only through snapshots.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"encoding/json"

	"github.com/google/uuid"
)

// Capacity fixes the number of player slots a session may hold.
const Capacity = 4

var (
	// ErrNotFound is returned when an operation references an unknown session.
	ErrNotFound = errors.New("session not found")
	// ErrSessionLimit indicates the global session ceiling has been reached.
	ErrSessionLimit = errors.New("session limit reached")
	// ErrUnknownPlayer is returned when a player id has no slot in the session.
	ErrUnknownPlayer = errors.New("player slot not found")
)

// SlotState enumerates the mutually exclusive player-slot states.
type SlotState int

const (
	// SlotConnected means a human occupies the slot with a live binding.
	SlotConnected SlotState = iota
	// SlotDisconnected means the binding is lost but the slot may be reclaimed.
	SlotDisconnected
	// SlotAutomated is the terminal stand-in state; the slot cannot be reclaimed.
	SlotAutomated
)

func (s SlotState) String() string {
	switch s {
	case SlotConnected:
		return "connected"
	case SlotDisconnected:
		return "disconnected"
	case SlotAutomated:
		return "automated"
	default:
		return "unknown"
	}
}

// PlayerSlot is one seat in a session. Slots are created on join and survive
// until the session is destroyed; vacated seats become stand-ins instead of
// being removed.
type PlayerSlot struct {
	ID         int
	Name       string
	Credential string
	State      SlotState
	Deck       []string
	Team       int
	Ready      bool
}

// Session is one in-progress match and its coordinator-side state. The game
// state blob is opaque: stored, size-checked, sanitized, never interpreted.
type Session struct {
	ID               string
	Slots            []*PlayerSlot
	GameState        json.RawMessage
	Mode             string
	Private          bool
	GameStarted      bool
	ReadyCheckActive bool
	CreatedAt        time.Time
	LastActive       time.Time
}

// SlotView is the externally visible snapshot of a player slot.
type SlotView struct {
	ID    int      `json:"id"`
	Name  string   `json:"name"`
	State string   `json:"state"`
	Team  int      `json:"team,omitempty"`
	Ready bool     `json:"ready,omitempty"`
	Deck  []string `json:"deck"`
}

// View is the full-state document broadcast to a session's connections.
type View struct {
	GameID             string          `json:"gameId"`
	Players            []SlotView      `json:"players"`
	Mode               string          `json:"mode,omitempty"`
	IsPrivate          bool            `json:"isPrivate"`
	IsGameStarted      bool            `json:"isGameStarted"`
	IsReadyCheckActive bool            `json:"isReadyCheckActive"`
	GameState          json.RawMessage `json:"gameState,omitempty"`
}

// Listing summarises a session for the public games list.
type Listing struct {
	ID                 string `json:"id"`
	HumanOccupantCount int    `json:"humanOccupantCount"`
	Private            bool   `json:"-"`
}

// Option configures optional Store behaviour at construction time.
type Option func(*Store)

// WithClock overrides the wall-clock time source; primarily used in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithCredentialFactory overrides how slot credentials are minted.
func WithCredentialFactory(factory func() string) Option {
	return func(s *Store) {
		if factory != nil {
			s.newCredential = factory
		}
	}
}

// WithMaxSessions bounds how many sessions may exist at once. Zero disables it.
func WithMaxSessions(limit int) Option {
	return func(s *Store) {
		if limit >= 0 {
			s.maxSessions = limit
		}
	}
}

// Store is the single owner of session state mutation.
type Store struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	maxSessions   int
	now           func() time.Time
	newCredential func() string
}

// NewStore constructs an empty session store.
func NewStore(opts ...Option) *Store {
	store := &Store{
		sessions:      make(map[string]*Session),
		now:           time.Now,
		newCredential: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Ensure returns the session with the given id, creating it when absent.
// Creation is subject to the global session ceiling.
func (s *Store) Ensure(id string) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return false, nil
	}
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return false, ErrSessionLimit
	}
	now := s.now()
	s.sessions[id] = &Session{ID: id, CreatedAt: now, LastActive: now}
	return true, nil
}

// Exists reports whether the session id is known.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Remove deletes the session and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Touch records qualifying activity on the session.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActive = s.now()
	}
	s.mu.Unlock()
}

// LastActive returns the session's most recent qualifying-activity time.
func (s *Store) LastActive(id string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return sess.LastActive, nil
}

// ConnectedHumans counts slots currently in the Connected state.
func (s *Store) ConnectedHumans(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0
	}
	return countConnectedLocked(sess)
}

func countConnectedLocked(sess *Session) int {
	connected := 0
	for _, slot := range sess.Slots {
		if slot.State == SlotConnected {
			connected++
		}
	}
	return connected
}

// View builds the broadcastable full-state document for the session.
func (s *Store) View(id string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return View{}, ErrNotFound
	}
	view := View{
		GameID:             sess.ID,
		Mode:               sess.Mode,
		IsPrivate:          sess.Private,
		IsGameStarted:      sess.GameStarted,
		IsReadyCheckActive: sess.ReadyCheckActive,
		Players:            make([]SlotView, 0, len(sess.Slots)),
	}
	if len(sess.GameState) > 0 {
		view.GameState = append(json.RawMessage(nil), sess.GameState...)
	}
	for _, slot := range sess.Slots {
		view.Players = append(view.Players, SlotView{
			ID:    slot.ID,
			Name:  slot.Name,
			State: slot.State.String(),
			Team:  slot.Team,
			Ready: slot.Ready,
			Deck:  append([]string(nil), slot.Deck...),
		})
	}
	return view, nil
}

// Listings summarises every session for the public games list. Private
// sessions are included; the caller decides whether to filter them.
func (s *Store) Listings() []Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	listings := make([]Listing, 0, len(s.sessions))
	for _, sess := range s.sessions {
		listings = append(listings, Listing{
			ID:                 sess.ID,
			HumanOccupantCount: countConnectedLocked(sess),
			Private:            sess.Private,
		})
	}
	return listings
}

// SlotSnapshot returns a copy of the identified slot.
func (s *Store) SlotSnapshot(id string, playerID int) (PlayerSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return PlayerSlot{}, ErrNotFound
	}
	slot := findSlotLocked(sess, playerID)
	if slot == nil {
		return PlayerSlot{}, ErrUnknownPlayer
	}
	clone := *slot
	clone.Deck = append([]string(nil), slot.Deck...)
	return clone, nil
}

func findSlotLocked(sess *Session, playerID int) *PlayerSlot {
	for _, slot := range sess.Slots {
		if slot.ID == playerID {
			return slot
		}
	}
	return nil
}

func defaultName(id int) string { return fmt.Sprintf("Player %d", id) }

// StandinName is the display name given to automated slots.
func StandinName(id int) string { return fmt.Sprintf("Standin %d", id) }
