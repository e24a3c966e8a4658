package session

import "encoding/json"

// JoinOutcome describes which branch of the join protocol was taken.
type JoinOutcome int

const (
	// JoinReconnected restored a disconnected slot via its credential.
	JoinReconnected JoinOutcome = iota
	// JoinTookOver claimed a disconnected slot with a fresh credential.
	JoinTookOver
	// JoinNewSlot allocated a brand-new player slot.
	JoinNewSlot
	// JoinObserver bound the connection without a player slot.
	JoinObserver
)

// JoinResult reports the slot id and credential granted by Join.
type JoinResult struct {
	Outcome    JoinOutcome
	PlayerID   int
	Credential string
}

// Join runs the slot-assignment protocol for a connection entering the
// session: credential reconnection, then takeover of the first disconnected
// slot, then allocation while under capacity, then observer fallback.
// deckBuilder supplies the starting deck for freshly allocated slots only.
func (s *Store) Join(id, credential string, deckBuilder func() []string) (JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return JoinResult{}, ErrNotFound
	}
	sess.LastActive = s.now()

	//1.- A still-valid credential restores the original slot, deck and all.
	if credential != "" {
		for _, slot := range sess.Slots {
			if slot.State == SlotDisconnected && slot.Credential != "" && slot.Credential == credential {
				slot.State = SlotConnected
				return JoinResult{Outcome: JoinReconnected, PlayerID: slot.ID, Credential: slot.Credential}, nil
			}
		}
	}

	//2.- Any disconnected slot may be taken over by a newcomer under a fresh
	// credential; the previous occupant's token must never work again.
	for _, slot := range sess.Slots {
		if slot.State == SlotDisconnected {
			slot.State = SlotConnected
			slot.Credential = s.newCredential()
			slot.Name = defaultName(slot.ID)
			slot.Ready = false
			return JoinResult{Outcome: JoinTookOver, PlayerID: slot.ID, Credential: slot.Credential}, nil
		}
	}

	//3.- Allocate the lowest unused id while the table still has room.
	if len(sess.Slots) < Capacity {
		slotID := lowestUnusedIDLocked(sess)
		slot := &PlayerSlot{
			ID:         slotID,
			Name:       defaultName(slotID),
			Credential: s.newCredential(),
			State:      SlotConnected,
		}
		if deckBuilder != nil {
			slot.Deck = deckBuilder()
		}
		sess.Slots = append(sess.Slots, slot)
		return JoinResult{Outcome: JoinNewSlot, PlayerID: slot.ID, Credential: slot.Credential}, nil
	}

	//4.- Full table: the connection observes without a seat.
	return JoinResult{Outcome: JoinObserver}, nil
}

func lowestUnusedIDLocked(sess *Session) int {
	for candidate := 1; ; candidate++ {
		if findSlotLocked(sess, candidate) == nil {
			return candidate
		}
	}
}

// Disconnect marks the slot Disconnected after a connection loss that was not
// an explicit leave. The credential stays valid so the player can reconnect.
// It returns the number of remaining connected humans.
func (s *Store) Disconnect(id string, playerID int) (remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	slot := findSlotLocked(sess, playerID)
	if slot == nil {
		return countConnectedLocked(sess), ErrUnknownPlayer
	}
	if slot.State == SlotConnected {
		slot.State = SlotDisconnected
	}
	return countConnectedLocked(sess), nil
}

// Leave handles a manual exit: the seat is permanently vacated, so the
// credential is revoked, but the slot itself persists for takeover.
// It returns the number of remaining connected humans.
func (s *Store) Leave(id string, playerID int) (remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	slot := findSlotLocked(sess, playerID)
	if slot == nil {
		return countConnectedLocked(sess), ErrUnknownPlayer
	}
	if slot.State != SlotAutomated {
		slot.State = SlotDisconnected
		slot.Credential = ""
		slot.Ready = false
	}
	return countConnectedLocked(sess), nil
}

// Automate converts a still-disconnected slot into a stand-in. The conversion
// is irreversible: the credential is revoked and the slot renamed. It reports
// whether the conversion happened, which is false when the slot reconnected
// between scheduling and firing.
func (s *Store) Automate(id string, playerID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	slot := findSlotLocked(sess, playerID)
	if slot == nil || slot.State != SlotDisconnected {
		return false
	}
	slot.State = SlotAutomated
	slot.Credential = ""
	slot.Name = StandinName(slot.ID)
	slot.Ready = false
	return true
}

// SetGameState replaces the opaque game-state blob. The caller is responsible
// for size checks and sanitization before storage.
func (s *Store) SetGameState(id string, state json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.GameState = append(json.RawMessage(nil), state...)
	sess.LastActive = s.now()
	return nil
}

// SetMode updates the session's game mode label.
func (s *Store) SetMode(id, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Mode = mode
	sess.LastActive = s.now()
	return nil
}

// SetPrivacy flips the public-listing flag, reporting whether it changed.
func (s *Store) SetPrivacy(id string, private bool) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	changed = sess.Private != private
	sess.Private = private
	sess.LastActive = s.now()
	return changed, nil
}

// SetName updates a slot's display name.
func (s *Store) SetName(id string, playerID int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	slot := findSlotLocked(sess, playerID)
	if slot == nil {
		return ErrUnknownPlayer
	}
	if name == "" {
		name = defaultName(slot.ID)
	}
	slot.Name = name
	return nil
}

// AssignTeams applies the player-to-team mapping to matching slots.
func (s *Store) AssignTeams(id string, teams map[int]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	for playerID, team := range teams {
		if slot := findSlotLocked(sess, playerID); slot != nil {
			slot.Team = team
		}
	}
	sess.LastActive = s.now()
	return nil
}

// StartReadyCheck activates a ready check and clears previous ready marks.
func (s *Store) StartReadyCheck(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.ReadyCheckActive = true
	for _, slot := range sess.Slots {
		slot.Ready = false
	}
	sess.LastActive = s.now()
	return nil
}

// CancelReadyCheck deactivates a ready check and clears ready marks.
func (s *Store) CancelReadyCheck(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.ReadyCheckActive = false
	for _, slot := range sess.Slots {
		slot.Ready = false
	}
	sess.LastActive = s.now()
	return nil
}

// MarkReady records a ready vote. When every connected human has voted the
// check completes: the session is marked started and the check cleared.
// It reports whether the game just started.
func (s *Store) MarkReady(id string, playerID int) (started bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if !sess.ReadyCheckActive {
		return false, nil
	}
	slot := findSlotLocked(sess, playerID)
	if slot == nil {
		return false, ErrUnknownPlayer
	}
	slot.Ready = true
	for _, other := range sess.Slots {
		if other.State == SlotConnected && !other.Ready {
			return false, nil
		}
	}
	sess.ReadyCheckActive = false
	sess.GameStarted = true
	sess.LastActive = s.now()
	return true, nil
}

// GameStarted reports whether the session's match has begun.
func (s *Store) GameStarted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	return sess.GameStarted
}
