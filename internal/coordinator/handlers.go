package coordinator

import (
	"encoding/json"
	"errors"
	"strconv"

	"cardtable/coordinator/internal/logging"
	"cardtable/coordinator/internal/sanitize"
	"cardtable/coordinator/internal/session"
	"cardtable/coordinator/internal/timers"
)

// boundTo returns the connection's binding, rejecting unbound connections.
func (c *Coordinator) boundTo(conn Conn) (binding, *Rejection) {
	c.mu.Lock()
	bound, ok := c.bindings[conn.ID()]
	c.mu.Unlock()
	if !ok {
		return binding{}, protocolErr("connection is not bound to a game")
	}
	return bound, nil
}

// boundPlayer additionally requires a seated player, not an observer.
func (c *Coordinator) boundPlayer(conn Conn) (binding, *Rejection) {
	bound, rejection := c.boundTo(conn)
	if rejection != nil {
		return binding{}, rejection
	}
	if bound.playerID == 0 {
		return binding{}, authorizationErr("observers cannot perform this action")
	}
	return bound, nil
}

// boundHost requires the privileged seat, slot 1.
func (c *Coordinator) boundHost(conn Conn) (binding, *Rejection) {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return binding{}, rejection
	}
	if bound.playerID != 1 {
		return binding{}, authorizationErr("only player 1 may perform this action")
	}
	return bound, nil
}

func (c *Coordinator) handleGetGamesList(conn Conn) *Rejection {
	c.mu.Lock()
	payload := c.gamesListLocked()
	c.mu.Unlock()
	c.deliver(conn, payload)
	return nil
}

func (c *Coordinator) handleJoinGame(conn Conn, frame *Frame) *Rejection {
	gameID := sanitize.ID(frame.GameID)
	if gameID == "" {
		return protocolErr("gameId is required")
	}
	c.mu.Lock()
	_, alreadyBound := c.bindings[conn.ID()]
	c.mu.Unlock()
	if alreadyBound {
		return protocolErr("connection is already bound to a game")
	}
	if !c.store.Exists(gameID) {
		return notFoundErr("game not found: " + gameID)
	}

	//1.- Run the slot protocol: reconnect, takeover, new slot, or observer.
	result, err := c.store.Join(gameID, frame.Credential, startingDeck)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return notFoundErr("game not found: " + gameID)
		}
		return protocolErr(err.Error())
	}

	c.mu.Lock()
	c.bindLocked(conn, gameID, result.PlayerID)
	c.mu.Unlock()

	seated := result.Outcome != session.JoinObserver
	if seated {
		//2.- A connected human voids any pending reversion or teardown timers.
		c.timers.Cancel(timers.PlayerKey(gameID, result.PlayerID))
		c.timers.Cancel(timers.SessionKey(timers.KindEmptyTeardown, gameID))
		if name := sanitize.Name(frame.Name); name != "" {
			if err := c.store.SetName(gameID, result.PlayerID, name); err != nil {
				c.log.Warn("name update failed",
					logging.String("session", gameID), logging.Error(err))
			}
		}
	}
	c.resetIdleTimer(gameID)
	c.ensureRecorder(gameID)
	c.record(gameID, TypeJoinGame, joinEventPayload(result))

	//3.- Acknowledge the joiner before fanning the new roster out.
	reply := JoinSuccessReply{Type: TypeJoinSuccess}
	if seated {
		playerID := result.PlayerID
		reply.PlayerID = &playerID
		reply.Credential = result.Credential
	}
	c.reply(conn, reply)

	c.broadcastState(gameID, nil)
	if seated {
		c.publishGamesList()
	}
	return nil
}

func joinEventPayload(result session.JoinResult) json.RawMessage {
	if result.Outcome == session.JoinObserver {
		return json.RawMessage(`{"observer":true}`)
	}
	return json.RawMessage(`{"playerId":` + strconv.Itoa(result.PlayerID) + `}`)
}

func (c *Coordinator) handleSubscribe(conn Conn, frame *Frame) *Rejection {
	gameID := sanitize.ID(frame.GameID)
	if gameID == "" {
		return protocolErr("gameId is required")
	}
	if !c.store.Exists(gameID) {
		return notFoundErr("game not found: " + gameID)
	}

	c.mu.Lock()
	if _, alreadyBound := c.bindings[conn.ID()]; !alreadyBound {
		c.bindLocked(conn, gameID, 0)
	}
	c.mu.Unlock()

	c.sendState(gameID, conn)
	return nil
}

func (c *Coordinator) handleUpdateState(conn Conn, frame *Frame) *Rejection {
	gameID := sanitize.ID(frame.GameID)
	if gameID == "" {
		return protocolErr("gameId is required")
	}
	c.mu.Lock()
	bound, isBound := c.bindings[conn.ID()]
	c.mu.Unlock()
	if isBound && bound.sessionID != gameID {
		return protocolErr("connection is bound to a different game")
	}

	//1.- Reject the blob before any session is created or mutated.
	state, err := sanitize.State(frame.GameState, c.opts.MaxStateBytes)
	if err != nil {
		if errors.Is(err, sanitize.ErrStateTooLarge) {
			return protocolErr("game state exceeds size limit")
		}
		return protocolErr("game state must be a JSON object")
	}

	//2.- First publish for an unknown id creates the session, under the
	// global ceiling.
	created, err := c.store.Ensure(gameID)
	if err != nil {
		if errors.Is(err, session.ErrSessionLimit) {
			return capacityErr("session limit reached")
		}
		return protocolErr(err.Error())
	}
	if err := c.store.SetGameState(gameID, state); err != nil {
		return notFoundErr("game not found: " + gameID)
	}

	c.resetIdleTimer(gameID)
	c.ensureRecorder(gameID)
	c.record(gameID, TypeUpdateState, nil)
	c.broadcastState(gameID, conn)
	if created {
		c.log.Info("session created", logging.String("session", gameID))
		c.publishGamesList()
	}
	return nil
}

// handleForceSync lets the host push an authoritative state and resync every
// member, or rebroadcast the stored state when no blob is supplied.
func (c *Coordinator) handleForceSync(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundHost(conn)
	if rejection != nil {
		return rejection
	}
	if len(frame.GameState) > 0 {
		state, err := sanitize.State(frame.GameState, c.opts.MaxStateBytes)
		if err != nil {
			if errors.Is(err, sanitize.ErrStateTooLarge) {
				return protocolErr("game state exceeds size limit")
			}
			return protocolErr("game state must be a JSON object")
		}
		if err := c.store.SetGameState(bound.sessionID, state); err != nil {
			return notFoundErr("game not found: " + bound.sessionID)
		}
		c.record(bound.sessionID, TypeForceSync, nil)
	} else {
		c.store.Touch(bound.sessionID)
	}
	c.resetIdleTimer(bound.sessionID)
	c.broadcastState(bound.sessionID, nil)
	return nil
}

func (c *Coordinator) handleLeaveGame(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return rejection
	}
	remaining, err := c.store.Leave(bound.sessionID, bound.playerID)
	if err != nil {
		return notFoundErr(err.Error())
	}

	c.mu.Lock()
	delete(c.bindings, conn.ID())
	c.dropMemberLocked(bound.sessionID, conn.ID())
	c.mu.Unlock()
	c.timers.Cancel(timers.PlayerKey(bound.sessionID, bound.playerID))
	c.record(bound.sessionID, TypeLeaveGame,
		json.RawMessage(`{"playerId":`+strconv.Itoa(bound.playerID)+`}`))

	//1.- A deliberate exit by the last human ends the session on the spot.
	if remaining == 0 {
		c.teardown(bound.sessionID, "last player left")
		return nil
	}
	c.broadcastState(bound.sessionID, nil)
	c.publishGamesList()
	return nil
}

func (c *Coordinator) handleSetGameMode(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return rejection
	}
	if c.store.GameStarted(bound.sessionID) {
		return protocolErr("game mode is locked once the game has started")
	}
	mode := sanitize.Name(frame.Mode)
	if mode == "" {
		return protocolErr("mode is required")
	}
	if err := c.store.SetMode(bound.sessionID, mode); err != nil {
		return notFoundErr(err.Error())
	}
	c.record(bound.sessionID, TypeSetGameMode, json.RawMessage(`{"mode":"`+mode+`"}`))
	c.broadcastState(bound.sessionID, nil)
	return nil
}

func (c *Coordinator) handleSetGamePrivacy(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return rejection
	}
	if frame.IsPrivate == nil {
		return protocolErr("isPrivate is required")
	}
	changed, err := c.store.SetPrivacy(bound.sessionID, *frame.IsPrivate)
	if err != nil {
		return notFoundErr(err.Error())
	}
	c.record(bound.sessionID, TypeSetGamePrivacy,
		json.RawMessage(`{"isPrivate":`+strconv.FormatBool(*frame.IsPrivate)+`}`))
	c.broadcastState(bound.sessionID, nil)
	if changed {
		c.publishGamesList()
	}
	return nil
}

func (c *Coordinator) handleAssignTeams(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundHost(conn)
	if rejection != nil {
		return rejection
	}
	if c.store.GameStarted(bound.sessionID) {
		return protocolErr("teams are locked once the game has started")
	}
	if len(frame.Teams) == 0 {
		return protocolErr("teams mapping is required")
	}
	teams := make(map[int]int, len(frame.Teams))
	for key, team := range frame.Teams {
		playerID, err := strconv.Atoi(key)
		if err != nil || playerID < 1 {
			return protocolErr("teams keys must be player ids")
		}
		teams[playerID] = team
	}
	if err := c.store.AssignTeams(bound.sessionID, teams); err != nil {
		return notFoundErr(err.Error())
	}
	c.record(bound.sessionID, TypeAssignTeams, nil)
	c.broadcastState(bound.sessionID, nil)
	return nil
}

func (c *Coordinator) handleStartReadyCheck(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return rejection
	}
	if c.store.GameStarted(bound.sessionID) {
		return protocolErr("the game has already started")
	}
	if err := c.store.StartReadyCheck(bound.sessionID); err != nil {
		return notFoundErr(err.Error())
	}
	c.record(bound.sessionID, TypeStartReadyCheck, nil)
	c.broadcastState(bound.sessionID, nil)
	return nil
}

func (c *Coordinator) handleCancelReadyCheck(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return rejection
	}
	if err := c.store.CancelReadyCheck(bound.sessionID); err != nil {
		return notFoundErr(err.Error())
	}
	c.record(bound.sessionID, TypeCancelReadyCheck, nil)
	c.broadcastState(bound.sessionID, nil)
	return nil
}

func (c *Coordinator) handlePlayerReady(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundPlayer(conn)
	if rejection != nil {
		return rejection
	}
	started, err := c.store.MarkReady(bound.sessionID, bound.playerID)
	if err != nil {
		return notFoundErr(err.Error())
	}
	c.record(bound.sessionID, TypePlayerReady,
		json.RawMessage(`{"playerId":`+strconv.Itoa(bound.playerID)+`}`))
	if started {
		c.record(bound.sessionID, "GAME_STARTED", nil)
		c.log.Info("game started", logging.String("session", bound.sessionID))
	}
	c.resetIdleTimer(bound.sessionID)
	c.broadcastState(bound.sessionID, nil)
	return nil
}

// handleTrigger relays ephemeral visual events to the other members of the
// session. Triggers are never stored and never touch the game state.
func (c *Coordinator) handleTrigger(conn Conn, frame *Frame) *Rejection {
	bound, rejection := c.boundTo(conn)
	if rejection != nil {
		return rejection
	}
	//1.- Triggers are qualifying activity even though they never touch state.
	c.store.Touch(bound.sessionID)
	c.resetIdleTimer(bound.sessionID)

	payload := frame.Payload
	if len(payload) > 0 {
		var doc any
		if err := json.Unmarshal(payload, &doc); err != nil {
			return protocolErr("trigger payload must be valid JSON")
		}
		cleaned, err := json.Marshal(sanitize.Document(doc))
		if err != nil {
			return protocolErr("trigger payload could not be processed")
		}
		payload = cleaned
	}

	event := TriggerEvent{Type: frame.Type, GameID: bound.sessionID, Payload: payload}
	raw, err := json.Marshal(event)
	if err != nil {
		return protocolErr("trigger payload could not be processed")
	}

	c.mu.Lock()
	targets := make([]Conn, 0, len(c.members[bound.sessionID]))
	for connID := range c.members[bound.sessionID] {
		if connID == conn.ID() {
			continue
		}
		if member, ok := c.conns[connID]; ok {
			targets = append(targets, member)
		}
	}
	c.mu.Unlock()

	for _, member := range targets {
		c.deliver(member, raw)
	}
	return nil
}
