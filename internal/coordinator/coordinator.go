// Package coordinator binds websocket connections to sessions, routes
// validated messages to their handlers, and fans state back out. It owns the
// connection registry; session state itself lives in the injected store.
package coordinator

import (
	"encoding/json"
	"sync"
	"time"

	"cardtable/coordinator/internal/catalog"
	"cardtable/coordinator/internal/limiter"
	"cardtable/coordinator/internal/logging"
	"cardtable/coordinator/internal/session"
	"cardtable/coordinator/internal/sessionlog"
	"cardtable/coordinator/internal/timers"
)

// Conn is one attached client connection. The websocket transport and test
// fakes both implement it.
type Conn interface {
	// ID returns the stable connection identifier.
	ID() string
	// Send enqueues a payload for delivery, reporting whether it was accepted.
	Send(payload []byte) bool
	// CloseWithCode terminates the connection with the given close code.
	CloseWithCode(code int, reason string)
}

type binding struct {
	sessionID string
	playerID  int // 0 = observer
}

// Options configures the Coordinator.
type Options struct {
	Logger  *logging.Logger
	Store   *session.Store
	Timers  *timers.Scheduler
	Limiter *limiter.SlidingWindow

	MaxFrameBytes int64
	MaxStateBytes int64

	ReversionDelay     time.Duration
	EmptyTeardownDelay time.Duration
	IdleTimeout        time.Duration

	SessionLogDir string
	Clock         func() time.Time
}

// Coordinator multiplexes connections onto sessions. Its mutex guards the
// connection registry; session state is mutated only through the store, and
// delivery happens outside any lock via per-client queues.
type Coordinator struct {
	mu sync.Mutex

	log     *logging.Logger
	store   *session.Store
	timers  *timers.Scheduler
	limiter *limiter.SlidingWindow
	opts    Options
	now     func() time.Time

	startedAt time.Time

	conns     map[string]Conn
	bindings  map[string]binding
	members   map[string]map[string]struct{}
	recorders map[string]*sessionlog.Recorder

	broadcasts int64
}

// New constructs a Coordinator from the supplied collaborators.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	store := opts.Store
	if store == nil {
		store = session.NewStore()
	}
	scheduler := opts.Timers
	if scheduler == nil {
		scheduler = timers.NewScheduler()
	}
	return &Coordinator{
		log:       logger,
		store:     store,
		timers:    scheduler,
		limiter:   opts.Limiter,
		opts:      opts,
		now:       clock,
		startedAt: clock(),
		conns:     make(map[string]Conn),
		bindings:  make(map[string]binding),
		members:   make(map[string]map[string]struct{}),
		recorders: make(map[string]*sessionlog.Recorder),
	}
}

// Attach registers a new connection and pushes the current games list to it.
func (c *Coordinator) Attach(conn Conn) {
	c.mu.Lock()
	c.conns[conn.ID()] = conn
	listing := c.gamesListLocked()
	c.mu.Unlock()

	c.deliver(conn, listing)
	c.log.Debug("connection attached", logging.String("conn", conn.ID()))
}

// Detach handles a connection loss that was not an explicit leave: the bound
// slot is marked disconnected, a reversion timer starts, and if no connected
// humans remain the empty-teardown grace timer is armed.
func (c *Coordinator) Detach(conn Conn) {
	//1.- Remove the registry entries before any store bookkeeping.
	c.mu.Lock()
	id := conn.ID()
	bound, wasBound := c.bindings[id]
	delete(c.bindings, id)
	delete(c.conns, id)
	if wasBound {
		c.dropMemberLocked(bound.sessionID, id)
	}
	c.mu.Unlock()

	if c.limiter != nil {
		c.limiter.Forget(id)
	}
	if !wasBound || !c.store.Exists(bound.sessionID) {
		return
	}

	if bound.playerID > 0 {
		//2.- Mark the seat reclaimable and arm the reversion countdown.
		remaining, err := c.store.Disconnect(bound.sessionID, bound.playerID)
		if err != nil {
			c.log.Warn("disconnect bookkeeping failed",
				logging.String("session", bound.sessionID), logging.Error(err))
			return
		}
		c.record(bound.sessionID, "PLAYER_DISCONNECTED", nil)
		sessionID, playerID := bound.sessionID, bound.playerID
		c.timers.Schedule(timers.PlayerKey(sessionID, playerID), c.opts.ReversionDelay, func() {
			c.onReversionTimer(sessionID, playerID)
		})
		//3.- A humanless session gets the teardown grace window.
		if remaining == 0 {
			c.timers.Schedule(timers.SessionKey(timers.KindEmptyTeardown, sessionID), c.opts.EmptyTeardownDelay, func() {
				c.onEmptyTeardownTimer(sessionID)
			})
		}
		c.broadcastState(bound.sessionID, nil)
		c.publishGamesList()
	}
	c.log.Debug("connection detached",
		logging.String("conn", id), logging.String("session", bound.sessionID))
}

func (c *Coordinator) dropMemberLocked(sessionID, connID string) {
	if set, ok := c.members[sessionID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(c.members, sessionID)
		}
	}
}

func (c *Coordinator) bindLocked(conn Conn, sessionID string, playerID int) {
	c.bindings[conn.ID()] = binding{sessionID: sessionID, playerID: playerID}
	set, ok := c.members[sessionID]
	if !ok {
		set = make(map[string]struct{})
		c.members[sessionID] = set
	}
	set[conn.ID()] = struct{}{}
}

// onReversionTimer converts a still-disconnected slot into a stand-in.
func (c *Coordinator) onReversionTimer(sessionID string, playerID int) {
	if !c.store.Automate(sessionID, playerID) {
		return
	}
	c.record(sessionID, "PLAYER_AUTOMATED", nil)
	c.log.Info("slot converted to stand-in",
		logging.String("session", sessionID), logging.Int("player", playerID))
	c.broadcastState(sessionID, nil)
}

// onEmptyTeardownTimer tears the session down if it is still humanless.
func (c *Coordinator) onEmptyTeardownTimer(sessionID string) {
	if c.store.ConnectedHumans(sessionID) > 0 {
		return
	}
	c.teardown(sessionID, "empty")
}

// onIdleTimer tears the session down if it has truly been idle the whole window.
func (c *Coordinator) onIdleTimer(sessionID string) {
	last, err := c.store.LastActive(sessionID)
	if err != nil {
		return
	}
	if c.now().Sub(last) < c.opts.IdleTimeout {
		// Activity raced the timer; rearm for the remainder.
		c.resetIdleTimer(sessionID)
		return
	}
	c.teardown(sessionID, "idle")
}

func (c *Coordinator) resetIdleTimer(sessionID string) {
	if c.opts.IdleTimeout <= 0 {
		return
	}
	c.timers.Schedule(timers.SessionKey(timers.KindSessionIdle, sessionID), c.opts.IdleTimeout, func() {
		c.onIdleTimer(sessionID)
	})
}

// teardown destroys the session: the event log is flushed, timers cancelled,
// lingering connections closed, and the public listing refreshed.
func (c *Coordinator) teardown(sessionID, reason string) {
	//1.- Capture the final view before the removal makes it unreachable.
	view, viewErr := c.store.View(sessionID)
	if !c.store.Remove(sessionID) {
		return
	}
	c.timers.CancelSession(sessionID)

	//2.- Unbind every member while collecting the connections to close.
	c.mu.Lock()
	var lingering []Conn
	for connID := range c.members[sessionID] {
		delete(c.bindings, connID)
		if conn, ok := c.conns[connID]; ok {
			lingering = append(lingering, conn)
		}
	}
	delete(c.members, sessionID)
	recorder := c.recorders[sessionID]
	delete(c.recorders, sessionID)
	c.mu.Unlock()

	//3.- Flush the post-mortem log with the last known state.
	if recorder != nil {
		recorder.Append("SESSION_TORNDOWN", json.RawMessage(`{"reason":"`+reason+`"}`))
		var finalState json.RawMessage
		if viewErr == nil {
			finalState = view.GameState
		}
		if path, err := recorder.Close(finalState); err != nil {
			c.log.Error("session log flush failed",
				logging.String("session", sessionID), logging.Error(err))
		} else if path != "" {
			c.log.Info("session log flushed",
				logging.String("session", sessionID), logging.String("path", path))
		}
	}

	//4.- Only now drop the members and advertise the shrunken listing.
	for _, conn := range lingering {
		conn.CloseWithCode(1000, "session closed")
	}
	c.publishGamesList()
	c.log.Info("session torn down",
		logging.String("session", sessionID), logging.String("reason", reason))
}

// record appends an event to the session's post-mortem log, if enabled.
func (c *Coordinator) record(sessionID, eventType string, payload json.RawMessage) {
	c.mu.Lock()
	recorder := c.recorders[sessionID]
	c.mu.Unlock()
	recorder.Append(eventType, payload)
}

func (c *Coordinator) ensureRecorder(sessionID string) {
	if c.opts.SessionLogDir == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.recorders[sessionID]; ok {
		return
	}
	recorder, err := sessionlog.NewRecorder(c.opts.SessionLogDir, sessionID, c.now)
	if err != nil {
		c.log.Warn("session log disabled for session",
			logging.String("session", sessionID), logging.Error(err))
		return
	}
	c.recorders[sessionID] = recorder
}

// startingDeck expands the catalog's first selectable deck for a new slot.
func startingDeck() []string {
	deck, ok := catalog.FirstSelectableDeck()
	if !ok {
		return nil
	}
	return catalog.ExpandDeck(deck)
}

// Stats is the synchronous status snapshot served by the HTTP surface.
type Stats struct {
	Uptime     time.Duration
	Sessions   int
	Clients    int
	Broadcasts int64
}

// Snapshot returns current process statistics.
func (c *Coordinator) Snapshot() Stats {
	c.mu.Lock()
	clients := len(c.conns)
	broadcasts := c.broadcasts
	c.mu.Unlock()
	return Stats{
		Uptime:     c.now().Sub(c.startedAt),
		Sessions:   c.store.Count(),
		Clients:    clients,
		Broadcasts: broadcasts,
	}
}

// Reset is the operator escape hatch: every connection is forcibly closed and
// all session state cleared. Session logs are flushed on the way out.
func (c *Coordinator) Reset() {
	//1.- Swap out the registries so no handler can see half-cleared state.
	c.mu.Lock()
	conns := make([]Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	recorders := c.recorders
	c.conns = make(map[string]Conn)
	c.bindings = make(map[string]binding)
	c.members = make(map[string]map[string]struct{})
	c.recorders = make(map[string]*sessionlog.Recorder)
	c.mu.Unlock()

	//2.- Flush every session log and sweep all timers and sessions.
	for sessionID, recorder := range recorders {
		recorder.Append("SESSION_RESET", nil)
		if _, err := recorder.Close(nil); err != nil {
			c.log.Error("session log flush failed during reset",
				logging.String("session", sessionID), logging.Error(err))
		}
		c.timers.CancelSession(sessionID)
	}
	for _, listing := range c.store.Listings() {
		c.timers.CancelSession(listing.ID)
		c.store.Remove(listing.ID)
	}
	//3.- Disconnect everyone last; clients reconnect to a clean slate.
	for _, conn := range conns {
		conn.CloseWithCode(1012, "coordinator reset")
	}
	c.log.Warn("coordinator reset by operator")
}
