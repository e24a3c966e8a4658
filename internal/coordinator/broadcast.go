package coordinator

import (
	"encoding/json"
	"sort"

	"github.com/gorilla/websocket"

	"cardtable/coordinator/internal/logging"
)

// deliver sends one payload to one connection. A connection that cannot keep
// up with its send queue is dropped rather than allowed to stall everyone.
func (c *Coordinator) deliver(conn Conn, payload []byte) {
	if conn == nil || payload == nil {
		return
	}
	if !conn.Send(payload) {
		c.log.Warn("send queue full, dropping client", logging.String("conn", conn.ID()))
		conn.CloseWithCode(websocket.CloseTryAgainLater, "send queue overflow")
	}
}

// reply marshals and sends a single document to one connection.
func (c *Coordinator) reply(conn Conn, doc any) {
	payload, err := json.Marshal(doc)
	if err != nil {
		c.log.Error("reply marshal failed", logging.Error(err))
		return
	}
	c.deliver(conn, payload)
}

func (c *Coordinator) replyError(conn Conn, message string) {
	c.reply(conn, errorReply(message))
}

// broadcastState pushes the session's full-state document to every member
// connection. The originator of a state update is excluded since it already
// holds the state it sent; pass nil to include everyone.
func (c *Coordinator) broadcastState(sessionID string, exclude Conn) {
	view, err := c.store.View(sessionID)
	if err != nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		c.log.Error("state marshal failed",
			logging.String("session", sessionID), logging.Error(err))
		return
	}

	//1.- Snapshot the recipients under the lock, deliver outside it.
	c.mu.Lock()
	targets := make([]Conn, 0, len(c.members[sessionID]))
	for connID := range c.members[sessionID] {
		if exclude != nil && connID == exclude.ID() {
			continue
		}
		if conn, ok := c.conns[connID]; ok {
			targets = append(targets, conn)
		}
	}
	c.broadcasts++
	c.mu.Unlock()

	for _, conn := range targets {
		c.deliver(conn, payload)
	}
}

// sendState pushes the current full-state document to a single connection.
func (c *Coordinator) sendState(sessionID string, conn Conn) {
	view, err := c.store.View(sessionID)
	if err != nil {
		return
	}
	c.reply(conn, view)
}

// gamesListLocked builds the serialized public games list. Private sessions
// are omitted. Callers must hold c.mu only for registry access; the store has
// its own lock.
func (c *Coordinator) gamesListLocked() []byte {
	listings := c.store.Listings()
	games := make([]GameListing, 0, len(listings))
	for _, listing := range listings {
		if listing.Private {
			continue
		}
		games = append(games, GameListing{
			ID:                 listing.ID,
			HumanOccupantCount: listing.HumanOccupantCount,
		})
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID < games[j].ID })
	payload, err := json.Marshal(GamesListReply{Type: TypeGamesList, Games: games})
	if err != nil {
		c.log.Error("games list marshal failed", logging.Error(err))
		return nil
	}
	return payload
}

// publishGamesList pushes the public games list to every attached connection.
// It fires whenever listed occupancy or the set of listed sessions changes.
func (c *Coordinator) publishGamesList() {
	c.mu.Lock()
	payload := c.gamesListLocked()
	targets := make([]Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		targets = append(targets, conn)
	}
	c.mu.Unlock()

	if payload == nil {
		return
	}
	for _, conn := range targets {
		c.deliver(conn, payload)
	}
}
