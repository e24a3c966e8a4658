package coordinator

import (
	"encoding/json"
	"fmt"
	"strings"

	"cardtable/coordinator/internal/logging"
)

// HandleMessage is the single entry point for inbound frames. Admission runs
// in a fixed order: frame size, rate budget, parse, then dispatch. A handler
// panic is contained to the offending connection.
func (c *Coordinator) HandleMessage(conn Conn, raw []byte) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.log.Error("handler panic",
				logging.String("conn", conn.ID()),
				logging.String("panic", fmt.Sprint(recovered)))
			c.replyError(conn, "internal error")
		}
	}()

	//1.- Transport policy first so abusive frames never reach the parser.
	if rejection := c.admit(conn, raw); rejection != nil {
		c.refuse(conn, rejection)
		return
	}

	//2.- A frame must parse and carry its discriminator to be routable.
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.refuse(conn, protocolErr("malformed message"))
		return
	}
	if frame.Type == "" {
		c.refuse(conn, protocolErr("message type is required"))
		return
	}

	if rejection := c.dispatch(conn, &frame); rejection != nil {
		c.refuse(conn, rejection)
	}
}

// admit enforces the transport policies that apply before parsing.
func (c *Coordinator) admit(conn Conn, raw []byte) *Rejection {
	if c.opts.MaxFrameBytes > 0 && int64(len(raw)) > c.opts.MaxFrameBytes {
		return policyErr("frame exceeds size limit", CloseFrameTooLarge)
	}
	if c.limiter != nil && !c.limiter.Allow(conn.ID()) {
		return policyErr("message rate limit exceeded", CloseRateLimited)
	}
	return nil
}

// refuse applies a rejection verdict: policy violations close the connection,
// everything else gets an ERROR reply on the still-open connection.
func (c *Coordinator) refuse(conn Conn, rejection *Rejection) {
	if rejection.CloseCode != 0 {
		c.log.Warn("connection closed for policy violation",
			logging.String("conn", conn.ID()),
			logging.String("reason", rejection.Message),
			logging.Int("code", rejection.CloseCode))
		conn.CloseWithCode(rejection.CloseCode, rejection.Message)
		return
	}
	c.replyError(conn, rejection.Message)
}

func (c *Coordinator) dispatch(conn Conn, frame *Frame) *Rejection {
	switch frame.Type {
	case TypeGetGamesList:
		return c.handleGetGamesList(conn)
	case TypeJoinGame:
		return c.handleJoinGame(conn, frame)
	case TypeSubscribe:
		return c.handleSubscribe(conn, frame)
	case TypeUpdateState:
		return c.handleUpdateState(conn, frame)
	case TypeForceSync:
		return c.handleForceSync(conn, frame)
	case TypeLeaveGame:
		return c.handleLeaveGame(conn, frame)
	case TypeSetGameMode:
		return c.handleSetGameMode(conn, frame)
	case TypeSetGamePrivacy:
		return c.handleSetGamePrivacy(conn, frame)
	case TypeAssignTeams:
		return c.handleAssignTeams(conn, frame)
	case TypeStartReadyCheck:
		return c.handleStartReadyCheck(conn, frame)
	case TypeCancelReadyCheck:
		return c.handleCancelReadyCheck(conn, frame)
	case TypePlayerReady:
		return c.handlePlayerReady(conn, frame)
	default:
		if strings.HasPrefix(frame.Type, TriggerPrefix) {
			return c.handleTrigger(conn, frame)
		}
		// Unknown types are not an error to the sender; clients may be newer
		// than the coordinator.
		c.log.Debug("ignoring unknown message type",
			logging.String("conn", conn.ID()), logging.String("msg_type", frame.Type))
		return nil
	}
}
