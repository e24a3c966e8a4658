package coordinator

import "encoding/json"

// Message type discriminators accepted by the router.
const (
	TypeGetGamesList     = "GET_GAMES_LIST"
	TypeJoinGame         = "JOIN_GAME"
	TypeSubscribe        = "SUBSCRIBE"
	TypeUpdateState      = "UPDATE_STATE"
	TypeForceSync        = "FORCE_SYNC"
	TypeLeaveGame        = "LEAVE_GAME"
	TypeSetGameMode      = "SET_GAME_MODE"
	TypeSetGamePrivacy   = "SET_GAME_PRIVACY"
	TypeAssignTeams      = "ASSIGN_TEAMS"
	TypeStartReadyCheck  = "START_READY_CHECK"
	TypeCancelReadyCheck = "CANCEL_READY_CHECK"
	TypePlayerReady      = "PLAYER_READY"

	// TriggerPrefix marks ephemeral visual events relayed without persistence.
	TriggerPrefix = "TRIGGER_"
)

// Reply type discriminators.
const (
	TypeError       = "ERROR"
	TypeJoinSuccess = "JOIN_SUCCESS"
	TypeGamesList   = "GAMES_LIST"
)

// Frame is the decoded shape of every inbound message. Only the fields
// relevant to the declared type are populated; handlers ignore the rest.
type Frame struct {
	Type       string          `json:"type"`
	GameID     string          `json:"gameId,omitempty"`
	Credential string          `json:"credential,omitempty"`
	PlayerID   *int            `json:"playerId,omitempty"`
	Name       string          `json:"name,omitempty"`
	GameState  json.RawMessage `json:"gameState,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	IsPrivate  *bool           `json:"isPrivate,omitempty"`
	Teams      map[string]int  `json:"teams,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// ErrorReply is sent for every rejection that keeps the connection open.
type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// JoinSuccessReply acknowledges a join with the granted slot and credential.
// PlayerID is null for observers.
type JoinSuccessReply struct {
	Type       string `json:"type"`
	PlayerID   *int   `json:"playerId"`
	Credential string `json:"credential,omitempty"`
}

// GameListing is one entry of the public games list.
type GameListing struct {
	ID                 string `json:"id"`
	HumanOccupantCount int    `json:"humanOccupantCount"`
}

// GamesListReply carries the public session listing.
type GamesListReply struct {
	Type  string        `json:"type"`
	Games []GameListing `json:"games"`
}

// TriggerEvent is the rebroadcast shape of an ephemeral visual event.
type TriggerEvent struct {
	Type    string          `json:"type"`
	GameID  string          `json:"gameId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func errorReply(message string) ErrorReply {
	return ErrorReply{Type: TypeError, Message: message}
}
