package server

import "encoding/json"

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client -> server message types.
const (
	MsgPing       = "ping"
	MsgIdentify   = "identify"
	MsgFindMatch  = "find_match"
	MsgSubmitMove = "submit_move"
	MsgWatch      = "watch"
	MsgUnwatch    = "unwatch"
	MsgGetSession = "get_session"
)

// Server -> client message types.
const (
	MsgPong          = "pong"
	MsgIdentified    = "identified"
	MsgMatchFound    = "match_found"
	MsgMoveResult    = "move_result"
	MsgSessionUpdate = "session_update"
	MsgWatching      = "watching"
	MsgUnwatched     = "unwatched"
	MsgSession       = "session"
	MsgError         = "error"
)
