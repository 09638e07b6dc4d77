package server

import "tictactoe-server/internal/tictactoe"

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// IDENTIFY (identify)
// ============================================================================
// tygo:generate
type IdentifyRequest struct {
	ParticipantID string `json:"participantId"`
}

// tygo:generate
type IdentifiedResponse struct {
	ParticipantID string `json:"participantId"`
}

// ============================================================================
// FIND MATCH (find_match)
// ============================================================================
// tygo:generate
type FindMatchRequest struct {
	// No fields - the identified participant is matched
}

// tygo:generate
type MatchFoundResponse struct {
	Session tictactoe.Session `json:"session"`
	Seat    tictactoe.Seat    `json:"seat"`
}

// ============================================================================
// SUBMIT MOVE (submit_move)
// ============================================================================
// tygo:generate
type SubmitMoveRequest struct {
	SessionID string `json:"sessionId"`
	Cell      *int   `json:"cell"`
}

// tygo:generate
type MoveResult struct {
	Success bool               `json:"success"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
	Session *tictactoe.Session `json:"session,omitempty"`
}

// ============================================================================
// WATCH / UNWATCH / GET SESSION
// ============================================================================
// tygo:generate
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// tygo:generate
type WatchingResponse struct {
	SessionID string `json:"sessionId"`
}

// tygo:generate
type SessionPayload struct {
	Session tictactoe.Session `json:"session"`
}

// ============================================================================
// HEALTH (GET /health)
// ============================================================================
type HealthResponse struct {
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	Connections int    `json:"connections"`
	Watches     int    `json:"watches"`
}
