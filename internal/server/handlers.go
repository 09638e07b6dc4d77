package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/coder/websocket"

	"tictactoe-server/internal/matcher"
	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string, _ json.RawMessage) {
	response := ServerMessage{
		Type:    MsgPong,
		Payload: struct{}{},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send pong to %s: %v", connectionID, err)
	}
}

func (s *Server) handleIdentify(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req IdentifyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(socket, ctx, "INVALID_PAYLOAD: Invalid identify payload")
		return
	}
	if err := ValidateParticipantID(req.ParticipantID); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}
	if err := s.connectionManager.Identify(connectionID, req.ParticipantID); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	log.Printf("Connection %s identified as %s", connectionID, req.ParticipantID)
	response := ServerMessage{
		Type:    MsgIdentified,
		Payload: IdentifiedResponse{ParticipantID: req.ParticipantID},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send identified to %s: %v", connectionID, err)
	}
}

// requireParticipant returns the connection's participant id, or sends an
// error and returns "" when it has not identified yet.
func (s *Server) requireParticipant(socket *websocket.Conn, ctx context.Context, connectionID, action string) string {
	participant := s.connectionManager.GetParticipant(connectionID)
	if participant == "" {
		s.sendError(socket, ctx, "NOT_IDENTIFIED: Identify before "+action)
	}
	return participant
}

func (s *Server) handleFindMatch(socket *websocket.Conn, ctx context.Context, connectionID string, _ json.RawMessage) {
	participant := s.requireParticipant(socket, ctx, connectionID, MsgFindMatch)
	if participant == "" {
		return
	}

	session, seat, err := s.matcher.FindOrCreateSession(ctx, participant)
	if err != nil {
		log.Printf("find_match for %s failed: %v", participant, err)
		s.sendErr(socket, ctx, err)
		return
	}

	// Watch before replying so the opponent's join is not missed.
	if err := s.watch(socket, ctx, connectionID, session.ID); err != nil {
		log.Printf("Failed to watch session %s for %s: %v", session.ID, connectionID, err)
	}

	response := ServerMessage{
		Type:    MsgMatchFound,
		Payload: MatchFoundResponse{Session: session, Seat: seat},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send match_found to %s: %v", connectionID, err)
	}
}

func (s *Server) handleSubmitMove(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	participant := s.requireParticipant(socket, ctx, connectionID, MsgSubmitMove)
	if participant == "" {
		return
	}

	var req SubmitMoveRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.SessionID == "" || req.Cell == nil {
		s.sendError(socket, ctx, "INVALID_PAYLOAD: submit_move needs sessionId and cell")
		return
	}

	// The watch holds the freshest record this connection has seen.
	var current tictactoe.Session
	if w, ok := s.subscriptions.Get(connectionID, req.SessionID); ok {
		current = w.Current()
	} else {
		loaded, err := s.matcher.Get(ctx, req.SessionID)
		if err != nil {
			s.sendMoveResult(socket, ctx, connectionID, moveFailure(err, nil))
			return
		}
		current = loaded
	}

	updated, err := s.matcher.SubmitMove(ctx, current, participant, *req.Cell)
	if err != nil {
		if tictactoe.IsRejected(err) {
			s.sendMoveResult(socket, ctx, connectionID, moveFailure(err, &updated))
			return
		}
		log.Printf("submit_move by %s on %s failed: %v", participant, req.SessionID, err)
		s.sendMoveResult(socket, ctx, connectionID, moveFailure(err, nil))
		return
	}

	if updated.Status == tictactoe.StatusFinished {
		log.Printf("Session %s finished: winner %s", updated.ID, updated.Winner)
	}
	s.sendMoveResult(socket, ctx, connectionID, MoveResult{Success: true, Session: &updated})
}

func moveFailure(err error, session *tictactoe.Session) MoveResult {
	result := MoveResult{Success: false, Code: errorCode(err), Message: err.Error(), Session: session}
	var rm *tictactoe.RejectedMove
	if errors.As(err, &rm) {
		result.Message = rm.Message
	}
	return result
}

func (s *Server) sendMoveResult(socket *websocket.Conn, ctx context.Context, connectionID string, result MoveResult) {
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: MsgMoveResult, Payload: result}); err != nil {
		log.Printf("Failed to send move_result to %s: %v", connectionID, err)
	}
}

// watch subscribes the connection to sessionID unless it already is.
func (s *Server) watch(socket *websocket.Conn, ctx context.Context, connectionID, sessionID string) error {
	if s.subscriptions.IsWatching(connectionID, sessionID) {
		return nil
	}
	w, err := s.matcher.Watch(ctx, sessionID, s.pushUpdate(socket, connectionID))
	if err != nil {
		return err
	}
	s.subscriptions.Add(connectionID, w)
	return nil
}

func (s *Server) handleWatch(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req SessionRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.SessionID == "" {
		s.sendError(socket, ctx, "INVALID_PAYLOAD: watch needs sessionId")
		return
	}

	if err := s.watch(socket, ctx, connectionID, req.SessionID); err != nil {
		s.sendErr(socket, ctx, err)
		return
	}

	response := ServerMessage{Type: MsgWatching, Payload: WatchingResponse{SessionID: req.SessionID}}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send watching to %s: %v", connectionID, err)
	}
}

func (s *Server) handleUnwatch(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req SessionRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.SessionID == "" {
		s.sendError(socket, ctx, "INVALID_PAYLOAD: unwatch needs sessionId")
		return
	}

	if err := s.subscriptions.Remove(connectionID, req.SessionID); err != nil {
		s.sendError(socket, ctx, err.Error())
		return
	}

	response := ServerMessage{Type: MsgUnwatched, Payload: WatchingResponse{SessionID: req.SessionID}}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send unwatched to %s: %v", connectionID, err)
	}
}

func (s *Server) handleGetSession(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req SessionRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.SessionID == "" {
		s.sendError(socket, ctx, "INVALID_PAYLOAD: get_session needs sessionId")
		return
	}

	session, err := s.matcher.Get(ctx, req.SessionID)
	if err != nil {
		s.sendErr(socket, ctx, err)
		return
	}

	response := ServerMessage{Type: MsgSession, Payload: SessionPayload{Session: session}}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send session to %s: %v", connectionID, err)
	}
}

// errorCode maps an error to the code sent to clients.
func errorCode(err error) string {
	var rm *tictactoe.RejectedMove
	switch {
	case errors.As(err, &rm):
		return string(rm.Code)
	case errors.Is(err, matcher.ErrTransient):
		return "TRANSIENT"
	case errors.Is(err, store.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, store.ErrNotFound):
		return "NOT_FOUND"
	}
	if code, _ := splitCode(err.Error()); code != "" {
		return code
	}
	return "INTERNAL"
}

// splitCode separates an "UPPER_CASE: text" prefix from msg.
func splitCode(msg string) (code, text string) {
	prefix, rest, ok := strings.Cut(msg, ": ")
	if !ok || prefix == "" {
		return "", msg
	}
	for _, r := range prefix {
		if (r < 'A' || r > 'Z') && r != '_' {
			return "", msg
		}
	}
	return prefix, rest
}
