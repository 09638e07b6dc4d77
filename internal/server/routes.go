package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /sessions/{id}", s.sessionHandler)
	mux.HandleFunc("/websocket", s.websocketHandler)

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "up",
		Connections: s.connectionManager.Count(),
		Watches:     s.subscriptions.Count(),
	}
	status := http.StatusOK

	if s.backend.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.backend.Pinger.Ping(ctx); err != nil {
			resp.Status = "down"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.matcher.Get(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorMessage{Message: "Session not found", Code: "NOT_FOUND"})
	default:
		log.Printf("Failed to load session %s: %v", r.PathValue("id"), err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorMessage{Message: "Session store unavailable", Code: errorCode(err)})
	}
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		log.Printf("Failed to open websocket: %v", err)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.New().String()
	log.Printf("New connection: %s", connectionID)
	s.connectionManager.AddConnection(connectionID, socket)
	s.connectionHealth.UpdateActivity(connectionID)
	defer func() {
		released := s.subscriptions.RemoveAll(connectionID)
		s.rateLimiter.RemoveConnection(connectionID)
		s.connectionHealth.RemoveConnection(connectionID)
		s.connectionManager.RemoveConnection(connectionID)
		log.Printf("Connection closed: %s (%d watches released)", connectionID, released)
	}()

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Printf("Connection %s read error: %v", connectionID, err)
			return
		}
		s.connectionHealth.UpdateActivity(connectionID)

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", connectionID)
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(socket, ctx, "RATE_LIMIT_EXCEEDED: Too many messages, slow down")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Invalid JSON from %s: %v", connectionID, err)
			s.sendError(socket, ctx, "INVALID_JSON: Invalid JSON")
			continue
		}

		if err := ValidateMessageType(msg.Type); err != nil {
			log.Printf("Unknown message type '%s' from %s", msg.Type, connectionID)
			s.sendError(socket, ctx, err.Error())
			continue
		}

		log.Printf("Message Type '%s' from %s", msg.Type, connectionID)

		switch msg.Type {
		case MsgPing:
			s.handlePing(socket, ctx, connectionID, msg.Payload)
		case MsgIdentify:
			s.handleIdentify(socket, ctx, connectionID, msg.Payload)
		case MsgFindMatch:
			s.handleFindMatch(socket, ctx, connectionID, msg.Payload)
		case MsgSubmitMove:
			s.handleSubmitMove(socket, ctx, connectionID, msg.Payload)
		case MsgWatch:
			s.handleWatch(socket, ctx, connectionID, msg.Payload)
		case MsgUnwatch:
			s.handleUnwatch(socket, ctx, connectionID, msg.Payload)
		case MsgGetSession:
			s.handleGetSession(socket, ctx, connectionID, msg.Payload)
		}
	}
}

func (s *Server) sendMessage(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}
	return socket.Write(ctx, websocket.MessageText, data)
}

// sendError sends an error message. A leading "CODE: " in msg becomes the code field.
func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, msg string) {
	code, text := splitCode(msg)
	response := ServerMessage{
		Type:    MsgError,
		Payload: ErrorMessage{Message: text, Code: code},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send error message: %v", err)
	}
}

func (s *Server) sendErr(socket *websocket.Conn, ctx context.Context, err error) {
	response := ServerMessage{
		Type:    MsgError,
		Payload: ErrorMessage{Message: err.Error(), Code: errorCode(err)},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Printf("Failed to send error message: %v", err)
	}
}

// pushUpdate is the watch callback. It may run on a feed goroutine, so it
// uses its own deadline instead of the connection's request context.
func (s *Server) pushUpdate(socket *websocket.Conn, connectionID string) func(session tictactoe.Session) {
	return func(session tictactoe.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msg := ServerMessage{Type: MsgSessionUpdate, Payload: SessionPayload{Session: session}}
		if err := s.sendMessage(socket, ctx, msg); err != nil {
			log.Printf("Failed to push session %s to %s: %v", session.ID, connectionID, err)
		}
	}
}
