package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type command struct {
	msgType string
	payload any
}

// parseCommand turns one input line into a protocol message. current is the
// session moves go to when no id is given.
func parseCommand(line, current string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}

	switch strings.ToLower(fields[0]) {
	case "find":
		return command{msgType: "find_match", payload: struct{}{}}, nil
	case "move", "m":
		if len(fields) < 2 {
			return command{}, errors.New("usage: move <0-8> [session id]")
		}
		cell, err := strconv.Atoi(fields[1])
		if err != nil {
			return command{}, fmt.Errorf("cell must be a number: %w", err)
		}
		sessionID := current
		if len(fields) > 2 {
			sessionID = fields[2]
		}
		if sessionID == "" {
			return command{}, errors.New("no session yet, use find first")
		}
		return command{msgType: "submit_move", payload: map[string]any{"sessionId": sessionID, "cell": cell}}, nil
	case "watch", "unwatch", "get":
		if len(fields) < 2 {
			return command{}, fmt.Errorf("usage: %s <session id>", fields[0])
		}
		msgType := strings.ToLower(fields[0])
		if msgType == "get" {
			msgType = "get_session"
		}
		return command{msgType: msgType, payload: map[string]string{"sessionId": fields[1]}}, nil
	case "ping":
		return command{msgType: "ping"}, nil
	case "help", "?":
		return command{msgType: "help"}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (try help)", fields[0])
}

type session struct {
	ID     string   `json:"id"`
	Board  []string `json:"board"`
	SeatA  string   `json:"seatA"`
	SeatB  string   `json:"seatB"`
	Turn   string   `json:"turn"`
	Status string   `json:"status"`
	Winner string   `json:"winner"`
}

// gameView keeps the last session record received; updates replace it whole.
type gameView struct {
	participant string
	mu          sync.Mutex
	current     session
}

func (g *gameView) sessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current.ID
}

// apply records msg and returns the text to print for it.
func (g *gameView) apply(msg message) string {
	var p struct {
		Session       *session `json:"session"`
		Seat          string   `json:"seat"`
		Success       bool     `json:"success"`
		Code          string   `json:"code"`
		Message       string   `json:"message"`
		SessionID     string   `json:"sessionId"`
		ParticipantID string   `json:"participantId"`
	}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Sprintf("unreadable %s: %v", msg.Type, err)
		}
	}

	switch msg.Type {
	case "pong":
		return "pong"
	case "identified":
		return "playing as " + p.ParticipantID
	case "match_found":
		g.set(p.Session)
		return fmt.Sprintf("seat %s in session %s\n%s", p.Seat, g.sessionID(), g.render())
	case "session_update", "session":
		g.set(p.Session)
		return g.render()
	case "move_result":
		if p.Success {
			g.set(p.Session)
			return ""
		}
		return fmt.Sprintf("move rejected: %s (%s)", p.Message, p.Code)
	case "watching":
		return "watching " + p.SessionID
	case "unwatched":
		return "stopped watching " + p.SessionID
	case "error":
		return fmt.Sprintf("error: %s (%s)", p.Message, p.Code)
	}
	return fmt.Sprintf("%s: %s", msg.Type, msg.Payload)
}

func (g *gameView) set(s *session) {
	if s == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = *s
}

func (g *gameView) render() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.current

	var b strings.Builder
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			i := row*3 + col
			cell := strconv.Itoa(i)
			if i < len(s.Board) && s.Board[i] != "" {
				cell = s.Board[i]
			}
			b.WriteString(" " + cell + " ")
			if col < 2 {
				b.WriteString("|")
			}
		}
		b.WriteString("\n")
		if row < 2 {
			b.WriteString("---+---+---\n")
		}
	}

	switch s.Status {
	case "waiting":
		b.WriteString("waiting for an opponent")
	case "active":
		holder := s.SeatA
		if s.Turn == "B" {
			holder = s.SeatB
		}
		if holder == g.participant {
			b.WriteString("your turn")
		} else {
			b.WriteString(holder + " to move")
		}
	case "finished":
		switch s.Winner {
		case "draw":
			b.WriteString("draw")
		case "A":
			b.WriteString(s.SeatA + " wins")
		case "B":
			b.WriteString(s.SeatB + " wins")
		}
	}
	return b.String()
}
