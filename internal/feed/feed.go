// Package feed delivers session changes to subscribers.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tictactoe-server/internal/tictactoe"
)

var ErrUnknownHandle = errors.New("UNKNOWN_SUBSCRIPTION: handle is not subscribed")

// Handle identifies one subscription.
type Handle struct {
	SessionID string
	id        uint64
}

// Feed is the subscribe side of the Change Feed. Callbacks receive the full
// record after every write to the session.
type Feed interface {
	Subscribe(ctx context.Context, sessionID string, onChange func(tictactoe.Session)) (Handle, error)
	Unsubscribe(h Handle) error
}

// Publisher is the write side used by feeds that are not driven by the store itself.
type Publisher interface {
	Publish(ctx context.Context, s tictactoe.Session) error
}

// Encode is the JSON payload feeds put on the wire.
func Encode(s tictactoe.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return data, nil
}

// Decode parses a payload written by Encode and checks the record's invariants.
func Decode(data []byte) (tictactoe.Session, error) {
	var s tictactoe.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return tictactoe.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" {
		return tictactoe.Session{}, errors.New("decode session: missing id")
	}
	if err := s.Validate(); err != nil {
		return tictactoe.Session{}, fmt.Errorf("decode session %s: %w", s.ID, err)
	}
	return s, nil
}
