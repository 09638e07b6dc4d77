package tictactoe

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason a move or join was rejected.
type Code string

const (
	CodeNotPlayable        Code = "NOT_PLAYABLE"
	CodeOccupied           Code = "CELL_OCCUPIED"
	CodeNotYourTurn        Code = "NOT_YOUR_TURN"
	CodeInvalidCell        Code = "INVALID_CELL"
	CodeNotParticipant     Code = "NOT_A_PARTICIPANT"
	CodeSelfJoin           Code = "SELF_JOIN"
	CodeNotJoinable        Code = "NOT_JOINABLE"
	CodeInvalidParticipant Code = "INVALID_PARTICIPANT"
)

// RejectedMove is an expected, user-correctable refusal. Nothing was written.
type RejectedMove struct {
	Code    Code
	Message string
}

func (e *RejectedMove) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code Code, message string) error {
	return &RejectedMove{Code: code, Message: message}
}

// IsRejected reports whether err is a RejectedMove with one of codes
// (any code when none are given).
func IsRejected(err error, codes ...Code) bool {
	var rm *RejectedMove
	if !errors.As(err, &rm) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if rm.Code == c {
			return true
		}
	}
	return false
}
