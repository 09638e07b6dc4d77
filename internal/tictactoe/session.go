package tictactoe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Seat string

const (
	SeatNone Seat = ""
	SeatA    Seat = "A"
	SeatB    Seat = "B"
)

func (s Seat) Mark() Mark {
	switch s {
	case SeatA:
		return MarkA
	case SeatB:
		return MarkB
	}
	return Empty
}

func (s Seat) Other() Seat {
	if s == SeatA {
		return SeatB
	}
	return SeatA
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusActive, StatusFinished:
		return true
	}
	return false
}

// rank orders statuses so transitions can be checked as forward-only.
func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusActive:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next keeps status monotonic.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && s.Valid() && next.rank() >= s.rank()
}

type Winner string

const (
	WinnerNone Winner = ""
	WinnerA    Winner = "A"
	WinnerB    Winner = "B"
	WinnerDraw Winner = "draw"
)

func winnerFor(m Mark) Winner {
	switch m {
	case MarkA:
		return WinnerA
	case MarkB:
		return WinnerB
	}
	return WinnerNone
}

// Session is the shared record two participants play on.
type Session struct {
	ID        string    `json:"id"`
	Board     Board     `json:"board"`
	SeatA     string    `json:"seatA"`
	SeatB     string    `json:"seatB"`
	Turn      Seat      `json:"turn"`
	Status    Status    `json:"status"`
	Winner    Winner    `json:"winner"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// NewSession builds the waiting record a first participant creates. The ID is
// left for the store to assign.
func NewSession(participantID string, now time.Time) Session {
	return Session{
		SeatA:     participantID,
		Turn:      SeatA,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SeatOf returns the seat participantID occupies, or SeatNone for observers.
func (s Session) SeatOf(participantID string) Seat {
	switch {
	case participantID == "":
		return SeatNone
	case s.SeatA == participantID:
		return SeatA
	case s.SeatB == participantID:
		return SeatB
	}
	return SeatNone
}

// Join seats participantID as B and activates the session.
func Join(s Session, participantID string, now time.Time) (Session, error) {
	if strings.TrimSpace(participantID) == "" {
		return s, reject(CodeInvalidParticipant, "Participant id cannot be empty")
	}
	if s.Status != StatusWaiting {
		return s, reject(CodeNotJoinable, "Session is not waiting for an opponent")
	}
	if s.SeatA == participantID {
		return s, reject(CodeSelfJoin, "Cannot join your own session")
	}
	s.SeatB = participantID
	s.Status = StatusActive
	s.UpdatedAt = now
	return s, nil
}

// ApplyMove validates a move against s and returns the resulting record.
// s is never modified; a rejected move returns a *RejectedMove.
func ApplyMove(s Session, participantID string, cell int, now time.Time) (Session, error) {
	if !ValidCell(cell) {
		return s, reject(CodeInvalidCell, fmt.Sprintf("Cell must be between 0 and %d", CellCount-1))
	}
	if s.Status != StatusActive {
		return s, reject(CodeNotPlayable, "Session is not active")
	}
	// Occupied wins over every participant check, observers included.
	if s.Board[cell] != Empty {
		return s, reject(CodeOccupied, "Cell is already occupied")
	}
	seat := s.SeatOf(participantID)
	if seat == SeatNone {
		return s, reject(CodeNotParticipant, "Observers cannot move")
	}
	if seat != s.Turn {
		return s, reject(CodeNotYourTurn, "It is not your turn")
	}

	next := s
	next.Board[cell] = seat.Mark()
	next.UpdatedAt = now

	if m := next.Board.Winner(); m != Empty {
		next.Status = StatusFinished
		next.Winner = winnerFor(m)
		return next, nil
	}
	if next.Board.Full() {
		next.Status = StatusFinished
		next.Winner = WinnerDraw
		return next, nil
	}
	next.Turn = seat.Other()
	return next, nil
}

// Validate checks the structural invariants of a record read from storage or a feed.
func (s Session) Validate() error {
	var errs []error
	if !s.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", s.Status))
	}
	if s.SeatA == "" {
		errs = append(errs, errors.New("seatA is empty"))
	}
	if s.Turn != SeatA && s.Turn != SeatB {
		errs = append(errs, fmt.Errorf("invalid turn %q", s.Turn))
	}
	if (s.Status == StatusWaiting) != (s.SeatB == "") {
		errs = append(errs, errors.New("seatB must be set exactly when the session is not waiting"))
	}
	if s.SeatB != "" && s.SeatA == s.SeatB {
		errs = append(errs, errors.New("seatA and seatB are the same participant"))
	}
	if (s.Status == StatusFinished) != (s.Winner != WinnerNone) {
		errs = append(errs, errors.New("winner must be set exactly when the session is finished"))
	}
	a, b := s.Board.Count(MarkA), s.Board.Count(MarkB)
	if a-b < 0 || a-b > 1 {
		errs = append(errs, fmt.Errorf("mark counts out of balance: %d X, %d O", a, b))
	}
	if s.Status != StatusFinished {
		expected := SeatA
		if a > b {
			expected = SeatB
		}
		if s.Turn != expected {
			errs = append(errs, fmt.Errorf("turn %s does not match board", s.Turn))
		}
	}
	return errors.Join(errs...)
}
