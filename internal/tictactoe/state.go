package tictactoe

import "time"

// State is a status-specific view of a Session. Only Finished carries a
// winner and only Active carries a turn.
type State interface {
	Status() Status
	sealed()
}

type Waiting struct {
	ID        string
	SeatA     string
	CreatedAt time.Time
}

type Active struct {
	ID    string
	SeatA string
	SeatB string
	Board Board
	Turn  Seat
}

type Finished struct {
	ID     string
	SeatA  string
	SeatB  string
	Board  Board
	Winner Winner
}

func (Waiting) Status() Status  { return StatusWaiting }
func (Active) Status() Status   { return StatusActive }
func (Finished) Status() Status { return StatusFinished }

func (Waiting) sealed()  {}
func (Active) sealed()   {}
func (Finished) sealed() {}

// State returns the typed view for s.Status.
func (s Session) State() State {
	switch s.Status {
	case StatusActive:
		return Active{ID: s.ID, SeatA: s.SeatA, SeatB: s.SeatB, Board: s.Board, Turn: s.Turn}
	case StatusFinished:
		return Finished{ID: s.ID, SeatA: s.SeatA, SeatB: s.SeatB, Board: s.Board, Winner: s.Winner}
	default:
		return Waiting{ID: s.ID, SeatA: s.SeatA, CreatedAt: s.CreatedAt}
	}
}

// WinnerID returns the winning participant, or "" for a draw or an unfinished game.
func (f Finished) WinnerID() string {
	switch f.Winner {
	case WinnerA:
		return f.SeatA
	case WinnerB:
		return f.SeatB
	}
	return ""
}
