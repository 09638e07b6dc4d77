// Package store defines the Session Store contract the matcher writes through.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tictactoe-server/internal/tictactoe"
)

var (
	ErrNotFound = errors.New("NOT_FOUND: session not found")
	// ErrConflict means the record no longer matched the expected status/version.
	ErrConflict = errors.New("CONFLICT: session changed concurrently")
	// ErrBackwardStatus means a patch tried to move status against waiting -> active -> finished.
	ErrBackwardStatus = errors.New("INVALID_TRANSITION: session status cannot move backward")
)

// Expect is the precondition of a conditional update. The write applies only
// when both status and version still match the stored record.
type Expect struct {
	Status  tictactoe.Status
	Version int64
}

// Patch lists the fields a conditional update replaces. Nil fields are left alone.
type Patch struct {
	SeatB     *string
	Board     *tictactoe.Board
	Turn      *tictactoe.Seat
	Status    *tictactoe.Status
	Winner    *tictactoe.Winner
	UpdatedAt time.Time
}

// CheckTransition rejects a patch whose status would not follow expect.Status
// forward. Stores call it before writing.
func (p Patch) CheckTransition(expect Expect) error {
	if p.Status == nil || expect.Status.CanAdvanceTo(*p.Status) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrBackwardStatus, expect.Status, *p.Status)
}

// Apply returns s with the patch applied and the version bumped.
func (p Patch) Apply(s tictactoe.Session) tictactoe.Session {
	if p.SeatB != nil {
		s.SeatB = *p.SeatB
	}
	if p.Board != nil {
		s.Board = *p.Board
	}
	if p.Turn != nil {
		s.Turn = *p.Turn
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Winner != nil {
		s.Winner = *p.Winner
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
	s.Version++
	return s
}

// Diff builds the patch that turns from into to.
func Diff(from, to tictactoe.Session) Patch {
	p := Patch{UpdatedAt: to.UpdatedAt}
	if from.SeatB != to.SeatB {
		p.SeatB = &to.SeatB
	}
	if from.Board != to.Board {
		p.Board = &to.Board
	}
	if from.Turn != to.Turn {
		p.Turn = &to.Turn
	}
	if from.Status != to.Status {
		p.Status = &to.Status
	}
	if from.Winner != to.Winner {
		p.Winner = &to.Winner
	}
	return p
}

// Store is the durable record store behind the matcher.
type Store interface {
	// Insert stores a new session, assigning an ID when empty, and returns it at version 1.
	Insert(ctx context.Context, s tictactoe.Session) (tictactoe.Session, error)
	// UpdateIfStatus applies patch atomically when the record still matches expect.
	// It returns ErrConflict when it does not and ErrNotFound for unknown ids.
	UpdateIfStatus(ctx context.Context, id string, expect Expect, patch Patch) (tictactoe.Session, error)
	// QueryOldestWaiting returns the oldest waiting session not created by
	// excludingParticipant, or ErrNotFound.
	QueryOldestWaiting(ctx context.Context, excludingParticipant string) (tictactoe.Session, error)
	Get(ctx context.Context, id string) (tictactoe.Session, error)
}

// Sweeper removes finished sessions. It is used by retention housekeeping only.
type Sweeper interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
