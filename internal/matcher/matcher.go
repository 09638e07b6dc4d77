// Package matcher pairs participants into sessions and drives the turn-based
// state machine through a Session Store and a Change Feed.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tictactoe-server/internal/feed"
	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

// ErrTransient marks a store failure the caller may retry. Nothing was applied.
var ErrTransient = errors.New("TRANSIENT: session store unavailable")

const (
	DefaultMatchAttempts = 5
	DefaultMoveAttempts  = 3
)

type Matcher struct {
	store         store.Store
	feed          feed.Feed
	now           func() time.Time
	matchAttempts int
	moveAttempts  int
	logger        *log.Logger
}

type Option func(*Matcher)

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// WithMatchAttempts bounds how many lost seat B claims FindOrCreateSession absorbs.
func WithMatchAttempts(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.matchAttempts = n
		}
	}
}

// WithMoveAttempts bounds how many conflicting writes SubmitMove re-validates.
func WithMoveAttempts(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.moveAttempts = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(s store.Store, f feed.Feed, opts ...Option) *Matcher {
	m := &Matcher{
		store:         s,
		feed:          f,
		now:           time.Now,
		matchAttempts: DefaultMatchAttempts,
		moveAttempts:  DefaultMoveAttempts,
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// FindOrCreateSession claims seat B of the oldest session waiting for an
// opponent, or opens a new waiting session with the participant in seat A.
// Each successful call performs exactly one store write.
func (m *Matcher) FindOrCreateSession(ctx context.Context, participantID string) (tictactoe.Session, tictactoe.Seat, error) {
	if strings.TrimSpace(participantID) == "" {
		return tictactoe.Session{}, tictactoe.SeatNone, &tictactoe.RejectedMove{
			Code:    tictactoe.CodeInvalidParticipant,
			Message: "participant id is required",
		}
	}

	for attempt := 1; attempt <= m.matchAttempts; attempt++ {
		waiting, err := m.store.QueryOldestWaiting(ctx, participantID)
		if errors.Is(err, store.ErrNotFound) {
			created, err := m.store.Insert(ctx, tictactoe.NewSession(participantID, m.now()))
			if err != nil {
				return tictactoe.Session{}, tictactoe.SeatNone, transient("create session", err)
			}
			m.logger.Printf("Participant %s opened session %s", participantID, created.ID)
			return created, tictactoe.SeatA, nil
		}
		if err != nil {
			return tictactoe.Session{}, tictactoe.SeatNone, transient("query waiting sessions", err)
		}

		joined, err := tictactoe.Join(waiting, participantID, m.now())
		if err != nil {
			return tictactoe.Session{}, tictactoe.SeatNone, err
		}

		claimed, err := m.store.UpdateIfStatus(ctx, waiting.ID,
			store.Expect{Status: tictactoe.StatusWaiting, Version: waiting.Version},
			store.Diff(waiting, joined),
		)
		switch {
		case err == nil:
			m.logger.Printf("Participant %s joined session %s as seat B", participantID, claimed.ID)
			return claimed, tictactoe.SeatB, nil
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
			// Someone else claimed (or removed) it first; look again.
			m.logger.Printf("Lost claim on session %s (attempt %d/%d)", waiting.ID, attempt, m.matchAttempts)
		default:
			return tictactoe.Session{}, tictactoe.SeatNone, transient("claim session "+waiting.ID, err)
		}
	}

	return tictactoe.Session{}, tictactoe.SeatNone,
		fmt.Errorf("find session for %s: %d claims lost: %w", participantID, m.matchAttempts, store.ErrConflict)
}

// SubmitMove validates the move against session, the caller's last-known
// record, and persists the result as one conditional write. A rejected move
// is returned as *tictactoe.RejectedMove together with the record it was
// checked against, and nothing is written.
func (m *Matcher) SubmitMove(ctx context.Context, session tictactoe.Session, participantID string, cell int) (tictactoe.Session, error) {
	current := session
	for attempt := 1; ; attempt++ {
		next, err := tictactoe.ApplyMove(current, participantID, cell, m.now())
		if err != nil {
			return current, err
		}

		updated, err := m.store.UpdateIfStatus(ctx, current.ID,
			store.Expect{Status: tictactoe.StatusActive, Version: current.Version},
			store.Diff(current, next),
		)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, store.ErrNotFound):
			return current, fmt.Errorf("submit move to session %s: %w", current.ID, err)
		case !errors.Is(err, store.ErrConflict):
			return current, transient("submit move to session "+current.ID, err)
		}

		if attempt >= m.moveAttempts {
			return current, fmt.Errorf("submit move to session %s: %d writes lost: %w", current.ID, attempt, store.ErrConflict)
		}
		latest, err := m.store.Get(ctx, current.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return current, fmt.Errorf("reload session %s: %w", current.ID, err)
			}
			return current, transient("reload session "+current.ID, err)
		}
		current = latest
	}
}

// Get loads the current record of a session.
func (m *Matcher) Get(ctx context.Context, sessionID string) (tictactoe.Session, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return tictactoe.Session{}, transient("get session "+sessionID, err)
	}
	return s, err
}
