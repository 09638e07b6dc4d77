// Package memory is an in-process Session Store with compare-and-swap updates.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

type Store struct {
	sessions map[string]tictactoe.Session
	mu       sync.RWMutex
}

func New() *Store {
	return &Store{
		sessions: make(map[string]tictactoe.Session),
	}
}

func (s *Store) Insert(ctx context.Context, session tictactoe.Session) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	session.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return tictactoe.Session{}, store.ErrConflict
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *Store) UpdateIfStatus(ctx context.Context, id string, expect store.Expect, patch store.Patch) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}

	if err := patch.CheckTransition(expect); err != nil {
		return tictactoe.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.sessions[id]
	if !exists {
		return tictactoe.Session{}, store.ErrNotFound
	}
	if current.Status != expect.Status || current.Version != expect.Version {
		return tictactoe.Session{}, store.ErrConflict
	}

	updated := patch.Apply(current)
	s.sessions[id] = updated
	return updated, nil
}

func (s *Store) QueryOldestWaiting(ctx context.Context, excludingParticipant string) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest tictactoe.Session
	found := false
	for _, session := range s.sessions {
		if session.Status != tictactoe.StatusWaiting || session.SeatA == excludingParticipant {
			continue
		}
		if !found || session.CreatedAt.Before(oldest.CreatedAt) ||
			(session.CreatedAt.Equal(oldest.CreatedAt) && session.ID < oldest.ID) {
			oldest = session
			found = true
		}
	}

	if !found {
		return tictactoe.Session{}, store.ErrNotFound
	}
	return oldest, nil
}

func (s *Store) Get(ctx context.Context, id string) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return tictactoe.Session{}, store.ErrNotFound
	}
	return session, nil
}

// DeleteFinishedBefore removes finished sessions last updated before cutoff.
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, session := range s.sessions {
		if session.Status == tictactoe.StatusFinished && session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
