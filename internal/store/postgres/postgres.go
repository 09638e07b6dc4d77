// Package postgres stores sessions in PostgreSQL through a pgx pool.
//
// Every insert and update fires the sessions_notify trigger, which publishes the
// row on the session_changes channel for the pgnotify feed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/store/postgres/migrations"
	"tictactoe-server/internal/tictactoe"
)

const sessionColumns = `id, board, seat_a, seat_b, turn, status, winner, version, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, applies migrations and returns the store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Printf("Postgres migrations applied: %d new", len(results))
	return nil
}

// Pool exposes the underlying pool, e.g. for the LISTEN feed.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Insert(ctx context.Context, session tictactoe.Session) (tictactoe.Session, error) {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, board, seat_a, seat_b, turn, status, winner, version, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), 1, $8, $9)
		RETURNING `+sessionColumns,
		session.ID,
		session.Board.String(),
		session.SeatA,
		session.SeatB,
		string(session.Turn),
		string(session.Status),
		string(session.Winner),
		session.CreatedAt,
		session.UpdatedAt,
	)

	inserted, err := scanSession(row)
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return inserted, nil
}

func (s *Store) UpdateIfStatus(ctx context.Context, id string, expect store.Expect, patch store.Patch) (tictactoe.Session, error) {
	if err := patch.CheckTransition(expect); err != nil {
		return tictactoe.Session{}, err
	}
	var board, turn, status, winner *string
	if patch.Board != nil {
		v := patch.Board.String()
		board = &v
	}
	if patch.Turn != nil {
		v := string(*patch.Turn)
		turn = &v
	}
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	if patch.Winner != nil {
		v := string(*patch.Winner)
		winner = &v
	}
	var updatedAt *time.Time
	if !patch.UpdatedAt.IsZero() {
		updatedAt = &patch.UpdatedAt
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE sessions SET
			seat_b     = COALESCE($4, seat_b),
			board      = COALESCE($5, board),
			turn       = COALESCE($6, turn),
			status     = COALESCE($7, status),
			winner     = COALESCE(NULLIF($8, ''), winner),
			updated_at = COALESCE($9, now()),
			version    = version + 1
		WHERE id = $1 AND status = $2 AND version = $3
		RETURNING `+sessionColumns,
		id,
		string(expect.Status),
		expect.Version,
		patch.SeatB,
		board,
		turn,
		status,
		winner,
		updatedAt,
	)

	updated, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tictactoe.Session{}, s.missOrConflict(ctx, id)
	}
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("failed to update session %s: %w", id, err)
	}
	return updated, nil
}

// missOrConflict tells apart an unknown id from a failed precondition.
func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check session %s: %w", id, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (s *Store) QueryOldestWaiting(ctx context.Context, excludingParticipant string) (tictactoe.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = 'waiting' AND seat_a <> $1
		ORDER BY created_at, id
		LIMIT 1`,
		excludingParticipant,
	)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tictactoe.Session{}, store.ErrNotFound
	}
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("failed to query waiting sessions: %w", err)
	}
	return session, nil
}

func (s *Store) Get(ctx context.Context, id string) (tictactoe.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tictactoe.Session{}, store.ErrNotFound
	}
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return session, nil
}

func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE status = 'finished' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup finished sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (tictactoe.Session, error) {
	var (
		s                    tictactoe.Session
		board, turn, status  string
		seatB, winner        *string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&s.ID, &board, &s.SeatA, &seatB, &turn, &status, &winner, &s.Version, &createdAt, &updatedAt); err != nil {
		return tictactoe.Session{}, err
	}

	b, err := tictactoe.ParseBoard(board)
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("session %s: %w", s.ID, err)
	}
	s.Board = b
	s.Turn = tictactoe.Seat(turn)
	s.Status = tictactoe.Status(status)
	if seatB != nil {
		s.SeatB = *seatB
	}
	if winner != nil {
		s.Winner = tictactoe.Winner(*winner)
	}
	s.CreatedAt = createdAt.UTC()
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}
