// Package sqlite provides a SQLite-backed Session Store for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/store/sqlite/migrations"
	"tictactoe-server/internal/tictactoe"
)

const sessionColumns = `id, board, seat_a, seat_b, turn, status, winner, version, created_at, updated_at`

// Store persists sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; conditional updates stay atomic without SQLITE_BUSY retries.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, migrations.FS)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
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

	row := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO sessions (id, board, seat_a, seat_b, turn, status, winner, version, created_at, updated_at)
		 VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), 1, ?, ?)
		 RETURNING `+sessionColumns,
		session.ID,
		session.Board.String(),
		session.SeatA,
		session.SeatB,
		string(session.Turn),
		string(session.Status),
		string(session.Winner),
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
	)

	inserted, err := scanSession(row)
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return inserted, nil
}

func (s *Store) UpdateIfStatus(ctx context.Context, id string, expect store.Expect, patch store.Patch) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}
	if err := patch.CheckTransition(expect); err != nil {
		return tictactoe.Session{}, err
	}

	var seatB, board, turn, status, winner sql.NullString
	if patch.SeatB != nil {
		seatB = sql.NullString{String: *patch.SeatB, Valid: true}
	}
	if patch.Board != nil {
		board = sql.NullString{String: patch.Board.String(), Valid: true}
	}
	if patch.Turn != nil {
		turn = sql.NullString{String: string(*patch.Turn), Valid: true}
	}
	if patch.Status != nil {
		status = sql.NullString{String: string(*patch.Status), Valid: true}
	}
	if patch.Winner != nil && *patch.Winner != tictactoe.WinnerNone {
		winner = sql.NullString{String: string(*patch.Winner), Valid: true}
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`UPDATE sessions SET
		   seat_b     = COALESCE(?, seat_b),
		   board      = COALESCE(?, board),
		   turn       = COALESCE(?, turn),
		   status     = COALESCE(?, status),
		   winner     = COALESCE(?, winner),
		   updated_at = ?,
		   version    = version + 1
		 WHERE id = ? AND status = ? AND version = ?
		 RETURNING `+sessionColumns,
		seatB,
		board,
		turn,
		status,
		winner,
		toMillis(updatedAt),
		id,
		string(expect.Status),
		expect.Version,
	)

	updated, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tictactoe.Session{}, s.missOrConflict(ctx, id)
	}
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("update session %s: %w", id, err)
	}
	return updated, nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session %s: %w", id, err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (s *Store) QueryOldestWaiting(ctx context.Context, excludingParticipant string) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status = 'waiting' AND seat_a <> ?
		 ORDER BY created_at, id
		 LIMIT 1`,
		excludingParticipant,
	)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tictactoe.Session{}, store.ErrNotFound
	}
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("query waiting sessions: %w", err)
	}
	return session, nil
}

func (s *Store) Get(ctx context.Context, id string) (tictactoe.Session, error) {
	if err := ctx.Err(); err != nil {
		return tictactoe.Session{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tictactoe.Session{}, store.ErrNotFound
	}
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return session, nil
}

func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM sessions WHERE status = 'finished' AND updated_at < ?`,
		toMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup finished sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check cleanup result: %w", err)
	}
	return int(n), nil
}

func scanSession(row *sql.Row) (tictactoe.Session, error) {
	var (
		s                    tictactoe.Session
		board, turn, status  string
		seatB, winner        sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&s.ID, &board, &s.SeatA, &seatB, &turn, &status, &winner, &s.Version, &createdAt, &updatedAt); err != nil {
		return tictactoe.Session{}, err
	}

	b, err := tictactoe.ParseBoard(board)
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("session %s: %w", s.ID, err)
	}
	s.Board = b
	s.SeatB = seatB.String
	s.Turn = tictactoe.Seat(turn)
	s.Status = tictactoe.Status(status)
	s.Winner = tictactoe.Winner(winner.String)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}
