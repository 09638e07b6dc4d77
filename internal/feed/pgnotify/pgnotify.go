// Package pgnotify turns PostgreSQL session_changes notifications into feed events.
package pgnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tictactoe-server/internal/feed"
	"tictactoe-server/internal/tictactoe"
)

const Channel = "session_changes"

// Feed listens on one dedicated connection and dispatches to local subscribers.
// Notifications sent while the listener is reconnecting are not replayed.
type Feed struct {
	pool      *pgxpool.Pool
	hub       *feed.Hub
	ready     chan struct{}
	readyOnce sync.Once
}

func New(pool *pgxpool.Pool) *Feed {
	return &Feed{
		pool:  pool,
		hub:   feed.NewHub(),
		ready: make(chan struct{}),
	}
}

func (f *Feed) Subscribe(ctx context.Context, sessionID string, onChange func(tictactoe.Session)) (feed.Handle, error) {
	return f.hub.Subscribe(ctx, sessionID, onChange)
}

func (f *Feed) Unsubscribe(h feed.Handle) error {
	return f.hub.Unsubscribe(h)
}

// Ready is closed once the first LISTEN has been issued.
func (f *Feed) Ready() <-chan struct{} {
	return f.ready
}

// Run listens until ctx is cancelled, reconnecting with backoff on errors.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("Postgres listener stopped: %v (retrying in %s)", err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	// The connection keeps LISTEN state, so it never goes back to the pool.
	pgConn := conn.Hijack()
	defer pgConn.Close(context.Background())

	if _, err := pgConn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	f.readyOnce.Do(func() { close(f.ready) })

	for {
		n, err := pgConn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		s, err := decodeRow([]byte(n.Payload))
		if err != nil {
			log.Printf("Dropping malformed session notification: %v", err)
			continue
		}
		f.hub.Publish(ctx, s)
	}
}

// row mirrors the json_build_object payload of the notify trigger.
type row struct {
	ID        string    `json:"id"`
	Board     string    `json:"board"`
	SeatA     string    `json:"seatA"`
	SeatB     string    `json:"seatB"`
	Turn      string    `json:"turn"`
	Status    string    `json:"status"`
	Winner    string    `json:"winner"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func decodeRow(payload []byte) (tictactoe.Session, error) {
	var r row
	if err := json.Unmarshal(payload, &r); err != nil {
		return tictactoe.Session{}, fmt.Errorf("decode notification: %w", err)
	}
	if r.ID == "" {
		return tictactoe.Session{}, errors.New("decode notification: missing id")
	}
	board, err := tictactoe.ParseBoard(r.Board)
	if err != nil {
		return tictactoe.Session{}, fmt.Errorf("decode notification %s: %w", r.ID, err)
	}

	s := tictactoe.Session{
		ID:        r.ID,
		Board:     board,
		SeatA:     r.SeatA,
		SeatB:     r.SeatB,
		Turn:      tictactoe.Seat(r.Turn),
		Status:    tictactoe.Status(r.Status),
		Winner:    tictactoe.Winner(r.Winner),
		Version:   r.Version,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := s.Validate(); err != nil {
		return tictactoe.Session{}, fmt.Errorf("decode notification %s: %w", r.ID, err)
	}
	return s, nil
}
