// Package storetest holds the behavior every Session Store implementation must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

// Backend is what the conformance suite needs from an implementation.
type Backend interface {
	store.Store
	store.Sweeper
}

// Run executes the suite. newStore must return an empty store for each call.
func Run(t *testing.T, newStore func(t *testing.T) Backend) {
	t.Run("InsertAssignsIDAndVersion", func(t *testing.T) { testInsert(t, newStore(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("UpdateIfStatus", func(t *testing.T) { testUpdateIfStatus(t, newStore(t)) })
	t.Run("UpdateConflicts", func(t *testing.T) { testUpdateConflicts(t, newStore(t)) })
	t.Run("StatusNeverMovesBackward", func(t *testing.T) { testStatusNeverMovesBackward(t, newStore(t)) })
	t.Run("QueryOldestWaiting", func(t *testing.T) { testQueryOldestWaiting(t, newStore(t)) })
	t.Run("ConcurrentClaim", func(t *testing.T) { testConcurrentClaim(t, newStore(t)) })
	t.Run("DeleteFinishedBefore", func(t *testing.T) { testDeleteFinished(t, newStore(t)) })
}

func seatB(id string) *string { return &id }

func status(s tictactoe.Status) *tictactoe.Status { return &s }

func testInsert(t *testing.T, s Backend) {
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Millisecond)

	inserted, err := s.Insert(ctx, tictactoe.NewSession("alice", created))
	require.NoError(t, err)
	assert.NotEmpty(t, inserted.ID)
	assert.Equal(t, int64(1), inserted.Version)

	loaded, err := s.Get(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, loaded.ID)
	assert.Equal(t, "alice", loaded.SeatA)
	assert.Equal(t, "", loaded.SeatB)
	assert.Equal(t, tictactoe.StatusWaiting, loaded.Status)
	assert.Equal(t, tictactoe.SeatA, loaded.Turn)
	assert.Equal(t, tictactoe.WinnerNone, loaded.Winner)
	assert.Equal(t, tictactoe.Board{}, loaded.Board)
	assert.True(t, created.Equal(loaded.CreatedAt), "createdAt %v != %v", loaded.CreatedAt, created)
}

func testGetNotFound(t *testing.T, s Backend) {
	_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpdateIfStatus(context.Background(), "00000000-0000-0000-0000-000000000000",
		store.Expect{Status: tictactoe.StatusWaiting, Version: 1}, store.Patch{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateIfStatus(t *testing.T, s Backend) {
	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := s.Insert(ctx, tictactoe.NewSession("alice", now))
	require.NoError(t, err)

	joined, err := tictactoe.Join(inserted, "bob", now)
	require.NoError(t, err)
	active, err := s.UpdateIfStatus(ctx, inserted.ID,
		store.Expect{Status: tictactoe.StatusWaiting, Version: inserted.Version},
		store.Diff(inserted, joined))
	require.NoError(t, err)
	assert.Equal(t, "bob", active.SeatB)
	assert.Equal(t, tictactoe.StatusActive, active.Status)
	assert.Equal(t, int64(2), active.Version)

	moved, err := tictactoe.ApplyMove(active, "alice", 4, now)
	require.NoError(t, err)
	written, err := s.UpdateIfStatus(ctx, active.ID,
		store.Expect{Status: tictactoe.StatusActive, Version: active.Version},
		store.Diff(active, moved))
	require.NoError(t, err)
	assert.Equal(t, tictactoe.MarkA, written.Board[4])
	assert.Equal(t, tictactoe.SeatB, written.Turn)
	assert.Equal(t, int64(3), written.Version)

	loaded, err := s.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, written.Board, loaded.Board)
	assert.Equal(t, written.Turn, loaded.Turn)
	assert.Equal(t, written.Version, loaded.Version)
	assert.NoError(t, loaded.Validate())
}

func testUpdateConflicts(t *testing.T, s Backend) {
	ctx := context.Background()

	inserted, err := s.Insert(ctx, tictactoe.NewSession("alice", time.Now().UTC()))
	require.NoError(t, err)

	patch := store.Patch{SeatB: seatB("bob"), Status: status(tictactoe.StatusActive)}

	_, err = s.UpdateIfStatus(ctx, inserted.ID, store.Expect{Status: tictactoe.StatusActive, Version: inserted.Version}, patch)
	assert.ErrorIs(t, err, store.ErrConflict, "wrong status")

	_, err = s.UpdateIfStatus(ctx, inserted.ID, store.Expect{Status: tictactoe.StatusWaiting, Version: inserted.Version + 5}, patch)
	assert.ErrorIs(t, err, store.ErrConflict, "wrong version")

	loaded, err := s.Get(ctx, inserted.ID)
	require.NoError(t, err)
	assert.Equal(t, tictactoe.StatusWaiting, loaded.Status, "conflicting writes must not apply")
	assert.Equal(t, "", loaded.SeatB)
}

func testStatusNeverMovesBackward(t *testing.T, s Backend) {
	ctx := context.Background()

	inserted, err := s.Insert(ctx, tictactoe.NewSession("alice", time.Now().UTC()))
	require.NoError(t, err)
	active, err := s.UpdateIfStatus(ctx, inserted.ID,
		store.Expect{Status: tictactoe.StatusWaiting, Version: inserted.Version},
		store.Patch{SeatB: seatB("bob"), Status: status(tictactoe.StatusActive)})
	require.NoError(t, err)

	_, err = s.UpdateIfStatus(ctx, active.ID,
		store.Expect{Status: tictactoe.StatusActive, Version: active.Version},
		store.Patch{Status: status(tictactoe.StatusWaiting)})
	assert.ErrorIs(t, err, store.ErrBackwardStatus)

	loaded, err := s.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, tictactoe.StatusActive, loaded.Status)
	assert.Equal(t, active.Version, loaded.Version)
}

func testQueryOldestWaiting(t *testing.T, s Backend) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	_, err := s.QueryOldestWaiting(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	own, err := s.Insert(ctx, tictactoe.NewSession("carol", base))
	require.NoError(t, err)
	older, err := s.Insert(ctx, tictactoe.NewSession("alice", base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Insert(ctx, tictactoe.NewSession("bob", base.Add(2*time.Minute)))
	require.NoError(t, err)

	found, err := s.QueryOldestWaiting(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, older.ID, found.ID, "carol's own session is excluded")

	found, err = s.QueryOldestWaiting(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, own.ID, found.ID)

	_, err = s.UpdateIfStatus(ctx, own.ID, store.Expect{Status: tictactoe.StatusWaiting, Version: own.Version},
		store.Patch{SeatB: seatB("dave"), Status: status(tictactoe.StatusActive)})
	require.NoError(t, err)

	found, err = s.QueryOldestWaiting(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, older.ID, found.ID, "active sessions are not waiting")
}

func testConcurrentClaim(t *testing.T, s Backend) {
	ctx := context.Background()

	inserted, err := s.Insert(ctx, tictactoe.NewSession("alice", time.Now().UTC()))
	require.NoError(t, err)

	const claimants = 8
	var wg sync.WaitGroup
	results := make(chan error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			name := string(rune('a'+id)) + "-claimant"
			_, err := s.UpdateIfStatus(ctx, inserted.ID,
				store.Expect{Status: tictactoe.StatusWaiting, Version: inserted.Version},
				store.Patch{SeatB: &name, Status: status(tictactoe.StatusActive)})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, store.ErrConflict)
	}
	assert.Equal(t, 1, wins, "exactly one claim may succeed")
}

func testDeleteFinished(t *testing.T, s Backend) {
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	finishOld := func(created time.Time) tictactoe.Session {
		inserted, err := s.Insert(ctx, tictactoe.NewSession("alice", created))
		require.NoError(t, err)
		winner := tictactoe.WinnerDraw
		out, err := s.UpdateIfStatus(ctx, inserted.ID,
			store.Expect{Status: tictactoe.StatusWaiting, Version: inserted.Version},
			store.Patch{SeatB: seatB("bob"), Status: status(tictactoe.StatusFinished), Winner: &winner, UpdatedAt: created})
		require.NoError(t, err)
		return out
	}

	stale := finishOld(old)
	recent := finishOld(time.Now().UTC())
	waiting, err := s.Insert(ctx, tictactoe.NewSession("carol", old))
	require.NoError(t, err)

	deleted, err := s.DeleteFinishedBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = s.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Get(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, waiting.ID)
	assert.NoError(t, err, "abandoned waiting sessions are never expired")
}
