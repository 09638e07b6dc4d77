package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

func TestPatch_ApplyBumpsVersion(t *testing.T) {
	s := tictactoe.NewSession("alice", time.Now())
	s.Version = 3

	status := tictactoe.StatusActive
	seatB := "bob"
	out := store.Patch{SeatB: &seatB, Status: &status}.Apply(s)

	assert.Equal(t, int64(4), out.Version)
	assert.Equal(t, "bob", out.SeatB)
	assert.Equal(t, tictactoe.StatusActive, out.Status)
	assert.Equal(t, tictactoe.SeatA, out.Turn, "untouched fields stay")
	assert.Equal(t, tictactoe.StatusWaiting, s.Status, "input not modified")
}

func TestDiff_RoundTrip(t *testing.T) {
	now := time.Now()
	from, err := tictactoe.Join(tictactoe.NewSession("alice", now), "bob", now)
	assert.NoError(t, err)
	to, err := tictactoe.ApplyMove(from, "alice", 4, now.Add(time.Second))
	assert.NoError(t, err)

	p := store.Diff(from, to)
	assert.NotNil(t, p.Board)
	assert.NotNil(t, p.Turn)
	assert.Nil(t, p.Status, "status did not change")
	assert.Nil(t, p.SeatB)

	applied := p.Apply(from)
	to.Version = from.Version + 1
	assert.Equal(t, to, applied)
}

func TestPatch_CheckTransition(t *testing.T) {
	finished := tictactoe.StatusFinished
	waiting := tictactoe.StatusWaiting

	assert.NoError(t, store.Patch{}.CheckTransition(store.Expect{Status: tictactoe.StatusActive}))
	assert.NoError(t, store.Patch{Status: &finished}.CheckTransition(store.Expect{Status: tictactoe.StatusActive}))

	err := store.Patch{Status: &waiting}.CheckTransition(store.Expect{Status: tictactoe.StatusFinished})
	assert.ErrorIs(t, err, store.ErrBackwardStatus)
	assert.Contains(t, err.Error(), "finished -> waiting")
}
