package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeWatch struct {
	sessionID string
	closed    int
	err       error
	mu        sync.Mutex
}

func (w *fakeWatch) SessionID() string { return w.sessionID }

func (w *fakeWatch) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return w.err
}

func (w *fakeWatch) closes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func TestSubscriptionManager_AddAndRemove(t *testing.T) {
	sm := NewSubscriptionManager()
	w := &fakeWatch{sessionID: "s1"}

	assert.True(t, sm.Add("conn-1", w))
	assert.True(t, sm.IsWatching("conn-1", "s1"))
	assert.False(t, sm.IsWatching("conn-2", "s1"))

	assert.NoError(t, sm.Remove("conn-1", "s1"))
	assert.Equal(t, 1, w.closes())
	assert.False(t, sm.IsWatching("conn-1", "s1"))
	assert.Equal(t, 0, sm.Count())
}

func TestSubscriptionManager_DuplicateIsClosed(t *testing.T) {
	sm := NewSubscriptionManager()
	first := &fakeWatch{sessionID: "s1"}
	second := &fakeWatch{sessionID: "s1"}

	assert.True(t, sm.Add("conn-1", first))
	assert.False(t, sm.Add("conn-1", second))

	assert.Equal(t, 0, first.closes())
	assert.Equal(t, 1, second.closes())
	assert.Equal(t, 1, sm.Count())
}

func TestSubscriptionManager_RemoveUnknown(t *testing.T) {
	sm := NewSubscriptionManager()

	err := sm.Remove("conn-1", "s1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_WATCHING")
}

func TestSubscriptionManager_RemoveAll(t *testing.T) {
	sm := NewSubscriptionManager()
	mine := []*fakeWatch{{sessionID: "s1"}, {sessionID: "s2"}, {sessionID: "s3", err: errors.New("already gone")}}
	theirs := &fakeWatch{sessionID: "s1"}

	for _, w := range mine {
		sm.Add("conn-1", w)
	}
	sm.Add("conn-2", theirs)

	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, sm.Watching("conn-1"))
	assert.Equal(t, 3, sm.RemoveAll("conn-1"))

	for _, w := range mine {
		assert.Equal(t, 1, w.closes(), "watch on %s released", w.sessionID)
	}
	assert.Equal(t, 0, theirs.closes())
	assert.Empty(t, sm.Watching("conn-1"))
	assert.Equal(t, 1, sm.Count())
	assert.Equal(t, 0, sm.RemoveAll("conn-1"), "second teardown is a no-op")
}

func TestSubscriptionManager_Concurrent(t *testing.T) {
	sm := NewSubscriptionManager()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", i%4)
			sm.Add(conn, &fakeWatch{sessionID: fmt.Sprintf("s%d", i)})
			sm.IsWatching(conn, "s0")
			sm.Count()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, sm.Count())

	for i := 0; i < 4; i++ {
		sm.RemoveAll(fmt.Sprintf("conn-%d", i))
	}
	assert.Equal(t, 0, sm.Count())
}
