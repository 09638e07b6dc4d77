package feed

import (
	"context"
	"sync"

	"tictactoe-server/internal/tictactoe"
)

// Hub fans session changes out to in-process subscribers. Publish invokes the
// callbacks synchronously on the caller's goroutine, outside the hub lock, so
// a callback may unsubscribe itself.
type Hub struct {
	subscribers map[string]map[uint64]func(tictactoe.Session) // sessionID -> handle id -> callback
	nextID      uint64
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[uint64]func(tictactoe.Session)),
	}
}

func (h *Hub) Subscribe(ctx context.Context, sessionID string, onChange func(tictactoe.Session)) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[uint64]func(tictactoe.Session))
		h.subscribers[sessionID] = subs
	}
	subs[h.nextID] = onChange
	return Handle{SessionID: sessionID, id: h.nextID}, nil
}

func (h *Hub) Unsubscribe(handle Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[handle.SessionID]
	if !ok {
		return ErrUnknownHandle
	}
	if _, ok := subs[handle.id]; !ok {
		return ErrUnknownHandle
	}
	delete(subs, handle.id)
	if len(subs) == 0 {
		delete(h.subscribers, handle.SessionID)
	}
	return nil
}

// Publish delivers s to every subscriber of s.ID.
func (h *Hub) Publish(_ context.Context, s tictactoe.Session) error {
	h.mu.RLock()
	callbacks := make([]func(tictactoe.Session), 0, len(h.subscribers[s.ID]))
	for _, cb := range h.subscribers[s.ID] {
		callbacks = append(callbacks, cb)
	}
	h.mu.RUnlock()

	for _, cb := range callbacks {
		cb(s)
	}
	return nil
}

// Subscribers returns how many subscriptions sessionID has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}

// Topics returns the number of sessions with at least one subscriber.
func (h *Hub) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
