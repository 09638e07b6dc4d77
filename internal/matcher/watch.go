package matcher

import (
	"context"
	"errors"
	"sync"

	"tictactoe-server/internal/feed"
	"tictactoe-server/internal/tictactoe"
)

// Watch is a scoped subscription to one session. Every notification replaces
// the locally held record as-is; the last write observed wins.
type Watch struct {
	feed     feed.Feed
	handle   feed.Handle
	onChange func(tictactoe.Session)

	mu       sync.RWMutex
	current  tictactoe.Session
	observed bool
	closed   bool

	closeOnce sync.Once
	closeErr  error
	stop      func() bool
}

// Watch subscribes to sessionID and seeds the local record from the store.
// onChange may be nil. The subscription is released by Close or when ctx is
// cancelled, whichever comes first.
func (m *Matcher) Watch(ctx context.Context, sessionID string, onChange func(tictactoe.Session)) (*Watch, error) {
	w := &Watch{feed: m.feed, onChange: onChange}

	handle, err := m.feed.Subscribe(ctx, sessionID, w.apply)
	if err != nil {
		return nil, transient("subscribe to session "+sessionID, err)
	}
	w.handle = handle

	seed, err := m.Get(ctx, sessionID)
	if err != nil {
		_ = m.feed.Unsubscribe(handle)
		return nil, err
	}

	w.mu.Lock()
	if !w.observed {
		w.current = seed
	}
	w.stop = context.AfterFunc(ctx, func() { _ = w.Close() })
	w.mu.Unlock()
	return w, nil
}

func (w *Watch) apply(s tictactoe.Session) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.current = s
	w.observed = true
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(s)
	}
}

func (w *Watch) SessionID() string {
	return w.handle.SessionID
}

// Current returns the latest record observed.
func (w *Watch) Current() tictactoe.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close unsubscribes. Only the first call reaches the feed.
func (w *Watch) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		stop := w.stop
		w.mu.Unlock()

		if stop != nil {
			stop()
		}
		w.closeErr = w.feed.Unsubscribe(w.handle)
		if errors.Is(w.closeErr, feed.ErrUnknownHandle) {
			w.closeErr = nil
		}
	})
	return w.closeErr
}
