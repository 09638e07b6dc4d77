package server

import (
	"errors"
	"log"
	"sync"

	"tictactoe-server/internal/matcher"
)

// watch is the part of *matcher.Watch the manager needs.
type watch interface {
	SessionID() string
	Close() error
}

// SubscriptionManager tracks which sessions each connection watches so every
// watch is released when its connection goes away.
type SubscriptionManager struct {
	watches map[string]map[string]watch // connectionID -> sessionID -> watch
	mu      sync.RWMutex
}

func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		watches: make(map[string]map[string]watch),
	}
}

// Add records w for connectionID. It returns false, and closes w, when the
// connection already watches that session.
func (sm *SubscriptionManager) Add(connectionID string, w watch) bool {
	sm.mu.Lock()
	byID, ok := sm.watches[connectionID]
	if !ok {
		byID = make(map[string]watch)
		sm.watches[connectionID] = byID
	}
	if _, dup := byID[w.SessionID()]; dup {
		sm.mu.Unlock()
		closeWatch(connectionID, w)
		return false
	}
	byID[w.SessionID()] = w
	sm.mu.Unlock()
	return true
}

// Get returns the connection's watch on sessionID.
func (sm *SubscriptionManager) Get(connectionID, sessionID string) (*matcher.Watch, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	w, ok := sm.watches[connectionID][sessionID].(*matcher.Watch)
	return w, ok
}

func (sm *SubscriptionManager) IsWatching(connectionID, sessionID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.watches[connectionID][sessionID]
	return ok
}

// Remove releases one watch.
func (sm *SubscriptionManager) Remove(connectionID, sessionID string) error {
	sm.mu.Lock()
	w, ok := sm.watches[connectionID][sessionID]
	if ok {
		delete(sm.watches[connectionID], sessionID)
		if len(sm.watches[connectionID]) == 0 {
			delete(sm.watches, connectionID)
		}
	}
	sm.mu.Unlock()

	if !ok {
		return errors.New("NOT_WATCHING: Connection is not watching this session")
	}
	closeWatch(connectionID, w)
	return nil
}

// RemoveAll releases every watch held by a connection and returns how many there were.
func (sm *SubscriptionManager) RemoveAll(connectionID string) int {
	sm.mu.Lock()
	byID := sm.watches[connectionID]
	delete(sm.watches, connectionID)
	sm.mu.Unlock()

	for _, w := range byID {
		closeWatch(connectionID, w)
	}
	return len(byID)
}

// Watching lists the session ids a connection watches.
func (sm *SubscriptionManager) Watching(connectionID string) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]string, 0, len(sm.watches[connectionID]))
	for id := range sm.watches[connectionID] {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the total number of watches across connections.
func (sm *SubscriptionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	n := 0
	for _, byID := range sm.watches {
		n += len(byID)
	}
	return n
}

func closeWatch(connectionID string, w watch) {
	if err := w.Close(); err != nil {
		log.Printf("Failed to release watch on %s for %s: %v", w.SessionID(), connectionID, err)
	}
}
