package server

import (
	"errors"
	"sync"

	"github.com/coder/websocket"
)

type ConnectionManager struct {
	connections  map[string]*websocket.Conn // connectionID → socket
	participants map[string]string          // connectionID → participant id
	mu           sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*websocket.Conn),
		participants: make(map[string]string),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
	delete(cm.participants, id)
}

// Identify binds a participant id to a connection. A connection keeps the
// first identity it was given; repeating it is a no-op.
func (cm *ConnectionManager) Identify(connectionID, participantID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if current, ok := cm.participants[connectionID]; ok && current != participantID {
		return errors.New("ALREADY_IDENTIFIED: Connection is bound to another participant")
	}
	cm.participants[connectionID] = participantID
	return nil
}

// GetParticipant returns the participant bound to a connection, or "".
func (cm *ConnectionManager) GetParticipant(connectionID string) string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.participants[connectionID]
}

// GetConnectionsByParticipant returns every connection identified as participantID.
func (cm *ConnectionManager) GetConnectionsByParticipant(participantID string) []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var ids []string
	for connID, p := range cm.participants {
		if p == participantID {
			ids = append(ids, connID)
		}
	}
	return ids
}

// GetConnection returns websocket for connectionID
func (cm *ConnectionManager) GetConnection(connectionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[connectionID]
}

// Snapshot copies the current connections so callers can write without holding the lock.
func (cm *ConnectionManager) Snapshot() map[string]*websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make(map[string]*websocket.Conn, len(cm.connections))
	for id, c := range cm.connections {
		out[id] = c
	}
	return out
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}
