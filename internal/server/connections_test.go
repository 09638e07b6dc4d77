package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionManager_AddAndRemove(t *testing.T) {
	cm := NewConnectionManager()

	cm.AddConnection("conn-1", nil)
	cm.AddConnection("conn-2", nil)
	assert.Equal(t, 2, cm.Count())

	cm.RemoveConnection("conn-1")
	assert.Equal(t, 1, cm.Count())
	assert.Nil(t, cm.GetConnection("conn-1"))
}

// Test: identify binds a participant to a connection
func TestConnectionManager_Identify(t *testing.T) {
	cm := NewConnectionManager()
	cm.AddConnection("conn-1", nil)

	assert.Empty(t, cm.GetParticipant("conn-1"), "unidentified connections have no participant")

	assert.NoError(t, cm.Identify("conn-1", "alice"))
	assert.Equal(t, "alice", cm.GetParticipant("conn-1"))
}

// Test: a connection cannot switch identity
func TestConnectionManager_IdentifyTwice(t *testing.T) {
	cm := NewConnectionManager()
	cm.AddConnection("conn-1", nil)

	assert.NoError(t, cm.Identify("conn-1", "alice"))
	assert.NoError(t, cm.Identify("conn-1", "alice"), "same id again is a no-op")

	err := cm.Identify("conn-1", "bob")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ALREADY_IDENTIFIED")
	assert.Equal(t, "alice", cm.GetParticipant("conn-1"))
}

// Test: one participant may play from several devices
func TestConnectionManager_SameParticipantManyConnections(t *testing.T) {
	cm := NewConnectionManager()
	cm.AddConnection("phone", nil)
	cm.AddConnection("laptop", nil)
	cm.AddConnection("other", nil)

	assert.NoError(t, cm.Identify("phone", "alice"))
	assert.NoError(t, cm.Identify("laptop", "alice"))
	assert.NoError(t, cm.Identify("other", "bob"))

	assert.ElementsMatch(t, []string{"phone", "laptop"}, cm.GetConnectionsByParticipant("alice"))
	assert.Empty(t, cm.GetConnectionsByParticipant("carol"))
}

// Test: removing a connection forgets its identity
func TestConnectionManager_RemoveClearsIdentity(t *testing.T) {
	cm := NewConnectionManager()
	cm.AddConnection("conn-1", nil)
	assert.NoError(t, cm.Identify("conn-1", "alice"))

	cm.RemoveConnection("conn-1")

	assert.Empty(t, cm.GetParticipant("conn-1"))
	assert.Empty(t, cm.GetConnectionsByParticipant("alice"))
}

func TestConnectionManager_Snapshot(t *testing.T) {
	cm := NewConnectionManager()
	cm.AddConnection("conn-1", nil)

	snap := cm.Snapshot()
	cm.AddConnection("conn-2", nil)

	assert.Len(t, snap, 1, "snapshot is a copy")
	assert.Equal(t, 2, cm.Count())
}
