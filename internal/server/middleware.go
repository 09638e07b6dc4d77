package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// RateLimiter caps messages per connection over a sliding window.
// Why sliding window: a client cannot double its burst by straddling a fixed window boundary
// Why per-connection: a flood of submit_move from one socket must not starve other players
type RateLimiter struct {
	maxRequests int                    // messages allowed per window
	window      time.Duration          // length of the window
	requests    map[string][]time.Time // connectionID -> timestamps inside the window
	mu          sync.Mutex             // guards requests
}

// NewRateLimiter allows maxRequests per window for each connection.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records one message from connectionID and reports whether it is within the limit.
// Rejected messages are not recorded, so a blocked client recovers once the window slides.
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	recent := r.prune(r.requests[connectionID], now.Add(-r.window))
	if len(recent) >= r.maxRequests {
		r.requests[connectionID] = recent
		return false
	}
	r.requests[connectionID] = append(recent, now)
	return true
}

// prune drops timestamps at or before cutoff. Timestamps are appended in order.
func (r *RateLimiter) prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(cutoff) {
		i++
	}
	return timestamps[i:]
}

// Cleanup forgets connections with no message inside the window.
// Why: connections that vanish without a clean close would otherwise stay in the map
// It runs from the inactivity task alongside closeInactive.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for connID, timestamps := range r.requests {
		if len(r.prune(timestamps, cutoff)) == 0 {
			delete(r.requests, connID)
		}
	}
}

func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

// ConnectionHealth tracks the last message time of each connection.
// Why separate from RateLimiter: the limiter only remembers one window, while
// inactivity is measured in minutes and drives closing idle sockets
type ConnectionHealth struct {
	lastActivity map[string]time.Time // connectionID -> last message time
	mu           sync.RWMutex         // reads from the inactivity sweep, one write per message
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

// UpdateActivity marks connectionID as alive. Every inbound frame counts,
// including ones later rejected by the rate limiter.
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = time.Now()
}

// IsInactive reports whether connectionID has been silent for longer than
// timeout. Untracked connections are never inactive.
func (h *ConnectionHealth) IsInactive(connectionID string, timeout time.Duration) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lastActivity, exists := h.lastActivity[connectionID]
	if !exists {
		return false
	}
	return time.Since(lastActivity) > timeout
}

// GetInactiveConnections returns all connections silent for longer than timeout.
// One pass under the read lock serves the whole sweep.
func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inactive := make([]string, 0)
	now := time.Now()
	for connID, lastActivity := range h.lastActivity {
		if now.Sub(lastActivity) > timeout {
			inactive = append(inactive, connID)
		}
	}
	return inactive
}

func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

var validMessageTypes = map[string]bool{
	MsgPing:       true,
	MsgIdentify:   true,
	MsgFindMatch:  true,
	MsgSubmitMove: true,
	MsgWatch:      true,
	MsgUnwatch:    true,
	MsgGetSession: true,
}

// ValidateMessageType rejects message types the server does not route.
func ValidateMessageType(msgType string) error {
	if !validMessageTypes[msgType] {
		return fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msgType)
	}
	return nil
}

const maxParticipantIDLength = 64

// ValidateParticipantID checks the id a connection identifies with.
func ValidateParticipantID(participantID string) error {
	if strings.TrimSpace(participantID) == "" {
		return fmt.Errorf("INVALID_PARTICIPANT: Participant id cannot be empty")
	}
	if utf8.RuneCountInString(participantID) > maxParticipantIDLength {
		return fmt.Errorf("INVALID_PARTICIPANT: Participant id too long (max %d characters)", maxParticipantIDLength)
	}
	if strings.TrimSpace(participantID) != participantID {
		return fmt.Errorf("INVALID_PARTICIPANT: Participant id cannot start or end with whitespace")
	}
	return nil
}
