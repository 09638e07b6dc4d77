package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tictactoe-server/internal/config"
	"tictactoe-server/internal/tictactoe"
)

func testConfig() config.Config {
	return config.Config{
		Port:              8080,
		StoreDriver:       config.DriverMemory,
		FeedDriver:        config.DriverMemory,
		MatchAttempts:     5,
		MoveAttempts:      3,
		Retention:         24 * time.Hour,
		CleanupInterval:   time.Hour,
		RateLimit:         100,
		RateWindow:        time.Second,
		InactivityTimeout: 5 * time.Minute,
		AllowedOrigins:    []string{"*"},
	}
}

// setupTestServer starts the full route table on a memory backend and
// returns the server, its websocket URL and its base HTTP URL.
func setupTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()

	backend, err := OpenBackend(context.Background(), testConfig())
	require.NoError(t, err)
	s, _ := NewServer(testConfig(), backend)

	server := httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(func() {
		server.Close()
		backend.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"
	return s, url, server.URL
}

func TestWebSocketPingPong(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	_, url, _ := setupTestServer(t)

	conn := dial(t, ctx, url)
	send(t, ctx, conn, MsgPing, nil)

	response := read(t, ctx, conn)
	assert.Equal(MsgPong, response.Type)
}

func TestWebSocketInvalidJSON(t *testing.T) {
	ctx := context.Background()
	_, url, _ := setupTestServer(t)

	conn := dial(t, ctx, url)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	errMsg := expectError(t, ctx, conn)
	assert.Equal(t, "INVALID_JSON", errMsg.Code)
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	ctx := context.Background()
	_, url, _ := setupTestServer(t)

	conn := dial(t, ctx, url)
	send(t, ctx, conn, "create_game", nil)

	errMsg := expectError(t, ctx, conn)
	assert.Equal(t, "INVALID_MESSAGE_TYPE", errMsg.Code)
	assert.Contains(t, errMsg.Message, "create_game")
}

func TestWebSocketRateLimiting(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s, url, _ := setupTestServer(t)

	// Stricter limit for the test: 2 per second.
	s.rateLimiter = NewRateLimiter(2, time.Second)

	conn := dial(t, ctx, url)
	for i := 0; i < 2; i++ {
		send(t, ctx, conn, MsgPing, nil)
		assert.Equal(MsgPong, read(t, ctx, conn).Type, "request %d should succeed", i+1)
	}

	send(t, ctx, conn, MsgPing, nil)
	errMsg := expectError(t, ctx, conn)
	assert.Equal("RATE_LIMIT_EXCEEDED", errMsg.Code)
}

func TestHealthHandler(t *testing.T) {
	_, url, base := setupTestServer(t)
	ctx := context.Background()
	conn := dial(t, ctx, url)
	send(t, ctx, conn, MsgPing, nil)
	read(t, ctx, conn)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "up", health.Status)
	assert.Equal(t, 1, health.Connections)
}

func TestSessionHandler(t *testing.T) {
	s, _, base := setupTestServer(t)
	ctx := context.Background()

	session, _, err := s.matcher.FindOrCreateSession(ctx, "alice")
	require.NoError(t, err)

	resp, err := http.Get(base + "/sessions/" + session.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got tictactoe.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, tictactoe.StatusWaiting, got.Status)
	assert.Equal(t, "alice", got.SeatA)

	missing, err := http.Get(base + "/sessions/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, _, base := setupTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, base+"/health", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
