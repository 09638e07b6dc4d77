package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"tictactoe-server/internal/config"
	"tictactoe-server/internal/matcher"
)

type Server struct {
	port              int
	matcher           *matcher.Matcher
	backend           *Backend
	connectionManager *ConnectionManager
	subscriptions     *SubscriptionManager
	rateLimiter       *RateLimiter
	connectionHealth  *ConnectionHealth

	originPatterns    []string
	retention         time.Duration
	cleanupInterval   time.Duration
	inactivityTimeout time.Duration
}

// NewServer wires the matcher to backend and returns the HTTP server that serves it.
func NewServer(cfg config.Config, backend *Backend) (*Server, *http.Server) {
	s := &Server{
		port: cfg.Port,
		matcher: matcher.New(backend.Store, backend.Feed,
			matcher.WithMatchAttempts(cfg.MatchAttempts),
			matcher.WithMoveAttempts(cfg.MoveAttempts),
		),
		backend:           backend,
		connectionManager: NewConnectionManager(),
		subscriptions:     NewSubscriptionManager(),
		rateLimiter:       NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		connectionHealth:  NewConnectionHealth(),
		originPatterns:    cfg.OriginPatterns(),
		retention:         cfg.Retention,
		cleanupInterval:   cfg.CleanupInterval,
		inactivityTimeout: cfg.InactivityTimeout,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, httpServer
}

// Run drives the background tasks (feed listeners, retention cleanup,
// inactivity sweep) until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, run := range s.backend.runners {
		g.Go(func() error { return run(ctx) })
	}
	g.Go(func() error { return s.cleanupTask(ctx) })
	g.Go(func() error { return s.inactivityTask(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// cleanupTask deletes finished sessions older than the retention period.
// Waiting sessions are never expired.
func (s *Server) cleanupTask(ctx context.Context) error {
	if s.retention <= 0 || s.backend.Sweeper == nil {
		log.Println("Session cleanup disabled")
		return nil
	}

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepFinished(ctx)
		}
	}
}

func (s *Server) sweepFinished(ctx context.Context) int {
	deleted, err := s.backend.Sweeper.DeleteFinishedBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Printf("Cleanup task failed: %v", err)
		return 0
	}
	if deleted > 0 {
		log.Printf("Cleanup task: deleted %d finished sessions", deleted)
	}
	return deleted
}

// inactivityTask closes connections that sent nothing for inactivityTimeout.
func (s *Server) inactivityTask(ctx context.Context) error {
	interval := s.inactivityTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.closeInactive()
			s.rateLimiter.Cleanup()
		}
	}
}

func (s *Server) closeInactive() int {
	closed := 0
	for _, connID := range s.connectionHealth.GetInactiveConnections(s.inactivityTimeout) {
		conn := s.connectionManager.GetConnection(connID)
		if conn == nil {
			s.connectionHealth.RemoveConnection(connID)
			continue
		}
		log.Printf("Closing inactive connection %s", connID)
		// The read loop sees the close and runs the usual teardown.
		go conn.Close(websocket.StatusPolicyViolation, "inactive")
		s.connectionHealth.RemoveConnection(connID)
		closed++
	}
	return closed
}

// Shutdown closes every open websocket. Each handler releases its own watches.
func (s *Server) Shutdown(ctx context.Context) error {
	conns := s.connectionManager.Snapshot()
	log.Printf("Closing %d connections", len(conns))

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			c.Close(websocket.StatusGoingAway, "Server shutting down")
		}(conn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
