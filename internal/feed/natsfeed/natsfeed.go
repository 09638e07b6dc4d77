// Package natsfeed carries session changes over NATS subjects sessions.<id>.
package natsfeed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"tictactoe-server/internal/feed"
	"tictactoe-server/internal/tictactoe"
)

const subjectPrefix = "tictactoe.sessions."

func subject(sessionID string) string {
	return subjectPrefix + sessionID
}

type Feed struct {
	nc  *nats.Conn
	hub *feed.Hub
}

// Open connects to natsURL.
func Open(natsURL string) (*Feed, error) {
	if strings.TrimSpace(natsURL) == "" {
		return nil, fmt.Errorf("NATS_URL required for nats feed")
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("tictactoe-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return New(nc), nil
}

func New(nc *nats.Conn) *Feed {
	return &Feed{
		nc:  nc,
		hub: feed.NewHub(),
	}
}

func (f *Feed) Close() error {
	if f == nil || f.nc == nil {
		return nil
	}
	return f.nc.Drain()
}

func (f *Feed) Publish(_ context.Context, s tictactoe.Session) error {
	data, err := feed.Encode(s)
	if err != nil {
		return err
	}
	if err := f.nc.Publish(subject(s.ID), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", s.ID, err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, sessionID string, onChange func(tictactoe.Session)) (feed.Handle, error) {
	return f.hub.Subscribe(ctx, sessionID, onChange)
}

func (f *Feed) Unsubscribe(h feed.Handle) error {
	return f.hub.Unsubscribe(h)
}

// Start subscribes to every session subject. Messages are delivered on the
// subscription's goroutine, so per-session order matches publish order.
func (f *Feed) Start(ctx context.Context) (*nats.Subscription, error) {
	sub, err := f.nc.Subscribe(subjectPrefix+"*", func(m *nats.Msg) {
		s, err := feed.Decode(m.Data)
		if err != nil {
			log.Printf("Dropping malformed message on %s: %v", m.Subject, err)
			return
		}
		f.hub.Publish(ctx, s)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := f.nc.FlushTimeout(5 * time.Second); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return sub, nil
}

// Run subscribes and blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	sub, err := f.Start(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Printf("NATS unsubscribe failed: %v", err)
	}
	return ctx.Err()
}
