// Package redisfeed carries session changes over Redis pub/sub, one channel per session.
package redisfeed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"tictactoe-server/internal/feed"
	"tictactoe-server/internal/tictactoe"
)

const channelPrefix = "tictactoe:session:"

func channel(sessionID string) string {
	return channelPrefix + sessionID
}

// Feed publishes to Redis and relays every session channel to local subscribers
// through one pattern subscription.
type Feed struct {
	rdb       *redis.Client
	hub       *feed.Hub
	ready     chan struct{}
	readyOnce sync.Once
}

// Open connects to redisURL and checks the connection.
func Open(ctx context.Context, redisURL string) (*Feed, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis feed")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

func New(rdb *redis.Client) *Feed {
	return &Feed{
		rdb:   rdb,
		hub:   feed.NewHub(),
		ready: make(chan struct{}),
	}
}

func (f *Feed) Close() error {
	if f == nil || f.rdb == nil {
		return nil
	}
	return f.rdb.Close()
}

func (f *Feed) Publish(ctx context.Context, s tictactoe.Session) error {
	data, err := feed.Encode(s)
	if err != nil {
		return err
	}
	if err := f.rdb.Publish(ctx, channel(s.ID), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.ID, err)
	}
	return nil
}

func (f *Feed) Subscribe(ctx context.Context, sessionID string, onChange func(tictactoe.Session)) (feed.Handle, error) {
	return f.hub.Subscribe(ctx, sessionID, onChange)
}

func (f *Feed) Unsubscribe(h feed.Handle) error {
	return f.hub.Unsubscribe(h)
}

// Ready is closed once the pattern subscription is confirmed.
func (f *Feed) Ready() <-chan struct{} {
	return f.ready
}

// Run relays messages until ctx is cancelled. The client reconnects on its own.
func (f *Feed) Run(ctx context.Context) error {
	ps := f.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	f.readyOnce.Do(func() { close(f.ready) })

	return f.relay(ctx, ps.Channel())
}

// ErrSubscriptionClosed is returned by Run when go-redis closes the message
// channel, which only happens once the subscription itself is gone.
var ErrSubscriptionClosed = errors.New("redis subscription closed")

func (f *Feed) relay(ctx context.Context, messages <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ErrSubscriptionClosed
			}
			s, err := feed.Decode([]byte(msg.Payload))
			if err != nil {
				log.Printf("Dropping malformed message on %s: %v", msg.Channel, err)
				continue
			}
			f.hub.Publish(ctx, s)
		}
	}
}
