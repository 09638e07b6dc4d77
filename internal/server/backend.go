package server

import (
	"context"
	"fmt"
	"log"

	"tictactoe-server/internal/config"
	"tictactoe-server/internal/feed"
	"tictactoe-server/internal/feed/natsfeed"
	"tictactoe-server/internal/feed/pgnotify"
	"tictactoe-server/internal/feed/redisfeed"
	"tictactoe-server/internal/store"
	"tictactoe-server/internal/store/memory"
	"tictactoe-server/internal/store/postgres"
	"tictactoe-server/internal/store/sqlite"
)

// Backend is the Session Store and Change Feed pair selected by configuration.
type Backend struct {
	// Store is what the matcher writes through. For feeds that are not
	// driven by the database it publishes every successful write.
	Store   store.Store
	Feed    feed.Feed
	Sweeper store.Sweeper
	Pinger  store.Pinger

	runners []func(context.Context) error
	closers []func()
}

// OpenBackend connects the configured store and feed.
func OpenBackend(ctx context.Context, cfg config.Config) (_ *Backend, err error) {
	b := &Backend{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var raw interface {
		store.Store
		store.Sweeper
		store.Pinger
	}
	var pg *postgres.Store

	switch cfg.StoreDriver {
	case config.DriverMemory:
		raw = memory.New()
	case config.DriverPostgres:
		pg, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
		raw = pg
	case config.DriverSQLite:
		lite, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := lite.Close(); err != nil {
				log.Printf("Failed to close sqlite store: %v", err)
			}
		})
		raw = lite
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	b.Sweeper = raw
	b.Pinger = raw

	switch cfg.FeedDriver {
	case config.DriverMemory:
		hub := feed.NewHub()
		b.Store = feed.NewPublishingStore(raw, hub)
		b.Feed = hub
	case config.DriverPostgres:
		if pg == nil {
			return nil, fmt.Errorf("postgres feed requires the postgres store")
		}
		listener := pgnotify.New(pg.Pool())
		b.Store = raw
		b.Feed = listener
		b.runners = append(b.runners, listener.Run)
	case config.DriverRedis:
		rf, err := redisfeed.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := rf.Close(); err != nil {
				log.Printf("Failed to close redis feed: %v", err)
			}
		})
		b.Store = feed.NewPublishingStore(raw, rf)
		b.Feed = rf
		b.runners = append(b.runners, rf.Run)
	case config.DriverNATS:
		nf, err := natsfeed.Open(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := nf.Close(); err != nil {
				log.Printf("Failed to close nats feed: %v", err)
			}
		})
		b.Store = feed.NewPublishingStore(raw, nf)
		b.Feed = nf
		b.runners = append(b.runners, nf.Run)
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.FeedDriver)
	}

	log.Printf("Backend ready: store=%s feed=%s", cfg.StoreDriver, cfg.FeedDriver)
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
