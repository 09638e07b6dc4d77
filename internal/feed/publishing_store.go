package feed

import (
	"context"
	"log"

	"tictactoe-server/internal/store"
	"tictactoe-server/internal/tictactoe"
)

// PublishingStore publishes every record its Store writes successfully.
// A failed publish is logged; the write itself already happened.
type PublishingStore struct {
	store.Store
	publisher Publisher
}

func NewPublishingStore(s store.Store, p Publisher) *PublishingStore {
	return &PublishingStore{Store: s, publisher: p}
}

func (ps *PublishingStore) Insert(ctx context.Context, s tictactoe.Session) (tictactoe.Session, error) {
	inserted, err := ps.Store.Insert(ctx, s)
	if err != nil {
		return inserted, err
	}
	ps.publish(ctx, inserted)
	return inserted, nil
}

func (ps *PublishingStore) UpdateIfStatus(ctx context.Context, id string, expect store.Expect, patch store.Patch) (tictactoe.Session, error) {
	updated, err := ps.Store.UpdateIfStatus(ctx, id, expect, patch)
	if err != nil {
		return updated, err
	}
	ps.publish(ctx, updated)
	return updated, nil
}

func (ps *PublishingStore) publish(ctx context.Context, s tictactoe.Session) {
	if err := ps.publisher.Publish(ctx, s); err != nil {
		log.Printf("Failed to publish session %s (version %d): %v", s.ID, s.Version, err)
	}
}
