package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

const presencePath = "onlinePlayers"

// DisconnectHook is the part of a client connection that cleans up after it.
type DisconnectHook interface {
	RemoveOnDisconnect(path string)
}

type PresenceRepository interface {
	Register(ctx context.Context, presence *entity.Presence, hook DisconnectHook) error
	List(ctx context.Context) ([]*entity.Presence, error)
	WatchAll(ctx context.Context, fn func([]*entity.Presence)) (docstore.Unsubscribe, error)
}

type dbPresence struct {
	store docstore.Store
}

func NewPresenceRepository(store docstore.Store) PresenceRepository {
	return &dbPresence{
		store: store,
	}
}

// Register writes the presence record and arranges for its removal when the client disconnects.
func (that *dbPresence) Register(ctx context.Context, presence *entity.Presence, hook DisconnectHook) error {
	path := docstore.Join(presencePath, presence.ID)

	if err := that.store.Set(ctx, path, presence); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	hook.RemoveOnDisconnect(path)

	return nil
}

func (that *dbPresence) List(ctx context.Context) ([]*entity.Presence, error) {
	snapshot, err := that.store.Get(ctx, presencePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}

	return decodePresence(snapshot)
}

func (that *dbPresence) WatchAll(ctx context.Context, fn func([]*entity.Presence)) (docstore.Unsubscribe, error) {
	unsubscribe, err := that.store.Subscribe(ctx, presencePath, func(snapshot docstore.Snapshot) {
		online, err := decodePresence(snapshot)
		if err != nil {
			return
		}

		fn(online)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch presence: %w", err)
	}

	return unsubscribe, nil
}

// decodePresence returns the registry ordered by join time.
func decodePresence(snapshot docstore.Snapshot) ([]*entity.Presence, error) {
	children := snapshot.Children()

	online := make([]*entity.Presence, 0, len(children))
	for _, child := range children {
		var presence entity.Presence
		if err := child.Decode(&presence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
		}

		presence.ID = child.Key()
		online = append(online, &presence)
	}

	slices.SortStableFunc(online, func(a, b *entity.Presence) int {
		switch {
		case a.JoinedAt < b.JoinedAt:
			return -1
		case a.JoinedAt > b.JoinedAt:
			return 1
		default:
			return 0
		}
	})

	return online, nil
}
