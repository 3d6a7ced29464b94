package repository

import (
	"context"
	"testing"

	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Registry is ordered by join time and cleaned on disconnect", func(t *testing.T) {
		store := docstore.NewMemory()
		presenceRepo := NewPresenceRepository(store)

		// Given: two clients registered out of order
		ann := docstore.NewConn(store)
		bob := docstore.NewConn(store)
		require.NoError(t, presenceRepo.Register(ctx, &entity.Presence{ID: "p2", Name: "Bob", JoinedAt: 20}, bob))
		require.NoError(t, presenceRepo.Register(ctx, &entity.Presence{ID: "p1", Name: "Ann", JoinedAt: 10}, ann))

		// When: listing
		online, err := presenceRepo.List(ctx)
		require.NoError(t, err)

		// Then: Ann first, ids restored from the keys
		require.Len(t, online, 2)
		assert.Equal(t, &entity.Presence{ID: "p1", Name: "Ann", JoinedAt: 10}, online[0])
		assert.Equal(t, "p2", online[1].ID)

		// When: Bob disconnects
		require.NoError(t, bob.Disconnect(ctx))

		// Then: only Ann remains
		online, err = presenceRepo.List(ctx)
		require.NoError(t, err)
		require.Len(t, online, 1)
		assert.Equal(t, "p1", online[0].ID)
	})

	t.Run("WatchAll follows disconnects", func(t *testing.T) {
		store := docstore.NewMemory()
		presenceRepo := NewPresenceRepository(store)
		conn := docstore.NewConn(store)
		require.NoError(t, presenceRepo.Register(ctx, &entity.Presence{ID: "p1", Name: "Ann"}, conn))

		ch := make(chan []*entity.Presence, 4)
		unsubscribe, err := presenceRepo.WatchAll(ctx, func(online []*entity.Presence) { ch <- online })
		require.NoError(t, err)
		defer unsubscribe()

		assert.Len(t, <-ch, 1)

		require.NoError(t, conn.Disconnect(ctx))
		assert.Empty(t, <-ch)
	})
}
