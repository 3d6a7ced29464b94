package docstore_test

import (
	"testing"
	"time"

	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_Documents(t *testing.T) {
	ctx, st := suite.New(t)
	store := st.Store

	t.Run("Document keys and collection index", func(t *testing.T) {
		// Given: two rooms
		require.NoError(t, store.Set(ctx, "rooms/100", map[string]any{"id": "100", "status": "waiting"}))
		require.NoError(t, store.Set(ctx, "rooms/101", map[string]any{"id": "101", "status": "starting"}))

		// Then: each room is one key and the collection lists both
		raw, err := st.Storage.Get(ctx, "test:rooms/101").Result()
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"101","status":"starting"}`, raw)

		rooms, err := store.Get(ctx, "rooms")
		require.NoError(t, err)
		require.Len(t, rooms.Children(), 2)
		assert.Equal(t, "100", rooms.Children()[0].Key())
	})

	t.Run("Nested update merges inside the document", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "rooms/102", map[string]any{
			"status":    "starting",
			"countdown": 5,
			"players":   map[string]any{"p1": map[string]any{"name": "Ann", "ready": true}},
		}))

		// When: the countdown ends
		err := store.Update(ctx, "rooms/102", map[string]any{
			"status":           "inGame",
			"countdown":        nil,
			"players/p1/ready": false,
		})
		require.NoError(t, err)

		// Then: one merged document
		snap, err := store.Get(ctx, "rooms/102")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"status":  "inGame",
			"players": map[string]any{"p1": map[string]any{"name": "Ann", "ready": false}},
		}, snap.Value)
	})

	t.Run("Removing the last field drops the key and the index entry", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "rooms/103/players/p1/name", "Ann"))
		require.NoError(t, store.Remove(ctx, "rooms/103/players/p1"))

		exists, err := st.Storage.Exists(ctx, "test:rooms/103").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)

		member, err := st.Storage.SIsMember(ctx, "test:rooms", "103").Result()
		require.NoError(t, err)
		assert.False(t, member)
	})

	t.Run("Collection root cannot be merged into", func(t *testing.T) {
		err := store.Update(ctx, "", map[string]any{"rooms": map[string]any{}})
		assert.ErrorIs(t, err, docstore.ErrInvalidPath)
	})
}

func TestRedis_Subscribe(t *testing.T) {
	ctx, st := suite.New(t)
	store := st.Store

	t.Run("Current value first, then changes, duplicates collapsed", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "rooms/200/status", "waiting"))

		ch := make(chan docstore.Snapshot, 16)
		unsubscribe, err := store.Subscribe(ctx, "rooms/200/status", func(s docstore.Snapshot) { ch <- s })
		require.NoError(t, err)
		defer unsubscribe()

		// When: an unrelated field and then the status change
		require.NoError(t, store.Update(ctx, "rooms/200", map[string]any{"countdown": 5}))
		require.NoError(t, store.Set(ctx, "rooms/200/status", "starting"))

		// Then: waiting, starting
		assert.Equal(t, "waiting", receive(t, ch).Value)
		assert.Equal(t, "starting", receive(t, ch).Value)
	})

	t.Run("Collection subscription sees deletion", func(t *testing.T) {
		ch := make(chan docstore.Snapshot, 16)
		unsubscribe, err := store.Subscribe(ctx, "onlinePlayers", func(s docstore.Snapshot) { ch <- s })
		require.NoError(t, err)
		defer unsubscribe()

		assert.False(t, receive(t, ch).Exists())

		require.NoError(t, store.Set(ctx, "onlinePlayers/p1", map[string]any{"name": "Ann", "joinedAt": 1}))
		assert.Len(t, receive(t, ch).Children(), 1)

		conn := docstore.NewConn(store)
		conn.RemoveOnDisconnect("onlinePlayers/p1")
		require.NoError(t, conn.Disconnect(ctx))

		assert.False(t, receive(t, ch).Exists())
	})
}

func receive(t *testing.T, ch <-chan docstore.Snapshot) docstore.Snapshot {
	t.Helper()

	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot delivered")
		return docstore.Snapshot{}
	}
}
