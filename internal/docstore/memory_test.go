package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func collect(t *testing.T) (func(Snapshot), <-chan Snapshot) {
	t.Helper()

	ch := make(chan Snapshot, 64)

	return func(s Snapshot) { ch <- s }, ch
}

func next(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()

	select {
	case s := <-ch:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Nested values are readable from every level", func(t *testing.T) {
		store := NewMemory()

		// Given: a document written as a struct
		err := store.Set(ctx, "rooms/101", map[string]any{
			"status":  "waiting",
			"players": map[string]any{"p1": map[string]any{"name": "Ann", "ready": false}},
		})
		require.NoError(t, err)

		// When: reading a nested leaf and the collection
		ready, err := store.Get(ctx, "rooms/101/players/p1/ready")
		require.NoError(t, err)
		rooms, err := store.Get(ctx, "/rooms/")
		require.NoError(t, err)

		// Then: both are present
		assert.Equal(t, false, ready.Value)
		assert.Equal(t, "ready", ready.Key())
		require.Len(t, rooms.Children(), 1)
		assert.Equal(t, "101", rooms.Children()[0].Key())
	})

	t.Run("Absent node is a nil snapshot", func(t *testing.T) {
		store := NewMemory()

		snap, err := store.Get(ctx, "rooms/404")
		require.NoError(t, err)

		assert.False(t, snap.Exists())

		var target struct{ ID string }
		require.NoError(t, snap.Decode(&target))
		assert.Empty(t, target.ID)
	})

	t.Run("Empty root path is rejected", func(t *testing.T) {
		assert.ErrorIs(t, NewMemory().Set(ctx, "/", 1), ErrInvalidPath)
	})
}

func TestMemory_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Merge keeps siblings and nil removes", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Set(ctx, "rooms/101", map[string]any{"status": "starting", "countdown": 5, "moves": 3}))

		// When: status changes and countdown is cleared
		err := store.Update(ctx, "rooms/101", map[string]any{"status": "inGame", "countdown": nil})
		require.NoError(t, err)

		// Then: moves survives, countdown is gone
		snap, err := store.Get(ctx, "rooms/101")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"status": "inGame", "moves": float64(3)}, snap.Value)
	})

	t.Run("Nested keys reach into children", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Set(ctx, "rooms/101/players/p1", map[string]any{"name": "Ann", "ready": false}))

		require.NoError(t, store.Update(ctx, "rooms/101", map[string]any{"players/p1/ready": true}))

		snap, err := store.Get(ctx, "rooms/101/players/p1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "Ann", "ready": true}, snap.Value)
	})

	t.Run("Removing the last child removes empty parents", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Set(ctx, "rooms/101/players/p1/name", "Ann"))

		require.NoError(t, store.Remove(ctx, "rooms/101/players/p1"))

		snap, err := store.Get(ctx, "rooms")
		require.NoError(t, err)
		assert.False(t, snap.Exists())
	})

	t.Run("Typed nil pointer removes", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Set(ctx, "rooms/101", map[string]any{"id": "101", "countdown": 3}))

		var countdown *int
		require.NoError(t, store.Update(ctx, "rooms/101", map[string]any{"countdown": countdown}))

		snap, err := store.Get(ctx, "rooms/101/countdown")
		require.NoError(t, err)
		assert.False(t, snap.Exists())
	})
}

func TestMemory_Subscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("Current value first, then every change in order", func(t *testing.T) {
		store := NewMemory()
		require.NoError(t, store.Set(ctx, "rooms/101/status", "waiting"))

		fn, ch := collect(t)
		unsubscribe, err := store.Subscribe(ctx, "rooms/101/status", fn)
		require.NoError(t, err)
		defer unsubscribe()

		// When: status goes through the lifecycle
		require.NoError(t, store.Set(ctx, "rooms/101/status", "starting"))
		require.NoError(t, store.Update(ctx, "rooms/101", map[string]any{"countdown": 4}))
		require.NoError(t, store.Set(ctx, "rooms/101/status", "inGame"))

		// Then: an unrelated sibling write is not delivered, the order is kept
		assert.Equal(t, "waiting", next(t, ch).Value)
		assert.Equal(t, "starting", next(t, ch).Value)
		assert.Equal(t, "inGame", next(t, ch).Value)
	})

	t.Run("Parent subscription sees child writes and removal", func(t *testing.T) {
		store := NewMemory()

		fn, ch := collect(t)
		unsubscribe, err := store.Subscribe(ctx, "rooms", fn)
		require.NoError(t, err)
		defer unsubscribe()

		assert.False(t, next(t, ch).Exists())

		require.NoError(t, store.Set(ctx, "rooms/100", map[string]any{"id": "100"}))
		assert.Len(t, next(t, ch).Children(), 1)

		require.NoError(t, store.Remove(ctx, "rooms/100"))
		assert.False(t, next(t, ch).Exists())
	})

	t.Run("Unsubscribe from inside the callback stops delivery", func(t *testing.T) {
		store := NewMemory()

		ch := make(chan Snapshot, 8)
		var unsubscribe Unsubscribe
		ready := make(chan struct{})

		unsubscribe, err := store.Subscribe(ctx, "rooms/101/status", func(s Snapshot) {
			<-ready
			ch <- s
			if s.Value == "inGame" {
				unsubscribe()
			}
		})
		require.NoError(t, err)
		close(ready)

		assert.False(t, next(t, ch).Exists())

		require.NoError(t, store.Set(ctx, "rooms/101/status", "inGame"))
		assert.Equal(t, "inGame", next(t, ch).Value)

		require.NoError(t, store.Set(ctx, "rooms/101/status", "waiting"))

		select {
		case s := <-ch:
			t.Fatalf("unexpected delivery after unsubscribe: %v", s.Value)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("Context cancellation detaches the subscription", func(t *testing.T) {
		store := NewMemory()
		subCtx, cancel := context.WithCancel(ctx)

		fn, ch := collect(t)
		_, err := store.Subscribe(subCtx, "onlinePlayers", fn)
		require.NoError(t, err)
		next(t, ch)

		cancel()

		require.Eventually(t, func() bool {
			store.mu.Lock()
			defer store.mu.Unlock()

			return len(store.subs) == 0
		}, waitTimeout, 10*time.Millisecond)
	})
}

func TestConn_Disconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("Registered paths are removed once", func(t *testing.T) {
		store := NewMemory()
		conn := NewConn(store)

		// Given: a presence record registered for removal
		require.NoError(t, conn.Set(ctx, "onlinePlayers/p1", map[string]any{"name": "Ann"}))
		require.NoError(t, conn.Set(ctx, "onlinePlayers/p2", map[string]any{"name": "Bob"}))
		conn.RemoveOnDisconnect("onlinePlayers/p1")
		conn.RemoveOnDisconnect("/onlinePlayers/p1/")

		// When: the client disconnects
		require.NoError(t, conn.Disconnect(ctx))

		// Then: only the registered record is gone
		snap, err := store.Get(ctx, "onlinePlayers")
		require.NoError(t, err)
		require.Len(t, snap.Children(), 1)
		assert.Equal(t, "p2", snap.Children()[0].Key())

		require.NoError(t, conn.Disconnect(ctx))
	})
}
