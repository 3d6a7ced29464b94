package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	t.Run("New session gets a uuid player id", func(t *testing.T) {
		sess := New(docstore.NewConn(docstore.NewMemory()))

		_, err := uuid.Parse(sess.PlayerID())
		assert.NoError(t, err)
		assert.Empty(t, sess.RoomID())
	})

	t.Run("ClearRoomID ignores other rooms", func(t *testing.T) {
		sess := New(docstore.NewConn(docstore.NewMemory()))
		sess.SetRoomID("101")

		sess.ClearRoomID("100")
		assert.Equal(t, "101", sess.RoomID())

		sess.ClearRoomID("101")
		assert.Empty(t, sess.RoomID())
	})

	t.Run("Track replaces the subscription in the same slot", func(t *testing.T) {
		sess := New(docstore.NewConn(docstore.NewMemory()))

		var dropped []string
		sess.Track(SlotRoom, func() { dropped = append(dropped, "first") })
		sess.Track(SlotRoom, func() { dropped = append(dropped, "second") })

		assert.Equal(t, []string{"first"}, dropped)

		sess.Untrack(SlotRoom)
		assert.Equal(t, []string{"first", "second"}, dropped)
	})
}

func TestSession_Ticker(t *testing.T) {
	t.Run("One ticker per room", func(t *testing.T) {
		sess := New(docstore.NewConn(docstore.NewMemory()))

		// Given: a running ticker
		ctx, release, ok := sess.AcquireTicker("101")
		require.True(t, ok)

		// When: the same room asks again
		_, _, again := sess.AcquireTicker("101")

		// Then: refused
		assert.False(t, again)
		assert.Equal(t, "101", sess.TickerRoom())

		// When: the ticker ends
		release()

		// Then: its context is done and a new one can start
		assert.Error(t, ctx.Err())
		_, release, ok = sess.AcquireTicker("101")
		assert.True(t, ok)
		release()
	})

	t.Run("Another room replaces the ticker", func(t *testing.T) {
		sess := New(docstore.NewConn(docstore.NewMemory()))

		first, releaseFirst, ok := sess.AcquireTicker("101")
		require.True(t, ok)

		_, releaseSecond, ok := sess.AcquireTicker("102")
		require.True(t, ok)

		assert.Error(t, first.Err())

		// stale release does not clear the new ticker
		releaseFirst()
		assert.Equal(t, "102", sess.TickerRoom())

		releaseSecond()
		assert.Empty(t, sess.TickerRoom())
	})
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	conn := docstore.NewConn(store)
	sess := New(conn)

	// Given: a presence record, a subscription and a ticker
	require.NoError(t, conn.Set(ctx, "onlinePlayers/"+sess.PlayerID()+"/name", "Ann"))
	conn.RemoveOnDisconnect("onlinePlayers/" + sess.PlayerID())

	unsubscribed := false
	sess.Track(SlotOnline, func() { unsubscribed = true })

	tickerCtx, _, ok := sess.AcquireTicker("101")
	require.True(t, ok)

	// When: the session closes
	require.NoError(t, sess.Close(ctx))

	// Then: everything is torn down
	assert.True(t, unsubscribed)
	assert.Error(t, tickerCtx.Err())
	assert.Error(t, sess.Context().Err())

	snap, err := store.Get(ctx, "onlinePlayers")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}
