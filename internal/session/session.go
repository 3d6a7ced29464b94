// Package session holds the per-client state of one browser connection.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
)

// Subscription slots. Watching again under the same slot replaces the previous subscription.
const (
	SlotRooms  = "rooms"
	SlotOnline = "online"
	SlotRoom   = "room"
	SlotStart  = "start"
	SlotMatch  = "match"
)

type Session struct {
	conn *docstore.Conn

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	playerID    string
	name        string
	roomID      string
	matchRoomID string
	subs        map[string]docstore.Unsubscribe

	tickerRoom  string
	tickerStop  context.CancelFunc
	tickerToken uint64
}

// New starts a session with a fresh player id.
func New(conn *docstore.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		playerID: uuid.NewString(),
		subs:     make(map[string]docstore.Unsubscribe),
	}
}

// Context is cancelled when the session closes.
func (that *Session) Context() context.Context {
	return that.ctx
}

func (that *Session) Conn() *docstore.Conn {
	return that.conn
}

func (that *Session) PlayerID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.playerID
}

func (that *Session) Name() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.name
}

func (that *Session) SetName(name string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.name = name
}

// RoomID is the lobby room the player currently holds, empty when none.
func (that *Session) RoomID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.roomID
}

func (that *Session) SetRoomID(id string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.roomID = id
}

// ClearRoomID forgets the lobby room only if it is still id.
func (that *Session) ClearRoomID(id string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.roomID == id {
		that.roomID = ""
	}
}

// EnterMatch binds the session to the game view of roomID as playerID.
func (that *Session) EnterMatch(roomID, playerID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.matchRoomID = roomID
	that.playerID = playerID
}

// Match returns the game view binding, empty room id outside a match.
func (that *Session) Match() (string, string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.matchRoomID, that.playerID
}

func (that *Session) LeaveMatch() {
	that.mu.Lock()
	that.matchRoomID = ""
	that.mu.Unlock()

	that.Untrack(SlotMatch)
}

// Track keeps unsubscribe under slot, dropping the subscription it replaces.
func (that *Session) Track(slot string, unsubscribe docstore.Unsubscribe) {
	that.mu.Lock()
	previous := that.subs[slot]
	that.subs[slot] = unsubscribe
	that.mu.Unlock()

	if previous != nil {
		previous()
	}
}

func (that *Session) Untrack(slot string) {
	that.mu.Lock()
	unsubscribe := that.subs[slot]
	delete(that.subs, slot)
	that.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// AcquireTicker claims the countdown ticker of roomID. It returns false while a ticker of this
// session is already running for that room. release must be called when the ticker ends.
func (that *Session) AcquireTicker(roomID string) (context.Context, func(), bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.tickerStop != nil && that.tickerRoom == roomID {
		return nil, nil, false
	}

	if that.tickerStop != nil {
		that.tickerStop()
	}

	ctx, cancel := context.WithCancel(that.ctx)
	that.tickerToken++
	token := that.tickerToken
	that.tickerRoom = roomID
	that.tickerStop = cancel

	release := func() {
		cancel()

		that.mu.Lock()
		defer that.mu.Unlock()

		if that.tickerToken == token {
			that.tickerRoom = ""
			that.tickerStop = nil
		}
	}

	return ctx, release, true
}

// StopTicker stops the running countdown ticker, if any.
func (that *Session) StopTicker() {
	that.mu.Lock()
	stop := that.tickerStop
	that.tickerRoom = ""
	that.tickerStop = nil
	that.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// TickerRoom returns the room whose countdown this session is driving.
func (that *Session) TickerRoom() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.tickerRoom
}

// Close drops every subscription, stops the ticker and runs the disconnect hooks.
func (that *Session) Close(ctx context.Context) error {
	that.mu.Lock()
	subs := that.subs
	that.subs = make(map[string]docstore.Unsubscribe)
	that.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}

	that.StopTicker()
	that.cancel()

	if err := that.conn.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect session %s: %w", that.PlayerID(), err)
	}

	return nil
}
