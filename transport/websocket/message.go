package websocket

import (
	"encoding/json"
	"net/url"

	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

// Client actions.
const (
	actionLobbyEnter  = "lobby:enter"
	actionRoomCreate  = "room:create"
	actionRoomJoin    = "room:join"
	actionRoomReady   = "room:ready"
	actionRoomLeave   = "room:leave"
	actionGameOpen    = "game:open"
	actionGameMove    = "game:move"
	actionGameRematch = "game:rematch"
	actionGameLeave   = "game:leave"
)

// Server pushes.
const (
	pushLobbyRooms   = "lobby:rooms"
	pushLobbyOnline  = "lobby:online"
	pushRoomUpdate   = "room:update"
	pushGameStart    = "game:start"
	pushGameUpdate   = "game:update"
	pushSessionEnded = "session:ended"
	pushError        = "error"
)

const (
	lobbyPath = "/"
	gamePath  = "/game"
)

// Reasons a game view ends.
const (
	reasonMissing    = "missing_params"
	reasonRoomClosed = "room_closed"
	reasonGameLeft   = "game_left"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Request struct {
	Name   string `json:"name,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	Room   string `json:"room,omitempty"`
	Player string `json:"player,omitempty"`
	Column *int   `json:"column,omitempty"`
}

type playerPayload struct {
	Player string `json:"player"`
	Name   string `json:"name"`
}

type roomPayload struct {
	Room *entity.Room `json:"room"`
}

type roomsPayload struct {
	Rooms []*entity.Room `json:"rooms"`
}

type onlinePlayer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
}

type onlinePayload struct {
	Online []onlinePlayer `json:"online"`
}

// navigationPayload tells the browser to open the game view.
type navigationPayload struct {
	Room   string `json:"room"`
	Player string `json:"player"`
	URL    string `json:"url"`
}

type endedPayload struct {
	Reason   string `json:"reason"`
	Redirect string `json:"redirect"`
}

type errorPayload struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

func newNavigation(roomID, playerID string) navigationPayload {
	query := url.Values{"room": {roomID}, "player": {playerID}}

	return navigationPayload{
		Room:   roomID,
		Player: playerID,
		URL:    gamePath + "?" + query.Encode(),
	}
}

func newOnline(presence []*entity.Presence) onlinePayload {
	online := make([]onlinePlayer, 0, len(presence))
	for _, p := range presence {
		online = append(online, onlinePlayer{ID: p.ID, Name: p.Name, JoinedAt: p.JoinedAt})
	}

	return onlinePayload{Online: online}
}
