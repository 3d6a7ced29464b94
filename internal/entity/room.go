package entity

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
)

// RoomStatus is the lobby-side lifecycle of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusStarting RoomStatus = "starting"
	StatusInGame   RoomStatus = "inGame"
)

// GameStatus is the match-side lifecycle of a room. Empty until the first board is initialized.
type GameStatus string

const (
	GameNone     GameStatus = ""
	GamePlaying  GameStatus = "playing"
	GameFinished GameStatus = "finished"
	GameStalled  GameStatus = "stalled"
)

const (
	MaxPlayers = 2
	WinnerDraw = "draw"
)

var (
	ErrUnknownRoomStatus = errors.New("unknown room status")
	ErrUnknownGameStatus = errors.New("unknown game status")
	ErrTooManyPlayers    = errors.New("too many players")
	ErrMissingCountdown  = errors.New("starting room has no countdown")
	ErrMovesMismatch     = errors.New("move count does not match the board")
)

func (that RoomStatus) Valid() bool {
	switch that {
	case StatusWaiting, StatusStarting, StatusInGame:
		return true
	default:
		return false
	}
}

func (that GameStatus) Valid() bool {
	switch that {
	case GameNone, GamePlaying, GameFinished, GameStalled:
		return true
	default:
		return false
	}
}

type Host struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlayerEntry exists only while the player is a member of the room.
type PlayerEntry struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	IsHost bool   `json:"isHost,omitempty"`
	Seat   int    `json:"seat,omitempty"`
}

type Room struct {
	ID            string                  `json:"id"`
	Host          Host                    `json:"host"`
	Players       map[string]*PlayerEntry `json:"players,omitempty"`
	Status        RoomStatus              `json:"status"`
	GameStatus    GameStatus              `json:"gameStatus,omitempty"`
	Board         *Board                  `json:"board,omitempty"`
	CurrentPlayer string                  `json:"currentPlayer,omitempty"`
	Moves         int                     `json:"moves,omitempty"`
	WinnerID      string                  `json:"winnerId,omitempty"`
	Countdown     *int                    `json:"countdown,omitempty"`
	CreatedAt     int64                   `json:"createdAt"`
}

func NewRoom(id string, host Host, createdAt int64) *Room {
	return &Room{
		ID:   id,
		Host: host,
		Players: map[string]*PlayerEntry{
			host.ID: {Name: host.Name, Ready: false, IsHost: true, Seat: 1},
		},
		Status:    StatusWaiting,
		CreatedAt: createdAt,
	}
}

// NumericID returns the room id as a number, or false for ids that are not numeric.
func (that *Room) NumericID() (int, bool) {
	n, err := strconv.Atoi(that.ID)
	if err != nil {
		return 0, false
	}

	return n, true
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsStarting() bool {
	return that.Status == StatusStarting
}

func (that *Room) IsInGame() bool {
	return that.Status == StatusInGame
}

func (that *Room) IsPlaying() bool {
	return that.GameStatus == GamePlaying
}

func (that *Room) IsFinished() bool {
	return that.GameStatus == GameFinished
}

func (that *Room) IsDraw() bool {
	return that.IsFinished() && that.WinnerID == WinnerDraw
}

func (that *Room) HasPlayer(playerID string) bool {
	_, ok := that.Players[playerID]
	return ok
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= MaxPlayers
}

// AllReady is the ready-check: exactly two players and both ready.
func (that *Room) AllReady() bool {
	if len(that.Players) != MaxPlayers {
		return false
	}

	for _, player := range that.Players {
		if !player.Ready {
			return false
		}
	}

	return true
}

func (that *Room) SeatOf(playerID string) int {
	player, ok := that.Players[playerID]
	if !ok {
		return 0
	}

	return player.Seat
}

// PlayerBySeat returns the id of the player holding seat.
func (that *Room) PlayerBySeat(seat int) (string, bool) {
	for id, player := range that.Players {
		if player.Seat == seat {
			return id, true
		}
	}

	return "", false
}

// Opponent returns the other member of the room.
func (that *Room) Opponent(playerID string) (string, bool) {
	for id := range that.Players {
		if id != playerID {
			return id, true
		}
	}

	return "", false
}

// FreeSeat returns the lowest seat nobody holds, or 0 when the room is full.
func (that *Room) FreeSeat() int {
	for seat := 1; seat <= MaxPlayers; seat++ {
		if _, taken := that.PlayerBySeat(seat); !taken {
			return seat
		}
	}

	return 0
}

// PlayerIDs returns member ids ordered by seat.
func (that *Room) PlayerIDs() []string {
	ids := make([]string, 0, len(that.Players))
	for id := range that.Players {
		ids = append(ids, id)
	}

	slices.SortFunc(ids, func(a, b string) int {
		return that.Players[a].Seat - that.Players[b].Seat
	})

	return ids
}

// ConfirmPlaying returns nil only while moves are accepted.
func (that *Room) ConfirmPlaying() error {
	switch that.GameStatus {
	case GamePlaying:
		return nil
	case GameFinished:
		return apperror.ErrGameFinished
	case GameNone, GameStalled:
		return apperror.ErrGameIsNotStarted
	default:
		return fmt.Errorf("%w: %s", ErrUnknownGameStatus, that.GameStatus)
	}
}

// Validate rejects documents that no transition can produce.
func (that *Room) Validate() error {
	if !that.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRoomStatus, that.Status)
	}

	if !that.GameStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownGameStatus, that.GameStatus)
	}

	if len(that.Players) > MaxPlayers {
		return fmt.Errorf("%w: %d", ErrTooManyPlayers, len(that.Players))
	}

	if that.IsStarting() && that.Countdown == nil {
		return ErrMissingCountdown
	}

	if that.Board != nil && that.Board.Count() != that.Moves {
		return fmt.Errorf("%w: %d markers, %d moves", ErrMovesMismatch, that.Board.Count(), that.Moves)
	}

	return nil
}
