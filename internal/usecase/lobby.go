package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/config"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/internal/session"
)

// Lobby drives presence, rooms, the ready handshake and the pre-game countdown.
type Lobby struct {
	logger   *slog.Logger
	rooms    roomRepo
	presence presenceRepo
	conf     config.Game

	now func() time.Time
}

func NewLobby(logger *slog.Logger, rooms roomRepo, presence presenceRepo, conf config.Game) *Lobby {
	return &Lobby{
		logger:   logger.With("component", "lobby"),
		rooms:    rooms,
		presence: presence,
		conf:     conf,
		now:      time.Now,
	}
}

// RegisterPresence publishes the player in the online registry until the session disconnects.
func (that *Lobby) RegisterPresence(ctx context.Context, sess *session.Session) error {
	name := sess.Name()
	if name == "" {
		return apperror.ErrNameRequired
	}

	presence := &entity.Presence{
		ID:       sess.PlayerID(),
		Name:     name,
		JoinedAt: that.now().UnixMilli(),
	}

	if err := that.presence.Register(ctx, presence, sess.Conn()); err != nil {
		return fmt.Errorf("failed register presence: %w", err)
	}

	return nil
}

func (that *Lobby) CreateRoom(ctx context.Context, sess *session.Session) (*entity.Room, error) {
	log := that.logger.With("method", "CreateRoom", "player", sess.PlayerID())

	name := sess.Name()
	if name == "" {
		return nil, apperror.ErrNameRequired
	}

	if sess.RoomID() != "" {
		return nil, apperror.ErrAlreadyInRoom
	}

	if err := that.leaveStaleRooms(ctx, sess, ""); err != nil {
		return nil, err
	}

	rooms, err := that.rooms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed list rooms: %w", err)
	}

	room := entity.NewRoom(
		nextRoomID(rooms, that.conf.MinRoomID),
		entity.Host{ID: sess.PlayerID(), Name: name},
		that.now().UnixMilli(),
	)

	if err = that.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("failed create room: %w", err)
	}

	sess.SetRoomID(room.ID)
	log.Info("room created", "room", room.ID)

	return room, nil
}

func (that *Lobby) JoinRoom(ctx context.Context, sess *session.Session, roomID string) (*entity.Room, error) {
	log := that.logger.With("method", "JoinRoom", "player", sess.PlayerID(), "room", roomID)

	name := sess.Name()
	if name == "" {
		return nil, apperror.ErrNameRequired
	}

	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed get room by id: %w", err)
	}

	playerID := sess.PlayerID()
	if room.HasPlayer(playerID) {
		sess.SetRoomID(roomID)
		return room, nil
	}

	if !room.IsWaiting() {
		return nil, apperror.ErrRoomNotWaiting
	}

	if room.IsFull() {
		return nil, apperror.ErrRoomFull
	}

	if current := sess.RoomID(); current != "" && current != roomID {
		if err = that.LeaveRoom(ctx, sess, current, true); err != nil {
			return nil, err
		}
	}

	if err = that.leaveStaleRooms(ctx, sess, roomID); err != nil {
		return nil, err
	}

	player := &entity.PlayerEntry{Name: name, Ready: false, Seat: room.FreeSeat()}
	if err = that.rooms.SetPlayer(ctx, roomID, playerID, player); err != nil {
		return nil, fmt.Errorf("failed join room: %w", err)
	}

	sess.SetRoomID(roomID)
	room.Players[playerID] = player
	log.Info("room joined", "seat", player.Seat)

	return room, nil
}

// ToggleReady flips the caller's ready flag and runs the ready-check.
func (that *Lobby) ToggleReady(ctx context.Context, sess *session.Session, roomID string) error {
	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed get room by id: %w", err)
	}

	player, ok := room.Players[sess.PlayerID()]
	if !ok {
		return apperror.ErrNotInRoom
	}

	if room.IsInGame() {
		return apperror.ErrRoomNotWaiting
	}

	err = that.rooms.UpdatePlayer(ctx, roomID, sess.PlayerID(), map[string]any{"ready": !player.Ready})
	if err != nil {
		return fmt.Errorf("failed toggle ready: %w", err)
	}

	return that.checkReady(ctx, roomID)
}

// checkReady re-reads the room: two ready players start the countdown, anything else stops it.
func (that *Lobby) checkReady(ctx context.Context, roomID string) error {
	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed get room by id: %w", err)
	}

	var fields map[string]any

	switch {
	case room.AllReady() && room.IsWaiting():
		fields = map[string]any{"status": entity.StatusStarting, "countdown": that.conf.CountdownSeconds}
	case !room.AllReady() && room.IsStarting():
		fields = map[string]any{"status": entity.StatusWaiting, "countdown": nil}
	default:
		return nil
	}

	if err = that.rooms.Update(ctx, roomID, fields); err != nil {
		return fmt.Errorf("failed update room status: %w", err)
	}

	return nil
}

// LeaveRoom removes the caller from the room. A voluntary leave puts the room back to
// waiting with a stalled game. A forced leave only keeps a remaining player out of a
// running game.
func (that *Lobby) LeaveRoom(ctx context.Context, sess *session.Session, roomID string, force bool) error {
	if roomID == "" {
		return nil
	}

	if sess.TickerRoom() == roomID {
		sess.StopTicker()
	}

	if sess.RoomID() == roomID {
		sess.Untrack(session.SlotRoom)
		sess.Untrack(session.SlotStart)
	}

	err := removePlayer(ctx, that.rooms, roomID, sess.PlayerID(), func(room *entity.Room) map[string]any {
		if !force {
			return map[string]any{
				"status":     entity.StatusWaiting,
				"gameStatus": entity.GameStalled,
				"countdown":  nil,
			}
		}

		if room.IsPlaying() {
			return map[string]any{"gameStatus": entity.GameStalled}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed leave room %s: %w", roomID, err)
	}

	sess.ClearRoomID(roomID)
	that.logger.Info("room left", "player", sess.PlayerID(), "room", roomID, "force", force)

	return nil
}

// WatchRoom streams the caller's room. The host session starts the countdown ticker as
// soon as it sees the room starting, whoever toggled last.
func (that *Lobby) WatchRoom(ctx context.Context, sess *session.Session, roomID string, fn func(*entity.Room)) error {
	unsubscribe, err := that.rooms.Watch(ctx, roomID, func(room *entity.Room) {
		if room != nil && room.IsStarting() && room.Host.ID == sess.PlayerID() {
			that.startCountdown(sess, roomID)
		}

		fn(room)
	})
	if err != nil {
		return fmt.Errorf("failed watch room: %w", err)
	}

	sess.Track(session.SlotRoom, unsubscribe)

	return nil
}

func (that *Lobby) startCountdown(sess *session.Session, roomID string) {
	ctx, release, ok := sess.AcquireTicker(roomID)
	if !ok {
		return
	}

	go func() {
		defer release()

		that.runCountdown(ctx, roomID)
	}()
}

func (that *Lobby) runCountdown(ctx context.Context, roomID string) {
	log := that.logger.With("method", "runCountdown", "room", roomID)

	ticker := time.NewTicker(that.conf.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		room, err := that.rooms.GetByID(ctx, roomID)
		if err != nil {
			if !errors.Is(err, apperror.ErrRoomNotFound) && ctx.Err() == nil {
				log.Error("failed to read room", "error", err)
			}
			return
		}

		if !room.IsStarting() || room.Countdown == nil {
			return
		}

		if !room.AllReady() {
			if err = that.checkReady(ctx, roomID); err != nil {
				log.Error("failed to stop countdown", "error", err)
			}
			return
		}

		remaining := *room.Countdown - 1
		if remaining <= 0 {
			err = that.rooms.Update(ctx, roomID, startFields())
			if err != nil {
				log.Error("failed to start game", "error", err)
				return
			}

			log.Info("game started")
			return
		}

		if err = that.rooms.Update(ctx, roomID, map[string]any{"countdown": remaining}); err != nil {
			log.Error("failed to tick countdown", "error", err)
			return
		}
	}
}

// WatchGameStart calls fn once, the first time the room is seen in game, then detaches.
func (that *Lobby) WatchGameStart(
	ctx context.Context,
	sess *session.Session,
	roomID string,
	fn func(roomID, playerID string),
) error {
	var (
		mu          sync.Mutex
		fired       bool
		unsubscribe func()
	)

	detach, err := that.rooms.WatchStatus(ctx, roomID, func(status entity.RoomStatus) {
		if status != entity.StatusInGame {
			return
		}

		mu.Lock()
		if fired {
			mu.Unlock()
			return
		}
		fired = true
		stop := unsubscribe
		mu.Unlock()

		if stop != nil {
			stop()
		}

		sess.ClearRoomID(roomID)
		sess.Untrack(session.SlotRoom)
		fn(roomID, sess.PlayerID())
	})
	if err != nil {
		return fmt.Errorf("failed watch game start: %w", err)
	}

	mu.Lock()
	unsubscribe = detach
	already := fired
	mu.Unlock()

	if already {
		detach()
		return nil
	}

	sess.Track(session.SlotStart, detach)

	return nil
}

// WatchRooms streams the lobby list: joinable rooms and the rooms listing the caller.
func (that *Lobby) WatchRooms(ctx context.Context, sess *session.Session, fn func([]*entity.Room)) error {
	playerID := sess.PlayerID()

	unsubscribe, err := that.rooms.WatchAll(ctx, func(rooms []*entity.Room) {
		visible := make([]*entity.Room, 0, len(rooms))
		for _, room := range rooms {
			if room.IsWaiting() || room.IsStarting() || room.HasPlayer(playerID) {
				visible = append(visible, room)
			}
		}

		fn(visible)
	})
	if err != nil {
		return fmt.Errorf("failed watch rooms: %w", err)
	}

	sess.Track(session.SlotRooms, unsubscribe)

	return nil
}

func (that *Lobby) WatchOnline(ctx context.Context, sess *session.Session, fn func([]*entity.Presence)) error {
	unsubscribe, err := that.presence.WatchAll(ctx, fn)
	if err != nil {
		return fmt.Errorf("failed watch online players: %w", err)
	}

	sess.Track(session.SlotOnline, unsubscribe)

	return nil
}

func (that *Lobby) leaveStaleRooms(ctx context.Context, sess *session.Session, keep string) error {
	rooms, err := that.rooms.List(ctx)
	if err != nil {
		return fmt.Errorf("failed list rooms: %w", err)
	}

	for _, room := range rooms {
		if room.ID == keep || !room.HasPlayer(sess.PlayerID()) {
			continue
		}

		if err = that.LeaveRoom(ctx, sess, room.ID, true); err != nil {
			return err
		}
	}

	return nil
}

// nextRoomID is one above the highest numeric id, never below minID.
func nextRoomID(rooms []*entity.Room, minID int) string {
	highest := minID - 1
	for _, room := range rooms {
		if n, ok := room.NumericID(); ok && n > highest {
			highest = n
		}
	}

	return strconv.Itoa(highest + 1)
}
