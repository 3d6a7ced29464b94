package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrBadPayload     = errors.New("malformed payload")
	ErrColumnRequired = errors.New("column is required")
)

// publicErrors are shown to the player as they are. Anything else is reported as internal.
var publicErrors = []error{
	ErrUnknownAction,
	ErrBadPayload,
	ErrColumnRequired,
	apperror.ErrRoomNotFound,
	apperror.ErrRoomFull,
	apperror.ErrRoomNotWaiting,
	apperror.ErrAlreadyInRoom,
	apperror.ErrNotInRoom,
	apperror.ErrNotHost,
	apperror.ErrMissingParams,
	apperror.ErrNameRequired,
	apperror.ErrGameNotFinished,
	apperror.ErrNoOpponent,
}

func (that *Server) handleLobbyEnter(ctx context.Context, c *client, req *Request) error {
	log := that.logger.With("method", "handleLobbyEnter", "session", c.sess.PlayerID())

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return apperror.ErrNameRequired
	}

	c.sess.SetName(name)

	if err := that.uLobby.RegisterPresence(ctx, c.sess); err != nil {
		return fmt.Errorf("failed to register presence: %w", err)
	}

	err := that.uLobby.WatchRooms(ctx, c.sess, func(rooms []*entity.Room) {
		that.push(c, pushLobbyRooms, roomsPayload{Rooms: rooms})
	})
	if err != nil {
		return fmt.Errorf("failed to watch rooms: %w", err)
	}

	err = that.uLobby.WatchOnline(ctx, c.sess, func(online []*entity.Presence) {
		that.push(c, pushLobbyOnline, newOnline(online))
	})
	if err != nil {
		return fmt.Errorf("failed to watch online players: %w", err)
	}

	log.Info("player entered lobby", "name", name)

	return c.send(actionLobbyEnter, playerPayload{Player: c.sess.PlayerID(), Name: name})
}

func (that *Server) handleRoomCreate(ctx context.Context, c *client, _ *Request) error {
	room, err := that.uLobby.CreateRoom(ctx, c.sess)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	if err = that.watchLobbyRoom(ctx, c, room.ID); err != nil {
		return err
	}

	return c.send(actionRoomCreate, roomPayload{Room: room})
}

func (that *Server) handleRoomJoin(ctx context.Context, c *client, req *Request) error {
	if req.RoomID == "" {
		return apperror.ErrRoomNotFound
	}

	room, err := that.uLobby.JoinRoom(ctx, c.sess, req.RoomID)
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	if err = that.watchLobbyRoom(ctx, c, room.ID); err != nil {
		return err
	}

	return c.send(actionRoomJoin, roomPayload{Room: room})
}

// watchLobbyRoom streams the room and navigates the client to the game view once it starts.
func (that *Server) watchLobbyRoom(ctx context.Context, c *client, roomID string) error {
	err := that.uLobby.WatchRoom(ctx, c.sess, roomID, func(room *entity.Room) {
		that.push(c, pushRoomUpdate, roomPayload{Room: room})
	})
	if err != nil {
		return fmt.Errorf("failed to watch room: %w", err)
	}

	err = that.uLobby.WatchGameStart(ctx, c.sess, roomID, func(roomID, playerID string) {
		that.push(c, pushGameStart, newNavigation(roomID, playerID))
	})
	if err != nil {
		return fmt.Errorf("failed to watch game start: %w", err)
	}

	return nil
}

func (that *Server) handleRoomReady(ctx context.Context, c *client, _ *Request) error {
	roomID := c.sess.RoomID()
	if roomID == "" {
		return apperror.ErrNotInRoom
	}

	if err := that.uLobby.ToggleReady(ctx, c.sess, roomID); err != nil {
		return fmt.Errorf("failed to toggle ready: %w", err)
	}

	return nil
}

func (that *Server) handleRoomLeave(ctx context.Context, c *client, _ *Request) error {
	roomID := c.sess.RoomID()
	if roomID == "" {
		return apperror.ErrNotInRoom
	}

	if err := that.uLobby.LeaveRoom(ctx, c.sess, roomID, false); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return c.send(actionRoomLeave, roomPayload{})
}

func (that *Server) handleGameOpen(ctx context.Context, c *client, req *Request) error {
	err := that.uMatch.Open(ctx, c.sess, req.Room, req.Player, func(room *entity.Room) {
		if room == nil {
			that.push(c, pushSessionEnded, endedPayload{Reason: reasonRoomClosed, Redirect: lobbyPath})
			return
		}

		that.push(c, pushGameUpdate, roomPayload{Room: room})
	})

	if errors.Is(err, apperror.ErrMissingParams) {
		return c.send(pushSessionEnded, endedPayload{Reason: reasonMissing, Redirect: lobbyPath})
	}

	if err != nil {
		return fmt.Errorf("failed to open game: %w", err)
	}

	return nil
}

// handleGameMove ignores illegal moves, the next snapshot shows the unchanged board.
func (that *Server) handleGameMove(ctx context.Context, c *client, req *Request) error {
	log := that.logger.With("method", "handleGameMove", "session", c.sess.PlayerID())

	if req.Column == nil {
		return ErrColumnRequired
	}

	_, err := that.uMatch.MakeMove(ctx, c.sess, *req.Column)
	if apperror.IsIllegalMove(err) {
		log.Debug("illegal move ignored", "column", *req.Column, "reason", err)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to make move: %w", err)
	}

	return nil
}

func (that *Server) handleGameRematch(ctx context.Context, c *client, _ *Request) error {
	if _, err := that.uMatch.Rematch(ctx, c.sess); err != nil {
		return fmt.Errorf("failed to start rematch: %w", err)
	}

	return nil
}

func (that *Server) handleGameLeave(ctx context.Context, c *client, _ *Request) error {
	if err := that.uMatch.Leave(ctx, c.sess); err != nil {
		return fmt.Errorf("failed to leave game: %w", err)
	}

	return c.send(pushSessionEnded, endedPayload{Reason: reasonGameLeft, Redirect: lobbyPath})
}

// push sends a store-driven update. Failures mean the connection is going away.
func (that *Server) push(c *client, action string, payload any) {
	if err := c.send(action, payload); err != nil {
		that.logger.Debug("failed to push update", "action", action, "session", c.sess.PlayerID(), "error", err)
	}
}

func (that *Server) sendError(c *client, action string, err error) {
	message := "internal error"
	for _, public := range publicErrors {
		if errors.Is(err, public) {
			message = public.Error()
			break
		}
	}

	that.push(c, pushError, errorPayload{Action: action, Error: message})
}
