package usecase

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository"
)

type roomRepo interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	List(ctx context.Context) ([]*entity.Room, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	SetPlayer(ctx context.Context, id, playerID string, player *entity.PlayerEntry) error
	UpdatePlayer(ctx context.Context, id, playerID string, fields map[string]any) error
	RemovePlayer(ctx context.Context, id, playerID string) error
	GetPlayers(ctx context.Context, id string) (map[string]*entity.PlayerEntry, error)
	DeleteByID(ctx context.Context, id string) error

	Watch(ctx context.Context, id string, fn func(*entity.Room)) (docstore.Unsubscribe, error)
	WatchStatus(ctx context.Context, id string, fn func(entity.RoomStatus)) (docstore.Unsubscribe, error)
	WatchAll(ctx context.Context, fn func([]*entity.Room)) (docstore.Unsubscribe, error)
}

type presenceRepo interface {
	Register(ctx context.Context, presence *entity.Presence, hook repository.DisconnectHook) error
	WatchAll(ctx context.Context, fn func([]*entity.Presence)) (docstore.Unsubscribe, error)
}

// removePlayer drops playerID from the room. The room is deleted when its player map
// becomes empty, otherwise the fields returned by remaining are merged and the host role
// passes to the player left behind.
func removePlayer(
	ctx context.Context,
	rooms roomRepo,
	roomID, playerID string,
	remaining func(room *entity.Room) map[string]any,
) error {
	room, err := rooms.GetByID(ctx, roomID)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed get room by id: %w", err)
	}

	if !room.HasPlayer(playerID) {
		return nil
	}

	if err = rooms.RemovePlayer(ctx, roomID, playerID); err != nil {
		return fmt.Errorf("failed remove player: %w", err)
	}

	players, err := rooms.GetPlayers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed get players: %w", err)
	}

	if len(players) == 0 {
		if err = rooms.DeleteByID(ctx, roomID); err != nil {
			return fmt.Errorf("failed delete room: %w", err)
		}

		return nil
	}

	fields := make(map[string]any)
	if remaining != nil {
		maps.Copy(fields, remaining(room))
	}

	if room.Host.ID == playerID {
		for id, player := range players {
			fields["host"] = entity.Host{ID: id, Name: player.Name}
			fields["players/"+id+"/isHost"] = true
			fields["players/"+id+"/seat"] = 1
		}
	}

	if len(fields) == 0 {
		return nil
	}

	if err = rooms.Update(ctx, roomID, fields); err != nil {
		return fmt.Errorf("failed update room: %w", err)
	}

	return nil
}

// gameFields is the single merge written for a board change.
// startFields moves a room into the game and drops whatever an earlier match left behind,
// so seat 1 initializes a fresh board.
func startFields() map[string]any {
	return map[string]any{
		"status":        entity.StatusInGame,
		"countdown":     nil,
		"board":         nil,
		"currentPlayer": nil,
		"moves":         nil,
		"winnerId":      nil,
		"gameStatus":    nil,
	}
}

func gameFields(room *entity.Room) map[string]any {
	fields := map[string]any{
		"board":         room.Board,
		"currentPlayer": room.CurrentPlayer,
		"moves":         room.Moves,
		"gameStatus":    room.GameStatus,
		"status":        room.Status,
		"winnerId":      nil,
	}

	if room.WinnerID != "" {
		fields["winnerId"] = room.WinnerID
	}

	return fields
}
