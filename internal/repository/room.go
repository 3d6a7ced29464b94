package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/docstore"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

const roomsPath = "rooms"

type RoomRepository interface {
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

type dbRoom struct {
	store docstore.Store
}

func NewRoomRepository(store docstore.Store) RoomRepository {
	return &dbRoom{
		store: store,
	}
}

func roomPath(id string, parts ...string) string {
	return docstore.Join(append([]string{roomsPath, id}, parts...)...)
}

func (that *dbRoom) Create(ctx context.Context, room *entity.Room) error {
	if err := that.store.Set(ctx, roomPath(room.ID), room); err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	return nil
}

func (that *dbRoom) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	snapshot, err := that.store.Get(ctx, roomPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get room by id: %w", err)
	}

	room, err := decodeRoom(snapshot)
	if err != nil {
		return nil, err
	}

	if room == nil {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, id)
	}

	return room, nil
}

// List returns every room ordered by numeric id.
func (that *dbRoom) List(ctx context.Context) ([]*entity.Room, error) {
	snapshot, err := that.store.Get(ctx, roomsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	return decodeRooms(snapshot)
}

func (that *dbRoom) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := that.store.Update(ctx, roomPath(id), fields); err != nil {
		return fmt.Errorf("failed to update room %s: %w", id, err)
	}

	return nil
}

func (that *dbRoom) SetPlayer(ctx context.Context, id, playerID string, player *entity.PlayerEntry) error {
	if err := that.store.Set(ctx, roomPath(id, "players", playerID), player); err != nil {
		return fmt.Errorf("failed to set player %s in room %s: %w", playerID, id, err)
	}

	return nil
}

func (that *dbRoom) UpdatePlayer(ctx context.Context, id, playerID string, fields map[string]any) error {
	if err := that.store.Update(ctx, roomPath(id, "players", playerID), fields); err != nil {
		return fmt.Errorf("failed to update player %s in room %s: %w", playerID, id, err)
	}

	return nil
}

func (that *dbRoom) RemovePlayer(ctx context.Context, id, playerID string) error {
	if err := that.store.Remove(ctx, roomPath(id, "players", playerID)); err != nil {
		return fmt.Errorf("failed to remove player %s from room %s: %w", playerID, id, err)
	}

	return nil
}

// GetPlayers returns an empty map when the room or its player map is gone.
func (that *dbRoom) GetPlayers(ctx context.Context, id string) (map[string]*entity.PlayerEntry, error) {
	snapshot, err := that.store.Get(ctx, roomPath(id, "players"))
	if err != nil {
		return nil, fmt.Errorf("failed to get players of room %s: %w", id, err)
	}

	players := make(map[string]*entity.PlayerEntry)
	if err = snapshot.Decode(&players); err != nil {
		return nil, fmt.Errorf("failed to unmarshal players: %w", err)
	}

	return players, nil
}

func (that *dbRoom) DeleteByID(ctx context.Context, id string) error {
	if err := that.store.Remove(ctx, roomPath(id)); err != nil {
		return fmt.Errorf("failed to delete room by id: %w", err)
	}

	return nil
}

// Watch calls fn with every version of the room, nil once it is deleted.
func (that *dbRoom) Watch(ctx context.Context, id string, fn func(*entity.Room)) (docstore.Unsubscribe, error) {
	unsubscribe, err := that.store.Subscribe(ctx, roomPath(id), func(snapshot docstore.Snapshot) {
		room, err := decodeRoom(snapshot)
		if err != nil {
			return
		}

		fn(room)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch room %s: %w", id, err)
	}

	return unsubscribe, nil
}

// WatchStatus calls fn with every status of the room, empty once it is deleted.
func (that *dbRoom) WatchStatus(ctx context.Context, id string, fn func(entity.RoomStatus)) (docstore.Unsubscribe, error) {
	unsubscribe, err := that.store.Subscribe(ctx, roomPath(id, "status"), func(snapshot docstore.Snapshot) {
		var status entity.RoomStatus
		if err := snapshot.Decode(&status); err != nil {
			return
		}

		fn(status)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch status of room %s: %w", id, err)
	}

	return unsubscribe, nil
}

func (that *dbRoom) WatchAll(ctx context.Context, fn func([]*entity.Room)) (docstore.Unsubscribe, error) {
	unsubscribe, err := that.store.Subscribe(ctx, roomsPath, func(snapshot docstore.Snapshot) {
		rooms, err := decodeRooms(snapshot)
		if err != nil {
			return
		}

		fn(rooms)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch rooms: %w", err)
	}

	return unsubscribe, nil
}

// decodeRoom returns nil for an absent document and ErrInvalidRoom for one that fails Validate,
// such as the leftovers of a write into a room that was deleted meanwhile. The id is taken from
// the path when the document lacks it.
func decodeRoom(snapshot docstore.Snapshot) (*entity.Room, error) {
	if !snapshot.Exists() {
		return nil, nil
	}

	var room entity.Room
	if err := snapshot.Decode(&room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}

	if room.ID == "" {
		room.ID = snapshot.Key()
	}

	if room.Players == nil {
		room.Players = make(map[string]*entity.PlayerEntry)
	}

	if err := room.Validate(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", apperror.ErrInvalidRoom, room.ID, err)
	}

	return &room, nil
}

// decodeRooms leaves invalid documents out of the list.
func decodeRooms(snapshot docstore.Snapshot) ([]*entity.Room, error) {
	children := snapshot.Children()

	rooms := make([]*entity.Room, 0, len(children))
	for _, child := range children {
		room, err := decodeRoom(child)
		if errors.Is(err, apperror.ErrInvalidRoom) {
			continue
		}

		if err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	slices.SortFunc(rooms, compareRooms)

	return rooms, nil
}

// compareRooms orders numeric ids numerically and puts any other id after them.
func compareRooms(a, b *entity.Room) int {
	na, okA := a.NumericID()
	nb, okB := b.NumericID()

	switch {
	case okA && okB:
		return na - nb
	case okA:
		return -1
	case okB:
		return 1
	default:
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	}
}
