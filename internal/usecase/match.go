package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/connectfour"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/internal/session"
)

// Match drives one game view: board setup, moves, rematch and leaving.
type Match struct {
	logger *slog.Logger
	rooms  roomRepo
}

func NewMatch(logger *slog.Logger, rooms roomRepo) *Match {
	return &Match{
		logger: logger.With("component", "match"),
		rooms:  rooms,
	}
}

// Open binds the session to the game view and streams the room to fn. fn receives nil when
// the room disappears. The seat-1 player initializes the board once both players are in.
func (that *Match) Open(
	ctx context.Context,
	sess *session.Session,
	roomID, playerID string,
	fn func(*entity.Room),
) error {
	if roomID == "" || playerID == "" {
		return apperror.ErrMissingParams
	}

	sess.EnterMatch(roomID, playerID)

	unsubscribe, err := that.rooms.Watch(ctx, roomID, func(room *entity.Room) {
		if room != nil && needsBoard(room, playerID) {
			if err := that.initializeBoard(ctx, roomID, playerID); err != nil {
				that.logger.Error("failed to initialize board", "room", roomID, "error", err)
			}
		}

		fn(room)
	})
	if err != nil {
		return fmt.Errorf("failed watch room: %w", err)
	}

	sess.Track(session.SlotMatch, unsubscribe)

	return nil
}

func needsBoard(room *entity.Room, playerID string) bool {
	return room.SeatOf(playerID) == 1 && len(room.Players) == entity.MaxPlayers && room.Board == nil
}

// initializeBoard re-reads the room so a late snapshot never wipes a started game.
func (that *Match) initializeBoard(ctx context.Context, roomID, playerID string) error {
	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed get room by id: %w", err)
	}

	if !needsBoard(room, playerID) {
		return nil
	}

	if err = connectfour.InitializeBoard(room); err != nil {
		return fmt.Errorf("failed initialize board: %w", err)
	}

	if err = that.rooms.Update(ctx, roomID, gameFields(room)); err != nil {
		return fmt.Errorf("failed update room: %w", err)
	}

	that.logger.Info("board initialized", "room", roomID, "first", room.CurrentPlayer)

	return nil
}

// MakeMove drops the caller's marker into column. Illegal moves write nothing and return
// the reason, which callers only log.
func (that *Match) MakeMove(ctx context.Context, sess *session.Session, column int) (*entity.Room, error) {
	roomID, playerID := sess.Match()
	if roomID == "" {
		return nil, apperror.ErrMissingParams
	}

	log := that.logger.With("method", "MakeMove", "room", roomID, "player", playerID)

	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed get room by id: %w", err)
	}

	turn, err := connectfour.MakeTurn(room, playerID, column)
	if err != nil {
		if apperror.IsIllegalMove(err) {
			log.Debug("move ignored", "column", column, "reason", err)
		}

		return nil, err
	}

	if err = that.rooms.Update(ctx, roomID, gameFields(room)); err != nil {
		return nil, fmt.Errorf("failed update room: %w", err)
	}

	log.Debug("move made", "row", turn.Row, "column", turn.Column, "moves", room.Moves)

	if room.IsFinished() {
		log.Info("game finished", "winner", room.WinnerID, "moves", room.Moves)
	}

	return room, nil
}

// Rematch resets a finished game with the same seats. Only seat 1 may ask, and only while
// the opponent is still in the room.
func (that *Match) Rematch(ctx context.Context, sess *session.Session) (*entity.Room, error) {
	roomID, playerID := sess.Match()
	if roomID == "" {
		return nil, apperror.ErrMissingParams
	}

	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed get room by id: %w", err)
	}

	if room.SeatOf(playerID) != 1 {
		return nil, apperror.ErrNotHost
	}

	if !room.IsFinished() {
		return nil, apperror.ErrGameNotFinished
	}

	if len(room.Players) < entity.MaxPlayers {
		return nil, apperror.ErrNoOpponent
	}

	if err = connectfour.InitializeBoard(room); err != nil {
		return nil, fmt.Errorf("failed initialize board: %w", err)
	}

	room.Status = entity.StatusInGame

	if err = that.rooms.Update(ctx, roomID, gameFields(room)); err != nil {
		return nil, fmt.Errorf("failed update room: %w", err)
	}

	that.logger.Info("rematch started", "room", roomID)

	return room, nil
}

// Leave quits the game view. A running game is forfeited to the opponent first.
func (that *Match) Leave(ctx context.Context, sess *session.Session) error {
	roomID, playerID := sess.Match()
	if roomID == "" {
		return nil
	}

	defer sess.LeaveMatch()

	room, err := that.rooms.GetByID(ctx, roomID)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed get room by id: %w", err)
	}

	if !room.HasPlayer(playerID) {
		return nil
	}

	fields := map[string]any{"status": entity.StatusWaiting}
	if room.IsPlaying() {
		fields["gameStatus"] = entity.GameFinished
		if opponent, ok := room.Opponent(playerID); ok {
			fields["winnerId"] = opponent
		}
	}

	if err = that.rooms.Update(ctx, roomID, fields); err != nil {
		return fmt.Errorf("failed forfeit game: %w", err)
	}

	if err = removePlayer(ctx, that.rooms, roomID, playerID, nil); err != nil {
		return fmt.Errorf("failed leave game: %w", err)
	}

	that.logger.Info("game left", "room", roomID, "player", playerID, "forfeit", room.IsPlaying())

	return nil
}
