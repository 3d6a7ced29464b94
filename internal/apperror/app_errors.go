package apperror

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrRoomNotWaiting = errors.New("room is not waiting for players")
	ErrAlreadyInRoom  = errors.New("player already holds a room")
	ErrNotInRoom      = errors.New("player is not in the room")
	ErrNotHost        = errors.New("only the host can do this")
	ErrMissingParams  = errors.New("room and player are required")
	ErrNameRequired   = errors.New("player name is required")
	ErrNoOpponent     = errors.New("opponent has left the room")
	ErrInvalidRoom    = errors.New("invalid room document")

	ErrGameIsNotStarted = errors.New("game is not started")
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameNotFinished  = errors.New("game is not finished yet")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrColumnFull       = errors.New("column is full")
	ErrInvalidColumn    = errors.New("invalid column index")
)

// IsIllegalMove reports whether err is a rejected move that must be ignored silently.
func IsIllegalMove(err error) bool {
	return errors.Is(err, ErrNotYourTurn) ||
		errors.Is(err, ErrColumnFull) ||
		errors.Is(err, ErrInvalidColumn) ||
		errors.Is(err, ErrGameIsNotStarted) ||
		errors.Is(err, ErrGameFinished)
}
