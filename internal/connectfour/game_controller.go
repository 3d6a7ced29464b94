package connectfour

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

var (
	ErrSeatMissing = errors.New("no player holds seat 1")
	ErrNoSeat      = errors.New("player has no seat")
)

// directions scanned from the placed cell: horizontal, vertical, both diagonals.
var directions = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// Turn is the cell a move landed in.
type Turn struct {
	Row    int
	Column int
}

// InitializeBoard starts a fresh game: empty grid, seat 1 to move.
func InitializeBoard(room *entity.Room) error {
	first, ok := room.PlayerBySeat(1)
	if !ok {
		return ErrSeatMissing
	}

	room.Board = entity.NewBoard()
	room.CurrentPlayer = first
	room.GameStatus = entity.GamePlaying
	room.Moves = 0
	room.WinnerID = ""

	return nil
}

// MakeTurn drops the player's marker into col and settles the outcome.
// The room is left untouched when the move is rejected.
func MakeTurn(room *entity.Room, playerID string, col int) (Turn, error) {
	if err := validateMove(room, playerID, col); err != nil {
		return Turn{}, fmt.Errorf("invalid turn: %w", err)
	}

	row := DropRow(room.Board, col)
	if row < 0 {
		return Turn{}, fmt.Errorf("invalid turn: %w", apperror.ErrColumnFull)
	}

	mark := entity.CellForSeat(room.SeatOf(playerID))
	if mark == entity.EmptyCell {
		return Turn{}, fmt.Errorf("invalid turn: %w", ErrNoSeat)
	}

	room.Board[row][col] = mark
	room.Moves++

	updateGameStatus(room, playerID, row, col, mark)

	return Turn{Row: row, Column: col}, nil
}

// validateMove - checks if the move is valid.
func validateMove(room *entity.Room, playerID string, col int) error {
	if err := room.ConfirmPlaying(); err != nil {
		return err
	}

	if room.Board == nil {
		return apperror.ErrGameIsNotStarted
	}

	if room.CurrentPlayer != playerID {
		return apperror.ErrNotYourTurn
	}

	if col < 0 || col >= entity.Columns {
		return fmt.Errorf("%w: column %d", apperror.ErrInvalidColumn, col)
	}

	return nil
}

// updateGameStatus - checks the game status after a move.
func updateGameStatus(room *entity.Room, playerID string, row, col int, mark entity.Cell) {
	switch {
	case CheckWin(room.Board, row, col, mark):
		room.GameStatus = entity.GameFinished
		room.WinnerID = playerID
		room.Status = entity.StatusWaiting
	case room.Moves >= entity.MaxMoves:
		room.GameStatus = entity.GameFinished
		room.WinnerID = entity.WinnerDraw
		room.Status = entity.StatusWaiting
	default:
		if next, ok := room.Opponent(playerID); ok {
			room.CurrentPlayer = next
		}
	}
}

// DropRow returns the lowest empty row of col, or -1 when the column is full.
func DropRow(board *entity.Board, col int) int {
	for row := entity.Rows - 1; row >= 0; row-- {
		if board[row][col] == entity.EmptyCell {
			return row
		}
	}

	return -1
}

// CheckWin scans the four lines through (row, col) from offset -3 to +3.
// Only the newest piece can complete a line, so no full-board scan is needed.
func CheckWin(board *entity.Board, row, col int, mark entity.Cell) bool {
	if mark == entity.EmptyCell {
		return false
	}

	for _, dir := range directions {
		count := 0
		for i := -(entity.ToWin - 1); i <= entity.ToWin-1; i++ {
			r, c := row+i*dir[0], col+i*dir[1]

			if board.InBounds(r, c) && board[r][c] == mark {
				count++
				if count >= entity.ToWin {
					return true
				}
				continue
			}

			count = 0
		}
	}

	return false
}
