package entity

const (
	Rows    = 6
	Columns = 7
	ToWin   = 4

	MaxMoves = Rows * Columns
)

// Cell is a board slot value as stored in the document: 0 empty, 1 player-1, 2 player-2.
type Cell int

const (
	EmptyCell Cell = 0
	Player1   Cell = 1
	Player2   Cell = 2
)

// Board is the 6x7 grid, row 0 is the top row.
type Board [Rows][Columns]Cell

func NewBoard() *Board {
	return &Board{}
}

// CellForSeat maps a stored seat (1 or 2) to the marker that seat drops.
func CellForSeat(seat int) Cell {
	switch seat {
	case 1:
		return Player1
	case 2:
		return Player2
	default:
		return EmptyCell
	}
}

func (that *Board) InBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Columns
}

func (that *Board) IsColumnFull(col int) bool {
	return that[0][col] != EmptyCell
}

// Count returns the number of occupied cells.
func (that *Board) Count() int {
	n := 0
	for _, row := range that {
		for _, cell := range row {
			if cell != EmptyCell {
				n++
			}
		}
	}

	return n
}
