package tictactoe

import (
	"encoding/json"
	"fmt"
)

type Mark string

const (
	Empty Mark = ""
	MarkA Mark = "X"
	MarkB Mark = "O"
)

// Board is the 3x3 grid in row-major order.
type Board [9]Mark

const CellCount = 9

// lines lists the 8 winning lines: 3 rows, 3 columns, 2 diagonals.
var lines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

func ValidCell(cell int) bool {
	return cell >= 0 && cell < CellCount
}

// Line returns the cell indices of winning line i (0-7).
func Line(i int) [3]int {
	return lines[i]
}

// Winner checks every line and returns the mark that completes one, or Empty.
func (b Board) Winner() Mark {
	for _, l := range lines {
		m := b[l[0]]
		if m != Empty && b[l[1]] == m && b[l[2]] == m {
			return m
		}
	}
	return Empty
}

func (b Board) Full() bool {
	for _, m := range b {
		if m == Empty {
			return false
		}
	}
	return true
}

func (b Board) Count(m Mark) int {
	n := 0
	for _, c := range b {
		if c == m {
			n++
		}
	}
	return n
}

// String encodes the board as 9 characters of '-', 'X' and 'O'.
// This is the storage encoding used by the SQL stores.
func (b Board) String() string {
	out := make([]byte, CellCount)
	for i, m := range b {
		switch m {
		case MarkA:
			out[i] = 'X'
		case MarkB:
			out[i] = 'O'
		default:
			out[i] = '-'
		}
	}
	return string(out)
}

// ParseBoard is the inverse of Board.String.
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != CellCount {
		return b, fmt.Errorf("board must be %d characters, got %d", CellCount, len(s))
	}
	for i := 0; i < CellCount; i++ {
		switch s[i] {
		case 'X':
			b[i] = MarkA
		case 'O':
			b[i] = MarkB
		case '-':
			b[i] = Empty
		default:
			return b, fmt.Errorf("invalid board character %q at %d", s[i], i)
		}
	}
	return b, nil
}

// MarshalJSON writes the board as 9 strings so empty cells are "" on the wire.
func (b Board) MarshalJSON() ([]byte, error) {
	cells := make([]string, CellCount)
	for i, m := range b {
		cells[i] = string(m)
	}
	return json.Marshal(cells)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var cells []string
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	if len(cells) != CellCount {
		return fmt.Errorf("board must have %d cells, got %d", CellCount, len(cells))
	}
	for i, c := range cells {
		switch Mark(c) {
		case Empty, MarkA, MarkB:
			b[i] = Mark(c)
		default:
			return fmt.Errorf("invalid mark %q at %d", c, i)
		}
	}
	return nil
}
