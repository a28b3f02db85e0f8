package board

import (
	"errors"
	"fmt"
	"strings"
)

// Position packs a full 7x6 connection-game board into 49 bits. Each of the
// seven columns occupies a 7-bit lane, column i in bits [7i, 7i+7). A column
// holding h stones with stone pattern p is coded as (1<<h - 1) + p, where
// bit j of p is 0 for a first-player stone at height j and 1 for a
// second-player stone. The empty board is 0 and no column code ever exceeds
// 126.
type Position uint64

const (
	NumCols = 7
	NumRows = 6

	// KeyBits is the width of the packed representation.
	KeyBits = 49
	// MaxKey is the largest representable position key.
	MaxKey = uint64(1)<<KeyBits - 1

	colMask    = 1<<7 - 1
	maxColCode = 126
)

var (
	ErrColumnFull  = errors.New("column is full")
	ErrInvalidCode = errors.New("column code out of range")
)

// heightThreshold[h] is the largest column code holding h stones;
// baseOfHeight[h] is the smallest.
var (
	heightThreshold = [NumRows + 1]uint64{0, 2, 6, 14, 30, 62, 126}
	baseOfHeight    = [NumRows + 1]uint64{0, 1, 3, 7, 15, 31, 63}
)

// ColumnCode returns the 7-bit code of the given column.
func (p Position) ColumnCode(col int) uint64 {
	return uint64(p>>(7*col)) & colMask
}

func heightOf(code uint64) int {
	h := 0
	for h < NumRows && code > heightThreshold[h] {
		h++
	}
	return h
}

// Height returns the number of stones in the given column.
func (p Position) Height(col int) int {
	return heightOf(p.ColumnCode(col))
}

// Ply returns the total number of stones on the board. Even ply means the
// first player is to move.
func (p Position) Ply() int {
	ply := 0
	for col := 0; col < NumCols; col++ {
		ply += p.Height(col)
	}
	return ply
}

// ApplyMove drops the next stone into col and returns the new position.
// ply must be the true ply of p; its parity selects whose stone is placed.
func (p Position) ApplyMove(col, ply int) (Position, error) {
	code := p.ColumnCode(col)
	if code > maxColCode {
		return 0, fmt.Errorf("column %d code %d: %w", col, code, ErrInvalidCode)
	}
	h := heightOf(code)
	if h >= NumRows {
		return 0, fmt.Errorf("column %d: %w", col, ErrColumnFull)
	}
	pattern := code - baseOfHeight[h]
	if ply&1 == 1 {
		pattern |= 1 << h
	}
	newCode := baseOfHeight[h+1] + pattern
	shift := 7 * col
	return p&^(Position(colMask)<<shift) | Position(newCode)<<shift, nil
}

// String renders the board top row first, X for the first player and O for
// the second.
func (p Position) String() string {
	var sb strings.Builder
	for row := NumRows - 1; row >= 0; row-- {
		for col := 0; col < NumCols; col++ {
			code := p.ColumnCode(col)
			h := heightOf(code)
			switch {
			case row >= h:
				sb.WriteByte('.')
			case (code-baseOfHeight[h])>>row&1 == 1:
				sb.WriteByte('O')
			default:
				sb.WriteByte('X')
			}
			if col < NumCols-1 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
