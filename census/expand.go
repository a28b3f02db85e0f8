package census

import (
	"errors"
	"fmt"

	"github.com/domino14/c4census/board"
	"github.com/domino14/c4census/nodekind"
	"github.com/domino14/c4census/oracle"
)

// moveOrder is the fixed center-out preference used to pick the single
// best move when several moves share the best value.
var moveOrder = [board.NumCols]int{3, 2, 4, 1, 5, 0, 6}

var errNoLegalMove = errors.New("no legal move in a non-terminal position")

// bestMove returns the node value (the max over legal moves) and the first
// move in center-out order achieving it.
func bestMove(values [board.NumCols]int8) (int8, int, error) {
	nodeValue := int8(-2)
	for _, v := range values {
		if v != oracle.IllegalMove && v > nodeValue {
			nodeValue = v
		}
	}
	if nodeValue < -1 {
		return 0, 0, errNoLegalMove
	}
	for _, m := range moveOrder {
		if values[m] == nodeValue {
			return nodeValue, m, nil
		}
	}
	// nodeValue came from values, so the scan above cannot miss
	return 0, 0, errNoLegalMove
}

// packedChild carries one expansion output in a single word: position in
// bits [0,49), value-plus-one in [49,51), kindmask in [51,56).
type packedChild uint64

func packChild(pos board.Position, valuePlusOne uint8, kind nodekind.Mask) packedChild {
	return packedChild(uint64(pos)&board.MaxKey |
		uint64(valuePlusOne&0x3)<<49 |
		uint64(kind&0x1f)<<51)
}

func (c packedChild) position() board.Position {
	return board.Position(uint64(c) & board.MaxKey)
}

func (c packedChild) valuePlusOne() uint8 {
	return uint8(c>>49) & 0x3
}

func (c packedChild) kind() nodekind.Mask {
	return nodekind.Mask(uint8(c>>51) & 0x1f)
}

// expand probes pos and appends its surviving children to buf.
//
// Two rules prune certificate-side branches: a pure certificate main-line
// parent only needs its best reply witnessed, and a parent whose roles all
// lie in the certificate/alternative set proves nothing with non-best
// replies once the side to move is already winning.
func (e *Engine) expand(p Prober, pos board.Position, ply int, parent nodekind.Mask, buf []packedChild) ([]packedChild, error) {
	res, err := p.Probe(ply, pos)
	if err != nil {
		return buf, err
	}
	e.queries.Add(1)
	if res.Terminal {
		return buf, nil
	}
	nodeValue, best, err := bestMove(res.Values)
	if err != nil {
		return buf, fmt.Errorf("position %d ply %d: %w", uint64(pos), ply, err)
	}
	onlyBest := parent == nodekind.CertMain ||
		(parent&^(nodekind.CertificateMask|nodekind.AltLine) == 0 && nodeValue == 1)
	for m := 0; m < board.NumCols; m++ {
		if res.Values[m] == oracle.IllegalMove {
			continue
		}
		if onlyBest && m != best {
			continue
		}
		childKind := nodekind.Child(parent, m == best)
		childPos, err := pos.ApplyMove(m, ply)
		if err != nil {
			return buf, fmt.Errorf("position %d ply %d move %d: %w", uint64(pos), ply, m, err)
		}
		buf = append(buf, packChild(childPos, uint8(1-res.Values[m]), childKind))
	}
	return buf, nil
}
