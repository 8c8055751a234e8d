// moves.go - Legal move index received from the move authority
package shared

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LegalMoveIndex maps each movable piece to its legal destinations. It is a
// snapshot for a single turn: fetched whole and never edited afterwards.
type LegalMoveIndex struct {
	moves map[Position][]Position
}

// NewLegalMoveIndex copies m. Origins without destinations are dropped, since
// selecting them could never complete a move.
func NewLegalMoveIndex(m map[Position][]Position) LegalMoveIndex {
	moves := make(map[Position][]Position, len(m))
	for from, dests := range m {
		if len(dests) == 0 {
			continue
		}
		moves[from] = append([]Position(nil), dests...)
	}
	return LegalMoveIndex{moves: moves}
}

// Len returns the number of movable pieces.
func (ix LegalMoveIndex) Len() int { return len(ix.moves) }

func (ix LegalMoveIndex) IsEmpty() bool { return len(ix.moves) == 0 }

// Has reports whether origin is a movable piece.
func (ix LegalMoveIndex) Has(origin Position) bool {
	_, ok := ix.moves[origin]
	return ok
}

// Destinations returns a copy of the destinations listed for origin.
func (ix LegalMoveIndex) Destinations(origin Position) []Position {
	return append([]Position(nil), ix.moves[origin]...)
}

// Allows reports whether to is listed under from.
func (ix LegalMoveIndex) Allows(from, to Position) bool {
	for _, d := range ix.moves[from] {
		if d == to {
			return true
		}
	}
	return false
}

// Origins returns the movable pieces in row-major order.
func (ix LegalMoveIndex) Origins() []Position {
	out := make([]Position, 0, len(ix.moves))
	for p := range ix.moves {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// Validate checks the index against board: every origin must hold a piece of
// color c and every destination must be an empty square on the board.
func (ix LegalMoveIndex) Validate(board Board, c Color) error {
	for _, from := range ix.Origins() {
		if !from.Within(board.Size()) {
			return fmt.Errorf("%w: origin %s off the board", ErrInvalidPosition, from)
		}
		if got := board.At(from).Color(); got != c {
			return fmt.Errorf("%w: origin %s holds %q, want a %s piece", ErrInvalidPosition, from, board.At(from), c)
		}
		for _, to := range ix.moves[from] {
			if !to.Within(board.Size()) {
				return fmt.Errorf("%w: destination %s off the board", ErrInvalidPosition, to)
			}
			if !board.At(to).IsEmpty() {
				return fmt.Errorf("%w: destination %s is occupied", ErrInvalidPosition, to)
			}
		}
	}
	return nil
}

// Equal reports whether both indexes list the same destinations in the same order.
func (ix LegalMoveIndex) Equal(o LegalMoveIndex) bool {
	if len(ix.moves) != len(o.moves) {
		return false
	}
	for from, dests := range ix.moves {
		other, ok := o.moves[from]
		if !ok || len(other) != len(dests) {
			return false
		}
		for i := range dests {
			if dests[i] != other[i] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the index as {"row,col": [[row, col], ...]}.
func (ix LegalMoveIndex) MarshalJSON() ([]byte, error) {
	m := make(map[string][]Position, len(ix.moves))
	for from, dests := range ix.moves {
		m[from.Key()] = dests
	}
	return json.Marshal(m)
}

func (ix *LegalMoveIndex) UnmarshalJSON(data []byte) error {
	var m map[string][]Position
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	moves := make(map[Position][]Position, len(m))
	for key, dests := range m {
		from, err := ParseKey(key)
		if err != nil {
			return err
		}
		moves[from] = dests
	}
	*ix = NewLegalMoveIndex(moves)
	return nil
}
