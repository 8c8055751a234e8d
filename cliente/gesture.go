// gesture.go - Two-step "select piece, then destination" gesture
package main

import "damas/shared"

// Gesture is the selection state of one human turn. It is a value: Activate
// returns the next state and never touches the board, the index or the
// network.
type Gesture struct {
	board    shared.Board
	index    shared.LegalMoveIndex
	color    shared.Color
	selected shared.Position
	active   bool
}

// NewGesture starts in the idle state for a turn of the given color.
func NewGesture(board shared.Board, index shared.LegalMoveIndex, color shared.Color) Gesture {
	return Gesture{board: board, index: index, color: color}
}

// Selection returns the selected origin, if any.
func (g Gesture) Selection() (shared.Position, bool) {
	return g.selected, g.active
}

// Targets returns the legal destinations of the current selection.
func (g Gesture) Targets() []shared.Position {
	if !g.active {
		return nil
	}
	return g.index.Destinations(g.selected)
}

// Activate feeds one activated square into the gesture. When it completes a
// move, it returns the intent, ok=true and an idle gesture. Anything it does
// not understand leaves the state unchanged.
func (g Gesture) Activate(p shared.Position) (Gesture, shared.MoveIntent, bool) {
	if !p.Within(g.board.Size()) {
		return g, shared.MoveIntent{}, false
	}
	if g.selectable(p) {
		g.selected, g.active = p, true
		return g, shared.MoveIntent{}, false
	}
	if !g.active {
		return g, shared.MoveIntent{}, false
	}
	if g.board.At(p).IsEmpty() && g.index.Allows(g.selected, p) {
		intent := shared.MoveIntent{From: g.selected, To: p}
		g.selected, g.active = shared.Position{}, false
		return g, intent, true
	}
	return g, shared.MoveIntent{}, false
}

func (g Gesture) selectable(p shared.Position) bool {
	return g.board.At(p).Color() == g.color && g.index.Has(p)
}
