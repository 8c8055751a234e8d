// board.go - Board, pieces and positions
package shared

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultSize is the side length of a standard checkers board.
const DefaultSize = 8

// Color identifies which player a piece belongs to.
type Color int

const (
	NoColor Color = iota
	Red           // light pieces, played by the human
	Black         // dark pieces, played by the engine
)

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// Piece is the single-character symbol used on the wire.
type Piece byte

const (
	Empty     Piece = '.'
	RedMan    Piece = 'r'
	BlackMan  Piece = 'b'
	RedKing   Piece = 'R'
	BlackKing Piece = 'B'
)

// ParsePiece converts a wire symbol into a Piece.
func ParsePiece(s string) (Piece, bool) {
	if len(s) != 1 {
		return Empty, false
	}
	switch p := Piece(s[0]); p {
	case Empty, RedMan, BlackMan, RedKing, BlackKing:
		return p, true
	}
	return Empty, false
}

func (p Piece) Color() Color {
	switch p {
	case RedMan, RedKing:
		return Red
	case BlackMan, BlackKing:
		return Black
	}
	return NoColor
}

func (p Piece) IsKing() bool { return p == RedKing || p == BlackKing }

func (p Piece) IsEmpty() bool { return p == Empty }

func (p Piece) String() string { return string(rune(p)) }

// Side is one of the two participants of a game.
type Side int

const (
	Human Side = iota
	Engine
)

// Color returns the piece color the side plays. The human is always red.
func (s Side) Color() Color {
	if s == Human {
		return Red
	}
	return Black
}

func (s Side) Opponent() Side {
	if s == Human {
		return Engine
	}
	return Human
}

func (s Side) String() string {
	if s == Human {
		return "human"
	}
	return "engine"
}

// Position addresses a board square, 0-indexed from the top-left corner.
type Position struct {
	Row int
	Col int
}

// Key returns the canonical "row,col" form used as a map key on the wire.
func (p Position) Key() string {
	return strconv.Itoa(p.Row) + "," + strconv.Itoa(p.Col)
}

// ParseKey parses a "row,col" key.
func ParseKey(s string) (Position, error) {
	r, c, ok := strings.Cut(s, ",")
	if !ok {
		return Position{}, fmt.Errorf("%w: key %q", ErrInvalidPosition, s)
	}
	row, err := strconv.Atoi(strings.TrimSpace(r))
	if err != nil {
		return Position{}, fmt.Errorf("%w: key %q", ErrInvalidPosition, s)
	}
	col, err := strconv.Atoi(strings.TrimSpace(c))
	if err != nil {
		return Position{}, fmt.Errorf("%w: key %q", ErrInvalidPosition, s)
	}
	return Position{Row: row, Col: col}, nil
}

// Within reports whether p lies on an n×n board.
func (p Position) Within(n int) bool {
	return p.Row >= 0 && p.Row < n && p.Col >= 0 && p.Col < n
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// MarshalJSON encodes the position as [row, col].
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Row, p.Col})
}

// UnmarshalJSON decodes a position from [row, col].
func (p *Position) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	if len(v) != 2 {
		return fmt.Errorf("%w: want [row, col], got %d values", ErrInvalidPosition, len(v))
	}
	p.Row, p.Col = v[0], v[1]
	return nil
}

// MoveIntent is a locally validated candidate move.
type MoveIntent struct {
	From Position
	To   Position
}

// Key returns "r,c->r,c".
func (m MoveIntent) Key() string { return m.From.Key() + "->" + m.To.Key() }

func (m MoveIntent) String() string { return m.From.String() + "->" + m.To.String() }

// ParseMoveKey parses the "r,c->r,c" form returned by Key.
func ParseMoveKey(s string) (MoveIntent, error) {
	from, to, ok := strings.Cut(s, "->")
	if !ok {
		return MoveIntent{}, fmt.Errorf("%w: move key %q", ErrInvalidPosition, s)
	}
	f, err := ParseKey(from)
	if err != nil {
		return MoveIntent{}, err
	}
	t, err := ParseKey(to)
	if err != nil {
		return MoveIntent{}, err
	}
	return MoveIntent{From: f, To: t}, nil
}

// Board is an immutable n×n grid of pieces. Boards are replaced, never
// patched: every method that changes squares returns a new Board.
type Board struct {
	n     int
	cells []Piece
}

// NewBoard returns an empty n×n board.
func NewBoard(n int) Board {
	cells := make([]Piece, n*n)
	for i := range cells {
		cells[i] = Empty
	}
	return Board{n: n, cells: cells}
}

// StartingBoard returns the opening layout: black on the first three rows,
// red on the last three, dark squares only.
func StartingBoard(n int) Board {
	b := NewBoard(n)
	rows := (n - 2) / 2
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if (r+c)%2 == 0 {
				continue
			}
			switch {
			case r < rows:
				b.cells[r*n+c] = BlackMan
			case r >= n-rows:
				b.cells[r*n+c] = RedMan
			}
		}
	}
	return b
}

// ParseBoard validates a wire grid and builds a Board from it.
func ParseBoard(rows [][]string) (Board, error) {
	n := len(rows)
	if n == 0 {
		return Board{}, fmt.Errorf("%w: no rows", ErrInvalidBoard)
	}
	b := NewBoard(n)
	for r, row := range rows {
		if len(row) != n {
			return Board{}, fmt.Errorf("%w: row %d has %d squares, want %d", ErrInvalidBoard, r, len(row), n)
		}
		for c, sym := range row {
			p, ok := ParsePiece(sym)
			if !ok {
				return Board{}, fmt.Errorf("%w: unknown symbol %q at (%d,%d)", ErrInvalidBoard, sym, r, c)
			}
			b.cells[r*n+c] = p
		}
	}
	return b, nil
}

// MustParseBoard parses rows of symbols like "..b.b..." and panics on error.
func MustParseBoard(lines ...string) Board {
	rows := make([][]string, len(lines))
	for i, line := range lines {
		rows[i] = strings.Split(line, "")
	}
	b, err := ParseBoard(rows)
	if err != nil {
		panic(err)
	}
	return b
}

func (b Board) Size() int { return b.n }

func (b Board) IsZero() bool { return b.n == 0 }

// At returns the piece at p, or Empty when p is off the board.
func (b Board) At(p Position) Piece {
	if !p.Within(b.n) {
		return Empty
	}
	return b.cells[p.Row*b.n+p.Col]
}

// With returns a copy of b with p set to piece.
func (b Board) With(p Position, piece Piece) Board {
	if !p.Within(b.n) {
		return b
	}
	cells := make([]Piece, len(b.cells))
	copy(cells, b.cells)
	cells[p.Row*b.n+p.Col] = piece
	return Board{n: b.n, cells: cells}
}

// Count returns how many pieces of color c are on the board.
func (b Board) Count(c Color) int {
	n := 0
	for _, p := range b.cells {
		if p.Color() == c {
			n++
		}
	}
	return n
}

// Rows returns the wire grid.
func (b Board) Rows() [][]string {
	rows := make([][]string, b.n)
	for r := 0; r < b.n; r++ {
		rows[r] = make([]string, b.n)
		for c := 0; c < b.n; c++ {
			rows[r][c] = b.cells[r*b.n+c].String()
		}
	}
	return rows
}

// Equal reports whether both boards have the same size and squares.
func (b Board) Equal(o Board) bool {
	if b.n != o.n {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

func (b Board) String() string {
	var sb strings.Builder
	for r := 0; r < b.n; r++ {
		for c := 0; c < b.n; c++ {
			sb.WriteByte(byte(b.cells[r*b.n+c]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (b Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Rows())
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBoard, err)
	}
	parsed, err := ParseBoard(rows)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Snapshot is the authoritative result of an applied move.
type Snapshot struct {
	Board    Board
	NumRed   int
	NumBlack int
}

// StartingSnapshot returns the opening board with its piece counts.
func StartingSnapshot(n int) Snapshot {
	b := StartingBoard(n)
	return Snapshot{Board: b, NumRed: b.Count(Red), NumBlack: b.Count(Black)}
}

// Count returns the piece count reported for side.
func (s Snapshot) Count(side Side) int {
	if side.Color() == Red {
		return s.NumRed
	}
	return s.NumBlack
}
