package shared

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLegalMoveIndexFromWire(t *testing.T) {
	var reply UserMovesReply
	data := `{"user_moves": {"5,0": [[4,1]], "5,2": [[4,1],[4,3]], "6,1": []}}`
	if err := json.Unmarshal([]byte(data), &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ix := *reply.UserMoves

	if ix.Len() != 2 {
		t.Fatalf("Len() = %d; want 2 (empty destination lists are dropped)", ix.Len())
	}
	want := []Position{{5, 0}, {5, 2}}
	if diff := cmp.Diff(want, ix.Origins()); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Position{{4, 1}, {4, 3}}, ix.Destinations(Position{5, 2})); diff != "" {
		t.Errorf("destinations mismatch (-want +got):\n%s", diff)
	}
	if !ix.Allows(Position{5, 0}, Position{4, 1}) {
		t.Error("expected (5,0)->(4,1) to be allowed")
	}
	if ix.Allows(Position{5, 0}, Position{3, 0}) {
		t.Error("(5,0)->(3,0) is not listed")
	}
	if ix.Has(Position{6, 1}) {
		t.Error("(6,1) has no destinations and must not be selectable")
	}
}

func TestLegalMoveIndexRejectsBadKeys(t *testing.T) {
	var ix LegalMoveIndex
	err := json.Unmarshal([]byte(`{"five,0": [[4,1]]}`), &ix)
	if !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("error = %v; want ErrInvalidPosition", err)
	}
}

func TestLegalMoveIndexNullIsMissing(t *testing.T) {
	var reply UserMovesReply
	if err := json.Unmarshal([]byte(`{"user_moves": null}`), &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if reply.UserMoves != nil {
		t.Fatal("null user_moves must decode as missing")
	}
}

func TestLegalMoveIndexDestinationsIsACopy(t *testing.T) {
	ix := NewLegalMoveIndex(map[Position][]Position{{5, 0}: {{4, 1}}})
	d := ix.Destinations(Position{5, 0})
	d[0] = Position{0, 0}
	if !ix.Allows(Position{5, 0}, Position{4, 1}) {
		t.Fatal("mutating Destinations() result changed the index")
	}
}

func TestLegalMoveIndexValidate(t *testing.T) {
	board := StartingBoard(DefaultSize)
	tests := []struct {
		name    string
		moves   map[Position][]Position
		wantErr bool
	}{
		{"opening move", map[Position][]Position{{5, 0}: {{4, 1}}}, false},
		{"empty index", nil, false},
		{"origin holds engine piece", map[Position][]Position{{2, 1}: {{3, 0}}}, true},
		{"origin is empty", map[Position][]Position{{4, 1}: {{3, 0}}}, true},
		{"destination occupied", map[Position][]Position{{6, 1}: {{5, 0}}}, true},
		{"destination off board", map[Position][]Position{{5, 0}: {{4, -1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewLegalMoveIndex(tt.moves).Validate(board, Red)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLegalMoveIndexJSONKeys(t *testing.T) {
	ix := NewLegalMoveIndex(map[Position][]Position{{5, 0}: {{4, 1}}})
	data, err := json.Marshal(ix)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"5,0":[[4,1]]}` {
		t.Errorf("json = %s", data)
	}
}
