// types.go - Move authority message types shared between client and server
package shared

import (
	"encoding/json"
	"fmt"
)

// Wire operations. Over HTTP each one is POST /<op>.
const (
	OpUserMove      = "user_move"
	OpApplyUserMove = "apply_user_move"
	OpAIMove        = "ai_move"
)

// Error codes carried by ErrorReply.Code.
const (
	CodeStaleIndex = "stale_index"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

// UserMovesReply answers user_move with the legal moves of the human side.
type UserMovesReply struct {
	UserMoves *LegalMoveIndex `json:"user_moves"`
}

// ApplyUserMoveArgs asks the authority to apply a human move.
type ApplyUserMoveArgs struct {
	OldCoords Position `json:"old_coords"`
	NewCoords Position `json:"new_coords"`
	Piece     string   `json:"piece"`
}

// NewApplyUserMoveArgs builds the request for intent, moving piece.
func NewApplyUserMoveArgs(intent MoveIntent, piece Piece) ApplyUserMoveArgs {
	return ApplyUserMoveArgs{OldCoords: intent.From, NewCoords: intent.To, Piece: piece.String()}
}

func (a ApplyUserMoveArgs) Intent() MoveIntent {
	return MoveIntent{From: a.OldCoords, To: a.NewCoords}
}

// BoardReply answers apply_user_move and ai_move. Fields are pointers so a
// missing field can be told apart from a zero count.
type BoardReply struct {
	BoardState *Board `json:"board_state"`
	NumRed     *int   `json:"num_red"`
	NumBlack   *int   `json:"num_black"`
}

func NewBoardReply(s Snapshot) BoardReply {
	board, red, black := s.Board, s.NumRed, s.NumBlack
	return BoardReply{BoardState: &board, NumRed: &red, NumBlack: &black}
}

// Snapshot validates the reply and converts it.
func (r BoardReply) Snapshot() (Snapshot, error) {
	switch {
	case r.BoardState == nil:
		return Snapshot{}, fmt.Errorf("%w: missing board_state", ErrAuthorityMalformedResponse)
	case r.NumRed == nil:
		return Snapshot{}, fmt.Errorf("%w: missing num_red", ErrAuthorityMalformedResponse)
	case r.NumBlack == nil:
		return Snapshot{}, fmt.Errorf("%w: missing num_black", ErrAuthorityMalformedResponse)
	case *r.NumRed < 0 || *r.NumBlack < 0:
		return Snapshot{}, fmt.Errorf("%w: negative piece count", ErrAuthorityMalformedResponse)
	}
	return Snapshot{Board: *r.BoardState, NumRed: *r.NumRed, NumBlack: *r.NumBlack}, nil
}

// ErrorReply is the body of a failed call.
type ErrorReply struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// EnvelopeError is the Envelope type of a failed call; its payload is an
// ErrorReply.
const EnvelopeError = "error"

// Envelope frames every request and reply on the WebSocket transport.
// Replies carry the id of the request they answer; T is the op name.
type Envelope struct {
	T  string          `json:"t"`
	ID int             `json:"id"`
	M  json.RawMessage `json:"m,omitempty"`
}
