// script.go - Turn script replayed by the scripted authority
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"damas/shared"
)

// Turn is one round of the script: the human's legal moves and, for each of
// them, the board after it and the engine's answer. Whichever move is played,
// the script goes on with the next turn.
type Turn struct {
	UserMoves shared.LegalMoveIndex `json:"user_moves"`
	Replies   map[string]Reply      `json:"replies"` // keyed "r,c->r,c"
}

// Reply is the scripted outcome of one human move. AI is omitted when the
// move takes the last black piece.
type Reply struct {
	User shared.BoardReply  `json:"user"`
	AI   *shared.BoardReply `json:"ai,omitempty"`
}

// Script is the whole game. Past the last turn the human has no moves.
type Script struct {
	Turns []Turn `json:"turns"`
}

// LoadScript reads and checks a script file.
func LoadScript(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return Script{}, err
	}
	defer f.Close()
	s, err := ParseScript(f)
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func ParseScript(r io.Reader) (Script, error) {
	var s Script
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

// Validate checks that every legal move has a well-formed reply and that no
// reply answers a move outside its turn's index. A reply without an engine
// answer must end the game on the human move.
func (s Script) Validate() error {
	for i, t := range s.Turns {
		for key, reply := range t.Replies {
			m, err := shared.ParseMoveKey(key)
			if err != nil {
				return fmt.Errorf("turn %d: %w", i, err)
			}
			if !t.UserMoves.Allows(m.From, m.To) {
				return fmt.Errorf("turn %d: reply for %s, which is not a legal move", i, key)
			}
			snap, err := reply.User.Snapshot()
			if err != nil {
				return fmt.Errorf("turn %d: reply %s: %w", i, key, err)
			}
			if reply.AI == nil {
				if snap.NumBlack != 0 {
					return fmt.Errorf("turn %d: reply %s leaves black pieces but has no ai reply", i, key)
				}
				continue
			}
			if _, err := reply.AI.Snapshot(); err != nil {
				return fmt.Errorf("turn %d: ai reply to %s: %w", i, key, err)
			}
		}
		for _, from := range t.UserMoves.Origins() {
			for _, to := range t.UserMoves.Destinations(from) {
				key := shared.MoveIntent{From: from, To: to}.Key()
				if _, ok := t.Replies[key]; !ok {
					return fmt.Errorf("turn %d: no reply for legal move %s", i, key)
				}
			}
		}
	}
	return nil
}
