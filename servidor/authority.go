// authority.go - Scripted move authority state (turn pointer + armed engine reply)
package main

import (
	"errors"
	"log"
	"sync"

	"damas/shared"
)

var (
	errNotInIndex = errors.New("move is not in the current legal-move index")
	errOutOfOrder = errors.New("call out of turn order")
)

// ScriptedAuthority replays a Script. It is safe for concurrent use; calls
// from several connections see one shared game.
type ScriptedAuthority struct {
	mu     sync.Mutex
	script Script
	turn   int
	armed  *shared.Snapshot // engine reply waiting for ai_move
	last   *appliedMove     // answered human move the client may not have seen
}

// appliedMove remembers the reply to the latest human move so a resubmit
// after a lost reply gets the same board instead of a conflict.
type appliedMove struct {
	move shared.MoveIntent
	snap shared.Snapshot
}

func NewScriptedAuthority(s Script) *ScriptedAuthority {
	return &ScriptedAuthority{script: s}
}

// UserMoves returns the legal moves of the current turn, or an empty index
// once the script is over.
func (a *ScriptedAuthority) UserMoves() (shared.LegalMoveIndex, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed != nil {
		return shared.LegalMoveIndex{}, errOutOfOrder
	}
	a.last = nil
	if a.turn >= len(a.script.Turns) {
		log.Printf("[RPC] UserMoves: script exhausted after %d turns", a.turn)
		return shared.NewLegalMoveIndex(nil), nil
	}
	ix := a.script.Turns[a.turn].UserMoves
	log.Printf("[RPC] UserMoves: turn %d, %d origins", a.turn, ix.Len())
	return ix, nil
}

// ApplyUserMove answers a human move with the scripted board and arms the
// engine reply of the turn.
func (a *ScriptedAuthority) ApplyUserMove(args shared.ApplyUserMoveArgs) (shared.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := args.Intent()
	if a.last != nil && a.last.move == m {
		log.Printf("[RPC] ApplyUserMove: %s already applied, replaying reply", m)
		return a.last.snap, nil
	}
	if a.armed != nil {
		return shared.Snapshot{}, errOutOfOrder
	}
	if a.turn >= len(a.script.Turns) {
		return shared.Snapshot{}, errNotInIndex
	}
	t := a.script.Turns[a.turn]
	if !t.UserMoves.Allows(m.From, m.To) {
		log.Printf("[RPC] ApplyUserMove: %s rejected on turn %d", m, a.turn)
		return shared.Snapshot{}, errNotInIndex
	}
	reply := t.Replies[m.Key()]
	snap, err := reply.User.Snapshot()
	if err != nil {
		return shared.Snapshot{}, err
	}
	if reply.AI != nil {
		ai, err := reply.AI.Snapshot()
		if err != nil {
			return shared.Snapshot{}, err
		}
		a.armed = &ai
	} else {
		a.turn++
	}
	a.last = &appliedMove{move: m, snap: snap}
	log.Printf("[RPC] ApplyUserMove: %s piece=%s turn=%d red=%d black=%d", m, args.Piece, a.turn, snap.NumRed, snap.NumBlack)
	return snap, nil
}

// AIMove hands out the armed engine reply and moves to the next turn.
func (a *ScriptedAuthority) AIMove() (shared.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed == nil {
		return shared.Snapshot{}, errOutOfOrder
	}
	snap := *a.armed
	a.armed = nil
	a.last = nil
	a.turn++
	log.Printf("[RPC] AIMove: turn=%d red=%d black=%d", a.turn, snap.NumRed, snap.NumBlack)
	return snap, nil
}

// Turn returns the index of the current turn.
func (a *ScriptedAuthority) Turn() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turn
}
