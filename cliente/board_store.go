// board_store.go - Last authoritative board and piece counts
package main

import "damas/shared"

// BoardStore holds the last snapshot received from the authority. It is
// owned by the orchestrator goroutine and only changes through Apply.
type BoardStore struct {
	snap    shared.Snapshot
	updates int
}

// NewBoardStore starts from the opening layout of an n×n board.
func NewBoardStore(n int) *BoardStore {
	return &BoardStore{snap: shared.StartingSnapshot(n)}
}

// Apply replaces the whole snapshot.
func (s *BoardStore) Apply(snap shared.Snapshot) {
	s.snap = snap
	s.updates++
}

func (s *BoardStore) Snapshot() shared.Snapshot { return s.snap }

func (s *BoardStore) Board() shared.Board { return s.snap.Board }

// Count returns the piece count of side.
func (s *BoardStore) Count(side shared.Side) int { return s.snap.Count(side) }

// Updates returns how many authoritative snapshots were applied.
func (s *BoardStore) Updates() int { return s.updates }
