package negamax

import (
	"sync/atomic"

	"github.com/domino14/kibitz/game"
)

const (
	abdadaSize = 1 << 15
	abdadaWays = 4
	// deferDepth is the shallowest remaining depth at which moves are
	// deferred; below it the bookkeeping costs more than it saves.
	deferDepth = 3
)

type abdadaEntry struct {
	hash  atomic.Uint64
	depth atomic.Int32
}

// abdadaTable records which (position, move) pairs some thread is currently
// searching, so other threads can try their remaining moves first.
type abdadaTable struct {
	entries [abdadaSize][abdadaWays]abdadaEntry
}

func newABDADATable() *abdadaTable {
	return &abdadaTable{}
}

func (a *abdadaTable) moveHash(posKey uint64, m game.Move) uint64 {
	h := posKey*1103515245 + uint64(m)*12345
	if h == 0 {
		// 0 is an empty way
		h = 1
	}
	return h
}

// deferMove reports whether another thread is already searching m from this
// position at least as deep.
func (a *abdadaTable) deferMove(posKey uint64, m game.Move, depth int) bool {
	if depth < deferDepth {
		return false
	}
	hash := a.moveHash(posKey, m)
	set := &a.entries[hash%abdadaSize]
	for way := range set {
		if set[way].hash.Load() == hash && set[way].depth.Load() >= int32(depth) {
			return true
		}
	}
	return false
}

func (a *abdadaTable) startingSearch(posKey uint64, m game.Move, depth int) {
	if depth < deferDepth {
		return
	}
	hash := a.moveHash(posKey, m)
	set := &a.entries[hash%abdadaSize]
	for way := range set {
		if set[way].hash.Load() == 0 && set[way].hash.CompareAndSwap(0, hash) {
			set[way].depth.Store(int32(depth))
			return
		}
	}
	// Full set; collisions only cost a little redundant work.
	set[0].hash.Store(hash)
	set[0].depth.Store(int32(depth))
}

func (a *abdadaTable) finishedSearch(posKey uint64, m game.Move, depth int) {
	if depth < deferDepth {
		return
	}
	hash := a.moveHash(posKey, m)
	set := &a.entries[hash%abdadaSize]
	for way := range set {
		if set[way].hash.CompareAndSwap(hash, 0) {
			set[way].depth.Store(0)
		}
	}
}
