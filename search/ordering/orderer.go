// Package ordering sorts moves so that alpha-beta sees likely cutoffs first.
// An Orderer belongs to one search thread; nothing in it is synchronised.
package ordering

import (
	"cmp"
	"slices"

	"github.com/domino14/kibitz/config"
	"github.com/domino14/kibitz/game"
)

// MaxPly bounds the depth of the PV and killer tables.
const MaxPly = 64

const (
	historyBits = 14
	historySize = 1 << historyBits
)

// Context is what the caller knows about the node being ordered.
type Context struct {
	Ply    int
	Depth  int
	TTMove game.Move
}

type scoredMove struct {
	move  game.Move
	score int
}

type Orderer struct {
	weights     config.Weights
	killerSlots int

	pv       [MaxPly]game.Move
	pvScores [MaxPly]int
	killers  [MaxPly][config.MaxKillerSlots]game.Move
	history  [2][historySize]int32

	cache   *ScoreCache
	see     seeScratch
	scratch []scoredMove
}

func NewOrderer(cfg config.Config) *Orderer {
	o := &Orderer{}
	o.SetConfig(cfg)
	return o
}

// SetConfig applies new weights. Heuristic memory survives unless the cache
// size changed.
func (o *Orderer) SetConfig(cfg config.Config) {
	o.weights = cfg.Weights
	o.killerSlots = cfg.KillerSlots
	if o.cache == nil || o.cache.Capacity() != cfg.MoveScoreCacheSize {
		o.cache = NewScoreCache(cfg.MoveScoreCacheSize)
	}
}

func histIndex(m game.Move) uint32 {
	return uint32(m) * 2654435761 >> (32 - historyBits)
}

func clampPly(ply int) int {
	if ply < 0 {
		return 0
	}
	if ply >= MaxPly {
		return MaxPly - 1
	}
	return ply
}

// Order sorts moves in place, best first. Equal scores keep generator order.
func (o *Orderer) Order(pos game.Position, moves []game.Move, ctx Context) {
	o.scratch = o.scratch[:0]
	for _, m := range moves {
		o.scratch = append(o.scratch, scoredMove{m, o.Score(pos, m, ctx)})
	}
	slices.SortStableFunc(o.scratch, func(a, b scoredMove) int {
		return cmp.Compare(b.score, a.score)
	})
	for i, sm := range o.scratch {
		moves[i] = sm.move
	}
}

// Score is the composite ordering score of m. Tiers, best first: PV move,
// TT move, captures and promotions that do not lose material, killers,
// history, captures that lose material.
func (o *Orderer) Score(pos game.Position, m game.Move, ctx Context) int {
	ply := clampPly(ctx.Ply)
	switch {
	case m == o.pv[ply] && m != game.NoMove:
		return o.weights.PV
	case m == ctx.TTMove && m != game.NoMove:
		return o.weights.TTMove
	}
	mi := pos.Describe(m)
	if mi.IsTactical() {
		see := o.SEE(pos, m)
		if see >= 0 {
			return o.weights.GoodCapture + see
		}
		return see - o.weights.LosingCapturePenalty
	}
	for i := 0; i < o.killerSlots; i++ {
		if o.killers[ply][i] == m {
			return o.weights.Killer + o.killerSlots - i
		}
	}
	return int(o.history[pos.SideToMove()][histIndex(m)])
}

// SEE returns the static exchange value of m, memoised per position.
func (o *Orderer) SEE(pos game.Position, m game.Move) int {
	if v, ok := o.cache.Get(pos.Hash(), m); ok {
		return v
	}
	v := o.see.evaluate(pos, m)
	o.cache.Put(pos.Hash(), m, v)
	return v
}

// AddKiller records a quiet move that caused a cutoff at ply. The newest
// killer takes slot 0 and the oldest drops off the end.
func (o *Orderer) AddKiller(ply int, m game.Move) {
	if m == game.NoMove {
		return
	}
	ply = clampPly(ply)
	ks := &o.killers[ply]
	if ks[0] == m {
		return
	}
	last := o.killerSlots - 1
	for i := 1; i < o.killerSlots; i++ {
		if ks[i] == m {
			last = i
			break
		}
	}
	copy(ks[1:last+1], ks[:last])
	ks[0] = m
}

func (o *Orderer) IsKiller(ply int, m game.Move) bool {
	if m == game.NoMove {
		return false
	}
	ply = clampPly(ply)
	for i := 0; i < o.killerSlots; i++ {
		if o.killers[ply][i] == m {
			return true
		}
	}
	return false
}

// Killers returns the killer slots for ply, newest first.
func (o *Orderer) Killers(ply int) []game.Move {
	return o.killers[clampPly(ply)][:o.killerSlots]
}

// UpdateHistory rewards a quiet move that caused a cutoff, or penalises one
// that was tried before the cutoff move. When any entry grows past
// HistoryMax the whole table is halved.
func (o *Orderer) UpdateHistory(side int, m game.Move, success bool, depth int) {
	bonus := int32(depth * depth)
	h := &o.history[side][histIndex(m)]
	if success {
		*h += bonus
	} else {
		*h -= bonus
	}
	limit := int32(o.weights.HistoryMax)
	if *h > limit || *h < -limit {
		o.ageHistory()
		if *h > limit {
			*h = limit
		} else if *h < -limit {
			*h = -limit
		}
	}
}

func (o *Orderer) History(side int, m game.Move) int {
	return int(o.history[side][histIndex(m)])
}

func (o *Orderer) ageHistory() {
	for s := range o.history {
		for i := range o.history[s] {
			o.history[s][i] /= 2
		}
	}
}

// UpdatePV records the principal variation move for ply.
func (o *Orderer) UpdatePV(ply int, m game.Move, score int) {
	ply = clampPly(ply)
	o.pv[ply] = m
	o.pvScores[ply] = score
}

func (o *Orderer) PVMove(ply int) game.Move {
	return o.pv[clampPly(ply)]
}

func (o *Orderer) PVScore(ply int) int {
	return o.pvScores[clampPly(ply)]
}

// SetPV replaces the whole PV table with line, starting at ply 0.
func (o *Orderer) SetPV(line []game.Move, score int) {
	clear(o.pv[:])
	clear(o.pvScores[:])
	for i, m := range line {
		if i >= MaxPly {
			break
		}
		o.UpdatePV(i, m, score)
		score = -score
	}
}

// NewSearch forgets the PV and killers and ages history.
func (o *Orderer) NewSearch() {
	clear(o.pv[:])
	clear(o.pvScores[:])
	o.killers = [MaxPly][config.MaxKillerSlots]game.Move{}
	o.ageHistory()
}

// NewGame forgets everything, including the score cache.
func (o *Orderer) NewGame() {
	o.NewSearch()
	o.history = [2][historySize]int32{}
	o.cache.Clear()
}

func (o *Orderer) CacheStats() (hits, misses uint64) {
	return o.cache.Stats()
}
