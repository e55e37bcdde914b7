package negamax

import (
	"context"
	"errors"

	"github.com/domino14/kibitz/config"
	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/search/ordering"
	"github.com/domino14/kibitz/search/tt"
)

// errAborted unwinds the recursion when the budget runs out or the context
// is cancelled. It never leaves Search.
var errAborted = errors.New("search aborted")

// worker is one search thread: a position it may mutate, its own ordering
// memory and counters, and a handle on the shared table.
type worker struct {
	id      int
	ctx     context.Context
	cfg     config.Config
	pos     game.Position
	eval    game.Evaluator
	table   *tt.TranspositionTable
	orderer *ordering.Orderer
	abdada  *abdadaTable
	solver  *Solver

	stats      Statistics
	sinceCheck int

	rootMoves []game.Move
	moveBufs  [MaxPly + 1][]game.Move
	quietBufs [MaxPly + 1][]game.Move
	deferBufs [MaxPly + 1][]game.Move
	pvs       [MaxPly + 2]PVLine
	scratchPV PVLine
}

func newWorker(id int, s *Solver, pos game.Position, orderer *ordering.Orderer) *worker {
	return &worker{
		id:      id,
		cfg:     s.cfg,
		pos:     pos,
		eval:    s.eval,
		table:   s.table,
		orderer: orderer,
		solver:  s,
	}
}

// poll checks for cancellation every TimeCheckInterval nodes.
func (w *worker) poll() error {
	w.sinceCheck++
	if w.sinceCheck < w.cfg.TimeCheckInterval {
		return nil
	}
	w.solver.nodes.Add(uint64(w.sinceCheck))
	w.sinceCheck = 0
	if w.ctx.Err() != nil {
		return errAborted
	}
	return nil
}

func (w *worker) evaluate() int {
	v := w.eval.Evaluate(w.pos)
	if v > evalBound {
		return evalBound
	}
	if v < -evalBound {
		return -evalBound
	}
	return v
}

func (w *worker) probe(hash uint64, ply int) (tt.Entry, bool) {
	if !w.cfg.UseTranspositionTable {
		return tt.Entry{}, false
	}
	w.stats.TTProbes++
	e, ok := w.table.Probe(hash)
	if !ok {
		w.stats.TTMisses++
		return e, false
	}
	w.stats.TTHits++
	e.Score = scoreFromTT(e.Score, ply)
	return e, true
}

func (w *worker) store(hash uint64, ply, depth, best, alphaOrig, beta int, bestMove game.Move) {
	if !w.cfg.UseTranspositionTable {
		return
	}
	bound := tt.Exact
	switch {
	case best <= alphaOrig:
		bound = tt.UpperBound
		// no move proved itself here
		bestMove = game.NoMove
	case best >= beta:
		bound = tt.LowerBound
	}
	w.table.Store(tt.Entry{
		Hash:  hash,
		Depth: depth,
		Score: scoreToTT(best, ply),
		Bound: bound,
		Move:  bestMove,
	})
}

// nullMoveAllowed applies the guards around null-move pruning. Passing is a
// poor proxy for a real move when in check, directly after another pass,
// when beta is a mate score, and in low-material positions where zugzwang is
// likely.
func (w *worker) nullMoveAllowed(depth, beta int, inCheck, allowNull bool) (game.NullMover, bool) {
	if !allowNull || !w.cfg.NullMoveEnabled || inCheck || depth < w.cfg.NullMoveMinDepth || IsMateScore(beta) {
		return nil, false
	}
	nm, ok := w.pos.(game.NullMover)
	if !ok {
		return nil, false
	}
	if mr, ok := w.pos.(game.MaterialReporter); ok {
		if mr.NonPawnMaterial(w.pos.SideToMove()) < w.cfg.NullMoveMinMaterial {
			return nil, false
		}
	}
	return nm, true
}

func (w *worker) lmrReduction(depth, moveNumber int) int {
	r := 1
	if depth >= 6 && moveNumber >= 2*w.cfg.LMRFullDepthMoves {
		r = 2
	}
	return r
}

// negamax searches the node at ply to depth and returns its fail-soft value
// for the side to move. allowNull is false directly after a null move.
func (w *worker) negamax(depth, ply, alpha, beta int, pv *PVLine, allowNull bool) (int, error) {
	if err := w.poll(); err != nil {
		return 0, err
	}
	w.stats.Nodes++
	pos := w.pos
	inCheck := pos.InCheck()
	if inCheck && ply+depth < MaxPly-1 {
		depth++
	}
	if depth <= 0 {
		if !w.cfg.QuiescenceEnabled {
			return w.evaluate(), nil
		}
		return w.quiescence(ply, 0, alpha, beta)
	}
	if ply >= MaxPly-1 {
		return w.evaluate(), nil
	}

	alphaOrig := alpha
	hash := pos.Hash()
	ttMove := game.NoMove
	if e, ok := w.probe(hash, ply); ok {
		ttMove = e.Move
		if e.Usable(depth, alpha, beta) {
			w.stats.TTCutoffs++
			return e.Score, nil
		}
	}

	if nm, ok := w.nullMoveAllowed(depth, beta, inCheck, allowNull); ok {
		r := w.cfg.NullMoveReduction + depth/6
		nm.ApplyNull()
		w.scratchPV.Clear()
		score, err := w.negamax(depth-1-r, ply+1, -beta, -beta+1, &w.scratchPV, false)
		nm.UndoNull()
		if err != nil {
			return 0, err
		}
		score = -score
		if score >= beta {
			w.stats.NullMoveCutoffs++
			if IsMateScore(score) {
				// a pass proves nothing about mates
				score = beta
			}
			return score, nil
		}
	}

	moves := pos.LegalMoves(w.moveBufs[ply][:0])
	w.moveBufs[ply] = moves
	if len(moves) == 0 {
		if inCheck {
			return -(MateScore - ply), nil
		}
		return DrawScore, nil
	}
	w.orderer.Order(pos, moves, ordering.Context{Ply: ply, Depth: depth, TTMove: ttMove})

	side := pos.SideToMove()
	childPV := &w.pvs[ply+1]
	quiets := w.quietBufs[ply][:0]
	deferred := w.deferBufs[ply][:0]
	best := -Infinity
	bestMove := game.NoMove
	searched := 0

moveLoop:
	for pass := 0; pass < 2; pass++ {
		list := moves
		if pass == 1 {
			list = deferred
		}
		for _, m := range list {
			if pass == 0 && searched > 0 && w.abdada != nil && w.abdada.deferMove(hash, m, depth) {
				deferred = append(deferred, m)
				continue
			}
			quiet := !pos.Describe(m).IsTactical()
			reduce := w.cfg.LMREnabled && depth >= w.cfg.LMRMinDepth && searched >= w.cfg.LMRFullDepthMoves &&
				quiet && !inCheck && !w.orderer.IsKiller(ply, m)

			if w.abdada != nil {
				w.abdada.startingSearch(hash, m, depth)
			}
			pos.Apply(m)
			if reduce && pos.InCheck() {
				reduce = false
			}
			childPV.Clear()
			var score int
			var err error
			if reduce {
				r := w.lmrReduction(depth, searched)
				score, err = w.negamax(depth-1-r, ply+1, -alpha-1, -alpha, childPV, true)
				score = -score
				if err == nil && score > alpha {
					w.stats.LMRResearches++
					childPV.Clear()
					score, err = w.negamax(depth-1, ply+1, -beta, -alpha, childPV, true)
					score = -score
				}
			} else {
				score, err = w.negamax(depth-1, ply+1, -beta, -alpha, childPV, true)
				score = -score
			}
			pos.Undo(m)
			if w.abdada != nil {
				w.abdada.finishedSearch(hash, m, depth)
			}
			if err != nil {
				return 0, err
			}
			searched++

			if score > best {
				best = score
				bestMove = m
				if score > alpha {
					alpha = score
					pv.Update(m, childPV, score)
				}
			}
			if alpha >= beta {
				w.stats.BetaCutoffs++
				if quiet {
					w.orderer.AddKiller(ply, m)
					w.orderer.UpdateHistory(side, m, true, depth)
					for _, q := range quiets {
						w.orderer.UpdateHistory(side, q, false, depth)
					}
				}
				break moveLoop
			}
			if quiet {
				quiets = append(quiets, m)
			}
		}
	}
	w.quietBufs[ply] = quiets
	w.deferBufs[ply] = deferred

	w.store(hash, ply, depth, best, alphaOrig, beta, bestMove)
	return best, nil
}

// quiescence resolves captures and promotions until the position is quiet,
// so the static evaluation is not taken in the middle of an exchange. When
// in check every evasion is searched.
func (w *worker) quiescence(ply, qdepth, alpha, beta int) (int, error) {
	if err := w.poll(); err != nil {
		return 0, err
	}
	w.stats.QuiescenceNodes++
	pos := w.pos
	if ply >= MaxPly-1 {
		return w.evaluate(), nil
	}
	inCheck := pos.InCheck()
	best := -Infinity
	if !inCheck || qdepth >= w.cfg.QuiescenceMaxDepth {
		standPat := w.evaluate()
		if standPat >= beta || qdepth >= w.cfg.QuiescenceMaxDepth {
			return standPat, nil
		}
		if standPat > alpha {
			alpha = standPat
		}
		best = standPat
	}

	moves := pos.LegalMoves(w.moveBufs[ply][:0])
	w.moveBufs[ply] = moves
	if len(moves) == 0 {
		if inCheck {
			return -(MateScore - ply), nil
		}
		return DrawScore, nil
	}
	w.orderer.Order(pos, moves, ordering.Context{Ply: ply})
	for _, m := range moves {
		if !inCheck {
			if !pos.Describe(m).IsTactical() {
				continue
			}
			if w.orderer.SEE(pos, m) < 0 {
				continue
			}
		}
		pos.Apply(m)
		score, err := w.quiescence(ply+1, qdepth+1, -beta, -alpha)
		pos.Undo(m)
		if err != nil {
			return 0, err
		}
		score = -score
		if score > best {
			best = score
			if score > alpha {
				alpha = score
			}
		}
		if alpha >= beta {
			break
		}
	}
	return best, nil
}

// searchRoot searches every root move with the window (alpha, beta). The
// returned move is never NoMove: when nothing beats alpha it is the move
// with the best bound, which is the first move if all bounds tie.
func (w *worker) searchRoot(depth, alpha, beta int) (int, game.Move, error) {
	pos := w.pos
	if pos.InCheck() && depth < MaxPly-1 {
		depth++
	}
	hash := pos.Hash()
	alphaOrig := alpha
	pv := &w.pvs[0]
	childPV := &w.pvs[1]
	pv.Clear()
	best := -Infinity
	bestMove := w.rootMoves[0]
	for _, m := range w.rootMoves {
		pos.Apply(m)
		childPV.Clear()
		score, err := w.negamax(depth-1, 1, -beta, -alpha, childPV, true)
		pos.Undo(m)
		if err != nil {
			return 0, game.NoMove, err
		}
		score = -score
		if score > best {
			best = score
			bestMove = m
			if score > alpha {
				alpha = score
				pv.Update(m, childPV, score)
			}
		}
		if alpha >= beta {
			break
		}
	}
	if len(pv.Moves) == 0 || pv.Moves[0] != bestMove {
		pv.Update(bestMove, &PVLine{}, best)
	}
	w.store(hash, 0, depth, best, alphaOrig, beta, bestMove)
	return best, bestMove, nil
}
