package negamax

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"github.com/domino14/kibitz/game"
)

// makeHelpers sets up lazy SMP: every extra thread gets its own copy of the
// position and its own ordering memory, and shares the table. Helpers only
// fill the table; their results are thrown away.
func (s *Solver) makeHelpers(main *worker) []*worker {
	if main.cfg.Threads < 2 {
		return nil
	}
	cloner, ok := main.pos.(game.Cloner)
	if !ok {
		log.Warn().Int("threads", main.cfg.Threads).Msg("position-not-cloneable-searching-single-threaded")
		return nil
	}
	if !main.cfg.UseTranspositionTable {
		log.Warn().Msg("lazy-smp-needs-transposition-table-searching-single-threaded")
		return nil
	}
	main.abdada = s.abdada
	helpers := make([]*worker, 0, main.cfg.Threads-1)
	for t := 1; t < main.cfg.Threads; t++ {
		h := newWorker(t, s, cloner.Clone(), s.orderers[t])
		h.abdada = s.abdada
		helpers = append(helpers, h)
	}
	log.Debug().Int("threads", main.cfg.Threads).Msg("using-lazy-smp")
	return helpers
}

// searchDepthParallel runs the main thread's iteration at depth while the
// helpers search the same root, some one ply deeper and in different move
// orders. Helpers are stopped as soon as the main thread finishes.
func (s *Solver) searchDepthParallel(main *worker, helpers []*worker, depth int, prev iteration, havePrev bool) (iteration, error) {
	helperCtx, cancel := context.WithCancel(main.ctx)
	g := errgroup.Group{}
	for _, h := range helpers {
		h := h
		h.ctx = helperCtx
		h.rootMoves = append(h.rootMoves[:0], main.rootMoves...)
		if h.id > 1 {
			// Shuffle the order of root nodes
			frand.Shuffle(len(h.rootMoves), func(i, j int) {
				h.rootMoves[i], h.rootMoves[j] = h.rootMoves[j], h.rootMoves[i]
			})
		}
		hd := min(depth+h.id%2, MaxPly-2)
		g.Go(func() error {
			_, _, err := h.searchRoot(hd, -Infinity, Infinity)
			if errors.Is(err, errAborted) {
				return nil
			}
			return err
		})
	}
	it, err := main.aspirate(depth, prev, havePrev)
	cancel()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}
	return it, err
}
