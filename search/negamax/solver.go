// Package negamax is an iterative-deepening alpha-beta searcher for
// two-player, perfect-information games. It searches any game.Position,
// shares a transposition table between threads, and reports the best move
// found within a depth limit and a time budget.
package negamax

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/kibitz/config"
	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/search/ordering"
	"github.com/domino14/kibitz/search/tt"
	"github.com/domino14/kibitz/stats"
)

var (
	ErrInvalidDepth     = errors.New("search depth out of range")
	ErrNilPosition      = errors.New("nil position")
	ErrNilEvaluator     = errors.New("nil evaluator")
	ErrSearchInProgress = errors.New("a search is already running on this solver")
)

// Solver owns the per-search state around a shared transposition table.
// One Search runs at a time per Solver; several Solvers may share a table.
type Solver struct {
	// mu is held for the whole of a Search, and by anything that changes
	// what a search depends on.
	mu sync.Mutex

	cfgMu sync.RWMutex
	cfg   config.Config

	table    *tt.TranspositionTable
	eval     game.Evaluator
	orderers []*ordering.Orderer
	abdada   *abdadaTable
	retries  *stats.Window

	nodes atomic.Uint64

	statsMu sync.RWMutex
	stats   Statistics
}

// NewSolver builds a solver around table. A nil table gets a private one
// sized from cfg.
func NewSolver(cfg config.Config, table *tt.TranspositionTable, eval game.Evaluator) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if eval == nil {
		return nil, ErrNilEvaluator
	}
	if table == nil {
		var err error
		table, err = NewTableForConfig(cfg)
		if err != nil {
			return nil, err
		}
	}
	s := &Solver{
		cfg:     cfg,
		table:   table,
		eval:    eval,
		retries: stats.NewWindow(recentDepths),
	}
	s.fitThreads()
	return s, nil
}

// NewTableForConfig allocates a table with cfg's size and policy.
func NewTableForConfig(cfg config.Config) (*tt.TranspositionTable, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	return tt.NewTranspositionTable(tableEntries(cfg), policy), nil
}

func tableEntries(cfg config.Config) int {
	if cfg.TTMemoryFraction > 0 {
		return tt.EntriesForMemory(cfg.TTMemoryFraction)
	}
	return cfg.TTEntries
}

// fitThreads makes one orderer per thread and the deferral table parallel
// search needs.
func (s *Solver) fitThreads() {
	for len(s.orderers) < s.cfg.Threads {
		s.orderers = append(s.orderers, ordering.NewOrderer(s.cfg))
	}
	s.orderers = s.orderers[:s.cfg.Threads]
	for _, o := range s.orderers {
		o.SetConfig(s.cfg)
	}
	if s.cfg.Threads > 1 && s.abdada == nil {
		s.abdada = newABDADATable()
	}
}

func (s *Solver) Config() config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetConfig replaces the configuration. An invalid cfg is rejected and the
// current one kept. It waits for a running search to finish.
func (s *Solver) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("config-rejected")
		return err
	}
	policy, _ := cfg.Policy()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if tableEntries(old) != tableEntries(cfg) {
		s.table.Resize(tableEntries(cfg))
	}
	s.table.SetPolicy(policy)
	s.fitThreads()
	log.Debug().Int("threads", cfg.Threads).Str("policy", cfg.ReplacementPolicy).Msg("config-updated")
	return nil
}

// Table is the transposition table this solver searches with.
func (s *Solver) Table() *tt.TranspositionTable {
	return s.table
}

// NewGame forgets everything learned so far: table contents, history and
// cached move scores.
func (s *Solver) NewGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Clear()
	for _, o := range s.orderers {
		o.NewGame()
	}
	s.retries.Reset()
}

// Statistics returns the counters of the last search, as of its most recent
// completed iteration.
func (s *Solver) Statistics() Statistics {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

func (s *Solver) publish(st Statistics) {
	s.statsMu.Lock()
	s.stats = st
	s.statsMu.Unlock()
}

func terminalResult(pos game.Position) Result {
	if pos.InCheck() {
		return Result{Move: game.NoMove, Score: -MateScore, Status: Checkmated}
	}
	return Result{Move: game.NoMove, Score: DrawScore, Status: Stalemate}
}

// Search looks for the best move in pos, deepening one ply at a time up to
// maxDepth or until budget (if positive) or ctx runs out. pos is mutated
// during the search and restored before Search returns.
//
// Running out of time is not an error: the result then holds the deepest
// completed iteration, with Status TimedOut, or the first legal move with
// Status NoUsableResult if no iteration completed. Errors are returned only
// for invalid arguments, or if another search is running on s.
func (s *Solver) Search(ctx context.Context, pos game.Position, maxDepth int, budget time.Duration) (Result, error) {
	if pos == nil {
		return Result{}, ErrNilPosition
	}
	if maxDepth < 1 || maxDepth >= MaxPly-1 {
		return Result{}, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidDepth, maxDepth, MaxPly-2)
	}
	if !s.mu.TryLock() {
		return Result{}, ErrSearchInProgress
	}
	defer s.mu.Unlock()

	tstart := time.Now()
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	cfg := s.Config()
	s.nodes.Store(0)
	s.retries.Reset()
	s.publish(Statistics{})

	main := newWorker(0, s, pos, s.orderers[0])
	main.ctx = ctx
	main.rootMoves = pos.LegalMoves(nil)
	if len(main.rootMoves) == 0 {
		res := terminalResult(pos)
		res.Stats.Elapsed = time.Since(tstart)
		s.publish(res.Stats)
		log.Info().Stringer("status", res.Status).Msg("solve-returning")
		return res, nil
	}

	if cfg.UseTranspositionTable {
		s.table.NewSearch()
	}
	for _, o := range s.orderers {
		o.NewSearch()
	}
	hits0, misses0 := main.orderer.CacheStats()
	helpers := s.makeHelpers(main)

	done := make(chan struct{})
	ticker := &errgroup.Group{}
	ticker.Go(func() error {
		t := time.NewTicker(1 * time.Second)
		defer t.Stop()
		var lastNodes uint64
		for {
			select {
			case <-done:
				return nil
			case <-t.C:
				nodes := s.nodes.Load()
				log.Debug().Uint64("nps", nodes-lastNodes).Msg("nodes-per-second")
				lastNodes = nodes
			}
		}
	})

	var best iteration
	var pv []game.Move
	completed := 0
	status := Complete
	snapshot := func() Statistics {
		st := main.stats
		hits, misses := main.orderer.CacheStats()
		st.CacheHits, st.CacheMisses = hits-hits0, misses-misses0
		for _, h := range helpers {
			st.HelperNodes += h.stats.Nodes
		}
		st.CompletedDepth = completed
		st.Elapsed = time.Since(tstart)
		return st
	}

	for depth := 1; depth <= maxDepth; depth++ {
		if ctx.Err() != nil {
			status = TimedOut
			break
		}
		ttMove := game.NoMove
		if e, ok := main.probe(pos.Hash(), 0); ok {
			ttMove = e.Move
		}
		main.orderer.Order(pos, main.rootMoves, ordering.Context{Ply: 0, Depth: depth, TTMove: ttMove})

		var it iteration
		var err error
		if len(helpers) > 0 {
			it, err = s.searchDepthParallel(main, helpers, depth, best, completed > 0)
		} else {
			it, err = main.aspirate(depth, best, completed > 0)
		}
		if errors.Is(err, errAborted) {
			status = TimedOut
			break
		}
		if err != nil {
			return Result{}, err
		}
		best = it
		completed = depth
		pv = main.pvs[0].Copy()
		main.orderer.SetPV(pv, it.score)
		st := snapshot()
		s.publish(st)
		log.Info().Int("depth", depth).Int("score", it.score).
			Uint64("nodes", st.Nodes).Uint64("qnodes", st.QuiescenceNodes).
			Int("pv-length", len(pv)).Msg("depth-complete")

		if plies, ok := MatePlies(it.score); ok && plies <= depth && -plies <= depth {
			log.Debug().Int("mate-plies", plies).Msg("forced-mate-found")
			break
		}
	}
	close(done)
	ticker.Wait()

	res := Result{
		Move:   best.move,
		Score:  best.score,
		Depth:  completed,
		PV:     pv,
		Status: status,
	}
	if completed == 0 {
		res.Move = main.rootMoves[0]
		res.Score = 0
		res.PV = []game.Move{res.Move}
		res.Status = NoUsableResult
	}
	res.Stats = snapshot()
	s.publish(res.Stats)

	tstats := s.table.Stats()
	log.Info().
		Uint64("ttable-created", tstats.Created).
		Uint64("ttable-lookups", tstats.Lookups).
		Uint64("ttable-hits", tstats.Hits).
		Uint64("ttable-t2collisions", tstats.T2Collisions).
		Int("depth", res.Depth).
		Int("score", res.Score).
		Stringer("status", res.Status).
		Float64("time-elapsed-sec", res.Stats.Elapsed.Seconds()).
		Msg("solve-returning")
	return res, nil
}
