package negamax

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/domino14/kibitz/config"
	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/minichess"
	"github.com/domino14/kibitz/search/tt"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	os.Exit(m.Run())
}

const (
	mateInOneFEN  = "k4/4R/5/2K2/4R w"
	hangingQueen  = "k4/5/1q3/P4/4K w"
	checkmatedFEN = "k3R/4R/5/2K2/5 b"
	stalemateFEN  = "k4/5/1Q3/5/2K2 b"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.TTEntries = 1 << 16
	return cfg
}

// exactConfig turns off everything that makes a score depend on what was
// searched before: table grafts and forward pruning.
func exactConfig() config.Config {
	cfg := testConfig()
	cfg.UseTranspositionTable = false
	cfg.NullMoveEnabled = false
	cfg.LMREnabled = false
	cfg.AspirationEnabled = false
	return cfg
}

func newSolver(is *is.I, cfg config.Config) *Solver {
	s, err := NewSolver(cfg, nil, minichess.Evaluator{})
	is.NoErr(err)
	return s
}

func mustPos(is *is.I, fen string) *minichess.Position {
	p, err := minichess.FromFEN(fen)
	is.NoErr(err)
	return p
}

func search(is *is.I, s *Solver, pos game.Position, depth int) Result {
	res, err := s.Search(context.Background(), pos, depth, 0)
	is.NoErr(err)
	return res
}

func TestSearchIsDeterministic(t *testing.T) {
	is := is.New(t)
	var first Result
	for i := 0; i < 100; i++ {
		s := newSolver(is, testConfig())
		pos := minichess.NewStartPosition()
		res := search(is, s, pos, 4)
		is.Equal(res.Status, Complete)
		is.Equal(res.Depth, 4)
		if i == 0 {
			first = res
			continue
		}
		is.Equal(res.Move, first.Move)
		is.Equal(res.Score, first.Score)
		is.Equal(res.PV, first.PV)
		is.Equal(res.Stats.Nodes, first.Stats.Nodes)
	}
}

func TestMateInOne(t *testing.T) {
	is := is.New(t)
	for _, cfg := range []config.Config{testConfig(), exactConfig()} {
		s := newSolver(is, cfg)
		pos := mustPos(is, mateInOneFEN)
		res := search(is, s, pos, 4)
		want, err := pos.ParseMove("e1e5")
		is.NoErr(err)
		is.Equal(res.Move, want)
		is.Equal(res.Score, MateScore-1)
		plies, ok := MatePlies(res.Score)
		is.True(ok)
		is.Equal(plies, 1)
		is.Equal(res.Status, Complete)

		pos.Apply(res.Move)
		is.True(pos.InCheck())
		is.Equal(len(pos.LegalMoves(nil)), 0)
	}
}

func TestAspirationMatchesFullWindow(t *testing.T) {
	is := is.New(t)
	for _, fen := range []string{minichess.StartFEN, hangingQueen, "1k3/1q3/2p2/1P1N1/3K1 b"} {
		full := search(is, newSolver(is, exactConfig()), mustPos(is, fen), 3)

		for _, window := range []int{1, 10, 50} {
			cfg := exactConfig()
			cfg.AspirationEnabled = true
			cfg.AspirationWindow = window
			asp := search(is, newSolver(is, cfg), mustPos(is, fen), 3)
			is.Equal(asp.Score, full.Score)
			if fen == hangingQueen {
				// the only winning move, so no ties to break differently
				is.Equal(asp.Move, full.Move)
			}
		}
	}
}

func TestWinsTheHangingQueen(t *testing.T) {
	is := is.New(t)
	pos := mustPos(is, hangingQueen)
	res := search(is, newSolver(is, testConfig()), pos, 3)
	want, err := pos.ParseMove("a2b3")
	is.NoErr(err)
	is.Equal(res.Move, want)
	is.True(res.Score > 500)
}

func TestNegamaxRelation(t *testing.T) {
	is := is.New(t)
	const depth = 3
	pos := minichess.NewStartPosition()
	// make it asymmetric first
	for _, mv := range []string{"b1c3", "b4b3"} {
		m, err := pos.ParseMove(mv)
		is.NoErr(err)
		pos.Apply(m)
	}
	s := newSolver(is, exactConfig())
	parent := search(is, s, pos, depth)

	best := -Infinity
	for _, m := range pos.LegalMoves(nil) {
		pos.Apply(m)
		child := search(is, s, pos, depth-1)
		pos.Undo(m)
		best = max(best, -child.Score)
	}
	is.Equal(parent.Score, best)

	mirrored := search(is, s, pos.Mirror(), depth)
	is.Equal(mirrored.Score, parent.Score)
}

func TestAlwaysReturnsAMove(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pos := minichess.NewStartPosition()
	res, err := newSolver(is, testConfig()).Search(ctx, pos, 5, 0)
	is.NoErr(err)
	is.Equal(res.Status, NoUsableResult)
	is.Equal(res.Depth, 0)
	is.True(game.ContainsMove(pos.LegalMoves(nil), res.Move))
}

func TestTimeoutKeepsLastCompletedDepth(t *testing.T) {
	is := is.New(t)
	pos := minichess.NewStartPosition()
	s := newSolver(is, testConfig())
	res, err := s.Search(context.Background(), pos, 40, 200*time.Millisecond)
	is.NoErr(err)
	is.Equal(res.Status, TimedOut)
	is.True(res.Depth >= 1)
	is.True(res.Depth < 40)
	is.Equal(res.Stats.CompletedDepth, res.Depth)
	is.True(game.ContainsMove(pos.LegalMoves(nil), res.Move))
	is.Equal(pos.String(), minichess.StartFEN)
	is.Equal(s.Statistics(), res.Stats)
}

func TestTerminalPositions(t *testing.T) {
	is := is.New(t)
	s := newSolver(is, testConfig())

	res := search(is, s, mustPos(is, checkmatedFEN), 3)
	is.Equal(res.Status, Checkmated)
	is.Equal(res.Move, game.NoMove)
	is.Equal(res.Score, -MateScore)

	res = search(is, s, mustPos(is, stalemateFEN), 3)
	is.Equal(res.Status, Stalemate)
	is.Equal(res.Move, game.NoMove)
	is.Equal(res.Score, DrawScore)
}

func TestInvalidInput(t *testing.T) {
	is := is.New(t)
	s := newSolver(is, testConfig())
	_, err := s.Search(context.Background(), nil, 3, 0)
	is.True(errors.Is(err, ErrNilPosition))
	_, err = s.Search(context.Background(), minichess.NewStartPosition(), 0, 0)
	is.True(errors.Is(err, ErrInvalidDepth))
	_, err = s.Search(context.Background(), minichess.NewStartPosition(), MaxPly, 0)
	is.True(errors.Is(err, ErrInvalidDepth))

	_, err = NewSolver(testConfig(), nil, nil)
	is.True(errors.Is(err, ErrNilEvaluator))
	bad := testConfig()
	bad.KillerSlots = 0
	_, err = NewSolver(bad, nil, minichess.Evaluator{})
	is.True(errors.Is(err, config.ErrInvalidConfig))

	s.mu.Lock()
	_, err = s.Search(context.Background(), minichess.NewStartPosition(), 3, 0)
	s.mu.Unlock()
	is.True(errors.Is(err, ErrSearchInProgress))
}

func TestSetConfig(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	s := newSolver(is, cfg)

	bad := cfg
	bad.AspirationWindow = -5
	bad.ReplacementPolicy = "whatever"
	is.True(s.SetConfig(bad) != nil)
	is.Equal(s.Config(), cfg)

	good := cfg
	good.TTEntries = 1 << 12
	good.ReplacementPolicy = tt.AgeBased.String()
	good.Threads = 2
	is.NoErr(s.SetConfig(good))
	is.Equal(s.Config(), good)
	is.Equal(s.Table().Capacity(), 1<<12)
	is.Equal(s.Table().Policy(), tt.AgeBased)
	is.Equal(len(s.orderers), 2)
}

func TestSharedTableWarmsSecondSolver(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	table, err := NewTableForConfig(cfg)
	is.NoErr(err)
	a, err := NewSolver(cfg, table, minichess.Evaluator{})
	is.NoErr(err)
	b, err := NewSolver(cfg, table, minichess.Evaluator{})
	is.NoErr(err)

	ra := search(is, a, minichess.NewStartPosition(), 4)
	rb := search(is, b, minichess.NewStartPosition(), 4)
	is.True(table.Size() > 0)
	is.True(rb.Stats.TTHits > 0)
	is.True(game.ContainsMove(minichess.NewStartPosition().LegalMoves(nil), ra.Move))
	is.True(game.ContainsMove(minichess.NewStartPosition().LegalMoves(nil), rb.Move))
}

func TestPVIsPlayable(t *testing.T) {
	is := is.New(t)
	pos := minichess.NewStartPosition()
	res := search(is, newSolver(is, testConfig()), pos, 5)
	is.True(len(res.PV) >= 1)
	is.Equal(res.PV[0], res.Move)
	for _, m := range res.PV {
		is.True(game.ContainsMove(pos.LegalMoves(nil), m))
		pos.Apply(m)
	}
}

func TestStatisticsAreCounted(t *testing.T) {
	is := is.New(t)
	s := newSolver(is, testConfig())
	res := search(is, s, minichess.NewStartPosition(), 5)
	st := s.Statistics()
	is.Equal(st, res.Stats)
	is.True(st.Nodes > 0)
	is.True(st.QuiescenceNodes > 0)
	is.True(st.TTProbes == st.TTHits+st.TTMisses)
	is.True(st.BetaCutoffs > 0)
	is.Equal(st.CompletedDepth, 5)
	is.True(st.Elapsed > 0)

	// a new search starts from zero
	search(is, s, mustPos(is, mateInOneFEN), 1)
	is.True(s.Statistics().Nodes < st.Nodes)
}

func TestParallelSearch(t *testing.T) {
	is := is.New(t)
	for _, threads := range []int{2, 4} {
		cfg := testConfig()
		cfg.Threads = threads
		s := newSolver(is, cfg)
		pos := minichess.NewStartPosition()
		res := search(is, s, pos, 5)
		is.Equal(res.Status, Complete)
		is.True(game.ContainsMove(pos.LegalMoves(nil), res.Move))
		is.Equal(pos.String(), minichess.StartFEN)

		mate := mustPos(is, mateInOneFEN)
		res = search(is, s, mate, 3)
		is.Equal(res.Score, MateScore-1)
	}
}

func TestNewGameClearsTable(t *testing.T) {
	is := is.New(t)
	s := newSolver(is, testConfig())
	search(is, s, minichess.NewStartPosition(), 3)
	is.True(s.Table().Size() > 0)
	s.NewGame()
	is.Equal(s.Table().Size(), 0)
}

func TestMateScoresThroughTable(t *testing.T) {
	is := is.New(t)
	for ply := 0; ply < 10; ply++ {
		for _, score := range []int{MateScore - 3, -(MateScore - 5), 120, -evalBound} {
			is.Equal(scoreFromTT(scoreToTT(score, ply), ply), score)
		}
	}
	// a mate 2 plies below a node found at ply 5 reads as mate in 2 at ply 1
	stored := scoreToTT(MateScore-7, 5)
	is.Equal(scoreFromTT(stored, 1), MateScore-3)

	plies, ok := MatePlies(-(MateScore - 4))
	is.True(ok)
	is.Equal(plies, -4)
	_, ok = MatePlies(evalBound)
	is.True(!ok)
}

func TestWindow(t *testing.T) {
	is := is.New(t)
	w := Window{Alpha: -30, Beta: 50}
	is.Equal(w.Negate(), Window{Alpha: -50, Beta: 30})
	is.True(w.Contains(0))
	is.True(!w.Contains(50))
	is.Equal(classify(-30, w), aspirationFailLow)
	is.Equal(classify(50, w), aspirationFailHigh)
	is.Equal(classify(10, w), aspirationSuccess)
	is.True(FullWindow.Contains(MateScore))
}

func TestABDADADeferral(t *testing.T) {
	is := is.New(t)
	a := newABDADATable()
	m := game.Move(77)
	is.True(!a.deferMove(1234, m, 5))
	a.startingSearch(1234, m, 5)
	is.True(a.deferMove(1234, m, 5))
	is.True(a.deferMove(1234, m, 4))
	is.True(!a.deferMove(1234, m, 6))
	is.True(!a.deferMove(1235, m, 5))
	a.finishedSearch(1234, m, 5)
	is.True(!a.deferMove(1234, m, 5))

	// too shallow to bother
	a.startingSearch(99, m, 2)
	is.True(!a.deferMove(99, m, 2))
}

func TestPVLineFormat(t *testing.T) {
	is := is.New(t)
	child := PVLine{Moves: []game.Move{3, 4}}
	var pv PVLine
	pv.Update(2, &child, 15)
	is.Equal(pv.Moves, []game.Move{2, 3, 4})
	is.Equal(pv.Score(), 15)
	is.Equal(pv.Format(func(m game.Move) string { return string(rune('a' + int(m))) }), "PV; val 15; 1: c; 2: d; 3: e")
	cp := pv.Copy()
	pv.Clear()
	is.Equal(len(cp), 3)
	is.Equal(len(pv.Moves), 0)
}

func TestAspirationFallsBackToFullWindow(t *testing.T) {
	is := is.New(t)
	for _, retries := range []int{0, 4} {
		var fallbacks, researches uint64
		for _, fen := range []string{minichess.StartFEN, "1k3/1q3/2p2/1P1N1/3K1 b"} {
			full := search(is, newSolver(is, exactConfig()), mustPos(is, fen), 5)

			cfg := exactConfig()
			cfg.AspirationEnabled = true
			cfg.AspirationWindow = 1
			cfg.AspirationMaxRetries = retries
			res := search(is, newSolver(is, cfg), mustPos(is, fen), 5)
			is.Equal(res.Score, full.Score)
			fallbacks += res.Stats.AspirationFallbacks
			researches += res.Stats.AspirationResearches
		}
		if retries == 0 {
			// every miss goes straight to the full window
			is.True(fallbacks > 0)
			is.Equal(researches, uint64(0))
		} else {
			is.True(researches > 0)
		}
	}
}

func TestLMRResearches(t *testing.T) {
	is := is.New(t)
	res := search(is, newSolver(is, testConfig()), minichess.NewStartPosition(), 6)
	is.True(res.Stats.LMRResearches > 0)

	cfg := testConfig()
	cfg.LMREnabled = false
	res = search(is, newSolver(is, cfg), minichess.NewStartPosition(), 6)
	is.Equal(res.Stats.LMRResearches, uint64(0))
}

func TestNullMoveGuards(t *testing.T) {
	is := is.New(t)
	s := newSolver(is, testConfig())

	w := newWorker(0, s, minichess.NewStartPosition(), s.orderers[0])
	_, ok := w.nullMoveAllowed(6, 0, false, true)
	is.True(ok)
	_, ok = w.nullMoveAllowed(6, 0, false, false) // right after a pass
	is.True(!ok)
	_, ok = w.nullMoveAllowed(6, 0, true, true) // in check
	is.True(!ok)
	_, ok = w.nullMoveAllowed(2, 0, false, true) // too shallow
	is.True(!ok)
	_, ok = w.nullMoveAllowed(6, MateScore-3, false, true) // mate-range beta
	is.True(!ok)
	_, ok = w.nullMoveAllowed(6, -(MateScore - 3), false, true)
	is.True(!ok)

	// kings and pawns only: zugzwang territory
	w = newWorker(0, s, mustPos(is, kingsAndPawns), s.orderers[0])
	_, ok = w.nullMoveAllowed(6, 0, false, true)
	is.True(!ok)
}

const kingsAndPawns = "k4/p4/5/4P/K4 w"

func TestNoNullMoveInPawnEndings(t *testing.T) {
	is := is.New(t)
	res := search(is, newSolver(is, testConfig()), mustPos(is, kingsAndPawns), 7)
	is.Equal(res.Status, Complete)
	is.Equal(res.Stats.NullMoveCutoffs, uint64(0))

	cfg := testConfig()
	cfg.NullMoveMinMaterial = 0
	res = search(is, newSolver(is, cfg), mustPos(is, kingsAndPawns), 7)
	is.True(res.Stats.NullMoveCutoffs > 0)
}

func TestQuiescenceScoresStalemateAsDraw(t *testing.T) {
	is := is.New(t)
	s := newSolver(is, testConfig())
	pos := mustPos(is, stalemateFEN)
	is.True(!pos.InCheck())
	w := newWorker(0, s, pos, s.orderers[0])
	w.ctx = context.Background()
	score, err := w.quiescence(1, 0, -Infinity, Infinity)
	is.NoErr(err)
	is.Equal(score, DrawScore)
}
