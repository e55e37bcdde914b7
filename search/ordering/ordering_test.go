package ordering

import (
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/kibitz/config"
	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/minichess"
)

func mustPos(is *is.I, fen string) *minichess.Position {
	p, err := minichess.FromFEN(fen)
	is.NoErr(err)
	return p
}

func mustMove(is *is.I, p *minichess.Position, s string) game.Move {
	m, err := p.ParseMove(s)
	is.NoErr(err)
	return m
}

func TestSEE(t *testing.T) {
	is := is.New(t)
	type tc struct {
		fen  string
		move string
		see  int
	}
	cases := []tc{
		// undefended knight
		{"k4/5/2n2/5/K1R2 w", "c1c3", 300},
		// rook takes a pawn guarded by a pawn
		{"k4/1p3/2p2/5/K1R2 w", "c1c3", -400},
		// pawn takes a guarded knight
		{"k4/2p2/1n3/P4/4K w", "a2b3", 200},
		// quiet move
		{"k4/5/5/5/K1R2 w", "c1c2", 0},
	}
	for _, c := range cases {
		p := mustPos(is, c.fen)
		m := mustMove(is, p, c.move)
		is.Equal(SEE(p, m), c.see)
		// position is restored
		is.Equal(p.String(), c.fen)
	}
}

func TestOrderTiers(t *testing.T) {
	is := is.New(t)
	o := NewOrderer(config.DefaultConfig())
	p := mustPos(is, "k4/1p3/2p2/5/K1R2 w")
	pvMove := mustMove(is, p, "c1e1")
	ttMove := mustMove(is, p, "a1a2")
	killer := mustMove(is, p, "c1d1")
	histMove := mustMove(is, p, "c1c2")
	losing := mustMove(is, p, "c1c3")

	o.UpdatePV(0, pvMove, 10)
	o.AddKiller(0, killer)
	o.UpdateHistory(p.SideToMove(), histMove, true, 5)

	moves := p.LegalMoves(nil)
	o.Order(p, moves, Context{Ply: 0, Depth: 3, TTMove: ttMove})
	is.Equal(moves[0], pvMove)
	is.Equal(moves[1], ttMove)
	is.Equal(moves[2], killer)
	is.Equal(moves[3], histMove)
	is.Equal(moves[len(moves)-1], losing)

	// the PV move only counts at its own ply
	o.Order(p, moves, Context{Ply: 1, Depth: 3})
	is.True(moves[0] != pvMove)
}

func TestGoodCaptureBeatsKiller(t *testing.T) {
	is := is.New(t)
	o := NewOrderer(config.DefaultConfig())
	p := mustPos(is, "k4/5/2n2/5/K1R2 w")
	capture := mustMove(is, p, "c1c3")
	killer := mustMove(is, p, "c1c2")
	o.AddKiller(2, killer)
	ctx := Context{Ply: 2}
	is.True(o.Score(p, capture, ctx) > o.Score(p, killer, ctx))
	is.True(o.Score(p, killer, ctx) > o.Score(p, mustMove(is, p, "c1d1"), ctx))
}

func TestKillersRoll(t *testing.T) {
	is := is.New(t)
	o := NewOrderer(config.DefaultConfig())
	a, b, c := game.Move(11), game.Move(22), game.Move(33)
	o.AddKiller(3, a)
	o.AddKiller(3, b)
	is.Equal(o.Killers(3), []game.Move{b, a})
	o.AddKiller(3, c)
	is.Equal(o.Killers(3), []game.Move{c, b})
	is.True(!o.IsKiller(3, a))
	o.AddKiller(3, b)
	is.Equal(o.Killers(3), []game.Move{b, c})
	// adding the newest again changes nothing
	o.AddKiller(3, b)
	is.Equal(o.Killers(3), []game.Move{b, c})
	is.True(!o.IsKiller(4, b))
	o.AddKiller(3, game.NoMove)
	is.Equal(o.Killers(3), []game.Move{b, c})

	o.NewSearch()
	is.True(!o.IsKiller(3, b))
}

func TestHistoryAgingAndBound(t *testing.T) {
	is := is.New(t)
	cfg := config.DefaultConfig()
	cfg.Weights.HistoryMax = 1000
	o := NewOrderer(cfg)
	m, other := game.Move(1234), game.Move(999)

	o.UpdateHistory(0, m, true, 10)
	is.Equal(o.History(0, m), 100)
	is.Equal(o.History(1, m), 0)
	o.UpdateHistory(0, other, false, 4)
	is.Equal(o.History(0, other), -16)

	o.NewSearch()
	is.Equal(o.History(0, m), 50)
	is.Equal(o.History(0, other), -8)

	// crossing the bound halves the table
	o.UpdateHistory(0, m, true, 40)
	is.Equal(o.History(0, m), (50+1600)/2)
	is.Equal(o.History(0, other), -4)
	for i := 0; i < 100; i++ {
		o.UpdateHistory(0, m, true, 40)
		is.True(o.History(0, m) <= 1000)
	}

	o.NewGame()
	is.Equal(o.History(0, m), 0)
}

func TestSetPV(t *testing.T) {
	is := is.New(t)
	o := NewOrderer(config.DefaultConfig())
	o.SetPV([]game.Move{5, 6, 7}, 40)
	is.Equal(o.PVMove(0), game.Move(5))
	is.Equal(o.PVMove(2), game.Move(7))
	is.Equal(o.PVScore(1), -40)
	is.Equal(o.PVMove(3), game.NoMove)
	o.SetPV([]game.Move{8}, 0)
	is.Equal(o.PVMove(1), game.NoMove)
}

func TestScoreCacheIsBounded(t *testing.T) {
	is := is.New(t)
	c := NewScoreCache(16)
	for i := 0; i < 1000; i++ {
		c.Put(uint64(i)*7919, game.Move(i+1), i)
		v, ok := c.Get(uint64(i)*7919, game.Move(i+1))
		is.True(ok)
		is.Equal(v, i)
		is.True(c.Len() <= c.Capacity())
	}
	_, ok := c.Get(1, 1)
	is.True(!ok)
	hits, misses := c.Stats()
	is.Equal(hits, uint64(1000))
	is.Equal(misses, uint64(1))
	c.Clear()
	is.Equal(c.Len(), 0)
}

func TestSEEIsCached(t *testing.T) {
	is := is.New(t)
	o := NewOrderer(config.DefaultConfig())
	p := mustPos(is, "k4/1p3/2p2/5/K1R2 w")
	m := mustMove(is, p, "c1c3")
	is.Equal(o.SEE(p, m), -400)
	is.Equal(o.SEE(p, m), -400)
	hits, misses := o.CacheStats()
	is.Equal(hits, uint64(1))
	is.Equal(misses, uint64(1))
}
