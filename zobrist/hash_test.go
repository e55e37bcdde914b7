package zobrist

import (
	"testing"

	"github.com/matryer/is"
)

func TestPlayAndUnplay(t *testing.T) {
	is := is.New(t)
	z := &Zobrist{}
	z.Initialize(25, 12, DefaultSeed)

	squares := make([]int, 25)
	squares[3] = 5
	squares[20] = 11
	h := z.Hash(squares, false)

	// play and unplay a move. The final hash should be the same as the beginning hash.
	h1 := z.AddMove(h, 3, 8, 5, 5, 0)
	h2 := z.AddMove(h1, 3, 8, 5, 5, 0)
	is.Equal(h, h2)
	is.True(h1 != h2)

	squares[3] = 0
	squares[8] = 5
	is.Equal(h1, z.Hash(squares, true))
}

func TestCaptureAndPromotion(t *testing.T) {
	is := is.New(t)
	z := &Zobrist{}
	z.Initialize(25, 12, DefaultSeed)

	squares := make([]int, 25)
	squares[15] = 1
	squares[21] = 10
	h := z.Hash(squares, false)
	// pawn on 15 takes on 21 and becomes piece 5.
	h1 := z.AddMove(h, 15, 21, 1, 5, 10)

	squares[15] = 0
	squares[21] = 5
	is.Equal(h1, z.Hash(squares, true))
}

func TestSeedIsReproducible(t *testing.T) {
	is := is.New(t)
	a := &Zobrist{}
	b := &Zobrist{}
	a.Initialize(25, 12, DefaultSeed)
	b.Initialize(25, 12, DefaultSeed)
	is.Equal(a.Piece(7, 3), b.Piece(7, 3))
	is.Equal(a.Turn(), b.Turn())

	other := DefaultSeed
	other[0] ^= 0xff
	c := &Zobrist{}
	c.Initialize(25, 12, other)
	is.True(c.Turn() != a.Turn())
}
