package zobrist

import (
	"lukechampine.com/frand"
)

const bignum = 1<<63 - 2

// DefaultSeed makes hashes reproducible across processes, which persisted
// transposition tables depend on.
var DefaultSeed = [32]byte{
	0x6b, 0x69, 0x62, 0x69, 0x74, 0x7a, 0x2d, 0x7a,
	0x6f, 0x62, 0x72, 0x69, 0x73, 0x74, 0x2d, 0x76,
	0x31, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
}

// generate a zobrist hash for a board game position.
// https://en.wikipedia.org/wiki/Zobrist_hashing
type Zobrist struct {
	theirTurn uint64

	posTable [][]uint64

	numSquares int
	numPieces  int
}

// Initialize draws keys for every (square, piece) pair from a ChaCha stream
// seeded with seed. Piece indexes are 1-based; 0 is an empty square.
func (z *Zobrist) Initialize(numSquares, numPieces int, seed [32]byte) {
	rng := frand.NewCustom(seed[:], 1024, 12)
	z.numSquares = numSquares
	z.numPieces = numPieces
	z.posTable = make([][]uint64, numSquares)
	for i := 0; i < numSquares; i++ {
		z.posTable[i] = make([]uint64, numPieces+1)
		for j := 1; j <= numPieces; j++ {
			z.posTable[i][j] = rng.Uint64n(bignum) + 1
		}
	}
	z.theirTurn = rng.Uint64n(bignum) + 1
}

func (z *Zobrist) NumSquares() int {
	return z.numSquares
}

// Piece returns the key for piece on sq. The empty square has key 0.
func (z *Zobrist) Piece(sq, piece int) uint64 {
	return z.posTable[sq][piece]
}

// Turn is toggled whenever the side to move changes.
func (z *Zobrist) Turn() uint64 {
	return z.theirTurn
}

// Hash computes a full key from scratch. squares holds piece indexes.
func (z *Zobrist) Hash(squares []int, theirTurn bool) uint64 {
	key := uint64(0)
	for i, piece := range squares {
		if piece == 0 {
			continue
		}
		key ^= z.posTable[i][piece]
	}
	if theirTurn {
		key ^= z.theirTurn
	}
	return key
}

// AddMove updates key incrementally for a piece moving from one square to
// another, optionally capturing and optionally changing identity (promotion).
// Applying the same arguments twice restores the original key.
func (z *Zobrist) AddMove(key uint64, from, to, mover, landed, captured int) uint64 {
	key ^= z.posTable[from][mover]
	if captured != 0 {
		key ^= z.posTable[to][captured]
	}
	key ^= z.posTable[to][landed]
	key ^= z.theirTurn
	return key
}
