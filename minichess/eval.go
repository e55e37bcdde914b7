package minichess

import (
	"github.com/domino14/kibitz/game"
)

// Evaluator scores material plus small positional terms. Scores are from
// the side to move's point of view and are symmetric under Mirror.
type Evaluator struct{}

func centrality(sq int) int {
	df := fileOf(sq) - 2
	if df < 0 {
		df = -df
	}
	dr := rankOf(sq) - 2
	if dr < 0 {
		dr = -dr
	}
	return 4 - df - dr
}

func pawnAdvance(sq, color int) int {
	if color == White {
		return rankOf(sq) - 1
	}
	return Ranks - 2 - rankOf(sq)
}

func (Evaluator) Evaluate(pos game.Position) int {
	p := pos.(*Position)
	var score [2]int
	for sq, piece := range p.board {
		if piece == Empty {
			continue
		}
		color := colorOf(piece)
		k := kindOf(piece)
		if k == King {
			continue
		}
		score[color] += pieceValues[k]
		switch k {
		case Pawn:
			score[color] += 10 * pawnAdvance(sq, color)
		case Knight, Bishop:
			score[color] += 6 * centrality(sq)
		case Queen:
			score[color] += 2 * centrality(sq)
		}
	}
	return score[p.side] - score[1-p.side]
}
