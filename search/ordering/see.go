package ordering

import (
	"github.com/domino14/kibitz/game"
)

// maxExchanges caps the length of a capture sequence SEE plays out.
const maxExchanges = 16

// seeScratch holds one move buffer per exchange so evaluate does not
// allocate once warmed up.
type seeScratch [maxExchanges + 1][]game.Move

// SEE plays out the exchange on the target square of m, each side
// recapturing with its least valuable piece, and returns the material
// balance for the side making m. Either side may stop recapturing when that
// is better for it. pos is restored before returning.
func SEE(pos game.Position, m game.Move) int {
	var s seeScratch
	return s.evaluate(pos, m)
}

func (s *seeScratch) evaluate(pos game.Position, m game.Move) int {
	return s.exchange(pos, m, pos.Describe(m), 0)
}

func (s *seeScratch) exchange(pos game.Position, m game.Move, mi game.MoveInfo, n int) int {
	gain := mi.Gain()
	if n >= maxExchanges {
		return gain
	}
	pos.Apply(m)
	reply, rmi := s.leastValuableCapture(pos, mi.To, n)
	if reply != game.NoMove {
		if v := s.exchange(pos, reply, rmi, n+1); v > 0 {
			gain -= v
		}
	}
	pos.Undo(m)
	return gain
}

func (s *seeScratch) leastValuableCapture(pos game.Position, sq, n int) (game.Move, game.MoveInfo) {
	s[n] = pos.LegalMoves(s[n][:0])
	best := game.NoMove
	var bestInfo game.MoveInfo
	for _, m := range s[n] {
		mi := pos.Describe(m)
		if mi.To != sq || !mi.IsCapture() {
			continue
		}
		if best == game.NoMove || mi.Mover < bestInfo.Mover {
			best, bestInfo = m, mi
		}
	}
	return best, bestInfo
}
