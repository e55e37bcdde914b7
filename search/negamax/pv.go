package negamax

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/domino14/kibitz/game"
)

// PVLine is a principal variation: the moves both sides are expected to
// play from a node, best first.
type PVLine struct {
	Moves []game.Move
	score int
}

// Clear the principal variation line.
func (pvLine *PVLine) Clear() {
	pvLine.Moves = pvLine.Moves[:0]
}

// Update the principal variation line with a new best move,
// and a new line of best play after the best move.
func (pvLine *PVLine) Update(m game.Move, child *PVLine, score int) {
	pvLine.Moves = append(pvLine.Moves[:0], m)
	pvLine.Moves = append(pvLine.Moves, child.Moves...)
	pvLine.score = score
}

func (pvLine *PVLine) Score() int {
	return pvLine.score
}

// Copy returns a PV the caller may keep.
func (pvLine *PVLine) Copy() []game.Move {
	return append([]game.Move(nil), pvLine.Moves...)
}

// Format renders the line on one line with the caller's move notation.
func (pvLine PVLine) Format(moveString func(game.Move) string) string {
	moves := lo.Map(pvLine.Moves, func(m game.Move, i int) string {
		return fmt.Sprintf("%d: %s", i+1, moveString(m))
	})
	return fmt.Sprintf("PV; val %d; %s", pvLine.score, strings.Join(moves, "; "))
}

func (pvLine PVLine) String() string {
	return pvLine.Format(func(m game.Move) string { return fmt.Sprintf("%#x", uint32(m)) })
}
