package negamax

import (
	"github.com/rs/zerolog/log"

	"github.com/domino14/kibitz/game"
)

type aspirationState int

const (
	aspirationSuccess aspirationState = iota
	aspirationFailLow
	aspirationFailHigh
	// aspirationExhausted: out of retries, search the full window.
	aspirationExhausted
)

func (s aspirationState) String() string {
	switch s {
	case aspirationSuccess:
		return "success"
	case aspirationFailLow:
		return "fail-low"
	case aspirationFailHigh:
		return "fail-high"
	case aspirationExhausted:
		return "exhausted"
	}
	return "unknown"
}

// recentDepths is how many iterations the retry average looks back over.
const recentDepths = 4

type iteration struct {
	score int
	move  game.Move
}

func classify(score int, win Window) aspirationState {
	switch {
	case score <= win.Alpha:
		return aspirationFailLow
	case score >= win.Beta:
		return aspirationFailHigh
	}
	return aspirationSuccess
}

// initialDelta grows with depth, and with how often recent iterations had
// to re-search.
func (w *worker) initialDelta(depth int) int {
	base := w.cfg.AspirationWindow * (1 + (depth-2)/4)
	return int(float64(base) * (1 + w.solver.retries.Mean()))
}

// aspirate searches the root at depth with a window centred on the previous
// iteration's score, widening the failing side after each miss. The loop is
// bounded: after AspirationMaxRetries misses it searches the full window,
// which cannot fail.
func (w *worker) aspirate(depth int, prev iteration, havePrev bool) (iteration, error) {
	if !w.cfg.AspirationEnabled || !havePrev || depth == 1 || IsMateScore(prev.score) {
		score, m, err := w.searchRoot(depth, -Infinity, Infinity)
		return iteration{score: score, move: m}, err
	}

	delta := w.initialDelta(depth)
	win := Window{Alpha: max(prev.score-delta, -Infinity), Beta: min(prev.score+delta, Infinity)}
	retries := 0
	for {
		score, m, err := w.searchRoot(depth, win.Alpha, win.Beta)
		if err != nil {
			return iteration{}, err
		}
		state := classify(score, win)
		if state != aspirationSuccess {
			retries++
			if retries > w.cfg.AspirationMaxRetries {
				state = aspirationExhausted
			}
		}
		log.Debug().Int("depth", depth).Int("alpha", win.Alpha).Int("beta", win.Beta).
			Int("score", score).Int("delta", delta).Stringer("state", state).Msg("aspiration")

		switch state {
		case aspirationSuccess:
			w.solver.retries.Push(float64(retries))
			return iteration{score: score, move: m}, nil
		case aspirationFailLow:
			w.stats.AspirationResearches++
			win.Alpha = max(win.Alpha-delta, -Infinity)
			delta *= 2
		case aspirationFailHigh:
			w.stats.AspirationResearches++
			win.Beta = min(win.Beta+delta, Infinity)
			delta *= 2
		case aspirationExhausted:
			w.stats.AspirationFallbacks++
			w.solver.retries.Push(float64(retries))
			log.Debug().Int("depth", depth).Int("retries", retries).Msg("aspiration-full-window")
			score, m, err := w.searchRoot(depth, -Infinity, Infinity)
			return iteration{score: score, move: m}, err
		}
	}
}
