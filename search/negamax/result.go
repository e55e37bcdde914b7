package negamax

import (
	"time"

	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/search/ordering"
)

const (
	// MateScore is the score of a side that has just been mated, negated.
	// A mate found p plies from the root scores MateScore-p.
	MateScore = 31000
	Infinity  = 32000
	DrawScore = 0
	MaxPly    = ordering.MaxPly

	mateThreshold = MateScore - MaxPly
	// evaluator output is clamped inside the mate range
	evalBound = mateThreshold - 1
)

// IsMateScore reports whether score announces a forced mate for either side.
func IsMateScore(score int) bool {
	return score >= mateThreshold || score <= -mateThreshold
}

// MatePlies returns the distance to mate in plies for a mate score, positive
// when the side to move mates.
func MatePlies(score int) (int, bool) {
	switch {
	case score >= mateThreshold:
		return MateScore - score, true
	case score <= -mateThreshold:
		return -(MateScore + score), true
	}
	return 0, false
}

// Mate scores are stored relative to the node they were found at, so the
// same entry is right wherever the position recurs in the tree.
func scoreToTT(score, ply int) int {
	switch {
	case score >= mateThreshold:
		return score + ply
	case score <= -mateThreshold:
		return score - ply
	}
	return score
}

func scoreFromTT(score, ply int) int {
	switch {
	case score >= mateThreshold:
		return score - ply
	case score <= -mateThreshold:
		return score + ply
	}
	return score
}

// Window is an alpha-beta search window, Alpha < Beta.
type Window struct {
	Alpha int
	Beta  int
}

// FullWindow admits every score.
var FullWindow = Window{Alpha: -Infinity, Beta: Infinity}

// Negate returns the window as seen by the opponent at the next ply.
func (w Window) Negate() Window {
	return Window{Alpha: -w.Beta, Beta: -w.Alpha}
}

func (w Window) Contains(score int) bool {
	return score > w.Alpha && score < w.Beta
}

type Status int

const (
	// Complete means the requested depth was searched, or a forced mate
	// was proven before it.
	Complete Status = iota
	// TimedOut means the budget ran out; the result is from the deepest
	// completed iteration.
	TimedOut
	// NoUsableResult means not even depth 1 finished. The move is the
	// first legal move so the caller always has something to play.
	NoUsableResult
	Checkmated
	Stalemate
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case TimedOut:
		return "timed-out"
	case NoUsableResult:
		return "no-usable-result"
	case Checkmated:
		return "checkmated"
	case Stalemate:
		return "stalemate"
	}
	return "unknown"
}

// Statistics are counted by the main search thread and reset by every
// Search.
type Statistics struct {
	Nodes                uint64        `yaml:"nodes"`
	QuiescenceNodes      uint64        `yaml:"quiescence-nodes"`
	BetaCutoffs          uint64        `yaml:"beta-cutoffs"`
	NullMoveCutoffs      uint64        `yaml:"null-move-cutoffs"`
	TTProbes             uint64        `yaml:"tt-probes"`
	TTHits               uint64        `yaml:"tt-hits"`
	TTMisses             uint64        `yaml:"tt-misses"`
	TTCutoffs            uint64        `yaml:"tt-cutoffs"`
	CacheHits            uint64        `yaml:"cache-hits"`
	CacheMisses          uint64        `yaml:"cache-misses"`
	AspirationResearches uint64        `yaml:"aspiration-researches"`
	AspirationFallbacks  uint64        `yaml:"aspiration-fallbacks"`
	LMRResearches        uint64        `yaml:"lmr-researches"`
	HelperNodes          uint64        `yaml:"helper-nodes"`
	CompletedDepth       int           `yaml:"completed-depth"`
	Elapsed              time.Duration `yaml:"elapsed"`
}

type Result struct {
	Move   game.Move
	Score  int
	Depth  int
	PV     []game.Move
	Status Status
	Stats  Statistics
}
