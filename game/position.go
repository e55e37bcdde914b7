// Package game declares what the search needs from a board game: a mutable
// position with legal move generation, in-place apply/undo, a 64-bit hash and
// a check test, plus a static evaluator. Concrete games live elsewhere (see
// the minichess package).
package game

// Position is a searchable game state. It is owned by the caller and mutated
// in place by Apply/Undo pairs; the search never clones it on the hot path.
type Position interface {
	// LegalMoves appends the legal moves for the side to move to dst and
	// returns the extended slice.
	LegalMoves(dst []Move) []Move
	Apply(m Move)
	Undo(m Move)
	// Hash identifies the position for transposition purposes. Collisions
	// are possible.
	Hash() uint64
	InCheck() bool
	// SideToMove is 0 or 1.
	SideToMove() int
	// Describe reports the material facts of a move that is legal in the
	// current position.
	Describe(m Move) MoveInfo
}

// Evaluator returns a static score from the point of view of the side to move.
type Evaluator interface {
	Evaluate(pos Position) int
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(pos Position) int

func (f EvaluatorFunc) Evaluate(pos Position) int {
	return f(pos)
}

// NullMover is implemented by positions that can pass the turn. Null-move
// pruning is only attempted on such positions.
type NullMover interface {
	ApplyNull()
	UndoNull()
}

// MaterialReporter lets the search detect low-material, zugzwang-prone
// positions where a null move is a poor proxy.
type MaterialReporter interface {
	// NonPawnMaterial returns the value of the given side's pieces other
	// than pawns and the king.
	NonPawnMaterial(side int) int
}

// Cloner is required for parallel search: every helper searches its own copy.
type Cloner interface {
	Clone() Position
}
