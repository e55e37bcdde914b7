package game

// Move is an opaque move identity. Move generators pack whatever they need
// into it; the search only compares moves for equality and hashes them.
type Move uint32

// NoMove is never produced by a move generator.
const NoMove Move = 0

// MoveInfo carries the material facts of a move, expressed as piece values.
// Captured is zero for a non-capturing move. Promotion is the value of the
// promoted-to piece, or zero.
type MoveInfo struct {
	From      int
	To        int
	Mover     int
	Captured  int
	Promotion int
}

// IsCapture reports whether the move takes a piece.
func (mi MoveInfo) IsCapture() bool {
	return mi.Captured > 0
}

// IsTactical reports whether the move is a capture or a promotion. Only
// tactical moves are searched in quiescence.
func (mi MoveInfo) IsTactical() bool {
	return mi.Captured > 0 || mi.Promotion > 0
}

// Gain is the immediate material change the move produces for the mover.
func (mi MoveInfo) Gain() int {
	g := mi.Captured
	if mi.Promotion > 0 {
		g += mi.Promotion - mi.Mover
	}
	return g
}

// ContainsMove reports whether m is in moves.
func ContainsMove(moves []Move, m Move) bool {
	if m == NoMove {
		return false
	}
	for _, mv := range moves {
		if mv == m {
			return true
		}
	}
	return false
}
