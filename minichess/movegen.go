package minichess

import (
	"fmt"

	"github.com/domino14/kibitz/game"
)

// Move layout, low bits first: from(5) to(5) mover(4) captured(4) promo(4).
// from != to so a generated move is never game.NoMove.
const (
	toShift       = 5
	moverShift    = 10
	capturedShift = 14
	promoShift    = 18
	sqMask        = 0x1f
	pieceMask     = 0xf
)

func encode(from, to, mover, captured, promo int) game.Move {
	return game.Move(uint32(from) | uint32(to)<<toShift | uint32(mover)<<moverShift |
		uint32(captured)<<capturedShift | uint32(promo)<<promoShift)
}

func decode(m game.Move) (from, to, mover, captured, promo int) {
	u := uint32(m)
	return int(u & sqMask), int(u >> toShift & sqMask), int(u >> moverShift & pieceMask),
		int(u >> capturedShift & pieceMask), int(u >> promoShift & pieceMask)
}

type delta struct{ df, dr int }

var (
	knightDeltas = []delta{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	bishopDirs   = []delta{{1, 1}, {1, -1}, {-1, -1}, {-1, 1}}
	rookDirs     = []delta{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	royalDirs    = []delta{{0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}}
)

func onBoard(f, r int) bool {
	return f >= 0 && f < Files && r >= 0 && r < Ranks
}

func pawnDir(color int) int {
	if color == White {
		return 1
	}
	return -1
}

func lastRank(color int) int {
	if color == White {
		return Ranks - 1
	}
	return 0
}

// pseudoMoves appends moves that may leave the mover's king attacked.
func (p *Position) pseudoMoves(dst []game.Move) []game.Move {
	us := p.side
	for sq, piece := range p.board {
		if piece == Empty || colorOf(piece) != us {
			continue
		}
		f, r := fileOf(sq), rankOf(sq)
		switch kindOf(piece) {
		case Pawn:
			dst = p.pawnMoves(dst, sq, f, r, piece)
		case Knight:
			dst = p.stepMoves(dst, sq, f, r, piece, knightDeltas)
		case Bishop:
			dst = p.slideMoves(dst, sq, f, r, piece, bishopDirs)
		case Rook:
			dst = p.slideMoves(dst, sq, f, r, piece, rookDirs)
		case Queen:
			dst = p.slideMoves(dst, sq, f, r, piece, royalDirs)
		case King:
			dst = p.stepMoves(dst, sq, f, r, piece, royalDirs)
		}
	}
	return dst
}

func (p *Position) pawnMoves(dst []game.Move, sq, f, r, piece int) []game.Move {
	color := colorOf(piece)
	nr := r + pawnDir(color)
	if nr < 0 || nr >= Ranks {
		return dst
	}
	promo := 0
	if nr == lastRank(color) {
		promo = makePiece(Queen, color)
	}
	if to := Square(f, nr); p.board[to] == Empty {
		dst = append(dst, encode(sq, to, piece, Empty, promo))
	}
	for _, df := range [2]int{-1, 1} {
		nf := f + df
		if nf < 0 || nf >= Files {
			continue
		}
		to := Square(nf, nr)
		if target := p.board[to]; target != Empty && colorOf(target) != color {
			dst = append(dst, encode(sq, to, piece, target, promo))
		}
	}
	return dst
}

func (p *Position) stepMoves(dst []game.Move, sq, f, r, piece int, deltas []delta) []game.Move {
	color := colorOf(piece)
	for _, d := range deltas {
		nf, nr := f+d.df, r+d.dr
		if !onBoard(nf, nr) {
			continue
		}
		to := Square(nf, nr)
		target := p.board[to]
		if target != Empty && colorOf(target) == color {
			continue
		}
		dst = append(dst, encode(sq, to, piece, target, 0))
	}
	return dst
}

func (p *Position) slideMoves(dst []game.Move, sq, f, r, piece int, dirs []delta) []game.Move {
	color := colorOf(piece)
	for _, d := range dirs {
		nf, nr := f+d.df, r+d.dr
		for onBoard(nf, nr) {
			to := Square(nf, nr)
			target := p.board[to]
			if target != Empty {
				if colorOf(target) != color {
					dst = append(dst, encode(sq, to, piece, target, 0))
				}
				break
			}
			dst = append(dst, encode(sq, to, piece, Empty, 0))
			nf, nr = nf+d.df, nr+d.dr
		}
	}
	return dst
}

// LegalMoves appends every legal move in a fixed order: by origin square,
// then by direction.
func (p *Position) LegalMoves(dst []game.Move) []game.Move {
	start := len(dst)
	dst = p.pseudoMoves(dst)
	legal := dst[:start]
	us := p.side
	for _, m := range dst[start:] {
		p.Apply(m)
		if !p.attacked(p.kings[us], 1-us) {
			legal = append(legal, m)
		}
		p.Undo(m)
	}
	return legal
}

// attacked reports whether sq is attacked by any piece of color by.
func (p *Position) attacked(sq, by int) bool {
	f, r := fileOf(sq), rankOf(sq)
	// Pawns attack diagonally forward, so look backward from sq.
	pr := r - pawnDir(by)
	if pr >= 0 && pr < Ranks {
		for _, df := range [2]int{-1, 1} {
			pf := f + df
			if pf >= 0 && pf < Files && p.board[Square(pf, pr)] == makePiece(Pawn, by) {
				return true
			}
		}
	}
	for _, d := range knightDeltas {
		nf, nr := f+d.df, r+d.dr
		if onBoard(nf, nr) && p.board[Square(nf, nr)] == makePiece(Knight, by) {
			return true
		}
	}
	for _, d := range royalDirs {
		nf, nr := f+d.df, r+d.dr
		if onBoard(nf, nr) && p.board[Square(nf, nr)] == makePiece(King, by) {
			return true
		}
	}
	if p.rayAttack(f, r, by, rookDirs, Rook) || p.rayAttack(f, r, by, bishopDirs, Bishop) {
		return true
	}
	return false
}

func (p *Position) rayAttack(f, r, by int, dirs []delta, slider int) bool {
	for _, d := range dirs {
		nf, nr := f+d.df, r+d.dr
		for onBoard(nf, nr) {
			piece := p.board[Square(nf, nr)]
			if piece != Empty {
				if colorOf(piece) == by {
					k := kindOf(piece)
					if k == slider || k == Queen {
						return true
					}
				}
				break
			}
			nf, nr = nf+d.df, nr+d.dr
		}
	}
	return false
}

// Apply plays m, which must have been generated in this position.
func (p *Position) Apply(m game.Move) {
	from, to, mover, captured, promo := decode(m)
	landed := mover
	if promo != 0 {
		landed = promo
	}
	p.board[from] = Empty
	p.board[to] = landed
	color := colorOf(mover)
	if captured != Empty {
		if k := kindOf(captured); k != Pawn && k != King {
			p.material[1-color] -= pieceValues[k]
		}
	}
	if promo != 0 {
		p.material[color] += pieceValues[kindOf(promo)]
	}
	if kindOf(mover) == King {
		p.kings[color] = to
	}
	p.hash = keys.AddMove(p.hash, from, to, mover, landed, captured)
	p.side = 1 - p.side
}

// Undo takes back m, which must be the last move applied.
func (p *Position) Undo(m game.Move) {
	from, to, mover, captured, promo := decode(m)
	landed := mover
	if promo != 0 {
		landed = promo
	}
	p.board[from] = mover
	p.board[to] = captured
	color := colorOf(mover)
	if captured != Empty {
		if k := kindOf(captured); k != Pawn && k != King {
			p.material[1-color] += pieceValues[k]
		}
	}
	if promo != 0 {
		p.material[color] -= pieceValues[kindOf(promo)]
	}
	if kindOf(mover) == King {
		p.kings[color] = from
	}
	p.hash = keys.AddMove(p.hash, from, to, mover, landed, captured)
	p.side = 1 - p.side
}

func (p *Position) ApplyNull() {
	p.side = 1 - p.side
	p.hash ^= keys.Turn()
}

func (p *Position) UndoNull() {
	p.ApplyNull()
}

// Describe reports m in piece values.
func (p *Position) Describe(m game.Move) game.MoveInfo {
	from, to, mover, captured, promo := decode(m)
	mi := game.MoveInfo{
		From:     from,
		To:       to,
		Mover:    pieceValues[kindOf(mover)],
		Captured: pieceValues[kindOf(captured)],
	}
	if promo != 0 {
		mi.Promotion = pieceValues[kindOf(promo)]
	}
	return mi
}

func squareName(sq int) string {
	return fmt.Sprintf("%c%d", 'a'+fileOf(sq), rankOf(sq)+1)
}

// MoveString renders m in coordinate notation, e.g. "b2b3" or "a4a5q".
func MoveString(m game.Move) string {
	if m == game.NoMove {
		return "-"
	}
	from, to, _, _, promo := decode(m)
	s := squareName(from) + squareName(to)
	if promo != 0 {
		s += "q"
	}
	return s
}

// ParseMove finds the legal move in p written as s in MoveString notation.
func (p *Position) ParseMove(s string) (game.Move, error) {
	for _, m := range p.LegalMoves(nil) {
		if MoveString(m) == s {
			return m, nil
		}
	}
	return game.NoMove, fmt.Errorf("no legal move %q in %s", s, p)
}
