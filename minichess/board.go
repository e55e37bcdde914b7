// Package minichess implements Gardner's 5x5 minichess. It is the reference
// game the search packages are tested and benchmarked against: small enough
// to search deeply, rich enough to have captures, promotions, check and mate.
//
// Rules: KQRBN and pawns on a 5x5 board, pawns move one square, promote to a
// queen on the last rank, no castling and no en passant.
package minichess

import (
	"errors"
	"fmt"
	"strings"

	"github.com/domino14/kibitz/game"
	"github.com/domino14/kibitz/zobrist"
)

const (
	Files      = 5
	Ranks      = 5
	NumSquares = Files * Ranks

	White = 0
	Black = 1
)

// StartFEN is the standard Gardner opening array.
const StartFEN = "rnbqk/ppppp/5/PPPPP/RNBQK w"

// Piece kinds, and piece indexes as stored on the board. Black pieces are
// offset by blackOffset. 0 is an empty square.
const (
	Empty = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

const blackOffset = 6

const numPieces = 12

var pieceValues = [7]int{0, 100, 300, 310, 500, 900, 20000}

const pieceChars = " PNBRQKpnbrqk"

var (
	ErrBadFEN = errors.New("invalid minichess position")
)

var keys = func() *zobrist.Zobrist {
	z := &zobrist.Zobrist{}
	z.Initialize(NumSquares, numPieces, zobrist.DefaultSeed)
	return z
}()

func kindOf(piece int) int {
	if piece > blackOffset {
		return piece - blackOffset
	}
	return piece
}

func colorOf(piece int) int {
	if piece > blackOffset {
		return Black
	}
	return White
}

func makePiece(kind, color int) int {
	if color == Black {
		return kind + blackOffset
	}
	return kind
}

// Square returns the index of the square on the given file and rank, both
// zero-based. Rank 0 is White's back rank.
func Square(file, rank int) int {
	return rank*Files + file
}

func fileOf(sq int) int { return sq % Files }
func rankOf(sq int) int { return sq / Files }

// Position is a minichess game state. The zero value is not usable; build
// one with FromFEN or NewStartPosition.
type Position struct {
	board    [NumSquares]int
	side     int
	hash     uint64
	kings    [2]int
	material [2]int
}

func NewStartPosition() *Position {
	p, err := FromFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return p
}

// FromFEN parses a position: five ranks from the 5th down to the 1st
// separated by '/', then the side to move.
func FromFEN(fen string) (*Position, error) {
	fields := strings.Fields(fen)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: want board and side, got %q", ErrBadFEN, fen)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != Ranks {
		return nil, fmt.Errorf("%w: want %d ranks, got %d", ErrBadFEN, Ranks, len(rows))
	}
	p := &Position{kings: [2]int{-1, -1}}
	for i, row := range rows {
		rank := Ranks - 1 - i
		file := 0
		for _, c := range row {
			if c >= '1' && c <= '5' {
				file += int(c - '0')
				continue
			}
			idx := strings.IndexRune(pieceChars, c)
			if idx <= 0 {
				return nil, fmt.Errorf("%w: unknown piece %q", ErrBadFEN, c)
			}
			if file >= Files {
				return nil, fmt.Errorf("%w: rank %d too long", ErrBadFEN, rank+1)
			}
			sq := Square(file, rank)
			p.board[sq] = idx
			if kindOf(idx) == King {
				if p.kings[colorOf(idx)] != -1 {
					return nil, fmt.Errorf("%w: two kings of one color", ErrBadFEN)
				}
				p.kings[colorOf(idx)] = sq
			}
			file++
		}
		if file != Files {
			return nil, fmt.Errorf("%w: rank %d has %d files", ErrBadFEN, rank+1, file)
		}
	}
	if p.kings[White] == -1 || p.kings[Black] == -1 {
		return nil, fmt.Errorf("%w: missing king", ErrBadFEN)
	}
	switch fields[1] {
	case "w":
		p.side = White
	case "b":
		p.side = Black
	default:
		return nil, fmt.Errorf("%w: side to move %q", ErrBadFEN, fields[1])
	}
	p.recompute()
	return p, nil
}

func (p *Position) recompute() {
	p.material = [2]int{}
	for sq, piece := range p.board {
		if piece == Empty {
			continue
		}
		k := kindOf(piece)
		if k == King {
			p.kings[colorOf(piece)] = sq
		} else if k != Pawn {
			p.material[colorOf(piece)] += pieceValues[k]
		}
	}
	p.hash = keys.Hash(p.board[:], p.side == Black)
}

// String returns the position in FromFEN's notation.
func (p *Position) String() string {
	var sb strings.Builder
	for rank := Ranks - 1; rank >= 0; rank-- {
		empties := 0
		for file := 0; file < Files; file++ {
			piece := p.board[Square(file, rank)]
			if piece == Empty {
				empties++
				continue
			}
			if empties > 0 {
				sb.WriteByte(byte('0' + empties))
				empties = 0
			}
			sb.WriteByte(pieceChars[piece])
		}
		if empties > 0 {
			sb.WriteByte(byte('0' + empties))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	if p.side == White {
		sb.WriteString(" w")
	} else {
		sb.WriteString(" b")
	}
	return sb.String()
}

// PieceAt returns the piece index on sq.
func (p *Position) PieceAt(sq int) int {
	return p.board[sq]
}

func (p *Position) SideToMove() int {
	return p.side
}

func (p *Position) Hash() uint64 {
	return p.hash
}

func (p *Position) NonPawnMaterial(side int) int {
	return p.material[side]
}

func (p *Position) Clone() game.Position {
	cp := *p
	return &cp
}

// Mirror returns the colour-flipped position: ranks reversed, colours
// swapped, and the other side to move. Its value for the side to move equals
// the original's.
func (p *Position) Mirror() *Position {
	m := &Position{side: 1 - p.side}
	for sq, piece := range p.board {
		if piece == Empty {
			continue
		}
		msq := Square(fileOf(sq), Ranks-1-rankOf(sq))
		m.board[msq] = makePiece(kindOf(piece), 1-colorOf(piece))
	}
	m.recompute()
	return m
}

func (p *Position) InCheck() bool {
	return p.attacked(p.kings[p.side], 1-p.side)
}
