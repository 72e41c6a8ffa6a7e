package bot

import (
	nchess "github.com/corentings/chess/v2"
)

// Material values in centipawns, 100x the classic 1/3/3/5/9 scale.
var pieceValue = map[nchess.PieceType]int{
	nchess.Pawn:   100,
	nchess.Knight: 300,
	nchess.Bishop: 300,
	nchess.Rook:   500,
	nchess.Queen:  900,
}

const (
	mateScore       = 100000
	centerBonus     = 12
	wideCenterBonus = 4
	sideToMoveBonus = 10
)

func isCenter(sq nchess.Square) bool {
	f, r := sq.File(), sq.Rank()
	return (f == nchess.FileD || f == nchess.FileE) && (r == nchess.Rank4 || r == nchess.Rank5)
}

func isWideCenter(sq nchess.Square) bool {
	f, r := sq.File(), sq.Rank()
	return f >= nchess.FileC && f <= nchess.FileF && r >= nchess.Rank3 && r <= nchess.Rank6
}

// evaluate scores the position from the given color's perspective:
// material plus small positional terms. Positive favors that color.
func evaluate(pos *nchess.Position, forColor nchess.Color) int {
	score := 0
	board := pos.Board()
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		piece := board.Piece(sq)
		if piece == nchess.NoPiece {
			continue
		}
		v := pieceValue[piece.Type()]
		if isCenter(sq) {
			v += centerBonus
		} else if isWideCenter(sq) {
			v += wideCenterBonus
		}
		if piece.Color() == forColor {
			score += v
		} else {
			score -= v
		}
	}
	if pos.Turn() == forColor {
		score += sideToMoveBonus
	}
	return score
}

// captureGain estimates the material swing of a move before playing it.
func captureGain(pos *nchess.Position, mv *nchess.Move) int {
	if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
		return 0
	}
	if mv.HasTag(nchess.EnPassant) {
		return pieceValue[nchess.Pawn]
	}
	victim := pos.Board().Piece(mv.S2())
	if victim == nchess.NoPiece {
		return 0
	}
	return pieceValue[victim.Type()]
}

func isDeveloping(pos *nchess.Position, mv *nchess.Move) bool {
	piece := pos.Board().Piece(mv.S1())
	if piece == nchess.NoPiece {
		return false
	}
	switch piece.Type() {
	case nchess.Knight, nchess.Bishop:
		home := nchess.Rank1
		if piece.Color() == nchess.Black {
			home = nchess.Rank8
		}
		return mv.S1().Rank() == home
	case nchess.Pawn:
		return isCenter(mv.S2())
	}
	return false
}
