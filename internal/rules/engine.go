package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrBadHistory  = errors.New("move history does not replay to a legal game")
)

// MoveInput is a candidate move in coordinate form.
type MoveInput struct {
	From      string
	To        string
	Promotion string
}

// UCI renders the input in UCI notation (e.g. "e7e8q").
func (m MoveInput) UCI() string {
	promo := strings.ToLower(strings.TrimSpace(m.Promotion))
	if len(promo) > 1 {
		promo = promo[:1]
	}
	return strings.ToLower(strings.TrimSpace(m.From)) + strings.ToLower(strings.TrimSpace(m.To)) + promo
}

// Applied is the result of a legal move against a position.
type Applied struct {
	UCI      string
	SAN      string
	FEN      string
	Turn     string // side to move after the move, "white" or "black"
	Captured string // captured unit name, empty when none
	Terminal bool
	Result   string // "white" | "black" | "draw", empty when not terminal
	Method   string // termination method, empty when not terminal
}

// Reconstruct replays a UCI move history from the initial position.
// The history itself is the source of truth; a stored FEN is only a
// snapshot and cannot carry repetition state.
func Reconstruct(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, mv := range history {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: move %d (%s): %v", ErrBadHistory, i+1, mv, err)
		}
	}
	return game, nil
}

// Replay returns the position and side to move after a move history.
func Replay(history []string) (fen, turn string, err error) {
	game, err := Reconstruct(history)
	if err != nil {
		return "", "", err
	}
	return game.FEN(), colorName(game.Position().Turn()), nil
}

// Apply validates one move against the position reached by history and
// returns the resulting state. The position is never mutated in place;
// a refused move leaves no trace.
func Apply(history []string, in MoveInput) (*Applied, error) {
	game, err := Reconstruct(history)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return nil, ErrIllegalMove
	}

	pos := game.Position()
	uci := in.UCI()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	captured := capturedUnit(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return nil, ErrIllegalMove
	}

	// Threefold repetition and the fifty-move rule are claimable draws
	// in the library; this engine treats them as automatic.
	if game.Outcome() == nchess.NoOutcome {
		for _, m := range game.EligibleDraws() {
			if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
				_ = game.Draw(m)
				break
			}
		}
	}

	applied := &Applied{
		UCI:      uci,
		SAN:      san,
		FEN:      game.FEN(),
		Turn:     colorName(game.Position().Turn()),
		Captured: captured,
	}
	if outcome := game.Outcome(); outcome != nchess.NoOutcome {
		applied.Terminal = true
		applied.Result = resultName(outcome)
		applied.Method = methodName(game.Method())
	}
	return applied, nil
}

// LegalMoveCount reports how many legal moves the side to move has.
func LegalMoveCount(history []string) (int, error) {
	game, err := Reconstruct(history)
	if err != nil {
		return 0, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return 0, nil
	}
	return len(game.ValidMoves()), nil
}

func capturedUnit(pos *nchess.Position, mv *nchess.Move) string {
	if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
		return ""
	}
	sq := mv.S2()
	if mv.HasTag(nchess.EnPassant) {
		if pos.Turn() == nchess.White {
			sq = nchess.NewSquare(sq.File(), sq.Rank()-1)
		} else {
			sq = nchess.NewSquare(sq.File(), sq.Rank()+1)
		}
	}
	piece := pos.Board().Piece(sq)
	if piece == nchess.NoPiece {
		return ""
	}
	return unitName(piece.Type())
}

func unitName(pt nchess.PieceType) string {
	switch pt {
	case nchess.Pawn:
		return "pawn"
	case nchess.Knight:
		return "knight"
	case nchess.Bishop:
		return "bishop"
	case nchess.Rook:
		return "rook"
	case nchess.Queen:
		return "queen"
	case nchess.King:
		return "king"
	default:
		return ""
	}
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}

func resultName(o nchess.Outcome) string {
	switch o {
	case nchess.WhiteWon:
		return "white"
	case nchess.BlackWon:
		return "black"
	case nchess.Draw:
		return "draw"
	default:
		return ""
	}
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.Resignation:
		return "resignation"
	default:
		return ""
	}
}
