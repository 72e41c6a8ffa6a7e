package bot

import (
	"errors"
	"math/rand"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/IPandragonI/checkmate-sub000/internal/obslog"
	"github.com/IPandragonI/checkmate-sub000/internal/rules"
)

// ErrNoMove is returned only for terminal positions.
var ErrNoMove = errors.New("no legal move available")

// Strength tiers keyed on the bot's advertised elo.
const (
	tierRandomMax  = 800
	tierCaptureMax = 1100
	tierLayeredMax = 1500
	tierGreedyMax  = 1900
)

// Per-tier probability gates. The weaker tiers play their preferred
// move only most of the time, so a low-rated engine stays beatable.
const (
	blunderProb       = 0.12
	capturePreferProb = 0.85
	promotionProb     = 0.95
	captureLayerProb  = 0.85
	checkLayerProb    = 0.70
	developLayerProb  = 0.60
	greedyMargin      = 40
)

// Selector picks a move for the engine side. The random source is
// injectable so tests can fix the draw order.
type Selector struct {
	rng   *rand.Rand
	depth int
}

// NewSelector builds a selector with the given search depth for the top
// tier. A nil rng gets a time-seeded source.
func NewSelector(depth int, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if depth < 1 {
		depth = 1
	}
	return &Selector{rng: rng, depth: depth}
}

// Select returns a legal move for the side to move in the position
// reached by history, using the strategy tier for elo.
func (s *Selector) Select(history []string, elo int) (rules.MoveInput, error) {
	game, err := rules.Reconstruct(history)
	if err != nil {
		return rules.MoveInput{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return rules.MoveInput{}, ErrNoMove
	}
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return rules.MoveInput{}, ErrNoMove
	}

	var chosen *nchess.Move
	switch {
	case elo < tierRandomMax:
		chosen = s.pickRandomWithBlunder(game.Position(), moves)
	case elo < tierCaptureMax:
		chosen = s.pickCapturePreferring(game.Position(), moves)
	case elo < tierLayeredMax:
		chosen = s.pickLayered(game.Position(), moves)
	case elo < tierGreedyMax:
		chosen = s.pickGreedy(game, moves)
	default:
		chosen = s.pickSearch(game, moves)
	}

	obslog.L().Debug("bot_select",
		zap.Int("elo", elo),
		zap.Int("candidates", len(moves)),
		zap.String("uci", chosen.String()),
	)
	return toInput(chosen), nil
}

func (s *Selector) pickRandom(moves []nchess.Move) *nchess.Move {
	return &moves[s.rng.Intn(len(moves))]
}

// pickRandomWithBlunder plays uniformly at random, except for a small
// chance of deliberately restricting itself to quiet moves, passing up
// whatever captures or checks were on the board.
func (s *Selector) pickRandomWithBlunder(pos *nchess.Position, moves []nchess.Move) *nchess.Move {
	if s.rng.Float64() < blunderProb {
		var quiet []int
		for i := range moves {
			mv := &moves[i]
			if captureGain(pos, mv) == 0 && !mv.HasTag(nchess.Check) {
				quiet = append(quiet, i)
			}
		}
		if len(quiet) > 0 {
			return &moves[quiet[s.rng.Intn(len(quiet))]]
		}
	}
	return s.pickRandom(moves)
}

// pickCapturePreferring takes the most valuable capture on offer with
// fixed probability, otherwise a random move.
func (s *Selector) pickCapturePreferring(pos *nchess.Position, moves []nchess.Move) *nchess.Move {
	best := -1
	var captures []int
	for i := range moves {
		gain := captureGain(pos, &moves[i])
		if gain == 0 {
			continue
		}
		if gain > best {
			best = gain
			captures = captures[:0]
		}
		if gain == best {
			captures = append(captures, i)
		}
	}
	if len(captures) > 0 && s.rng.Float64() < capturePreferProb {
		return &moves[captures[s.rng.Intn(len(captures))]]
	}
	return s.pickRandom(moves)
}

// pickLayered tries promotion, then best capture, then check, then
// development, each layer taken with its own probability. A layer that
// loses its coin flip is skipped entirely; when every layer passes the
// move is random.
func (s *Selector) pickLayered(pos *nchess.Position, moves []nchess.Move) *nchess.Move {
	var promos, checks, developing []int
	bestGain := 0
	var captures []int
	for i := range moves {
		mv := &moves[i]
		if mv.Promo() != nchess.NoPieceType {
			promos = append(promos, i)
		}
		if gain := captureGain(pos, mv); gain > 0 {
			if gain > bestGain {
				bestGain = gain
				captures = captures[:0]
			}
			if gain == bestGain {
				captures = append(captures, i)
			}
		}
		if mv.HasTag(nchess.Check) {
			checks = append(checks, i)
		}
		if isDeveloping(pos, mv) {
			developing = append(developing, i)
		}
	}
	layers := []struct {
		pool []int
		prob float64
	}{
		{promos, promotionProb},
		{captures, captureLayerProb},
		{checks, checkLayerProb},
		{developing, developLayerProb},
	}
	for _, layer := range layers {
		if len(layer.pool) > 0 && s.rng.Float64() < layer.prob {
			return &moves[layer.pool[s.rng.Intn(len(layer.pool))]]
		}
	}
	return s.pickRandom(moves)
}

// pickGreedy evaluates each move one ply deep and draws among the
// moves within a fixed margin of the best score.
func (s *Selector) pickGreedy(game *nchess.Game, moves []nchess.Move) *nchess.Move {
	bestScore := -mateScore * 2
	scores := make([]int, len(moves))
	me := game.Position().Turn()
	for i := range moves {
		child := game.Clone()
		if err := child.Move(&moves[i], nil); err != nil {
			scores[i] = -mateScore * 2
			continue
		}
		scores[i] = terminalOrEval(child, me)
		if scores[i] > bestScore {
			bestScore = scores[i]
		}
	}
	var pool []int
	for i := range moves {
		if scores[i] >= bestScore-greedyMargin {
			pool = append(pool, i)
		}
	}
	if len(pool) == 0 {
		return s.pickRandom(moves)
	}
	return &moves[pool[s.rng.Intn(len(pool))]]
}

// pickSearch runs fixed-depth minimax with alpha-beta pruning.
func (s *Selector) pickSearch(game *nchess.Game, moves []nchess.Move) *nchess.Move {
	me := game.Position().Turn()
	bestScore := -mateScore * 2
	var pool []int
	alpha, beta := -mateScore*2, mateScore*2
	for i := range moves {
		child := game.Clone()
		if err := child.Move(&moves[i], nil); err != nil {
			continue
		}
		score := s.alphaBeta(child, s.depth-1, alpha, beta, me)
		if score > bestScore {
			bestScore = score
			pool = pool[:0]
		}
		if score == bestScore {
			pool = append(pool, i)
		}
		if bestScore > alpha {
			alpha = bestScore
		}
	}
	if len(pool) == 0 {
		return s.pickRandom(moves)
	}
	return &moves[pool[s.rng.Intn(len(pool))]]
}

// alphaBeta scores the position from me's perspective. depth counts
// remaining plies below the current node.
func (s *Selector) alphaBeta(game *nchess.Game, depth, alpha, beta int, me nchess.Color) int {
	if game.Outcome() != nchess.NoOutcome || depth <= 0 {
		return terminalOrEval(game, me)
	}
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return terminalOrEval(game, me)
	}
	maximizing := game.Position().Turn() == me
	if maximizing {
		best := -mateScore * 2
		for i := range moves {
			child := game.Clone()
			if err := child.Move(&moves[i], nil); err != nil {
				continue
			}
			score := s.alphaBeta(child, depth-1, alpha, beta, me)
			if score > best {
				best = score
			}
			if best > alpha {
				alpha = best
			}
			if alpha >= beta {
				break
			}
		}
		return best
	}
	best := mateScore * 2
	for i := range moves {
		child := game.Clone()
		if err := child.Move(&moves[i], nil); err != nil {
			continue
		}
		score := s.alphaBeta(child, depth-1, alpha, beta, me)
		if score < best {
			best = score
		}
		if best < beta {
			beta = best
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

func terminalOrEval(game *nchess.Game, me nchess.Color) int {
	switch game.Outcome() {
	case nchess.WhiteWon:
		if me == nchess.White {
			return mateScore
		}
		return -mateScore
	case nchess.BlackWon:
		if me == nchess.Black {
			return mateScore
		}
		return -mateScore
	case nchess.Draw:
		return 0
	}
	return evaluate(game.Position(), me)
}

func toInput(mv *nchess.Move) rules.MoveInput {
	in := rules.MoveInput{
		From: mv.S1().String(),
		To:   mv.S2().String(),
	}
	if promo := mv.Promo(); promo != nchess.NoPieceType {
		in.Promotion = unitLetter(promo)
	}
	return in
}

func unitLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	}
	return ""
}
