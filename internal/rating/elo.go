package rating

import "math"

// DefaultRating is assigned to participants without a stored rating.
const DefaultRating = 1200

// Expected is the Elo expected score for a player rated ra against rb.
func Expected(ra, rb int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(rb-ra)/400.0))
}

// KFactor follows the common tiered scheme: provisional players move
// fast, established masters move slowly.
func KFactor(r int) int {
	switch {
	case r < 2100:
		return 40
	case r > 2400:
		return 20
	default:
		return 32
	}
}

// Next computes the post-game rating for score s (1 win, 0.5 draw,
// 0 loss), rounded to the nearest integer.
func Next(r int, score, expected float64) int {
	k := float64(KFactor(r))
	return int(math.Round(float64(r) + k*(score-expected)))
}
