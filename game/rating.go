package game

import "math"

const (
	// RatingK is the sensitivity applied to every rated match.
	RatingK = 32.0
	// DefaultRating is assigned to agents without a rating on file.
	DefaultRating = 1000
)

// ExpectedScore is the pairwise expected score of a player rated r against other.
func ExpectedScore(r, other int) float64 {
	return 1 / (1 + math.Pow(10, float64(other-r)/400))
}

// UpdateRatings returns the post-match ratings of a decisive result, floored at zero.
func UpdateRatings(winner, loser int, k float64) (newWinner, newLoser int) {
	ew := ExpectedScore(winner, loser)
	el := 1 - ew
	newWinner = int(math.Max(0, math.Round(float64(winner)+k*(1-ew))))
	newLoser = int(math.Max(0, math.Round(float64(loser)+k*(0-el))))
	return newWinner, newLoser
}
