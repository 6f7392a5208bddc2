package app

import (
	"math"

	"challenge-engine/internal/domain"
)

const maxTimeBonus = 10.0

// ScoreResult breaks a final score into its parts.
type ScoreResult struct {
	Base      float64 `json:"base"`
	TimeBonus float64 `json:"timeBonus"`
	Final     int     `json:"final"`
}

// Score computes the percentage score for an attempt. A positive timeLimit (minutes)
// grants up to 10 bonus points for finishing early; the final score is capped at 100.
func Score(responses []domain.Response, timeLimit int, timeSpent float64) ScoreResult {
	correct := 0
	for _, r := range responses {
		if r.Correct {
			correct++
		}
	}
	base := 0.0
	if len(responses) > 0 {
		base = 100 * float64(correct) / float64(len(responses))
	}

	bonus := 0.0
	if timeLimit > 0 && timeSpent >= 0 {
		limit := float64(timeLimit)
		bonus = math.Max(0, (limit-timeSpent)/limit*maxTimeBonus)
	}

	return ScoreResult{
		Base:      base,
		TimeBonus: bonus,
		Final:     int(math.Round(math.Min(100, base+bonus))),
	}
}

// Accuracy is the percentage of correct responses, 0 for an empty log.
func Accuracy(responses []domain.Response) float64 {
	if len(responses) == 0 {
		return 0
	}
	correct := 0
	for _, r := range responses {
		if r.Correct {
			correct++
		}
	}
	return 100 * float64(correct) / float64(len(responses))
}
