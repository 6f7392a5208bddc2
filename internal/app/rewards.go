package app

import "challenge-engine/internal/domain"

const (
	BadgeHighAchiever = "High Achiever"
	BadgeChampion     = "Champion"

	highAchieverAccuracy = 90.0
	highAchieverBonus    = 50
)

// Rewards is the outcome of CalculateRewards.
type Rewards struct {
	Points int      `json:"points"`
	Badges []string `json:"badges"`
}

// CalculateRewards derives points and badges from a finished participation and its rank.
// rank <= 0 means unranked and grants no positional bonus.
func CalculateRewards(participant domain.Participant, challenge domain.Challenge, rank int) Rewards {
	out := Rewards{Points: challenge.Rewards.Points, Badges: []string{}}
	if challenge.Rewards.Badge != "" {
		out.Badges = appendBadge(out.Badges, challenge.Rewards.Badge)
	}

	if participant.Accuracy >= highAchieverAccuracy {
		out.Points += highAchieverBonus
		out.Badges = appendBadge(out.Badges, BadgeHighAchiever)
	}

	tiers := challenge.Rewards.PositionTiers
	switch {
	case rank == 1:
		out.Points += tiers.First
		out.Badges = appendBadge(out.Badges, BadgeChampion)
	case rank == 2:
		out.Points += tiers.Second
	case rank == 3:
		out.Points += tiers.Third
	case rank > 3:
		out.Points += tiers.Participation
	}
	return out
}

func appendBadge(badges []string, badge string) []string {
	for _, b := range badges {
		if b == badge {
			return badges
		}
	}
	return append(badges, badge)
}
