package app

import (
	"context"
	"fmt"

	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
)

// StatsAggregator recomputes challenge stats from the participant rows. Refreshes for the
// same challenge are serialized through the locker so each one reads the latest committed
// set and no update is lost to an interleaved read-modify-write.
type StatsAggregator struct {
	challenges   ChallengeRepository
	participants ParticipantRepository
	locker       Locker
	log          *logger.Logger
}

func NewStatsAggregator(challenges ChallengeRepository, participants ParticipantRepository, locker Locker, log *logger.Logger) *StatsAggregator {
	return &StatsAggregator{
		challenges:   challenges,
		participants: participants,
		locker:       locker,
		log:          logger.OrNop(log),
	}
}

// Refresh recomputes and persists stats for one challenge.
func (a *StatsAggregator) Refresh(ctx context.Context, challengeID string) (domain.ChallengeStats, error) {
	unlock, err := a.locker.Lock(ctx, statsLockKey(challengeID))
	if err != nil {
		return domain.ChallengeStats{}, fmt.Errorf("lock stats: %w", err)
	}
	defer unlock()

	participants, err := a.participants.ListByChallenge(ctx, challengeID)
	if err != nil {
		return domain.ChallengeStats{}, fmt.Errorf("list participants: %w", err)
	}
	stats := AggregateStats(participants)
	if err := a.challenges.UpdateStats(ctx, challengeID, stats); err != nil {
		return domain.ChallengeStats{}, fmt.Errorf("update stats: %w", err)
	}
	return stats, nil
}

// RefreshBestEffort refreshes stats and only logs failures; the triggering mutation has
// already succeeded and the next refresh heals any gap.
func (a *StatsAggregator) RefreshBestEffort(ctx context.Context, challengeID string) {
	if _, err := a.Refresh(ctx, challengeID); err != nil {
		a.log.Warn("stats refresh failed", "challengeId", challengeID, "error", err)
	}
}

// AggregateStats is the pure aggregate over a challenge's participant rows.
func AggregateStats(participants []domain.Participant) domain.ChallengeStats {
	stats := domain.ChallengeStats{TotalParticipants: len(participants)}
	sum := 0
	for _, p := range participants {
		if p.Status != domain.ParticipantCompleted {
			continue
		}
		if stats.CompletedParticipants == 0 || p.Score > stats.TopScore {
			stats.TopScore = p.Score
		}
		stats.CompletedParticipants++
		sum += p.Score
	}
	if stats.CompletedParticipants > 0 {
		stats.AverageScore = float64(sum) / float64(stats.CompletedParticipants)
	}
	return stats
}
