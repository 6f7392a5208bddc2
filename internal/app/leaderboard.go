package app

import (
	"context"
	"sort"
	"time"

	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	directoryLookupWorkers  = 8
)

// Leaderboards ranks completed participants. Every call reads the authoritative
// completed set; nothing is cached.
type Leaderboards struct {
	participants ParticipantRepository
	users        UserDirectory
	log          *logger.Logger
	now          func() time.Time
}

func NewLeaderboards(participants ParticipantRepository, users UserDirectory, log *logger.Logger, now func() time.Time) *Leaderboards {
	if now == nil {
		now = time.Now
	}
	return &Leaderboards{participants: participants, users: users, log: logger.OrNop(log), now: now}
}

// Rank returns the 1-based position of userID, or nil if the user has not completed.
func (l *Leaderboards) Rank(ctx context.Context, challengeID, userID string) (*int, error) {
	position, _, err := l.RankWithTotal(ctx, challengeID, userID)
	if err != nil || position == 0 {
		return nil, err
	}
	return &position, nil
}

// RankWithTotal returns the position (0 when not ranked) and the number of completed participants.
func (l *Leaderboards) RankWithTotal(ctx context.Context, challengeID, userID string) (int, int, error) {
	completed, err := l.participants.ListCompleted(ctx, challengeID)
	if err != nil {
		return 0, 0, err
	}
	sortStandings(completed)
	return positionOf(completed, userID), len(completed), nil
}

// Leaderboard returns the top limit completed participants with display data.
func (l *Leaderboards) Leaderboard(ctx context.Context, challengeID string, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	completed, err := l.participants.ListCompleted(ctx, challengeID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	sortStandings(completed)
	total := len(completed)
	if len(completed) > limit {
		completed = completed[:limit]
	}

	entries := make([]domain.LeaderboardEntry, len(completed))
	for i, p := range completed {
		entries[i] = domain.LeaderboardEntry{
			Position:    i + 1,
			UserID:      p.UserID,
			DisplayName: p.UserID,
			Score:       p.Score,
			Accuracy:    p.Accuracy,
			TimeSpent:   p.TimeSpent,
		}
		if p.CompletedAt != nil {
			entries[i].CompletedAt = *p.CompletedAt
		}
	}
	l.resolveProfiles(ctx, entries)

	return domain.Leaderboard{
		ChallengeID: challengeID,
		Entries:     entries,
		Total:       total,
		UpdatedAt:   l.now(),
	}, nil
}

// resolveProfiles fills display names; a failed lookup leaves the user id in place.
func (l *Leaderboards) resolveProfiles(ctx context.Context, entries []domain.LeaderboardEntry) {
	if l.users == nil || len(entries) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(directoryLookupWorkers)
	for i := range entries {
		entry := &entries[i]
		g.Go(func() error {
			profile, err := l.users.Lookup(gctx, entry.UserID)
			if err != nil {
				l.log.Debug("user lookup failed", "userId", entry.UserID, "error", err)
				return nil
			}
			if profile.DisplayName != "" {
				entry.DisplayName = profile.DisplayName
			}
			entry.AvatarURL = profile.AvatarURL
			return nil
		})
	}
	_ = g.Wait()
}

// sortStandings orders by score desc, then earliest completion, then user id.
func sortStandings(ps []domain.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ranksBefore(ps[i], ps[j])
	})
}

func ranksBefore(a, b domain.Participant) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	at, bt := completedAt(a), completedAt(b)
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.UserID < b.UserID
}

func completedAt(p domain.Participant) time.Time {
	if p.CompletedAt == nil {
		return time.Time{}
	}
	return *p.CompletedAt
}

func positionOf(sorted []domain.Participant, userID string) int {
	for i, p := range sorted {
		if p.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// rankAmong places candidate into the completed set (replacing any stale row for the
// same user) and returns its position plus the resulting total.
func rankAmong(completed []domain.Participant, candidate domain.Participant) (int, int) {
	position, total := 1, 1
	for _, p := range completed {
		if p.UserID == candidate.UserID {
			continue
		}
		total++
		if ranksBefore(p, candidate) {
			position++
		}
	}
	return position, total
}
