package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
	"github.com/google/uuid"
)

const fallbackMaxScore = 100

// ResponseInput is one graded answer. Correctness comes from the caller.
type ResponseInput struct {
	QuestionID     string `json:"questionId"`
	Answer         string `json:"answer"`
	Correct        bool   `json:"correct"`
	TotalQuestions int    `json:"totalQuestions"`
}

// CompleteInput finishes an attempt. A nil FinalScore is computed from the response log.
type CompleteInput struct {
	FinalScore *int `json:"finalScore,omitempty"`
	MaxScore   *int `json:"maxScore,omitempty"`
}

// ParticipationService owns the per-user attempt state machine.
type ParticipationService struct {
	challenges      *ChallengeService
	participants    ParticipantRepository
	locker          Locker
	stats           *StatsAggregator
	boards          *Leaderboards
	hub             *LeaderboardHub
	log             *logger.Logger
	now             func() time.Time
	defaultMaxScore int
}

// ParticipationDeps groups the collaborators of ParticipationService.
type ParticipationDeps struct {
	Challenges      *ChallengeService
	Participants    ParticipantRepository
	Locker          Locker
	Stats           *StatsAggregator
	Leaderboards    *Leaderboards
	Hub             *LeaderboardHub
	Logger          *logger.Logger
	Now             func() time.Time
	DefaultMaxScore int
}

func NewParticipationService(deps ParticipationDeps) *ParticipationService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	maxScore := deps.DefaultMaxScore
	if maxScore <= 0 {
		maxScore = fallbackMaxScore
	}
	return &ParticipationService{
		challenges:      deps.Challenges,
		participants:    deps.Participants,
		locker:          deps.Locker,
		stats:           deps.Stats,
		boards:          deps.Leaderboards,
		hub:             deps.Hub,
		log:             logger.OrNop(deps.Logger),
		now:             now,
		defaultMaxScore: maxScore,
	}
}

// Join registers userID for a challenge. The eligibility check and the insert run under
// the challenge lock so capacity cannot be over-admitted.
func (s *ParticipationService) Join(ctx context.Context, challengeID, userID string) (domain.Participant, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Participant{}, domain.Validationf("participant.join", "user id is required")
	}

	participant, err := s.join(ctx, challengeID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	s.log.Info("participant joined", "challengeId", challengeID, "userId", userID)
	s.stats.RefreshBestEffort(ctx, challengeID)
	return participant, nil
}

func (s *ParticipationService) join(ctx context.Context, challengeID, userID string) (domain.Participant, error) {
	unlock, err := s.locker.Lock(ctx, challengeLockKey(challengeID))
	if err != nil {
		return domain.Participant{}, fmt.Errorf("lock challenge: %w", err)
	}
	defer unlock()

	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return domain.Participant{}, err
	}

	_, err = s.participants.Get(ctx, challengeID, userID)
	switch {
	case err == nil:
		return domain.Participant{}, domain.ErrAlreadyRegistered
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Participant{}, err
	}

	eligibility, err := s.challenges.eligibility(ctx, challenge, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	if !eligibility.Allowed {
		if eligibility.Reason == ReasonCapacity {
			return domain.Participant{}, domain.ErrMaxParticipants
		}
		return domain.Participant{}, domain.NewError(domain.ErrStateConflict, "participant.join", eligibility.Reason)
	}

	maxScore := challenge.Rewards.Points
	if maxScore <= 0 {
		maxScore = s.defaultMaxScore
	}
	participant := domain.Participant{
		ID:             uuid.NewString(),
		ChallengeID:    challengeID,
		UserID:         userID,
		Status:         domain.ParticipantRegistered,
		CurrentAttempt: domain.Attempt{Responses: []domain.Response{}},
		MaxScore:       maxScore,
		Achievements:   domain.Achievements{BadgesEarned: []string{}},
		JoinedAt:       s.now(),
	}
	if err := s.participants.Create(ctx, participant); err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

// StartAttempt begins a fresh attempt. Restarting while in progress discards the
// in-flight response log.
func (s *ParticipationService) StartAttempt(ctx context.Context, challengeID, userID string) (domain.Participant, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return domain.Participant{}, err
	}
	participant, err := s.participants.Get(ctx, challengeID, userID)
	if err != nil {
		return domain.Participant{}, err
	}

	next, err := domain.NextParticipantStatus(participant.Status, domain.EventStart)
	if err != nil {
		return domain.Participant{}, err
	}
	if participant.Attempts >= challenge.Settings.MaxAttempts() {
		return domain.Participant{}, domain.ErrAttemptsExhausted
	}
	if !challenge.IsOpen(s.now()) {
		return domain.Participant{}, domain.ErrChallengeClosed
	}

	now := s.now()
	participant.Status = next
	participant.Attempts++
	participant.CurrentAttempt = domain.Attempt{StartedAt: &now, Progress: 0, Responses: []domain.Response{}}
	participant.Accuracy = 0
	if err := s.participants.Update(ctx, participant); err != nil {
		return domain.Participant{}, err
	}
	s.log.Debug("attempt started", "challengeId", challengeID, "userId", userID, "attempt", participant.Attempts)
	return participant, nil
}

// SubmitResponse appends a graded response and recomputes progress and accuracy.
func (s *ParticipationService) SubmitResponse(ctx context.Context, challengeID, userID string, in ResponseInput) (domain.Participant, error) {
	if in.TotalQuestions <= 0 {
		return domain.Participant{}, domain.Validationf("participant.respond", "totalQuestions must be positive")
	}
	if strings.TrimSpace(in.QuestionID) == "" {
		return domain.Participant{}, domain.Validationf("participant.respond", "questionId is required")
	}
	participant, err := s.participants.Get(ctx, challengeID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	if participant.Status == domain.ParticipantCompleted {
		return domain.Participant{}, domain.ErrAlreadyCompleted
	}
	if participant.Status != domain.ParticipantInProgress {
		return domain.Participant{}, domain.ErrNoActiveAttempt
	}

	responses := append(participant.CurrentAttempt.Responses, domain.Response{
		QuestionID:  in.QuestionID,
		Answer:      in.Answer,
		Correct:     in.Correct,
		SubmittedAt: s.now(),
	})
	participant.CurrentAttempt.Responses = responses
	participant.CurrentAttempt.Progress = math.Min(100, float64(len(responses))/float64(in.TotalQuestions)*100)
	participant.Accuracy = Accuracy(responses)

	if err := s.participants.Update(ctx, participant); err != nil {
		return domain.Participant{}, err
	}
	return participant, nil
}

// Complete finishes the current attempt. Calling it on a completed row returns the row
// unchanged. Score, rank-based rewards and completion time are written in one update.
func (s *ParticipationService) Complete(ctx context.Context, challengeID, userID string, in CompleteInput) (domain.Participant, error) {
	if in.FinalScore != nil && *in.FinalScore < 0 {
		return domain.Participant{}, domain.Validationf("participant.complete", "finalScore must not be negative")
	}
	if in.MaxScore != nil && *in.MaxScore <= 0 {
		return domain.Participant{}, domain.Validationf("participant.complete", "maxScore must be positive")
	}

	participant, changed, err := s.complete(ctx, challengeID, userID, in)
	if err != nil || !changed {
		return participant, err
	}

	s.log.Info("participant completed", "challengeId", challengeID, "userId", userID,
		"score", participant.Score, "position", participant.Achievements.LeaderboardPosition)
	s.stats.RefreshBestEffort(ctx, challengeID)
	s.publish(ctx, challengeID)
	return participant, nil
}

func (s *ParticipationService) complete(ctx context.Context, challengeID, userID string, in CompleteInput) (domain.Participant, bool, error) {
	unlock, err := s.locker.Lock(ctx, challengeLockKey(challengeID))
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("lock challenge: %w", err)
	}
	defer unlock()

	participant, err := s.participants.Get(ctx, challengeID, userID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	if participant.Status == domain.ParticipantCompleted {
		return participant, false, nil
	}
	next, err := domain.NextParticipantStatus(participant.Status, domain.EventComplete)
	if err != nil {
		return domain.Participant{}, false, err
	}
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return domain.Participant{}, false, err
	}

	now := s.now()
	elapsed := 0.0
	if started := participant.CurrentAttempt.StartedAt; started != nil {
		elapsed = now.Sub(*started).Minutes()
	}

	score := Score(participant.CurrentAttempt.Responses, challenge.Requirements.TimeLimit, elapsed).Final
	if in.FinalScore != nil {
		score = *in.FinalScore
	}
	if in.MaxScore != nil {
		participant.MaxScore = *in.MaxScore
	}

	participant.Status = next
	participant.Score = score
	participant.Accuracy = Accuracy(participant.CurrentAttempt.Responses)
	participant.CompletedAt = &now
	participant.TimeSpent = int(math.Max(0, math.Round(elapsed)))

	completed, err := s.participants.ListCompleted(ctx, challengeID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	position, _ := rankAmong(completed, participant)
	rewards := CalculateRewards(participant, challenge, position)
	participant.Achievements.PointsEarned = rewards.Points
	participant.Achievements.BadgesEarned = rewards.Badges
	participant.Achievements.LeaderboardPosition = &position

	if err := s.participants.Update(ctx, participant); err != nil {
		return domain.Participant{}, false, err
	}
	return participant, true, nil
}

// Abandon gives up on the challenge without completing it.
func (s *ParticipationService) Abandon(ctx context.Context, challengeID, userID string) (domain.Participant, error) {
	participant, err := s.participants.Get(ctx, challengeID, userID)
	if err != nil {
		return domain.Participant{}, err
	}
	next, err := domain.NextParticipantStatus(participant.Status, domain.EventAbandon)
	if err != nil {
		return domain.Participant{}, err
	}
	participant.Status = next
	if err := s.participants.Update(ctx, participant); err != nil {
		return domain.Participant{}, err
	}
	s.stats.RefreshBestEffort(ctx, challengeID)
	return participant, nil
}

// Get returns a user's participation row.
func (s *ParticipationService) Get(ctx context.Context, challengeID, userID string) (domain.Participant, error) {
	return s.participants.Get(ctx, challengeID, userID)
}

func (s *ParticipationService) publish(ctx context.Context, challengeID string) {
	if s.hub == nil || s.boards == nil || s.hub.SubscriberCount(challengeID) == 0 {
		return
	}
	lb, err := s.boards.Leaderboard(ctx, challengeID, defaultLeaderboardLimit)
	if err != nil {
		s.log.Warn("leaderboard publish failed", "challengeId", challengeID, "error", err)
		return
	}
	s.hub.Publish(lb)
}
