package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
	"github.com/google/uuid"
)

const (
	defaultRewardPoints = 100
	defaultMaxRetries   = 3
)

// Eligibility reasons returned by CanParticipate.
const (
	ReasonNotActive       = "Challenge is not active"
	ReasonCapacity        = "Maximum participants reached"
	ReasonCompleted       = "Challenge already completed"
	ReasonAttemptsReached = "Maximum attempts reached"
)

// CreateChallengeInput is what an administrator supplies to create a challenge.
type CreateChallengeInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Type         string              `json:"type"`
	Requirements domain.Requirements `json:"requirements"`
	StartDate    time.Time           `json:"startDate"`
	EndDate      time.Time           `json:"endDate"`
	Rewards      domain.Rewards      `json:"rewards"`
	Settings     domain.Settings     `json:"settings"`
	CreatedBy    string              `json:"createdBy"`
}

// ChallengePatch holds optional field replacements for Update.
type ChallengePatch struct {
	Title        *string              `json:"title,omitempty"`
	Description  *string              `json:"description,omitempty"`
	Type         *string              `json:"type,omitempty"`
	Requirements *domain.Requirements `json:"requirements,omitempty"`
	StartDate    *time.Time           `json:"startDate,omitempty"`
	EndDate      *time.Time           `json:"endDate,omitempty"`
	Rewards      *domain.Rewards      `json:"rewards,omitempty"`
	Settings     *domain.Settings     `json:"settings,omitempty"`
}

// Eligibility is the answer to "may this user participate right now".
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ChallengeService owns the challenge lifecycle and eligibility rules.
type ChallengeService struct {
	challenges   ChallengeRepository
	participants ParticipantRepository
	locker       Locker
	log          *logger.Logger
	now          func() time.Time
}

// NewChallengeService builds the registry. locker must be the one Join admits under, so
// participant-count guards cannot interleave with an admission.
func NewChallengeService(challenges ChallengeRepository, participants ParticipantRepository, locker Locker, log *logger.Logger, now func() time.Time) *ChallengeService {
	if now == nil {
		now = time.Now
	}
	return &ChallengeService{challenges: challenges, participants: participants, locker: locker, log: logger.OrNop(log), now: now}
}

// Create validates the input and stores a draft challenge.
func (s *ChallengeService) Create(ctx context.Context, in CreateChallengeInput) (domain.Challenge, error) {
	now := s.now()
	if err := validateDates(in.StartDate, in.EndDate, now, true); err != nil {
		return domain.Challenge{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Challenge{}, domain.Validationf("challenge.create", "title is required")
	}
	if err := validateRules(in.Requirements, in.Rewards, in.Settings); err != nil {
		return domain.Challenge{}, err
	}

	rewards := in.Rewards
	if rewards.Points == 0 {
		rewards.Points = defaultRewardPoints
	}
	settings := in.Settings
	if settings.AllowRetries && settings.MaxRetries == 0 {
		settings.MaxRetries = defaultMaxRetries
	}

	challenge := domain.Challenge{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Type:         in.Type,
		Requirements: in.Requirements,
		Status:       domain.ChallengeDraft,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		Rewards:      rewards,
		Settings:     settings,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return domain.Challenge{}, err
	}
	s.log.Info("challenge created", "challengeId", challenge.ID, "createdBy", challenge.CreatedBy)
	return challenge, nil
}

// Get loads a challenge, completing it first if its end date has passed.
func (s *ChallengeService) Get(ctx context.Context, id string) (domain.Challenge, error) {
	challenge, err := s.challenges.Get(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	return s.expireIfOverdue(ctx, challenge)
}

// List returns one page of challenges and the total match count.
func (s *ChallengeService) List(ctx context.Context, filter ChallengeFilter) ([]domain.Challenge, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	items, total, err := s.challenges.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		refreshed, err := s.expireIfOverdue(ctx, items[i])
		if err != nil {
			s.log.Warn("expire on list failed", "challengeId", items[i].ID, "error", err)
			continue
		}
		items[i] = refreshed
	}
	return items, total, nil
}

// Activate moves a draft challenge to active once its start date has been reached.
func (s *ChallengeService) Activate(ctx context.Context, id string) (domain.Challenge, error) {
	challenge, err := s.Get(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	next, err := domain.NextChallengeStatus(challenge.Status, domain.EventActivate)
	if err != nil {
		return domain.Challenge{}, err
	}
	now := s.now()
	if now.Before(challenge.StartDate) {
		return domain.Challenge{}, domain.ErrEarlyActivation
	}
	if now.After(challenge.EndDate) {
		return domain.Challenge{}, domain.NewError(domain.ErrStateConflict, "challenge.activate", "challenge end date has passed")
	}
	return s.transition(ctx, challenge, next)
}

// Deactivate returns an active challenge to draft. It is only possible before the start
// date and while nobody has joined.
func (s *ChallengeService) Deactivate(ctx context.Context, id string) (domain.Challenge, error) {
	challenge, err := s.Get(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	next, err := domain.NextChallengeStatus(challenge.Status, domain.EventDeactivate)
	if err != nil {
		return domain.Challenge{}, err
	}
	if !s.now().Before(challenge.StartDate) {
		return domain.Challenge{}, domain.NewError(domain.ErrStateConflict, "challenge.deactivate", "challenge has already started")
	}
	count, err := s.participants.Count(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	if count > 0 {
		return domain.Challenge{}, domain.NewError(domain.ErrLocked, "challenge.deactivate", "challenge has participants")
	}
	return s.transition(ctx, challenge, next)
}

// Cancel stops a draft or active challenge for good.
func (s *ChallengeService) Cancel(ctx context.Context, id string) (domain.Challenge, error) {
	challenge, err := s.Get(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	next, err := domain.NextChallengeStatus(challenge.Status, domain.EventCancel)
	if err != nil {
		return domain.Challenge{}, err
	}
	return s.transition(ctx, challenge, next)
}

// Update applies a patch. Completed challenges are locked, and requirements are frozen
// once anyone has joined.
func (s *ChallengeService) Update(ctx context.Context, id string, patch ChallengePatch) (domain.Challenge, error) {
	if patch.Requirements != nil {
		unlock, err := s.locker.Lock(ctx, challengeLockKey(id))
		if err != nil {
			return domain.Challenge{}, fmt.Errorf("lock challenge: %w", err)
		}
		defer unlock()
	}

	challenge, err := s.Get(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	if challenge.Status == domain.ChallengeCompleted {
		return domain.Challenge{}, domain.ErrChallengeLocked
	}
	if patch.Requirements != nil {
		count, err := s.participants.Count(ctx, id)
		if err != nil {
			return domain.Challenge{}, err
		}
		if count > 0 {
			return domain.Challenge{}, domain.ErrRequirementsLocked
		}
	}

	updated := challenge
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return domain.Challenge{}, domain.Validationf("challenge.update", "title is required")
		}
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Type != nil {
		updated.Type = *patch.Type
	}
	if patch.Requirements != nil {
		updated.Requirements = *patch.Requirements
	}
	if patch.StartDate != nil {
		updated.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		updated.EndDate = *patch.EndDate
	}
	if patch.Rewards != nil {
		updated.Rewards = *patch.Rewards
	}
	if patch.Settings != nil {
		updated.Settings = *patch.Settings
	}

	if patch.StartDate != nil || patch.EndDate != nil {
		if err := validateDates(updated.StartDate, updated.EndDate, s.now(), patch.StartDate != nil); err != nil {
			return domain.Challenge{}, err
		}
	}
	if err := validateRules(updated.Requirements, updated.Rewards, updated.Settings); err != nil {
		return domain.Challenge{}, err
	}

	updated.UpdatedAt = s.now()
	if err := s.challenges.Update(ctx, updated); err != nil {
		return domain.Challenge{}, err
	}
	return updated, nil
}

// Delete removes a challenge nobody has joined.
func (s *ChallengeService) Delete(ctx context.Context, id string) error {
	unlock, err := s.locker.Lock(ctx, challengeLockKey(id))
	if err != nil {
		return fmt.Errorf("lock challenge: %w", err)
	}
	defer unlock()

	if _, err := s.challenges.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.participants.Count(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrParticipantsExist
	}
	if err := s.challenges.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("challenge deleted", "challengeId", id)
	return nil
}

// CanParticipate evaluates whether userID may join or start an attempt. Join repeats
// this evaluation under the challenge lock before admitting anyone.
func (s *ChallengeService) CanParticipate(ctx context.Context, id, userID string) (Eligibility, error) {
	challenge, err := s.Get(ctx, id)
	if err != nil {
		return Eligibility{}, err
	}
	return s.eligibility(ctx, challenge, userID)
}

func (s *ChallengeService) eligibility(ctx context.Context, challenge domain.Challenge, userID string) (Eligibility, error) {
	if !challenge.IsOpen(s.now()) {
		return Eligibility{Reason: ReasonNotActive}, nil
	}

	existing, err := s.participants.Get(ctx, challenge.ID, userID)
	switch {
	case err == nil:
		if existing.Status == domain.ParticipantCompleted {
			return Eligibility{Reason: ReasonCompleted}, nil
		}
		if existing.Attempts >= challenge.Settings.MaxAttempts() {
			return Eligibility{Reason: ReasonAttemptsReached}, nil
		}
		return Eligibility{Allowed: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Eligibility{}, err
	}

	if limit := challenge.Settings.MaxParticipants; limit != nil {
		count, err := s.participants.Count(ctx, challenge.ID)
		if err != nil {
			return Eligibility{}, err
		}
		if count >= *limit {
			return Eligibility{Reason: ReasonCapacity}, nil
		}
	}
	return Eligibility{Allowed: true}, nil
}

// ExpireOverdue completes every active challenge whose end date has passed.
func (s *ChallengeService) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.challenges.ListOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, c := range overdue {
		err := s.challenges.UpdateStatus(ctx, c.ID, domain.ChallengeActive, domain.ChallengeCompleted, s.now())
		if err != nil && !errors.Is(err, domain.ErrStateConflict) {
			return expired, err
		}
		if err == nil {
			expired++
		}
	}
	return expired, nil
}

func (s *ChallengeService) expireIfOverdue(ctx context.Context, challenge domain.Challenge) (domain.Challenge, error) {
	if !challenge.Overdue(s.now()) {
		return challenge, nil
	}
	next, err := domain.NextChallengeStatus(challenge.Status, domain.EventExpire)
	if err != nil {
		return challenge, err
	}
	now := s.now()
	err = s.challenges.UpdateStatus(ctx, challenge.ID, challenge.Status, next, now)
	switch {
	case err == nil:
		challenge.Status = next
		challenge.UpdatedAt = now
		s.log.Info("challenge expired on access", "challengeId", challenge.ID)
		return challenge, nil
	case errors.Is(err, domain.ErrStateConflict):
		// Another request moved it first.
		return s.challenges.Get(ctx, challenge.ID)
	default:
		return challenge, err
	}
}

func (s *ChallengeService) transition(ctx context.Context, challenge domain.Challenge, next domain.ChallengeStatus) (domain.Challenge, error) {
	now := s.now()
	if err := s.challenges.UpdateStatus(ctx, challenge.ID, challenge.Status, next, now); err != nil {
		return domain.Challenge{}, err
	}
	s.log.Info("challenge status changed", "challengeId", challenge.ID, "from", challenge.Status, "to", next)
	challenge.Status = next
	challenge.UpdatedAt = now
	return challenge, nil
}

func validateDates(start, end, now time.Time, checkStart bool) error {
	if start.IsZero() || end.IsZero() {
		return domain.ErrInvalidDateRange
	}
	if checkStart && start.Before(now) {
		return domain.ErrInvalidDateRange
	}
	if !end.After(start) {
		return domain.ErrInvalidDateRange
	}
	return nil
}

func validateRules(req domain.Requirements, rewards domain.Rewards, settings domain.Settings) error {
	const op = "challenge.validate"
	switch {
	case req.TargetCount < 0:
		return domain.Validationf(op, "targetCount must not be negative")
	case req.Accuracy < 0 || req.Accuracy > 100:
		return domain.Validationf(op, "accuracy must be between 0 and 100")
	case req.TimeLimit < 0:
		return domain.Validationf(op, "timeLimit must not be negative")
	case rewards.Points < 0:
		return domain.Validationf(op, "reward points must not be negative")
	case settings.MaxParticipants != nil && *settings.MaxParticipants <= 0:
		return domain.Validationf(op, "maxParticipants must be positive when set")
	case settings.MaxRetries < 0:
		return domain.Validationf(op, "maxRetries must not be negative")
	}
	return nil
}
