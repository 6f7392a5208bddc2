package memory

import (
	"context"
	"sync"

	"challenge-engine/internal/domain"
)

type participantKey struct {
	challengeID string
	userID      string
}

// ParticipantStore is an in-memory implementation of app.ParticipantRepository.
// The (challengeID, userID) map key plays the role of the unique index.
type ParticipantStore struct {
	mu    sync.RWMutex
	rows  map[participantKey]domain.Participant
	byID  map[string]participantKey
	order map[string][]string // challengeID -> userIDs in join order
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		rows:  make(map[participantKey]domain.Participant),
		byID:  make(map[string]participantKey),
		order: make(map[string][]string),
	}
}

func (s *ParticipantStore) Create(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{participant.ChallengeID, participant.UserID}
	if _, ok := s.rows[key]; ok {
		return domain.ErrAlreadyRegistered
	}
	s.rows[key] = cloneParticipant(participant)
	s.byID[participant.ID] = key
	s.order[participant.ChallengeID] = append(s.order[participant.ChallengeID], participant.UserID)
	return nil
}

func (s *ParticipantStore) Get(_ context.Context, challengeID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[participantKey{challengeID, userID}]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (s *ParticipantStore) GetByID(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return cloneParticipant(s.rows[key]), nil
}

func (s *ParticipantStore) Update(_ context.Context, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participantKey{participant.ChallengeID, participant.UserID}
	if _, ok := s.rows[key]; !ok {
		return domain.ErrParticipantNotFound
	}
	s.rows[key] = cloneParticipant(participant)
	return nil
}

func (s *ParticipantStore) Count(_ context.Context, challengeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[challengeID]), nil
}

func (s *ParticipantStore) ListByChallenge(_ context.Context, challengeID string) ([]domain.Participant, error) {
	return s.list(challengeID, func(domain.Participant) bool { return true }), nil
}

func (s *ParticipantStore) ListCompleted(_ context.Context, challengeID string) ([]domain.Participant, error) {
	return s.list(challengeID, func(p domain.Participant) bool {
		return p.Status == domain.ParticipantCompleted
	}), nil
}

func (s *ParticipantStore) list(challengeID string, keep func(domain.Participant) bool) []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0, len(s.order[challengeID]))
	for _, userID := range s.order[challengeID] {
		p := s.rows[participantKey{challengeID, userID}]
		if keep(p) {
			out = append(out, cloneParticipant(p))
		}
	}
	return out
}

// cloneParticipant copies the slices and pointers so callers never alias stored state.
func cloneParticipant(p domain.Participant) domain.Participant {
	if p.CurrentAttempt.StartedAt != nil {
		v := *p.CurrentAttempt.StartedAt
		p.CurrentAttempt.StartedAt = &v
	}
	if p.CurrentAttempt.Responses != nil {
		p.CurrentAttempt.Responses = append([]domain.Response(nil), p.CurrentAttempt.Responses...)
	}
	if p.Achievements.BadgesEarned != nil {
		p.Achievements.BadgesEarned = append([]string(nil), p.Achievements.BadgesEarned...)
	}
	if p.Achievements.LeaderboardPosition != nil {
		v := *p.Achievements.LeaderboardPosition
		p.Achievements.LeaderboardPosition = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		p.CompletedAt = &v
	}
	return p
}
