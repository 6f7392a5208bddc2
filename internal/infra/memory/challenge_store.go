package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
)

// ChallengeStore is an in-memory implementation of app.ChallengeRepository.
type ChallengeStore struct {
	mu         sync.RWMutex
	challenges map[string]domain.Challenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[string]domain.Challenge)}
}

func (s *ChallengeStore) Create(_ context.Context, challenge domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[challenge.ID]; ok {
		return domain.NewError(domain.ErrAlreadyExists, "challenge.store", "challenge id already exists")
	}
	s.challenges[challenge.ID] = cloneChallenge(challenge)
	return nil
}

func (s *ChallengeStore) Get(_ context.Context, id string) (domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return cloneChallenge(challenge), nil
}

func (s *ChallengeStore) List(_ context.Context, filter app.ChallengeFilter) ([]domain.Challenge, int, error) {
	s.mu.RLock()
	matched := make([]domain.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		if matches(c, filter) {
			matched = append(matched, cloneChallenge(c))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if filter.SortDesc {
			return lessBy(matched[j], matched[i], filter.SortBy)
		}
		return lessBy(matched[i], matched[j], filter.SortBy)
	})

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		return matched, total, nil
	}
	start := (page - 1) * limit
	if start >= total {
		return []domain.Challenge{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *ChallengeStore) Update(_ context.Context, challenge domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.challenges[challenge.ID]
	if !ok {
		return domain.ErrChallengeNotFound
	}
	next := cloneChallenge(challenge)
	next.Status = current.Status
	next.Stats = current.Stats
	s.challenges[challenge.ID] = next
	return nil
}

func (s *ChallengeStore) UpdateStatus(_ context.Context, id string, from, to domain.ChallengeStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.challenges[id]
	if !ok {
		return domain.ErrChallengeNotFound
	}
	if current.Status != from {
		return domain.NewError(domain.ErrStateConflict, "challenge.store", "status changed concurrently")
	}
	current.Status = to
	current.UpdatedAt = at
	s.challenges[id] = current
	return nil
}

func (s *ChallengeStore) UpdateStats(_ context.Context, id string, stats domain.ChallengeStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.challenges[id]
	if !ok {
		return domain.ErrChallengeNotFound
	}
	current.Stats = stats
	s.challenges[id] = current
	return nil
}

func (s *ChallengeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return domain.ErrChallengeNotFound
	}
	delete(s.challenges, id)
	return nil
}

func (s *ChallengeStore) ListOverdue(_ context.Context, now time.Time) ([]domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Challenge
	for _, c := range s.challenges {
		if c.Overdue(now) {
			out = append(out, cloneChallenge(c))
		}
	}
	return out, nil
}

func matches(c domain.Challenge, f app.ChallengeFilter) bool {
	switch {
	case f.Status != "" && c.Status != f.Status:
		return false
	case f.Type != "" && !strings.EqualFold(c.Type, f.Type):
		return false
	case f.Category != "" && !strings.EqualFold(c.Requirements.Category, f.Category):
		return false
	case f.Difficulty != "" && !strings.EqualFold(c.Requirements.Difficulty, f.Difficulty):
		return false
	case f.CreatedBy != "" && c.CreatedBy != f.CreatedBy:
		return false
	case f.PublicOnly && !c.Settings.IsPublic:
		return false
	}
	return true
}

func lessBy(a, b domain.Challenge, sortBy string) bool {
	switch sortBy {
	case "start":
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
	case "end":
		if !a.EndDate.Equal(b.EndDate) {
			return a.EndDate.Before(b.EndDate)
		}
	case "participants":
		if a.Stats.TotalParticipants != b.Stats.TotalParticipants {
			return a.Stats.TotalParticipants < b.Stats.TotalParticipants
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func cloneChallenge(c domain.Challenge) domain.Challenge {
	if c.Settings.MaxParticipants != nil {
		v := *c.Settings.MaxParticipants
		c.Settings.MaxParticipants = &v
	}
	return c
}
