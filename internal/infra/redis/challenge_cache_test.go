package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"challenge-engine/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestChallengeCacheReadsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	backing := &countingStore{ChallengeRepository: memory.NewChallengeStore()}
	_ = backing.Create(context.Background(), sampleChallenge())
	cache := NewChallengeCache(newClient(mr), backing, time.Minute, nil)

	if _, err := cache.Get(context.Background(), "c1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if backing.gets != 1 {
		t.Fatalf("expected backing store hit once, got %d", backing.gets)
	}
	if !mr.Exists("challenge:c1") {
		t.Fatalf("expected challenge to be cached")
	}

	// Second call should hit cache, backing store not incremented.
	got, _ := cache.Get(context.Background(), "c1")
	if backing.gets != 1 {
		t.Fatalf("expected cache hit, backing gets=%d", backing.gets)
	}
	if got.Title != "Speed round" || got.Rewards.Points != 100 {
		t.Fatalf("cached challenge lost data: %+v", got)
	}
}

func TestChallengeCacheInvalidatesOnWrite(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	backing := memory.NewChallengeStore()
	_ = backing.Create(ctx, sampleChallenge())
	cache := NewChallengeCache(newClient(mr), backing, time.Minute, nil)

	_, _ = cache.Get(ctx, "c1")
	if err := cache.UpdateStatus(ctx, "c1", domain.ChallengeDraft, domain.ChallengeActive, time.Now()); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if mr.Exists("challenge:c1") {
		t.Fatalf("expected cached copy to be dropped after a write")
	}
	got, _ := cache.Get(ctx, "c1")
	if got.Status != domain.ChallengeActive {
		t.Fatalf("expected fresh status, got %s", got.Status)
	}

	_ = cache.UpdateStats(ctx, "c1", domain.ChallengeStats{TotalParticipants: 3})
	got, _ = cache.Get(ctx, "c1")
	if got.Stats.TotalParticipants != 3 {
		t.Fatalf("expected stats to be visible after refresh, got %+v", got.Stats)
	}
}

func TestChallengeCacheMissPropagatesNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewChallengeCache(newClient(mr), memory.NewChallengeStore(), time.Minute, nil)
	if _, err := cache.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("challenge:missing") {
		t.Fatalf("misses must not be cached")
	}
}

func TestChallengeCacheSkipsFillRacedByWrite(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	backing := &racingStore{ChallengeRepository: memory.NewChallengeStore()}
	_ = backing.Create(ctx, sampleChallenge())
	cache := NewChallengeCache(newClient(mr), backing, time.Minute, nil)

	// The activation commits and invalidates after the read fetched the draft row.
	backing.afterRead = func() {
		if err := cache.UpdateStatus(ctx, "c1", domain.ChallengeDraft, domain.ChallengeActive, time.Now()); err != nil {
			t.Errorf("update status: %v", err)
		}
	}
	got, err := cache.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ChallengeDraft {
		t.Fatalf("expected the raced read to return the row it fetched, got %s", got.Status)
	}
	if mr.Exists("challenge:c1") {
		t.Fatalf("stale read must not be written back after the invalidation")
	}

	got, _ = cache.Get(ctx, "c1")
	if got.Status != domain.ChallengeActive {
		t.Fatalf("expected active after the write, got %s", got.Status)
	}
	if !mr.Exists("challenge:c1") {
		t.Fatalf("expected an unraced read to fill the cache")
	}
}

// racingStore runs afterRead once, between reading a row and returning it.
type racingStore struct {
	app.ChallengeRepository
	afterRead func()
}

func (s *racingStore) Get(ctx context.Context, id string) (domain.Challenge, error) {
	challenge, err := s.ChallengeRepository.Get(ctx, id)
	if hook := s.afterRead; hook != nil {
		s.afterRead = nil
		hook()
	}
	return challenge, err
}

type countingStore struct {
	app.ChallengeRepository
	gets int
}

func (s *countingStore) Get(ctx context.Context, id string) (domain.Challenge, error) {
	s.gets++
	return s.ChallengeRepository.Get(ctx, id)
}

func sampleChallenge() domain.Challenge {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return domain.Challenge{
		ID:        "c1",
		Title:     "Speed round",
		Type:      "quiz",
		Status:    domain.ChallengeDraft,
		StartDate: start,
		EndDate:   start.Add(48 * time.Hour),
		Rewards:   domain.Rewards{Points: 100, CertificateEnabled: true},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
