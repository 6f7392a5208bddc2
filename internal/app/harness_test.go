package app_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"challenge-engine/internal/infra/files"
	"challenge-engine/internal/infra/memory"
)

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	*app.Engine
	clock        *testClock
	challenges   *memory.ChallengeStore
	participants *memory.ParticipantStore
	certificates *memory.CertificateStore
	users        *memory.StaticDirectory
}

func newHarness() *harness {
	return newHarnessWith(nil)
}

// newHarnessWith lets a test adjust the engine dependencies before the engine is built.
func newHarnessWith(mutate func(*app.EngineDeps)) *harness {
	clock := &testClock{now: baseTime}
	h := &harness{
		clock:        clock,
		challenges:   memory.NewChallengeStore(),
		participants: memory.NewParticipantStore(),
		certificates: memory.NewCertificateStore(),
		users: memory.NewStaticDirectory(map[string]domain.UserProfile{
			"alice": {UserID: "alice", DisplayName: "Alice"},
			"bob":   {UserID: "bob", DisplayName: "Bob"},
		}),
	}
	deps := app.EngineDeps{
		Challenges:   h.challenges,
		Participants: h.participants,
		Certificates: h.certificates,
		Locker:       memory.NewKeyedLocker(),
		Users:        h.users,
		Signer:       files.NewHMACSigner("https://certs.example.com", "secret", time.Minute, clock.Now),
		Now:          clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.Engine = app.NewEngine(deps)
	return h
}

func challengeInput() app.CreateChallengeInput {
	return app.CreateChallengeInput{
		Title:     "Spring sprint",
		Type:      "quiz",
		StartDate: baseTime,
		EndDate:   baseTime.Add(48 * time.Hour),
		Rewards: domain.Rewards{
			Points:             100,
			Badge:              "Sprinter",
			CertificateEnabled: true,
			PositionTiers:      domain.PositionTiers{First: 50, Second: 30, Third: 20, Participation: 5},
		},
		CreatedBy: "admin",
	}
}

// activeChallenge creates and activates a challenge; mutate tweaks the input first.
func (h *harness) activeChallenge(t *testing.T, mutate func(*app.CreateChallengeInput)) domain.Challenge {
	t.Helper()
	in := challengeInput()
	if mutate != nil {
		mutate(&in)
	}
	ctx := context.Background()
	challenge, err := h.Challenges.Create(ctx, in)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	challenge, err = h.Challenges.Activate(ctx, challenge.ID)
	if err != nil {
		t.Fatalf("activate challenge: %v", err)
	}
	return challenge
}

// finish joins, answers and completes for userID; answers holds the correctness of each response.
func (h *harness) finish(t *testing.T, challengeID, userID string, answers ...bool) domain.Participant {
	t.Helper()
	ctx := context.Background()
	if _, err := h.Participation.Join(ctx, challengeID, userID); err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	if _, err := h.Participation.StartAttempt(ctx, challengeID, userID); err != nil {
		t.Fatalf("start %s: %v", userID, err)
	}
	for i, correct := range answers {
		_, err := h.Participation.SubmitResponse(ctx, challengeID, userID, app.ResponseInput{
			QuestionID:     questionID(i),
			Correct:        correct,
			TotalQuestions: len(answers),
		})
		if err != nil {
			t.Fatalf("respond %s: %v", userID, err)
		}
	}
	p, err := h.Participation.Complete(ctx, challengeID, userID, app.CompleteInput{})
	if err != nil {
		t.Fatalf("complete %s: %v", userID, err)
	}
	return p
}

func questionID(i int) string {
	return "q" + strconv.Itoa(i+1)
}

func intPtr(v int) *int { return &v }
