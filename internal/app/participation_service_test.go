package app_test

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"golang.org/x/sync/errgroup"
)

func TestJoinTwiceFailsWithoutTouchingStats(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, nil)

	p, err := h.Participation.Join(ctx, challenge.ID, "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.Status != domain.ParticipantRegistered || p.MaxScore != 100 {
		t.Fatalf("unexpected participant %+v", p)
	}
	if _, err := h.Participation.Join(ctx, challenge.ID, "alice"); !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}

	stored, _ := h.challenges.Get(ctx, challenge.ID)
	if stored.Stats.TotalParticipants != 1 {
		t.Fatalf("expected totalParticipants 1, got %d", stored.Stats.TotalParticipants)
	}
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, func(in *app.CreateChallengeInput) {
		in.Settings.MaxParticipants = intPtr(5)
	})

	var admitted, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		user := "user-" + strconv.Itoa(i)
		g.Go(func() error {
			_, err := h.Participation.Join(ctx, challenge.ID, user)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domain.ErrCapacityExceeded):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	if admitted.Load() != 5 || rejected.Load() != 15 {
		t.Fatalf("expected 5 admitted and 15 rejected, got %d and %d", admitted.Load(), rejected.Load())
	}
	if n, _ := h.participants.Count(ctx, challenge.ID); n != 5 {
		t.Fatalf("expected 5 stored participants, got %d", n)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, func(in *app.CreateChallengeInput) {
		in.Requirements.TimeLimit = 30
	})

	if _, err := h.Participation.Join(ctx, challenge.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := h.Participation.SubmitResponse(ctx, challenge.ID, "alice", app.ResponseInput{QuestionID: "q1", TotalQuestions: 10}); !errors.Is(err, domain.ErrNoActiveAttempt) {
		t.Fatalf("expected no active attempt, got %v", err)
	}
	started, err := h.Participation.StartAttempt(ctx, challenge.ID, "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.ParticipantInProgress || started.Attempts != 1 || started.CurrentAttempt.StartedAt == nil {
		t.Fatalf("unexpected started participant %+v", started)
	}

	var last domain.Participant
	for i := 0; i < 10; i++ {
		last, err = h.Participation.SubmitResponse(ctx, challenge.ID, "alice", app.ResponseInput{
			QuestionID:     questionID(i),
			Correct:        i < 8,
			TotalQuestions: 10,
		})
		if err != nil {
			t.Fatalf("respond: %v", err)
		}
		if i == 4 && last.CurrentAttempt.Progress != 50 {
			t.Fatalf("expected progress 50 after five answers, got %v", last.CurrentAttempt.Progress)
		}
	}
	if last.Accuracy != 80 || last.CurrentAttempt.Progress != 100 {
		t.Fatalf("unexpected accuracy/progress %v/%v", last.Accuracy, last.CurrentAttempt.Progress)
	}

	h.clock.Advance(20 * time.Minute)
	done, err := h.Participation.Complete(ctx, challenge.ID, "alice", app.CompleteInput{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Score != 83 || done.TimeSpent != 20 || done.Status != domain.ParticipantCompleted {
		t.Fatalf("unexpected completion %+v", done)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(baseTime.Add(20*time.Minute)) {
		t.Fatalf("unexpected completedAt %v", done.CompletedAt)
	}
	// rank 1 with 80% accuracy: base 100 + first tier 50
	if done.Achievements.PointsEarned != 150 || *done.Achievements.LeaderboardPosition != 1 {
		t.Fatalf("unexpected achievements %+v", done.Achievements)
	}

	stored, _ := h.challenges.Get(ctx, challenge.ID)
	want := domain.ChallengeStats{TotalParticipants: 1, CompletedParticipants: 1, AverageScore: 83, TopScore: 83}
	if stored.Stats != want {
		t.Fatalf("expected stats %+v, got %+v", want, stored.Stats)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, nil)

	first := h.finish(t, challenge.ID, "alice", true, false)
	cert, err := h.Certificates.Issue(ctx, app.IssueInput{UserID: "alice", ChallengeID: challenge.ID, ParticipantID: first.ID})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	stored, _ := h.participants.Get(ctx, challenge.ID, "alice")

	h.clock.Advance(time.Hour)
	again, err := h.Participation.Complete(ctx, challenge.ID, "alice", app.CompleteInput{FinalScore: intPtr(99)})
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !reflect.DeepEqual(again, stored) {
		t.Fatalf("second complete changed the row:\n%+v\n%+v", stored, again)
	}
	rank, _ := h.Leaderboards.Rank(ctx, challenge.ID, "alice")
	if rank == nil || *rank != 1 {
		t.Fatalf("expected rank unchanged, got %v", rank)
	}
	current, _ := h.certificates.GetByUserChallenge(ctx, "alice", challenge.ID)
	if current.CertificateID != cert.CertificateID || current.Achievement != cert.Achievement {
		t.Fatalf("certificate changed after repeat completion")
	}
}

func TestStartAttemptLimits(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, func(in *app.CreateChallengeInput) {
		in.Settings.AllowRetries = true
		in.Settings.MaxRetries = 2
	})
	if _, err := h.Participation.Join(ctx, challenge.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := h.Participation.StartAttempt(ctx, challenge.ID, "alice"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, _ = h.Participation.SubmitResponse(ctx, challenge.ID, "alice", app.ResponseInput{QuestionID: "q1", Correct: true, TotalQuestions: 2})

	// Restarting discards the in-flight log.
	restarted, err := h.Participation.StartAttempt(ctx, challenge.ID, "alice")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Attempts != 2 || len(restarted.CurrentAttempt.Responses) != 0 {
		t.Fatalf("unexpected restart %+v", restarted)
	}
	if _, err := h.Participation.StartAttempt(ctx, challenge.ID, "alice"); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts exhausted, got %v", err)
	}

	if _, err := h.Participation.Complete(ctx, challenge.ID, "alice", app.CompleteInput{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := h.Participation.StartAttempt(ctx, challenge.ID, "alice"); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
}

func TestSubmitResponseValidates(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, nil)

	if _, err := h.Participation.SubmitResponse(ctx, challenge.ID, "alice", app.ResponseInput{QuestionID: "q1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing total, got %v", err)
	}
	if _, err := h.Participation.SubmitResponse(ctx, challenge.ID, "alice", app.ResponseInput{QuestionID: "q1", TotalQuestions: 3}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found before joining, got %v", err)
	}
}

func TestCompleteWithCallerScore(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, nil)
	if _, err := h.Participation.Join(ctx, challenge.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := h.Participation.StartAttempt(ctx, challenge.ID, "alice"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := h.Participation.Complete(ctx, challenge.ID, "alice", app.CompleteInput{FinalScore: intPtr(-1)}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	done, err := h.Participation.Complete(ctx, challenge.ID, "alice", app.CompleteInput{FinalScore: intPtr(42), MaxScore: intPtr(50)})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Score != 42 || done.MaxScore != 50 {
		t.Fatalf("expected caller score, got %d/%d", done.Score, done.MaxScore)
	}
}

func TestStatsConvergeUnderConcurrentCompletions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, nil)

	const n = 12
	for i := 0; i < n; i++ {
		user := "user-" + strconv.Itoa(i)
		if _, err := h.Participation.Join(ctx, challenge.ID, user); err != nil {
			t.Fatalf("join: %v", err)
		}
		if _, err := h.Participation.StartAttempt(ctx, challenge.ID, user); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		user := "user-" + strconv.Itoa(i)
		score := 50 + i
		g.Go(func() error {
			_, err := h.Participation.Complete(ctx, challenge.ID, user, app.CompleteInput{FinalScore: &score})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stored, _ := h.challenges.Get(ctx, challenge.ID)
	if stored.Stats.TotalParticipants != n || stored.Stats.CompletedParticipants != n {
		t.Fatalf("stats did not converge: %+v", stored.Stats)
	}
	if stored.Stats.TopScore != 50+n-1 || stored.Stats.AverageScore != 50+float64(n-1)/2 {
		t.Fatalf("unexpected aggregate %+v", stored.Stats)
	}

	lb, err := h.Leaderboards.Leaderboard(ctx, challenge.ID, 100)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for i, entry := range lb.Entries {
		if entry.Position != i+1 || entry.Score != 50+n-1-i {
			t.Fatalf("unexpected entry %d: %+v", i, entry)
		}
	}
}

func TestAbandonRefreshesStats(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	challenge := h.activeChallenge(t, nil)
	if _, err := h.Participation.Join(ctx, challenge.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	p, err := h.Participation.Abandon(ctx, challenge.ID, "alice")
	if err != nil || p.Status != domain.ParticipantAbandoned {
		t.Fatalf("expected abandoned, got %+v (%v)", p, err)
	}
	if _, err := h.Participation.Complete(ctx, challenge.ID, "alice", app.CompleteInput{}); !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("abandoned attempt must not complete, got %v", err)
	}
}
