package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"challenge-engine/internal/infra/files"
	"challenge-engine/internal/infra/memory"
	"challenge-engine/internal/infra/postgres"
	pgmigrations "challenge-engine/internal/infra/postgres/migrations"
	infraredis "challenge-engine/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/sync/errgroup"
)

func TestChallengeLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.OpenDB(pgURL)
	defer db.Close()
	runMigrations(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	challenges := infraredis.NewChallengeCache(redisClient, postgres.NewChallengeStore(db), time.Minute, nil)
	participants := postgres.NewParticipantStore(db, pool)
	engine := app.NewEngine(app.EngineDeps{
		Challenges:   challenges,
		Participants: participants,
		Certificates: postgres.NewCertificateStore(db),
		Locker:       infraredis.NewLocker(redisClient, 5*time.Second),
		Users: memory.NewStaticDirectory(map[string]domain.UserProfile{
			"u1": {UserID: "u1", DisplayName: "Alice"},
		}),
		Signer: files.NewHMACSigner("https://certs.example.com", "secret", time.Minute, nil),
	})

	capacity := 3
	start := time.Now().Add(time.Second)
	challenge, err := engine.Challenges.Create(ctx, app.CreateChallengeInput{
		Title:     "Integration sprint",
		Type:      "quiz",
		StartDate: start,
		EndDate:   start.Add(24 * time.Hour),
		Settings:  domain.Settings{MaxParticipants: &capacity, IsPublic: true},
		Rewards:   domain.Rewards{Points: 10, CertificateEnabled: true},
		CreatedBy: "admin",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(time.Until(start))
	if _, err := engine.Challenges.Activate(ctx, challenge.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Concurrent joins race on the capacity lock and the (challenge, user) unique key.
	users := []string{"u1", "u1", "u2", "u3", "u4", "u5"}
	var g errgroup.Group
	admitted := make(chan string, len(users))
	for _, userID := range users {
		g.Go(func() error {
			_, err := engine.Participation.Join(ctx, challenge.ID, userID)
			switch {
			case err == nil:
				admitted <- userID
			case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrCapacityExceeded):
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("join: %v", err)
	}
	close(admitted)
	if len(admitted) != 3 {
		t.Fatalf("expected 3 admitted participants, got %d", len(admitted))
	}

	count, err := participants.Count(ctx, challenge.ID)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 stored participants, got %d (%v)", count, err)
	}

	var finisher string
	for userID := range admitted {
		finisher = userID
		break
	}
	if _, err := engine.Participation.StartAttempt(ctx, challenge.ID, finisher); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, correct := range []bool{true, false} {
		_, err := engine.Participation.SubmitResponse(ctx, challenge.ID, finisher, app.ResponseInput{
			QuestionID:     fmt.Sprintf("q%d", i+1),
			Correct:        correct,
			TotalQuestions: 2,
		})
		if err != nil {
			t.Fatalf("respond: %v", err)
		}
	}
	done, err := engine.Participation.Complete(ctx, challenge.ID, finisher, app.CompleteInput{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Score != 50 || done.Achievements.LeaderboardPosition == nil || *done.Achievements.LeaderboardPosition != 1 {
		t.Fatalf("unexpected completion %+v", done)
	}

	stored, err := engine.Challenges.Get(ctx, challenge.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Stats.TotalParticipants != 3 || stored.Stats.CompletedParticipants != 1 || stored.Stats.TopScore != 50 {
		t.Fatalf("unexpected stats %+v", stored.Stats)
	}

	issue := app.IssueInput{UserID: finisher, ChallengeID: challenge.ID, ParticipantID: done.ID}
	cert, err := engine.Certificates.Issue(ctx, issue)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	again, err := engine.Certificates.Issue(ctx, issue)
	if !errors.Is(err, domain.ErrCertificateExists) || again.CertificateID != cert.CertificateID {
		t.Fatalf("expected existing certificate, got %+v (%v)", again, err)
	}

	for i := 1; i <= 2; i++ {
		v, err := engine.Certificates.Verify(ctx, strings.ToLower(cert.VerificationCode))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if v.Certificate.Metadata.VerificationCount != i {
			t.Fatalf("expected verification count %d, got %d", i, v.Certificate.Metadata.VerificationCount)
		}
	}

	if _, err := engine.Certificates.Revoke(ctx, cert.CertificateID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := engine.Certificates.Verify(ctx, cert.VerificationCode); !errors.Is(err, domain.ErrCertificateInvalid) {
		t.Fatalf("expected revoked certificate to fail verification, got %v", err)
	}
}

func runMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "engine", "POSTGRES_PASSWORD": "enginepass", "POSTGRES_DB": "challenges"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://engine:enginepass@%s:%s/challenges?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
