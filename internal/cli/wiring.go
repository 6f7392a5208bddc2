package cli

import (
	"context"
	"fmt"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/config"
	"challenge-engine/internal/infra/files"
	"challenge-engine/internal/infra/memory"
	"challenge-engine/internal/infra/postgres"
	redisinfra "challenge-engine/internal/infra/redis"
	"challenge-engine/internal/logger"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// buildEngine wires repositories and collaborators from cfg. Without a postgres url the
// engine runs on in-memory stores; without redis it locks in-process and skips caching.
// The returned cleanup closes every opened connection.
func buildEngine(ctx context.Context, cfg config.Config, log *logger.Logger) (*app.Engine, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		challenges   app.ChallengeRepository   = memory.NewChallengeStore()
		participants app.ParticipantRepository = memory.NewParticipantStore()
		certificates app.CertificateRepository = memory.NewCertificateStore()
		locker       app.Locker                = memory.NewKeyedLocker()
	)

	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		challenges = postgres.NewChallengeStore(db)
		participants = postgres.NewParticipantStore(db, pool)
		certificates = postgres.NewCertificateStore(db)
		log.Info("using postgres storage")
	} else {
		log.Warn("postgres url not configured, using in-memory storage")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}

		locker = redisinfra.NewLocker(client, config.TTLDuration(cfg.Engine.LockTTL, 5*time.Second))
		cacheTTL := config.TTLDuration(cfg.Engine.CacheTTL, config.TTLDuration(cfg.Redis.TTL, time.Minute))
		challenges = redisinfra.NewChallengeCache(client, challenges, cacheTTL, log.With("component", "challenge-cache"))
		log.Info("using redis locker and challenge cache", "addr", cfg.Redis.Addr)
	}

	signer, err := buildSigner(ctx, cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	engine := app.NewEngine(app.EngineDeps{
		Challenges:          challenges,
		Participants:        participants,
		Certificates:        certificates,
		Locker:              locker,
		Users:               memory.NewStaticDirectory(nil),
		Signer:              signer,
		Logger:              log,
		DefaultMaxScore:     cfg.Engine.DefaultMaxScore,
		CertificateValidity: config.TTLDuration(cfg.Certificate.Validity, 0),
	})
	return engine, cleanup, nil
}

func buildSigner(ctx context.Context, cfg config.Config, closers *[]func()) (app.URLSigner, error) {
	baseURL := cfg.Certificate.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Server.Port
	}
	linkTTL := config.TTLDuration(cfg.Certificate.LinkTTL, 15*time.Minute)

	if cfg.Certificate.Bucket != "" {
		client, err := files.NewGCSClient(ctx, cfg.Certificate.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("open gcs client: %w", err)
		}
		*closers = append(*closers, func() { _ = client.Close() })
		return files.NewGCSSigner(client, cfg.Certificate.Bucket, baseURL, linkTTL), nil
	}
	return files.NewHMACSigner(baseURL, cfg.Certificate.SigningSecret, linkTTL, nil), nil
}
