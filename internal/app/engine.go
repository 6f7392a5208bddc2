package app

import (
	"time"

	"challenge-engine/internal/logger"
)

// Engine bundles the services that share one set of repositories and one clock.
type Engine struct {
	Challenges    *ChallengeService
	Participation *ParticipationService
	Certificates  *CertificateService
	Leaderboards  *Leaderboards
	Stats         *StatsAggregator
	Hub           *LeaderboardHub
}

// EngineDeps are the storage and collaborator implementations an Engine runs on.
type EngineDeps struct {
	Challenges          ChallengeRepository
	Participants        ParticipantRepository
	Certificates        CertificateRepository
	Locker              Locker
	Users               UserDirectory
	Signer              URLSigner
	Logger              *logger.Logger
	Now                 func() time.Time
	DefaultMaxScore     int
	CertificateValidity time.Duration
}

func NewEngine(deps EngineDeps) *Engine {
	log := logger.OrNop(deps.Logger)
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	challenges := NewChallengeService(deps.Challenges, deps.Participants, deps.Locker, log.With("component", "challenges"), now)
	boards := NewLeaderboards(deps.Participants, deps.Users, log.With("component", "leaderboard"), now)
	stats := NewStatsAggregator(deps.Challenges, deps.Participants, deps.Locker, log.With("component", "stats"))
	hub := NewLeaderboardHub()

	participation := NewParticipationService(ParticipationDeps{
		Challenges:      challenges,
		Participants:    deps.Participants,
		Locker:          deps.Locker,
		Stats:           stats,
		Leaderboards:    boards,
		Hub:             hub,
		Logger:          log.With("component", "participation"),
		Now:             now,
		DefaultMaxScore: deps.DefaultMaxScore,
	})
	certificates := NewCertificateService(CertificateDeps{
		Certificates: deps.Certificates,
		Participants: deps.Participants,
		Challenges:   deps.Challenges,
		Leaderboards: boards,
		Users:        deps.Users,
		Signer:       deps.Signer,
		Logger:       log.With("component", "certificates"),
		Now:          now,
		Validity:     deps.CertificateValidity,
	})

	return &Engine{
		Challenges:    challenges,
		Participation: participation,
		Certificates:  certificates,
		Leaderboards:  boards,
		Stats:         stats,
		Hub:           hub,
	}
}
