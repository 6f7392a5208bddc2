package app

import (
	"context"
	"time"

	"challenge-engine/internal/domain"
)

// ChallengeFilter narrows and orders List results.
type ChallengeFilter struct {
	Status     domain.ChallengeStatus
	Type       string
	Category   string
	Difficulty string
	CreatedBy  string
	PublicOnly bool
	SortBy     string // created, start, end, participants
	SortDesc   bool
	Page       int // 1-based
	Limit      int
}

// ChallengeRepository abstracts challenge storage (in-memory, Postgres, cached).
type ChallengeRepository interface {
	Create(ctx context.Context, challenge domain.Challenge) error
	Get(ctx context.Context, id string) (domain.Challenge, error)
	List(ctx context.Context, filter ChallengeFilter) ([]domain.Challenge, int, error)
	// Update writes every field except Status and Stats.
	Update(ctx context.Context, challenge domain.Challenge) error
	// UpdateStatus is a compare-and-set; it fails with ErrStateConflict when the stored status is not from.
	// at becomes the row's updated time.
	UpdateStatus(ctx context.Context, id string, from, to domain.ChallengeStatus, at time.Time) error
	// UpdateStats only touches the stats columns.
	UpdateStats(ctx context.Context, id string, stats domain.ChallengeStats) error
	Delete(ctx context.Context, id string) error
	ListOverdue(ctx context.Context, now time.Time) ([]domain.Challenge, error)
}

// ParticipantRepository stores participation rows; (challengeID, userID) is unique.
type ParticipantRepository interface {
	// Create fails with domain.ErrAlreadyRegistered on a duplicate (challengeID, userID).
	Create(ctx context.Context, participant domain.Participant) error
	Get(ctx context.Context, challengeID, userID string) (domain.Participant, error)
	GetByID(ctx context.Context, id string) (domain.Participant, error)
	Update(ctx context.Context, participant domain.Participant) error
	Count(ctx context.Context, challengeID string) (int, error)
	ListByChallenge(ctx context.Context, challengeID string) ([]domain.Participant, error)
	ListCompleted(ctx context.Context, challengeID string) ([]domain.Participant, error)
}

// CertificateRepository stores certificates; (userID, challengeID), certificateID and
// verificationCode are each unique.
type CertificateRepository interface {
	// Create returns domain.ErrCertificateExists for a duplicate (userID, challengeID) and
	// domain.ErrDuplicateCertificateID for an id/code collision.
	Create(ctx context.Context, certificate domain.Certificate) error
	GetByID(ctx context.Context, certificateID string) (domain.Certificate, error)
	GetByCode(ctx context.Context, code string) (domain.Certificate, error)
	GetByUserChallenge(ctx context.Context, userID, challengeID string) (domain.Certificate, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Certificate, error)
	// IncrementCounter atomically bumps one counter and returns the updated certificate.
	IncrementCounter(ctx context.Context, certificateID string, counter domain.CertificateCounter) (domain.Certificate, error)
	UpdateStatus(ctx context.Context, certificateID string, status domain.CertificateStatus, at time.Time) error
}

// Locker serializes work per key, in-process or across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserDirectory resolves display data for users.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (domain.UserProfile, error)
}

// URLSigner produces links for certificate artifacts held by external file storage.
type URLSigner interface {
	DownloadURL(ctx context.Context, certificate domain.Certificate) (string, error)
	ShareURL(ctx context.Context, certificate domain.Certificate) (string, error)
}

func challengeLockKey(challengeID string) string {
	return "challenge:" + challengeID
}

func statsLockKey(challengeID string) string {
	return "challenge-stats:" + challengeID
}
