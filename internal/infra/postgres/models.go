package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"challenge-engine/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type challengeRow struct {
	bun.BaseModel `bun:"table:challenges,alias:c"`

	ID                    string              `bun:"id,pk"`
	Title                 string              `bun:"title,notnull"`
	Description           string              `bun:"description,notnull"`
	Type                  string              `bun:"type,notnull"`
	Requirements          domain.Requirements `bun:"requirements,type:jsonb"`
	Status                string              `bun:"status,notnull"`
	StartDate             time.Time           `bun:"start_date,notnull"`
	EndDate               time.Time           `bun:"end_date,notnull"`
	Rewards               domain.Rewards      `bun:"rewards,type:jsonb"`
	Settings              domain.Settings     `bun:"settings,type:jsonb"`
	TotalParticipants     int                 `bun:"total_participants,notnull"`
	CompletedParticipants int                 `bun:"completed_participants,notnull"`
	AverageScore          float64             `bun:"average_score,notnull"`
	TopScore              int                 `bun:"top_score,notnull"`
	CreatedBy             string              `bun:"created_by,notnull"`
	CreatedAt             time.Time           `bun:"created_at,notnull"`
	UpdatedAt             time.Time           `bun:"updated_at,notnull"`
}

func toChallengeRow(c domain.Challenge) challengeRow {
	return challengeRow{
		ID:                    c.ID,
		Title:                 c.Title,
		Description:           c.Description,
		Type:                  c.Type,
		Requirements:          c.Requirements,
		Status:                string(c.Status),
		StartDate:             c.StartDate,
		EndDate:               c.EndDate,
		Rewards:               c.Rewards,
		Settings:              c.Settings,
		TotalParticipants:     c.Stats.TotalParticipants,
		CompletedParticipants: c.Stats.CompletedParticipants,
		AverageScore:          c.Stats.AverageScore,
		TopScore:              c.Stats.TopScore,
		CreatedBy:             c.CreatedBy,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func (r challengeRow) toDomain() domain.Challenge {
	return domain.Challenge{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Type:         r.Type,
		Requirements: r.Requirements,
		Status:       domain.ChallengeStatus(r.Status),
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		Rewards:      r.Rewards,
		Settings:     r.Settings,
		Stats: domain.ChallengeStats{
			TotalParticipants:     r.TotalParticipants,
			CompletedParticipants: r.CompletedParticipants,
			AverageScore:          r.AverageScore,
			TopScore:              r.TopScore,
		},
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:challenge_participants,alias:p"`

	ID             string              `bun:"id,pk"`
	ChallengeID    string              `bun:"challenge_id,notnull"`
	UserID         string              `bun:"user_id,notnull"`
	Status         string              `bun:"status,notnull"`
	Attempts       int                 `bun:"attempts,notnull"`
	CurrentAttempt domain.Attempt      `bun:"current_attempt,type:jsonb"`
	Score          int                 `bun:"score,notnull"`
	MaxScore       int                 `bun:"max_score,notnull"`
	Accuracy       float64             `bun:"accuracy,notnull"`
	Achievements   domain.Achievements `bun:"achievements,type:jsonb"`
	JoinedAt       time.Time           `bun:"joined_at,notnull"`
	CompletedAt    *time.Time          `bun:"completed_at"`
	TimeSpent      int                 `bun:"time_spent,notnull"`
}

func toParticipantRow(p domain.Participant) participantRow {
	return participantRow{
		ID:             p.ID,
		ChallengeID:    p.ChallengeID,
		UserID:         p.UserID,
		Status:         string(p.Status),
		Attempts:       p.Attempts,
		CurrentAttempt: p.CurrentAttempt,
		Score:          p.Score,
		MaxScore:       p.MaxScore,
		Accuracy:       p.Accuracy,
		Achievements:   p.Achievements,
		JoinedAt:       p.JoinedAt,
		CompletedAt:    p.CompletedAt,
		TimeSpent:      p.TimeSpent,
	}
}

func (r participantRow) toDomain() domain.Participant {
	return domain.Participant{
		ID:             r.ID,
		ChallengeID:    r.ChallengeID,
		UserID:         r.UserID,
		Status:         domain.ParticipantStatus(r.Status),
		Attempts:       r.Attempts,
		CurrentAttempt: r.CurrentAttempt,
		Score:          r.Score,
		MaxScore:       r.MaxScore,
		Accuracy:       r.Accuracy,
		Achievements:   r.Achievements,
		JoinedAt:       r.JoinedAt,
		CompletedAt:    r.CompletedAt,
		TimeSpent:      r.TimeSpent,
	}
}

type certificateRow struct {
	bun.BaseModel `bun:"table:challenge_certificates,alias:cc"`

	CertificateID     string                     `bun:"certificate_id,pk"`
	VerificationCode  string                     `bun:"verification_code,notnull"`
	UserID            string                     `bun:"user_id,notnull"`
	ChallengeID       string                     `bun:"challenge_id,notnull"`
	ParticipantID     string                     `bun:"participant_id,notnull"`
	Achievement       domain.AchievementSnapshot `bun:"achievement,type:jsonb"`
	Status            string                     `bun:"status,notnull"`
	Template          map[string]string          `bun:"template,type:jsonb"`
	DownloadCount     int                        `bun:"download_count,notnull"`
	ShareCount        int                        `bun:"share_count,notnull"`
	VerificationCount int                        `bun:"verification_count,notnull"`
	IssuedAt          time.Time                  `bun:"issued_at,notnull"`
	ExpiresAt         *time.Time                 `bun:"expires_at"`
	RevokedAt         *time.Time                 `bun:"revoked_at"`
}

func toCertificateRow(c domain.Certificate) certificateRow {
	return certificateRow{
		CertificateID:     c.CertificateID,
		VerificationCode:  c.VerificationCode,
		UserID:            c.UserID,
		ChallengeID:       c.ChallengeID,
		ParticipantID:     c.ParticipantID,
		Achievement:       c.Achievement,
		Status:            string(c.Status),
		Template:          c.Template,
		DownloadCount:     c.Metadata.DownloadCount,
		ShareCount:        c.Metadata.ShareCount,
		VerificationCount: c.Metadata.VerificationCount,
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		RevokedAt:         c.RevokedAt,
	}
}

func (r certificateRow) toDomain() domain.Certificate {
	return domain.Certificate{
		CertificateID:    r.CertificateID,
		VerificationCode: r.VerificationCode,
		UserID:           r.UserID,
		ChallengeID:      r.ChallengeID,
		ParticipantID:    r.ParticipantID,
		Achievement:      r.Achievement,
		Status:           domain.CertificateStatus(r.Status),
		Template:         r.Template,
		Metadata: domain.CertificateMetadata{
			DownloadCount:     r.DownloadCount,
			ShareCount:        r.ShareCount,
			VerificationCount: r.VerificationCount,
		},
		IssuedAt:  r.IssuedAt,
		ExpiresAt: r.ExpiresAt,
		RevokedAt: r.RevokedAt,
	}
}

// uniqueConstraint returns the violated constraint name for a unique violation, or "".
func uniqueConstraint(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return pgErr.Field('n')
	}
	return ""
}

func isForeignKeyViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == foreignKeyViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// requireRow maps a zero-row write to notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
