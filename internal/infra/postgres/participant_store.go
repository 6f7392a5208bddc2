package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"challenge-engine/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
)

const participantColumns = `id, challenge_id, user_id, status, attempts, current_attempt, score, max_score,
	accuracy, achievements, joined_at, completed_at, time_spent`

// ParticipantStore writes participation rows through bun and serves the ranking
// reads straight from a pgx pool.
type ParticipantStore struct {
	db   *bun.DB
	pool *pgxpool.Pool
}

func NewParticipantStore(db *bun.DB, pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{db: db, pool: pool}
}

func (s *ParticipantStore) Create(ctx context.Context, participant domain.Participant) error {
	row := toParticipantRow(participant)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if uniqueConstraint(err) == "challenge_participants_challenge_user_key" {
			return domain.ErrAlreadyRegistered
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *ParticipantStore) Get(ctx context.Context, challengeID, userID string) (domain.Participant, error) {
	var row participantRow
	err := s.db.NewSelect().Model(&row).
		Where("p.challenge_id = ?", challengeID).
		Where("p.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return domain.Participant{}, domain.ErrParticipantNotFound
		}
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.toDomain(), nil
}

func (s *ParticipantStore) GetByID(ctx context.Context, id string) (domain.Participant, error) {
	var row participantRow
	if err := s.db.NewSelect().Model(&row).Where("p.id = ?", id).Scan(ctx); err != nil {
		if isNoRows(err) {
			return domain.Participant{}, domain.ErrParticipantNotFound
		}
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.toDomain(), nil
}

func (s *ParticipantStore) Update(ctx context.Context, participant domain.Participant) error {
	row := toParticipantRow(participant)
	res, err := s.db.NewUpdate().
		Model(&row).
		ExcludeColumn("id", "challenge_id", "user_id", "joined_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return requireRow(res, domain.ErrParticipantNotFound)
}

func (s *ParticipantStore) Count(ctx context.Context, challengeID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM challenge_participants WHERE challenge_id=$1`, challengeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (s *ParticipantStore) ListByChallenge(ctx context.Context, challengeID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM challenge_participants
		WHERE challenge_id=$1 ORDER BY joined_at, id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return scanParticipants(rows)
}

// ListCompleted returns completed rows in ranking order.
func (s *ParticipantStore) ListCompleted(ctx context.Context, challengeID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM challenge_participants
		WHERE challenge_id=$1 AND status='completed'
		ORDER BY score DESC, completed_at ASC, user_id ASC`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("list completed participants: %w", err)
	}
	return scanParticipants(rows)
}

func scanParticipants(rows pgx.Rows) ([]domain.Participant, error) {
	defer rows.Close()
	var out []domain.Participant
	for rows.Next() {
		var (
			p                     domain.Participant
			status                string
			attempt, achievements []byte
		)
		err := rows.Scan(&p.ID, &p.ChallengeID, &p.UserID, &status, &p.Attempts, &attempt,
			&p.Score, &p.MaxScore, &p.Accuracy, &achievements, &p.JoinedAt, &p.CompletedAt, &p.TimeSpent)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Status = domain.ParticipantStatus(status)
		if err := json.Unmarshal(attempt, &p.CurrentAttempt); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		if err := json.Unmarshal(achievements, &p.Achievements); err != nil {
			return nil, fmt.Errorf("unmarshal achievements: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return out, nil
}
