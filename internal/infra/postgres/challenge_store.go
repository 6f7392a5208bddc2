package postgres

import (
	"context"
	"fmt"
	"time"

	"challenge-engine/internal/app"
	"challenge-engine/internal/domain"
	"github.com/uptrace/bun"
)

// ChallengeStore persists challenges in the challenges table.
type ChallengeStore struct {
	db *bun.DB
}

func NewChallengeStore(db *bun.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) Create(ctx context.Context, challenge domain.Challenge) error {
	row := toChallengeRow(challenge)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if uniqueConstraint(err) != "" {
			return domain.NewError(domain.ErrAlreadyExists, "challenge.store", "challenge id already exists")
		}
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (domain.Challenge, error) {
	var row challengeRow
	err := s.db.NewSelect().Model(&row).Where("c.id = ?", id).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return domain.Challenge{}, domain.ErrChallengeNotFound
		}
		return domain.Challenge{}, fmt.Errorf("select challenge: %w", err)
	}
	return row.toDomain(), nil
}

func (s *ChallengeStore) List(ctx context.Context, filter app.ChallengeFilter) ([]domain.Challenge, int, error) {
	var rows []challengeRow
	q := s.db.NewSelect().Model(&rows)
	if filter.Status != "" {
		q = q.Where("c.status = ?", string(filter.Status))
	}
	if filter.Type != "" {
		q = q.Where("lower(c.type) = lower(?)", filter.Type)
	}
	if filter.Category != "" {
		q = q.Where("lower(c.requirements->>'category') = lower(?)", filter.Category)
	}
	if filter.Difficulty != "" {
		q = q.Where("lower(c.requirements->>'difficulty') = lower(?)", filter.Difficulty)
	}
	if filter.CreatedBy != "" {
		q = q.Where("c.created_by = ?", filter.CreatedBy)
	}
	if filter.PublicOnly {
		q = q.Where("(c.settings->>'isPublic')::boolean IS TRUE")
	}

	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	q = q.OrderExpr(sortColumn(filter.SortBy) + " " + dir).
		OrderExpr("c.created_at " + dir).
		OrderExpr("c.id " + dir)

	if filter.Limit > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		q = q.Limit(filter.Limit).Offset((page - 1) * filter.Limit)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list challenges: %w", err)
	}
	out := make([]domain.Challenge, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, total, nil
}

func (s *ChallengeStore) Update(ctx context.Context, challenge domain.Challenge) error {
	row := toChallengeRow(challenge)
	res, err := s.db.NewUpdate().
		Model(&row).
		Column("title", "description", "type", "requirements", "start_date", "end_date",
			"rewards", "settings", "created_by", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	return requireRow(res, domain.ErrChallengeNotFound)
}

func (s *ChallengeStore) UpdateStatus(ctx context.Context, id string, from, to domain.ChallengeStatus, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*challengeRow)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update challenge status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().Model((*challengeRow)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check challenge: %w", err)
	}
	if !exists {
		return domain.ErrChallengeNotFound
	}
	return domain.NewError(domain.ErrStateConflict, "challenge.store", "status changed concurrently")
}

func (s *ChallengeStore) UpdateStats(ctx context.Context, id string, stats domain.ChallengeStats) error {
	res, err := s.db.NewUpdate().
		Model((*challengeRow)(nil)).
		Set("total_participants = ?", stats.TotalParticipants).
		Set("completed_participants = ?", stats.CompletedParticipants).
		Set("average_score = ?", stats.AverageScore).
		Set("top_score = ?", stats.TopScore).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update challenge stats: %w", err)
	}
	return requireRow(res, domain.ErrChallengeNotFound)
}

func (s *ChallengeStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*challengeRow)(nil)).Where("id = ?", id).Exec(ctx)
	if isForeignKeyViolation(err) {
		return domain.ErrParticipantsExist
	}
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return requireRow(res, domain.ErrChallengeNotFound)
}

func (s *ChallengeStore) ListOverdue(ctx context.Context, now time.Time) ([]domain.Challenge, error) {
	var rows []challengeRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("c.status = ?", string(domain.ChallengeActive)).
		Where("c.end_date < ?", now).
		OrderExpr("c.end_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overdue challenges: %w", err)
	}
	out := make([]domain.Challenge, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func sortColumn(sortBy string) string {
	switch sortBy {
	case "start":
		return "c.start_date"
	case "end":
		return "c.end_date"
	case "participants":
		return "c.total_participants"
	default:
		return "c.created_at"
	}
}
