package postgres

import (
	"context"
	"fmt"
	"time"

	"challenge-engine/internal/domain"
	"github.com/uptrace/bun"
)

// CertificateStore persists certificates; the three uniqueness rules are table constraints.
type CertificateStore struct {
	db *bun.DB
}

func NewCertificateStore(db *bun.DB) *CertificateStore {
	return &CertificateStore{db: db}
}

func (s *CertificateStore) Create(ctx context.Context, certificate domain.Certificate) error {
	row := toCertificateRow(certificate)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		switch uniqueConstraint(err) {
		case "":
			return fmt.Errorf("insert certificate: %w", err)
		case "challenge_certificates_user_challenge_key":
			return domain.ErrCertificateExists
		default:
			return domain.ErrDuplicateCertificateID
		}
	}
	return nil
}

func (s *CertificateStore) GetByID(ctx context.Context, certificateID string) (domain.Certificate, error) {
	return s.getOne(ctx, "cc.certificate_id = ?", certificateID)
}

func (s *CertificateStore) GetByCode(ctx context.Context, code string) (domain.Certificate, error) {
	return s.getOne(ctx, "cc.verification_code = ?", code)
}

func (s *CertificateStore) GetByUserChallenge(ctx context.Context, userID, challengeID string) (domain.Certificate, error) {
	var row certificateRow
	err := s.db.NewSelect().Model(&row).
		Where("cc.user_id = ?", userID).
		Where("cc.challenge_id = ?", challengeID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return domain.Certificate{}, domain.ErrCertificateNotFound
		}
		return domain.Certificate{}, fmt.Errorf("select certificate: %w", err)
	}
	return row.toDomain(), nil
}

func (s *CertificateStore) ListByUser(ctx context.Context, userID string) ([]domain.Certificate, error) {
	var rows []certificateRow
	err := s.db.NewSelect().Model(&rows).
		Where("cc.user_id = ?", userID).
		OrderExpr("cc.issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	out := make([]domain.Certificate, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *CertificateStore) IncrementCounter(ctx context.Context, certificateID string, counter domain.CertificateCounter) (domain.Certificate, error) {
	col, err := counterColumn(counter)
	if err != nil {
		return domain.Certificate{}, err
	}
	var row certificateRow
	err = s.db.NewUpdate().
		Model(&row).
		Set("? = ? + 1", bun.Ident(col), bun.Ident(col)).
		Where("certificate_id = ?", certificateID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return domain.Certificate{}, domain.ErrCertificateNotFound
		}
		return domain.Certificate{}, fmt.Errorf("increment %s: %w", col, err)
	}
	return row.toDomain(), nil
}

func (s *CertificateStore) UpdateStatus(ctx context.Context, certificateID string, status domain.CertificateStatus, at time.Time) error {
	q := s.db.NewUpdate().
		Model((*certificateRow)(nil)).
		Set("status = ?", string(status)).
		Where("certificate_id = ?", certificateID)
	if status == domain.CertificateRevoked {
		q = q.Set("revoked_at = ?", at)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update certificate status: %w", err)
	}
	return requireRow(res, domain.ErrCertificateNotFound)
}

func (s *CertificateStore) getOne(ctx context.Context, where string, arg string) (domain.Certificate, error) {
	var row certificateRow
	if err := s.db.NewSelect().Model(&row).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return domain.Certificate{}, domain.ErrCertificateNotFound
		}
		return domain.Certificate{}, fmt.Errorf("select certificate: %w", err)
	}
	return row.toDomain(), nil
}

func counterColumn(counter domain.CertificateCounter) (string, error) {
	switch counter {
	case domain.CounterDownload:
		return "download_count", nil
	case domain.CounterShare:
		return "share_count", nil
	case domain.CounterVerification:
		return "verification_count", nil
	}
	return "", domain.Validationf("certificate.store", "unknown counter %q", counter)
}
