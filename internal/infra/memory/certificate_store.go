package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"challenge-engine/internal/domain"
)

// CertificateStore is an in-memory implementation of app.CertificateRepository.
// It enforces the same three uniqueness constraints as the Postgres schema.
type CertificateStore struct {
	mu     sync.RWMutex
	byID   map[string]domain.Certificate
	byCode map[string]string
	byPair map[string]string
}

func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		byID:   make(map[string]domain.Certificate),
		byCode: make(map[string]string),
		byPair: make(map[string]string),
	}
}

func pairKey(userID, challengeID string) string {
	return userID + "\x00" + challengeID
}

func (s *CertificateStore) Create(_ context.Context, cert domain.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := pairKey(cert.UserID, cert.ChallengeID)
	if _, ok := s.byPair[pk]; ok {
		return domain.ErrCertificateExists
	}
	if _, ok := s.byID[cert.CertificateID]; ok {
		return domain.ErrDuplicateCertificateID
	}
	if _, ok := s.byCode[cert.VerificationCode]; ok {
		return domain.ErrDuplicateCertificateID
	}
	s.byID[cert.CertificateID] = cloneCertificate(cert)
	s.byCode[cert.VerificationCode] = cert.CertificateID
	s.byPair[pk] = cert.CertificateID
	return nil
}

func (s *CertificateStore) GetByID(_ context.Context, certificateID string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byID[certificateID]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return cloneCertificate(cert), nil
}

func (s *CertificateStore) GetByCode(_ context.Context, code string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return cloneCertificate(s.byID[id]), nil
}

func (s *CertificateStore) GetByUserChallenge(_ context.Context, userID, challengeID string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey(userID, challengeID)]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return cloneCertificate(s.byID[id]), nil
}

func (s *CertificateStore) ListByUser(_ context.Context, userID string) ([]domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Certificate{}
	for _, cert := range s.byID {
		if cert.UserID == userID {
			out = append(out, cloneCertificate(cert))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (s *CertificateStore) IncrementCounter(_ context.Context, certificateID string, counter domain.CertificateCounter) (domain.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[certificateID]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	switch counter {
	case domain.CounterDownload:
		cert.Metadata.DownloadCount++
	case domain.CounterShare:
		cert.Metadata.ShareCount++
	case domain.CounterVerification:
		cert.Metadata.VerificationCount++
	default:
		return domain.Certificate{}, domain.Validationf("certificate.store", "unknown counter %q", counter)
	}
	s.byID[certificateID] = cert
	return cloneCertificate(cert), nil
}

func (s *CertificateStore) UpdateStatus(_ context.Context, certificateID string, status domain.CertificateStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[certificateID]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	cert.Status = status
	if status == domain.CertificateRevoked {
		cert.RevokedAt = &at
	}
	s.byID[certificateID] = cert
	return nil
}

func cloneCertificate(c domain.Certificate) domain.Certificate {
	if c.Template != nil {
		tpl := make(map[string]string, len(c.Template))
		for k, v := range c.Template {
			tpl[k] = v
		}
		c.Template = tpl
	}
	if c.ExpiresAt != nil {
		v := *c.ExpiresAt
		c.ExpiresAt = &v
	}
	if c.RevokedAt != nil {
		v := *c.RevokedAt
		c.RevokedAt = &v
	}
	return c
}
