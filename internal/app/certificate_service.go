package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"challenge-engine/internal/domain"
	"challenge-engine/internal/logger"
)

const maxTokenAttempts = 5

// IssueInput requests a certificate for a completed participation.
type IssueInput struct {
	UserID        string            `json:"userId"`
	ChallengeID   string            `json:"challengeId"`
	ParticipantID string            `json:"participantId"`
	Template      map[string]string `json:"template,omitempty"`
}

// Verification is the public view of a verified certificate.
type Verification struct {
	Certificate domain.Certificate `json:"certificate"`
	Recipient   domain.UserProfile `json:"recipient"`
	Challenge   ChallengeSummary   `json:"challenge"`
}

// ChallengeSummary is the minimal challenge projection shown on verification.
type ChallengeSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// CertificateLink is returned by Download and Share.
type CertificateLink struct {
	Certificate domain.Certificate `json:"certificate"`
	URL         string             `json:"url"`
}

// CertificateService issues certificates once per (user, challenge) and tracks their use.
type CertificateService struct {
	certificates CertificateRepository
	participants ParticipantRepository
	challenges   ChallengeRepository
	boards       *Leaderboards
	users        UserDirectory
	signer       URLSigner
	log          *logger.Logger
	now          func() time.Time
	validity     time.Duration

	newID   func() (string, error)
	newCode func() (string, error)
}

// CertificateDeps groups the collaborators of CertificateService.
type CertificateDeps struct {
	Certificates CertificateRepository
	Participants ParticipantRepository
	Challenges   ChallengeRepository
	Leaderboards *Leaderboards
	Users        UserDirectory
	Signer       URLSigner
	Logger       *logger.Logger
	Now          func() time.Time
	// Validity bounds how long an issued certificate verifies; zero means forever.
	Validity time.Duration
}

func NewCertificateService(deps CertificateDeps) *CertificateService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &CertificateService{
		certificates: deps.Certificates,
		participants: deps.Participants,
		challenges:   deps.Challenges,
		boards:       deps.Leaderboards,
		users:        deps.Users,
		signer:       deps.Signer,
		log:          logger.OrNop(deps.Logger),
		now:          now,
		validity:     deps.Validity,
		newID:        NewCertificateID,
		newCode:      NewVerificationCode,
	}
}

// Issue creates the certificate for a completed participation. If one already exists the
// existing certificate is returned together with domain.ErrCertificateExists.
func (s *CertificateService) Issue(ctx context.Context, in IssueInput) (domain.Certificate, error) {
	participant, err := s.participants.GetByID(ctx, in.ParticipantID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if participant.UserID != in.UserID {
		return domain.Certificate{}, domain.ErrNotParticipantOwner
	}
	if participant.ChallengeID != in.ChallengeID {
		return domain.Certificate{}, domain.Validationf("certificate.issue", "participant does not belong to challenge %s", in.ChallengeID)
	}
	if participant.Status != domain.ParticipantCompleted || participant.CompletedAt == nil {
		return domain.Certificate{}, domain.ErrNotCompleted
	}
	challenge, err := s.challenges.Get(ctx, in.ChallengeID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if !challenge.Rewards.CertificateEnabled {
		return domain.Certificate{}, domain.ErrCertificatesDisabled
	}

	existing, err := s.certificates.GetByUserChallenge(ctx, in.UserID, in.ChallengeID)
	switch {
	case err == nil:
		return existing, domain.ErrCertificateExists
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Certificate{}, err
	}

	position, total, err := s.boards.RankWithTotal(ctx, in.ChallengeID, in.UserID)
	if err != nil {
		return domain.Certificate{}, err
	}

	now := s.now()
	cert := domain.Certificate{
		UserID:        in.UserID,
		ChallengeID:   in.ChallengeID,
		ParticipantID: participant.ID,
		Achievement: domain.AchievementSnapshot{
			Score:          participant.Score,
			MaxScore:       participant.MaxScore,
			Accuracy:       participant.Accuracy,
			CompletionDate: *participant.CompletedAt,
			TimeSpent:      participant.TimeSpent,
			Rank:           domain.RankSnapshot{Position: position, TotalParticipants: total},
		},
		Status:   domain.CertificateIssued,
		Template: in.Template,
		IssuedAt: now,
	}
	if s.validity > 0 {
		expires := now.Add(s.validity)
		cert.ExpiresAt = &expires
	}

	cert, err = s.insert(ctx, cert)
	if errors.Is(err, domain.ErrCertificateExists) {
		// Lost a concurrent race; the unique key decided the winner.
		winner, getErr := s.certificates.GetByUserChallenge(ctx, in.UserID, in.ChallengeID)
		if getErr != nil {
			return domain.Certificate{}, getErr
		}
		return winner, domain.ErrCertificateExists
	}
	if err != nil {
		return domain.Certificate{}, err
	}

	participant.Achievements.CertificateEarned = true
	if err := s.participants.Update(ctx, participant); err != nil {
		s.log.Warn("mark certificate earned failed", "participantId", participant.ID, "error", err)
	}
	s.log.Info("certificate issued", "certificateId", cert.CertificateID, "challengeId", cert.ChallengeID, "userId", cert.UserID)
	return cert, nil
}

// insert generates tokens and retries on id/code collisions.
func (s *CertificateService) insert(ctx context.Context, cert domain.Certificate) (domain.Certificate, error) {
	var lastErr error
	for i := 0; i < maxTokenAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return domain.Certificate{}, err
		}
		code, err := s.newCode()
		if err != nil {
			return domain.Certificate{}, err
		}
		cert.CertificateID = id
		cert.VerificationCode = code

		err = s.certificates.Create(ctx, cert)
		if err == nil {
			return cert, nil
		}
		if !errors.Is(err, domain.ErrDuplicateCertificateID) {
			return domain.Certificate{}, err
		}
		lastErr = err
		s.log.Debug("certificate token collision, retrying", "attempt", i+1)
	}
	return domain.Certificate{}, fmt.Errorf("issue certificate after %d attempts: %w", maxTokenAttempts, lastErr)
}

// Verify resolves a public verification code and counts the verification.
func (s *CertificateService) Verify(ctx context.Context, code string) (Verification, error) {
	cert, err := s.certificates.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		return Verification{}, err
	}
	cert, err = s.expireIfDue(ctx, cert)
	if err != nil {
		return Verification{}, err
	}
	if !cert.Status.Verifiable() {
		return Verification{}, domain.ErrCertificateInvalid
	}

	cert, err = s.certificates.IncrementCounter(ctx, cert.CertificateID, domain.CounterVerification)
	if err != nil {
		return Verification{}, err
	}

	out := Verification{
		Certificate: cert,
		Recipient:   domain.UserProfile{UserID: cert.UserID, DisplayName: cert.UserID},
	}
	if s.users != nil {
		if profile, err := s.users.Lookup(ctx, cert.UserID); err == nil {
			out.Recipient = profile
		}
	}
	if challenge, err := s.challenges.Get(ctx, cert.ChallengeID); err == nil {
		out.Challenge = ChallengeSummary{ID: challenge.ID, Title: challenge.Title, Type: challenge.Type}
	} else {
		out.Challenge = ChallengeSummary{ID: cert.ChallengeID}
	}
	return out, nil
}

// Download counts a download by the owner and returns a signed link.
func (s *CertificateService) Download(ctx context.Context, certificateID, userID string) (CertificateLink, error) {
	return s.link(ctx, certificateID, userID, domain.CounterDownload)
}

// Share counts a share by the owner and returns a public link.
func (s *CertificateService) Share(ctx context.Context, certificateID, userID string) (CertificateLink, error) {
	return s.link(ctx, certificateID, userID, domain.CounterShare)
}

func (s *CertificateService) link(ctx context.Context, certificateID, userID string, counter domain.CertificateCounter) (CertificateLink, error) {
	cert, err := s.certificates.GetByID(ctx, certificateID)
	if err != nil {
		return CertificateLink{}, err
	}
	if cert.UserID != userID {
		return CertificateLink{}, domain.ErrNotCertificateOwner
	}
	if cert.Status == domain.CertificateRevoked {
		return CertificateLink{}, domain.ErrCertificateInvalid
	}

	var url string
	if counter == domain.CounterDownload {
		url, err = s.signer.DownloadURL(ctx, cert)
	} else {
		url, err = s.signer.ShareURL(ctx, cert)
	}
	if err != nil {
		return CertificateLink{}, fmt.Errorf("sign %s url: %w", counter, err)
	}

	cert, err = s.certificates.IncrementCounter(ctx, certificateID, counter)
	if err != nil {
		return CertificateLink{}, err
	}
	return CertificateLink{Certificate: cert, URL: url}, nil
}

// Revoke invalidates an issued or generated certificate; verification fails afterwards.
// Revoking a revoked certificate returns it unchanged.
func (s *CertificateService) Revoke(ctx context.Context, certificateID string) (domain.Certificate, error) {
	cert, err := s.certificates.GetByID(ctx, certificateID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if cert.Status == domain.CertificateRevoked {
		return cert, nil
	}
	if !cert.Status.Verifiable() {
		return domain.Certificate{}, domain.ErrCertificateNotRevocable
	}
	now := s.now()
	if err := s.certificates.UpdateStatus(ctx, certificateID, domain.CertificateRevoked, now); err != nil {
		return domain.Certificate{}, err
	}
	cert.Status = domain.CertificateRevoked
	cert.RevokedAt = &now
	s.log.Info("certificate revoked", "certificateId", certificateID)
	return cert, nil
}

// ListForUser returns every certificate owned by userID.
func (s *CertificateService) ListForUser(ctx context.Context, userID string) ([]domain.Certificate, error) {
	return s.certificates.ListByUser(ctx, userID)
}

func (s *CertificateService) expireIfDue(ctx context.Context, cert domain.Certificate) (domain.Certificate, error) {
	if cert.ExpiresAt == nil || !cert.Status.Verifiable() || s.now().Before(*cert.ExpiresAt) {
		return cert, nil
	}
	if err := s.certificates.UpdateStatus(ctx, cert.CertificateID, domain.CertificateExpired, s.now()); err != nil {
		return domain.Certificate{}, err
	}
	cert.Status = domain.CertificateExpired
	return cert, nil
}
