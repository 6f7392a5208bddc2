package domain

import "time"

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	ChallengeDraft     ChallengeStatus = "draft"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

// Requirements describe what a participant has to achieve. They are frozen once anyone joins.
type Requirements struct {
	TargetCount int     `json:"targetCount"`
	Accuracy    float64 `json:"accuracy"`
	TimeLimit   int     `json:"timeLimit"` // minutes, 0 means unlimited
	Difficulty  string  `json:"difficulty"`
	Category    string  `json:"category"`
}

// PositionTiers are the extra points granted by final leaderboard position.
type PositionTiers struct {
	First         int `json:"first"`
	Second        int `json:"second"`
	Third         int `json:"third"`
	Participation int `json:"participation"`
}

// Rewards configures what completing a challenge is worth.
type Rewards struct {
	Points             int           `json:"points"`
	Badge              string        `json:"badge,omitempty"`
	CertificateEnabled bool          `json:"certificateEnabled"`
	PositionTiers      PositionTiers `json:"positionTiers"`
}

// Settings hold admission rules.
type Settings struct {
	MaxParticipants *int `json:"maxParticipants,omitempty"`
	AllowRetries    bool `json:"allowRetries"`
	MaxRetries      int  `json:"maxRetries"`
	IsPublic        bool `json:"isPublic"`
}

// MaxAttempts is the number of attempts a participant may start.
func (s Settings) MaxAttempts() int {
	if !s.AllowRetries {
		return 1
	}
	if s.MaxRetries <= 0 {
		return 1
	}
	return s.MaxRetries
}

// ChallengeStats is derived data; it converges to the aggregate of the participant rows.
type ChallengeStats struct {
	TotalParticipants     int     `json:"totalParticipants"`
	CompletedParticipants int     `json:"completedParticipants"`
	AverageScore          float64 `json:"averageScore"`
	TopScore              int     `json:"topScore"`
}

// Challenge is a time-boxed skill activity.
type Challenge struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Type         string          `json:"type"`
	Requirements Requirements    `json:"requirements"`
	Status       ChallengeStatus `json:"status"`
	StartDate    time.Time       `json:"startDate"`
	EndDate      time.Time       `json:"endDate"`
	Rewards      Rewards         `json:"rewards"`
	Settings     Settings        `json:"settings"`
	Stats        ChallengeStats  `json:"stats"`
	CreatedBy    string          `json:"createdBy"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsOpen reports whether the challenge accepts participation at now.
func (c Challenge) IsOpen(now time.Time) bool {
	return c.Status == ChallengeActive && !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Overdue reports whether an active challenge has passed its end date.
func (c Challenge) Overdue(now time.Time) bool {
	return c.Status == ChallengeActive && now.After(c.EndDate)
}

// ParticipantStatus is the lifecycle state of a participation row.
type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantInProgress ParticipantStatus = "in_progress"
	ParticipantCompleted  ParticipantStatus = "completed"
	ParticipantAbandoned  ParticipantStatus = "abandoned"
	ParticipantFailed     ParticipantStatus = "failed"
)

// Response is one answer in an attempt's ordered log. Correctness is decided by the caller.
type Response struct {
	QuestionID  string    `json:"questionId"`
	Answer      string    `json:"answer,omitempty"`
	Correct     bool      `json:"correct"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Attempt is the in-flight try.
type Attempt struct {
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Progress  float64    `json:"progress"`
	Responses []Response `json:"responses"`
}

// Achievements are persisted together with the completion transition.
type Achievements struct {
	PointsEarned        int      `json:"pointsEarned"`
	BadgesEarned        []string `json:"badgesEarned"`
	CertificateEarned   bool     `json:"certificateEarned"`
	LeaderboardPosition *int     `json:"leaderboardPosition,omitempty"`
}

// Participant is a user's enrollment in one challenge, keyed by (ChallengeID, UserID).
type Participant struct {
	ID             string            `json:"id"`
	ChallengeID    string            `json:"challengeId"`
	UserID         string            `json:"userId"`
	Status         ParticipantStatus `json:"status"`
	Attempts       int               `json:"attempts"`
	CurrentAttempt Attempt           `json:"currentAttempt"`
	Score          int               `json:"score"`
	MaxScore       int               `json:"maxScore"`
	Accuracy       float64           `json:"accuracy"`
	Achievements   Achievements      `json:"achievements"`
	JoinedAt       time.Time         `json:"joinedAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	TimeSpent      int               `json:"timeSpent"` // minutes
}

// CertificateStatus is the lifecycle state of a certificate.
type CertificateStatus string

const (
	CertificatePending   CertificateStatus = "pending"
	CertificateGenerated CertificateStatus = "generated"
	CertificateIssued    CertificateStatus = "issued"
	CertificateRevoked   CertificateStatus = "revoked"
	CertificateExpired   CertificateStatus = "expired"
)

// Verifiable reports whether a certificate in this status resolves on verification.
func (s CertificateStatus) Verifiable() bool {
	return s == CertificateGenerated || s == CertificateIssued
}

// RankSnapshot is the leaderboard position frozen at issuance.
type RankSnapshot struct {
	Position          int `json:"position"`
	TotalParticipants int `json:"totalParticipants"`
}

// AchievementSnapshot is the participant's result as of issuance. It never changes afterwards.
type AchievementSnapshot struct {
	Score          int          `json:"score"`
	MaxScore       int          `json:"maxScore"`
	Accuracy       float64      `json:"accuracy"`
	CompletionDate time.Time    `json:"completionDate"`
	TimeSpent      int          `json:"timeSpent"`
	Rank           RankSnapshot `json:"rank"`
}

// CertificateCounter names one of the monotonic metadata counters.
type CertificateCounter string

const (
	CounterDownload     CertificateCounter = "download"
	CounterShare        CertificateCounter = "share"
	CounterVerification CertificateCounter = "verification"
)

// CertificateMetadata counters only ever grow.
type CertificateMetadata struct {
	DownloadCount     int `json:"downloadCount"`
	ShareCount        int `json:"shareCount"`
	VerificationCount int `json:"verificationCount"`
}

// Certificate is issued at most once per (UserID, ChallengeID).
type Certificate struct {
	CertificateID    string              `json:"certificateId"`
	VerificationCode string              `json:"verificationCode"`
	UserID           string              `json:"userId"`
	ChallengeID      string              `json:"challengeId"`
	ParticipantID    string              `json:"participantId"`
	Achievement      AchievementSnapshot `json:"achievement"`
	Status           CertificateStatus   `json:"status"`
	Template         map[string]string   `json:"template,omitempty"`
	Metadata         CertificateMetadata `json:"metadata"`
	IssuedAt         time.Time           `json:"issuedAt"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty"`
	RevokedAt        *time.Time          `json:"revokedAt,omitempty"`
}

// UserProfile is the read-only projection returned by the user directory.
type UserProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// LeaderboardEntry is one ranked, completed participant.
type LeaderboardEntry struct {
	Position    int       `json:"position"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Score       int       `json:"score"`
	Accuracy    float64   `json:"accuracy"`
	CompletedAt time.Time `json:"completedAt"`
	TimeSpent   int       `json:"timeSpent"`
}

// Leaderboard captures the ordered scoreboard for a challenge.
type Leaderboard struct {
	ChallengeID string             `json:"challengeId"`
	Entries     []LeaderboardEntry `json:"entries"`
	Total       int                `json:"total"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}
