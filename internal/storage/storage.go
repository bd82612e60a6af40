package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mindwell/sentinel/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ProfileStorage holds per-individual baselines and the append-only risk
// profile history.
type ProfileStorage interface {
	GetBaseline(ctx context.Context, individualID string) (*models.BaselineProfile, error)
	// AppendBaselineSample appends one raw sample. It returns false without
	// error when a sample with the same message ID already exists, so retried
	// messages are not double-counted.
	AppendBaselineSample(ctx context.Context, individualID string, sample models.BaselineSample, sessionID string) (bool, error)
	UpdateBaselineStats(ctx context.Context, individualID string, stats models.BaselineStats) error

	SaveRiskProfile(ctx context.Context, profile *models.RiskProfile) error
	GetRiskProfile(ctx context.Context, id string) (*models.RiskProfile, error)
	LatestRiskProfile(ctx context.Context, individualID string) (*models.RiskProfile, error)
	RiskHistory(ctx context.Context, individualID string, since time.Time) ([]models.RiskPoint, error)
	ConversationHistory(ctx context.Context, individualID string, limit int) ([]models.Exchange, error)
}

// AssessmentStorage holds validated instrument results, concern flags and
// crisis questionnaire sessions.
type AssessmentStorage interface {
	SaveAssessment(ctx context.Context, result *models.AssessmentResult) error
	LatestAssessment(ctx context.Context, individualID string, instrument models.InstrumentID) (*models.AssessmentResult, error)

	SaveConcernFlag(ctx context.Context, flag *models.ConcernFlag) error
	RecentConcernFlags(ctx context.Context, individualID string, since time.Time) ([]models.ConcernFlag, error)

	SaveQuestionnaireSession(ctx context.Context, session *models.QuestionnaireSession) error
	UpdateQuestionnaireSession(ctx context.Context, session *models.QuestionnaireSession) error
	GetQuestionnaireSession(ctx context.Context, id string) (*models.QuestionnaireSession, error)
}

// LearningStorage holds clinician feedback, threshold versions and emitted
// alerts.
type LearningStorage interface {
	SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error
	FeedbackCount(ctx context.Context) (int, error)
	FeedbackWindow(ctx context.Context, since time.Time) ([]models.FeedbackRecord, error)

	SaveThresholdConfig(ctx context.Context, cfg *models.ThresholdConfig) error
	CurrentThresholdConfig(ctx context.Context) (*models.ThresholdConfig, error)

	SaveAlert(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// AuditStorage records the checkpoint trail for every processed message.
type AuditStorage interface {
	SaveMessageAudit(ctx context.Context, audit *models.MessageAudit) error
}

// Storage is the full persistence surface of the monitoring core.
type Storage interface {
	ProfileStorage
	AssessmentStorage
	LearningStorage
	AuditStorage
	Close() error
}
