package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mindwell/sentinel/internal/models"
)

// MemoryStorage is the in-memory implementation used for local runs and
// tests.
type MemoryStorage struct {
	mu          sync.RWMutex
	baselines   map[string]*models.BaselineProfile
	profiles    map[string]*models.RiskProfile   // by profile id
	byIndivid   map[string][]*models.RiskProfile // ordered by CalculatedAt
	assessments map[string][]*models.AssessmentResult
	flags       map[string][]*models.ConcernFlag
	sessions    map[string]*models.QuestionnaireSession
	feedback    []*models.FeedbackRecord
	thresholds  []*models.ThresholdConfig
	alerts      []*models.Alert
	audits      map[string][]*models.MessageAudit // by individual id
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		baselines:   make(map[string]*models.BaselineProfile),
		profiles:    make(map[string]*models.RiskProfile),
		byIndivid:   make(map[string][]*models.RiskProfile),
		assessments: make(map[string][]*models.AssessmentResult),
		flags:       make(map[string][]*models.ConcernFlag),
		sessions:    make(map[string]*models.QuestionnaireSession),
		audits:      make(map[string][]*models.MessageAudit),
	}
}

func (s *MemoryStorage) GetBaseline(_ context.Context, individualID string) (*models.BaselineProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if profile, exists := s.baselines[individualID]; exists {
		cp := *profile
		cp.Samples = append([]models.BaselineSample(nil), profile.Samples...)
		return &cp, nil
	}
	return &models.BaselineProfile{IndividualID: individualID}, nil
}

func (s *MemoryStorage) AppendBaselineSample(_ context.Context, individualID string, sample models.BaselineSample, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, exists := s.baselines[individualID]
	if !exists {
		profile = &models.BaselineProfile{IndividualID: individualID}
		s.baselines[individualID] = profile
	}

	for _, existing := range profile.Samples {
		if existing.MessageID != "" && existing.MessageID == sample.MessageID {
			return false, nil
		}
	}

	profile.Samples = append(profile.Samples, sample)
	if sessionID != "" && sessionID != profile.LastSessionID {
		profile.SessionCount++
		profile.LastSessionID = sessionID
	}
	profile.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStorage) UpdateBaselineStats(_ context.Context, individualID string, stats models.BaselineStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, exists := s.baselines[individualID]
	if !exists {
		profile = &models.BaselineProfile{IndividualID: individualID}
		s.baselines[individualID] = profile
	}
	profile.Stats = stats
	profile.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) SaveRiskProfile(_ context.Context, profile *models.RiskProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	s.profiles[profile.ID] = &cp
	s.byIndivid[profile.IndividualID] = append(s.byIndivid[profile.IndividualID], &cp)
	return nil
}

func (s *MemoryStorage) GetRiskProfile(_ context.Context, id string) (*models.RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if profile, exists := s.profiles[id]; exists {
		cp := *profile
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) LatestRiskProfile(_ context.Context, individualID string) (*models.RiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.byIndivid[individualID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	cp := *history[len(history)-1]
	return &cp, nil
}

func (s *MemoryStorage) RiskHistory(_ context.Context, individualID string, since time.Time) ([]models.RiskPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []models.RiskPoint
	for _, profile := range s.byIndivid[individualID] {
		if profile.CalculatedAt.Before(since) {
			continue
		}
		points = append(points, models.RiskPoint{
			Score:      profile.OverallRisk.Score(),
			Confidence: profile.Confidence,
			At:         profile.CalculatedAt,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })
	return points, nil
}

func (s *MemoryStorage) ConversationHistory(_ context.Context, individualID string, limit int) ([]models.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	audits := s.audits[individualID]
	start := 0
	if len(audits) > limit {
		start = len(audits) - limit
	}

	var history []models.Exchange
	for _, audit := range audits[start:] {
		history = append(history, models.Exchange{
			MessageText:  audit.MessageText,
			ResponseText: audit.ResponseText,
			At:           audit.CreatedAt,
		})
	}
	return history, nil
}

func (s *MemoryStorage) SaveAssessment(_ context.Context, result *models.AssessmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *result
	s.assessments[result.IndividualID] = append(s.assessments[result.IndividualID], &cp)
	return nil
}

func (s *MemoryStorage) LatestAssessment(_ context.Context, individualID string, instrument models.InstrumentID) (*models.AssessmentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.assessments[individualID]
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Instrument == instrument {
			cp := *results[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveConcernFlag(_ context.Context, flag *models.ConcernFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *flag
	s.flags[flag.IndividualID] = append(s.flags[flag.IndividualID], &cp)
	return nil
}

func (s *MemoryStorage) RecentConcernFlags(_ context.Context, individualID string, since time.Time) ([]models.ConcernFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flags []models.ConcernFlag
	for _, flag := range s.flags[individualID] {
		if !flag.CreatedAt.Before(since) {
			flags = append(flags, *flag)
		}
	}
	return flags, nil
}

func (s *MemoryStorage) SaveQuestionnaireSession(_ context.Context, session *models.QuestionnaireSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStorage) UpdateQuestionnaireSession(_ context.Context, session *models.QuestionnaireSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return ErrNotFound
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetQuestionnaireSession(_ context.Context, id string) (*models.QuestionnaireSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if session, exists := s.sessions[id]; exists {
		cp := *session
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveFeedback(_ context.Context, record *models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.feedback = append(s.feedback, &cp)
	return nil
}

func (s *MemoryStorage) FeedbackCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feedback), nil
}

func (s *MemoryStorage) FeedbackWindow(_ context.Context, since time.Time) ([]models.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var window []models.FeedbackRecord
	for _, record := range s.feedback {
		if !record.SubmittedAt.Before(since) {
			window = append(window, *record)
		}
	}
	return window, nil
}

func (s *MemoryStorage) SaveThresholdConfig(_ context.Context, cfg *models.ThresholdConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	s.thresholds = append(s.thresholds, &cp)
	return nil
}

func (s *MemoryStorage) CurrentThresholdConfig(_ context.Context) (*models.ThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.thresholds) == 0 {
		return nil, ErrNotFound
	}
	cp := *s.thresholds[len(s.thresholds)-1]
	return &cp, nil
}

func (s *MemoryStorage) SaveAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryStorage) ListAlerts(_ context.Context, limit int) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if len(s.alerts) > limit {
		start = len(s.alerts) - limit
	}
	var alerts []models.Alert
	for _, alert := range s.alerts[start:] {
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}

func (s *MemoryStorage) SaveMessageAudit(_ context.Context, audit *models.MessageAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *audit
	s.audits[audit.IndividualID] = append(s.audits[audit.IndividualID], &cp)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
