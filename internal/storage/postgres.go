package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetBaseline(ctx context.Context, individualID string) (*models.BaselineProfile, error) {
	query := `
		SELECT samples, stats, session_count, last_session_id, updated_at
		FROM baseline_profiles
		WHERE individual_id = $1`

	var (
		samplesRaw, statsRaw []byte
		profile              = models.BaselineProfile{IndividualID: individualID}
	)
	err := s.db.QueryRowContext(ctx, query, individualID).Scan(
		&samplesRaw, &statsRaw, &profile.SessionCount, &profile.LastSessionID, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.BaselineProfile{IndividualID: individualID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying baseline: %w", err)
	}

	if err := json.Unmarshal(samplesRaw, &profile.Samples); err != nil {
		return nil, fmt.Errorf("error decoding baseline samples: %w", err)
	}
	if err := json.Unmarshal(statsRaw, &profile.Stats); err != nil {
		return nil, fmt.Errorf("error decoding baseline stats: %w", err)
	}
	return &profile, nil
}

func (s *PostgresStorage) AppendBaselineSample(ctx context.Context, individualID string, sample models.BaselineSample, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		samplesRaw    []byte
		sessionCount  int
		lastSessionID string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT samples, session_count, last_session_id
		FROM baseline_profiles WHERE individual_id = $1 FOR UPDATE`, individualID).
		Scan(&samplesRaw, &sessionCount, &lastSessionID)

	var samples []models.BaselineSample
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first message from this individual
	case err != nil:
		return false, fmt.Errorf("error locking baseline row: %w", err)
	default:
		if err := json.Unmarshal(samplesRaw, &samples); err != nil {
			return false, fmt.Errorf("error decoding baseline samples: %w", err)
		}
	}

	for _, existing := range samples {
		if existing.MessageID != "" && existing.MessageID == sample.MessageID {
			return false, nil
		}
	}

	samples = append(samples, sample)
	if sessionID != "" && sessionID != lastSessionID {
		sessionCount++
		lastSessionID = sessionID
	}

	encoded, err := json.Marshal(samples)
	if err != nil {
		return false, fmt.Errorf("error encoding baseline samples: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO baseline_profiles (individual_id, samples, session_count, last_session_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (individual_id) DO UPDATE
		SET samples = $2, session_count = $3, last_session_id = $4, updated_at = now()`,
		individualID, encoded, sessionCount, lastSessionID)
	if err != nil {
		return false, fmt.Errorf("error saving baseline sample: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("error committing baseline sample: %w", err)
	}
	return true, nil
}

func (s *PostgresStorage) UpdateBaselineStats(ctx context.Context, individualID string, stats models.BaselineStats) error {
	encoded, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("error encoding baseline stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO baseline_profiles (individual_id, stats, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (individual_id) DO UPDATE SET stats = $2, updated_at = now()`,
		individualID, encoded)
	if err != nil {
		return fmt.Errorf("error updating baseline stats: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SaveRiskProfile(ctx context.Context, profile *models.RiskProfile) error {
	factors, err := json.Marshal(profile.RiskFactors)
	if err != nil {
		return fmt.Errorf("error encoding risk factors: %w", err)
	}
	alert, err := json.Marshal(profile.Alert)
	if err != nil {
		return fmt.Errorf("error encoding alert recommendation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles
			(id, individual_id, message_id, overall_risk, confidence, risk_factors,
			 recommended_action, requires_human_review, temporal_patterns, alert, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		profile.ID, profile.IndividualID, profile.MessageID, string(profile.OverallRisk),
		profile.Confidence, factors, profile.RecommendedAction, profile.RequiresHumanReview,
		pq.Array(profile.TemporalPatterns), alert, profile.CalculatedAt)
	if err != nil {
		return fmt.Errorf("error saving risk profile: %w", err)
	}
	return nil
}

func (s *PostgresStorage) scanRiskProfile(row *sql.Row) (*models.RiskProfile, error) {
	var (
		profile     models.RiskProfile
		overallRisk string
		factors     []byte
		alert       []byte
	)
	err := row.Scan(&profile.ID, &profile.IndividualID, &profile.MessageID, &overallRisk,
		&profile.Confidence, &factors, &profile.RecommendedAction, &profile.RequiresHumanReview,
		pq.Array(&profile.TemporalPatterns), &alert, &profile.CalculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning risk profile: %w", err)
	}
	profile.OverallRisk = models.RiskLevel(overallRisk)
	if err := json.Unmarshal(factors, &profile.RiskFactors); err != nil {
		return nil, fmt.Errorf("error decoding risk factors: %w", err)
	}
	if err := json.Unmarshal(alert, &profile.Alert); err != nil {
		return nil, fmt.Errorf("error decoding alert recommendation: %w", err)
	}
	return &profile, nil
}

const riskProfileColumns = `id, individual_id, message_id, overall_risk, confidence, risk_factors,
	recommended_action, requires_human_review, temporal_patterns, alert, calculated_at`

func (s *PostgresStorage) GetRiskProfile(ctx context.Context, id string) (*models.RiskProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+riskProfileColumns+` FROM risk_profiles WHERE id = $1`, id)
	return s.scanRiskProfile(row)
}

func (s *PostgresStorage) LatestRiskProfile(ctx context.Context, individualID string) (*models.RiskProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+riskProfileColumns+` FROM risk_profiles
		 WHERE individual_id = $1 ORDER BY calculated_at DESC LIMIT 1`, individualID)
	return s.scanRiskProfile(row)
}

func (s *PostgresStorage) RiskHistory(ctx context.Context, individualID string, since time.Time) ([]models.RiskPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT overall_risk, confidence, calculated_at
		FROM risk_profiles
		WHERE individual_id = $1 AND calculated_at >= $2
		ORDER BY calculated_at ASC`, individualID, since)
	if err != nil {
		return nil, fmt.Errorf("error querying risk history: %w", err)
	}
	defer rows.Close()

	var points []models.RiskPoint
	for rows.Next() {
		var (
			level string
			point models.RiskPoint
		)
		if err := rows.Scan(&level, &point.Confidence, &point.At); err != nil {
			return nil, fmt.Errorf("error scanning risk point: %w", err)
		}
		point.Score = models.RiskLevel(level).Score()
		points = append(points, point)
	}
	return points, rows.Err()
}

func (s *PostgresStorage) ConversationHistory(ctx context.Context, individualID string, limit int) ([]models.Exchange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_text, response_text, created_at
		FROM message_audits
		WHERE individual_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, individualID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying conversation history: %w", err)
	}
	defer rows.Close()

	var history []models.Exchange
	for rows.Next() {
		var ex models.Exchange
		if err := rows.Scan(&ex.MessageText, &ex.ResponseText, &ex.At); err != nil {
			return nil, fmt.Errorf("error scanning exchange: %w", err)
		}
		history = append(history, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// chronological order, oldest first
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

func (s *PostgresStorage) SaveAssessment(ctx context.Context, result *models.AssessmentResult) error {
	responses, err := json.Marshal(result.Responses)
	if err != nil {
		return fmt.Errorf("error encoding assessment responses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, individual_id, instrument, raw_score, severity, responses, trigger_reason, administered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.IndividualID, string(result.Instrument), result.RawScore,
		result.Severity, responses, result.TriggerReason, result.AdministeredAt)
	if err != nil {
		return fmt.Errorf("error saving assessment: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LatestAssessment(ctx context.Context, individualID string, instrument models.InstrumentID) (*models.AssessmentResult, error) {
	var (
		result    models.AssessmentResult
		inst      string
		responses []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, individual_id, instrument, raw_score, severity, responses, trigger_reason, administered_at
		FROM assessments
		WHERE individual_id = $1 AND instrument = $2
		ORDER BY administered_at DESC LIMIT 1`, individualID, string(instrument)).
		Scan(&result.ID, &result.IndividualID, &inst, &result.RawScore,
			&result.Severity, &responses, &result.TriggerReason, &result.AdministeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying assessment: %w", err)
	}
	result.Instrument = models.InstrumentID(inst)
	if err := json.Unmarshal(responses, &result.Responses); err != nil {
		return nil, fmt.Errorf("error decoding assessment responses: %w", err)
	}
	return &result, nil
}

func (s *PostgresStorage) SaveConcernFlag(ctx context.Context, flag *models.ConcernFlag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO concern_flags (id, individual_id, flag_type, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		flag.ID, flag.IndividualID, flag.Type, flag.Evidence, flag.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving concern flag: %w", err)
	}
	return nil
}

func (s *PostgresStorage) RecentConcernFlags(ctx context.Context, individualID string, since time.Time) ([]models.ConcernFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, individual_id, flag_type, evidence, created_at
		FROM concern_flags
		WHERE individual_id = $1 AND created_at >= $2
		ORDER BY created_at ASC`, individualID, since)
	if err != nil {
		return nil, fmt.Errorf("error querying concern flags: %w", err)
	}
	defer rows.Close()

	var flags []models.ConcernFlag
	for rows.Next() {
		var flag models.ConcernFlag
		if err := rows.Scan(&flag.ID, &flag.IndividualID, &flag.Type, &flag.Evidence, &flag.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning concern flag: %w", err)
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

func (s *PostgresStorage) SaveQuestionnaireSession(ctx context.Context, session *models.QuestionnaireSession) error {
	responses, err := json.Marshal(session.Responses)
	if err != nil {
		return fmt.Errorf("error encoding questionnaire responses: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO questionnaire_sessions
			(id, individual_id, state, trigger_reason, responses, score, severity, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.ID, session.IndividualID, string(session.State), session.TriggerReason,
		responses, session.Score, session.Severity, session.Outcome, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving questionnaire session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateQuestionnaireSession(ctx context.Context, session *models.QuestionnaireSession) error {
	responses, err := json.Marshal(session.Responses)
	if err != nil {
		return fmt.Errorf("error encoding questionnaire responses: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE questionnaire_sessions
		SET state = $2, responses = $3, score = $4, severity = $5, outcome = $6, updated_at = $7
		WHERE id = $1`,
		session.ID, string(session.State), responses, session.Score,
		session.Severity, session.Outcome, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error updating questionnaire session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) GetQuestionnaireSession(ctx context.Context, id string) (*models.QuestionnaireSession, error) {
	var (
		session   models.QuestionnaireSession
		state     string
		responses []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, individual_id, state, trigger_reason, responses, score, severity, outcome, created_at, updated_at
		FROM questionnaire_sessions WHERE id = $1`, id).
		Scan(&session.ID, &session.IndividualID, &state, &session.TriggerReason,
			&responses, &session.Score, &session.Severity, &session.Outcome,
			&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying questionnaire session: %w", err)
	}
	session.State = models.QuestionnaireState(state)
	if err := json.Unmarshal(responses, &session.Responses); err != nil {
		return nil, fmt.Errorf("error decoding questionnaire responses: %w", err)
	}
	return &session, nil
}

func (s *PostgresStorage) SaveFeedback(ctx context.Context, record *models.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback
			(id, risk_profile_id, individual_id, was_appropriate, actual_severity, accuracy, notes, counselor_id, model_score, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.RiskProfileID, record.IndividualID, record.WasAppropriate,
		record.ActualSeverity, record.Accuracy, record.Notes, record.CounselorID,
		record.ModelScore, record.SubmittedAt)
	if err != nil {
		return fmt.Errorf("error saving feedback: %w", err)
	}
	return nil
}

func (s *PostgresStorage) FeedbackCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting feedback: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) FeedbackWindow(ctx context.Context, since time.Time) ([]models.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, risk_profile_id, individual_id, was_appropriate, actual_severity, accuracy, notes, counselor_id, model_score, submitted_at
		FROM feedback
		WHERE submitted_at >= $1
		ORDER BY submitted_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("error querying feedback window: %w", err)
	}
	defer rows.Close()

	var records []models.FeedbackRecord
	for rows.Next() {
		var record models.FeedbackRecord
		if err := rows.Scan(&record.ID, &record.RiskProfileID, &record.IndividualID,
			&record.WasAppropriate, &record.ActualSeverity, &record.Accuracy,
			&record.Notes, &record.CounselorID, &record.ModelScore, &record.SubmittedAt); err != nil {
			return nil, fmt.Errorf("error scanning feedback record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *PostgresStorage) SaveThresholdConfig(ctx context.Context, cfg *models.ThresholdConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threshold_configs (version, phase, high_risk, medium_risk, minimum_confidence, routing_policy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cfg.Version, string(cfg.Phase), cfg.HighRisk, cfg.MediumRisk,
		cfg.MinimumConfidence, cfg.RoutingPolicy, cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving threshold config: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CurrentThresholdConfig(ctx context.Context) (*models.ThresholdConfig, error) {
	var (
		cfg   models.ThresholdConfig
		phase string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, phase, high_risk, medium_risk, minimum_confidence, routing_policy, created_at
		FROM threshold_configs ORDER BY version DESC LIMIT 1`).
		Scan(&cfg.Version, &phase, &cfg.HighRisk, &cfg.MediumRisk,
			&cfg.MinimumConfidence, &cfg.RoutingPolicy, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying threshold config: %w", err)
	}
	cfg.Phase = models.Phase(phase)
	return &cfg, nil
}

func (s *PostgresStorage) SaveAlert(ctx context.Context, alert *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, individual_id, severity, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		alert.ID, alert.IndividualID, alert.Severity, alert.Reason, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving alert: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, individual_id, severity, reason, created_at
		FROM alerts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var alert models.Alert
		if err := rows.Scan(&alert.ID, &alert.IndividualID, &alert.Severity, &alert.Reason, &alert.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *PostgresStorage) SaveMessageAudit(ctx context.Context, audit *models.MessageAudit) error {
	checkpoints, err := json.Marshal(audit.Checkpoints)
	if err != nil {
		return fmt.Errorf("error encoding checkpoint records: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO message_audits
			(message_id, individual_id, message_text, response_text, checkpoints, concern_indicators, crisis_triggered, processing_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING`,
		audit.MessageID, audit.IndividualID, audit.MessageText, audit.ResponseText,
		checkpoints, pq.Array(audit.ConcernIndicators), audit.CrisisTriggered,
		audit.ProcessingMS, audit.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving message audit: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
