package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

// ErrSessionTerminal reports an attempt to advance a session that already
// reached a terminal state. Declines in particular are final: the trigger
// stays documented but the questionnaire is never re-pushed.
var ErrSessionTerminal = errors.New("questionnaire session is terminal")

// ErrInvalidTransition reports an operation applied in the wrong state.
var ErrInvalidTransition = errors.New("invalid questionnaire state transition")

// Routing outcomes.
const (
	OutcomeImmediateCrisis  = "immediate_crisis_protocol"
	OutcomeUrgentReview     = "urgent_human_notification"
	OutcomeContinueMonitor  = "continue_monitoring"
	OutcomeDeclined         = "declined_consent"
)

// ConsentPrompt is shown before any crisis questionnaire question.
const ConsentPrompt = "I'd like to ask you a few direct questions about how you're doing, so I can understand how to best support you. Is that okay? You can say no, and we can keep talking as before."

// cssrsQuestions are the Columbia Protocol screener items, presented
// verbatim. The first five are ideation severity levels; the sixth asks
// about behavior.
var cssrsQuestions = []Question{
	{ID: "cssrs_1", Text: "Have you wished you were dead or wished you could go to sleep and not wake up?", Options: []string{"No", "Yes"}},
	{ID: "cssrs_2", Text: "Have you actually had any thoughts of killing yourself?", Options: []string{"No", "Yes"}},
	{ID: "cssrs_3", Text: "Have you been thinking about how you might do this?", Options: []string{"No", "Yes"}},
	{ID: "cssrs_4", Text: "Have you had these thoughts and had some intention of acting on them?", Options: []string{"No", "Yes"}},
	{ID: "cssrs_5", Text: "Have you started to work out or worked out the details of how to kill yourself? Do you intend to carry out this plan?", Options: []string{"No", "Yes"}},
	{ID: "cssrs_6", Text: "Have you ever done anything, started to do anything, or prepared to do anything to end your life?", Options: []string{"No", "Yes"}},
}

// CrisisFlow runs the consent-gated crisis questionnaire as an explicit state
// machine. Every transition is persisted before the next step is offered.
type CrisisFlow struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewCrisisFlow(store storage.Storage, logger *zap.Logger) *CrisisFlow {
	return &CrisisFlow{store: store, logger: logger}
}

// Questions returns the screener items for presentation.
func (f *CrisisFlow) Questions() []Question {
	return cssrsQuestions
}

// Trigger opens a session and immediately requests consent. The trigger
// reason is documented regardless of how the session ends.
func (f *CrisisFlow) Trigger(ctx context.Context, individualID, reason string) (*models.QuestionnaireSession, error) {
	now := time.Now()
	session := &models.QuestionnaireSession{
		ID:            uuid.New().String(),
		IndividualID:  individualID,
		State:         models.QuestionnaireTriggered,
		TriggerReason: reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.store.SaveQuestionnaireSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save questionnaire session: %w", err)
	}

	session.State = models.QuestionnaireConsentRequested
	if err := f.update(ctx, session); err != nil {
		return nil, err
	}

	f.logger.Warn("Crisis questionnaire triggered",
		zap.String("individual_id", individualID),
		zap.String("session_id", session.ID),
		zap.String("reason", reason))
	return session, nil
}

// RecordConsent advances the session past the consent gate. A decline is
// terminal and documented; it never blocks the individual from continuing
// the conversation.
func (f *CrisisFlow) RecordConsent(ctx context.Context, sessionID string, granted bool) (*models.QuestionnaireSession, error) {
	session, err := f.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return nil, ErrSessionTerminal
	}
	if session.State != models.QuestionnaireConsentRequested {
		return nil, fmt.Errorf("%w: consent in state %s", ErrInvalidTransition, session.State)
	}

	if !granted {
		session.State = models.QuestionnaireDeclined
		session.Outcome = OutcomeDeclined
		if err := f.update(ctx, session); err != nil {
			return nil, err
		}
		f.logger.Info("Crisis questionnaire declined",
			zap.String("individual_id", session.IndividualID),
			zap.String("session_id", session.ID),
			zap.String("trigger_reason", session.TriggerReason))
		return session, nil
	}

	session.State = models.QuestionnairePresenting
	if err := f.update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitResponses scores the answered screener and routes on the result.
// Malformed answers return ErrMalformedResponse without moving the state, so
// the caller re-prompts.
func (f *CrisisFlow) SubmitResponses(ctx context.Context, sessionID string, responses map[string]int) (*models.QuestionnaireSession, error) {
	session, err := f.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State.Terminal() {
		return nil, ErrSessionTerminal
	}
	if session.State != models.QuestionnairePresenting {
		return nil, fmt.Errorf("%w: responses in state %s", ErrInvalidTransition, session.State)
	}

	score, err := scoreCSSRS(responses)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	session.Responses = responses
	session.Score = score
	session.Severity = cssrsSeverity(score)
	session.State = models.QuestionnaireScored
	if err := f.update(ctx, session); err != nil {
		return nil, err
	}

	session.Outcome = routeCSSRS(score)
	session.State = models.QuestionnaireRouted
	if err := f.update(ctx, session); err != nil {
		return nil, err
	}

	result := &models.AssessmentResult{
		ID:             uuid.New().String(),
		IndividualID:   session.IndividualID,
		Instrument:     models.InstrumentCSSRS,
		RawScore:       score,
		Severity:       session.Severity,
		Responses:      responses,
		TriggerReason:  session.TriggerReason,
		AdministeredAt: time.Now(),
	}
	if err := f.store.SaveAssessment(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to save crisis assessment: %w", err)
	}

	f.logger.Warn("Crisis questionnaire routed",
		zap.String("individual_id", session.IndividualID),
		zap.String("session_id", session.ID),
		zap.Int("score", score),
		zap.String("outcome", session.Outcome))
	return session, nil
}

func (f *CrisisFlow) load(ctx context.Context, sessionID string) (*models.QuestionnaireSession, error) {
	session, err := f.store.GetQuestionnaireSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questionnaire session: %w", err)
	}
	return session, nil
}

func (f *CrisisFlow) update(ctx context.Context, session *models.QuestionnaireSession) error {
	session.UpdatedAt = time.Now()
	if err := f.store.UpdateQuestionnaireSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update questionnaire session: %w", err)
	}
	return nil
}

// scoreCSSRS returns the highest ideation level (1 to 5) answered yes, or 0
// when none were.
func scoreCSSRS(responses map[string]int) (int, error) {
	for _, q := range cssrsQuestions {
		answer, ok := responses[q.ID]
		if !ok {
			return 0, fmt.Errorf("missing response for question %s", q.ID)
		}
		if answer != 0 && answer != 1 {
			return 0, fmt.Errorf("response %d out of range for question %s", answer, q.ID)
		}
	}

	score := 0
	for i := 0; i < 5; i++ {
		if responses[cssrsQuestions[i].ID] == 1 {
			score = i + 1
		}
	}
	// Reported behavior routes like high ideation.
	if responses["cssrs_6"] == 1 && score < 3 {
		score = 3
	}
	return score, nil
}

func cssrsSeverity(score int) string {
	switch {
	case score >= 3:
		return "high"
	case score >= 1:
		return "moderate"
	default:
		return "none"
	}
}

func routeCSSRS(score int) string {
	switch {
	case score >= 3:
		return OutcomeImmediateCrisis
	case score >= 1:
		return OutcomeUrgentReview
	default:
		return OutcomeContinueMonitor
	}
}
