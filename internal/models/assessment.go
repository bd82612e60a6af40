package models

import "time"

// InstrumentID identifies a validated clinical instrument.
type InstrumentID string

const (
	InstrumentPHQ2  InstrumentID = "PHQ2"
	InstrumentPHQ9  InstrumentID = "PHQ9"
	InstrumentGAD2  InstrumentID = "GAD2"
	InstrumentGAD7  InstrumentID = "GAD7"
	InstrumentCSSRS InstrumentID = "C_SSRS"
)

// AssessmentResult is the outcome of explicitly administering a validated
// instrument. Results are never inferred from conversation.
type AssessmentResult struct {
	ID             string         `json:"id"`
	IndividualID   string         `json:"individual_id"`
	Instrument     InstrumentID   `json:"instrument"`
	RawScore       int            `json:"raw_score"`
	Severity       string         `json:"severity"`
	Responses      map[string]int `json:"responses,omitempty"`
	TriggerReason  string         `json:"trigger_reason,omitempty"`
	AdministeredAt time.Time      `json:"administered_at"`
}

// ConcernFlag is a lightweight, unscored signal. It only influences
// assessment scheduling, never risk level directly.
type ConcernFlag struct {
	ID           string    `json:"id"`
	IndividualID string    `json:"individual_id"`
	Type         string    `json:"type"`
	Evidence     string    `json:"evidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuestionnaireState is the state of a crisis questionnaire session.
type QuestionnaireState string

const (
	QuestionnaireIdle             QuestionnaireState = "IDLE"
	QuestionnaireTriggered        QuestionnaireState = "TRIGGERED"
	QuestionnaireConsentRequested QuestionnaireState = "CONSENT_REQUESTED"
	QuestionnaireDeclined         QuestionnaireState = "DECLINED"
	QuestionnairePresenting       QuestionnaireState = "QUESTIONS_PRESENTED"
	QuestionnaireScored           QuestionnaireState = "SCORED"
	QuestionnaireRouted           QuestionnaireState = "ROUTED"
)

// Terminal reports whether no further transitions are possible.
func (s QuestionnaireState) Terminal() bool {
	return s == QuestionnaireDeclined || s == QuestionnaireRouted
}

// QuestionnaireSession is one consent-gated administration of the crisis
// questionnaire.
type QuestionnaireSession struct {
	ID            string             `json:"id"`
	IndividualID  string             `json:"individual_id"`
	State         QuestionnaireState `json:"state"`
	TriggerReason string             `json:"trigger_reason"`
	Responses     map[string]int     `json:"responses"`
	Score         int                `json:"score"`
	Severity      string             `json:"severity"`
	Outcome       string             `json:"outcome,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
