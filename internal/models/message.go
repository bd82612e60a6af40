package models

import "time"

// Message is one inbound conversational message from a monitored individual.
// ID doubles as the de-duplication key: resubmitting the same ID must not
// double-count the message in the baseline.
type Message struct {
	ID           string            `json:"id"`
	IndividualID string            `json:"individual_id"`
	Text         string            `json:"text"`
	SessionID    string            `json:"session_id,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Checkpoint names, in pipeline order.
const (
	CheckpointSafetyScreen       = "IMMEDIATE_SAFETY_SCREEN"
	CheckpointContextEnrichment  = "CONTEXT_ENRICHMENT"
	CheckpointResponseGeneration = "RESPONSE_GENERATION"
	CheckpointDeepAnalysis       = "DEEP_ANALYSIS"
	CheckpointResponseGating     = "RESPONSE_GATING"
)

// CheckpointRecord is the audit entry for one pipeline checkpoint.
type CheckpointRecord struct {
	Name     string    `json:"name"`
	Passed   bool      `json:"passed"`
	Summary  string    `json:"summary,omitempty"`
	Duration int64     `json:"duration_ms"`
	At       time.Time `json:"at"`
}

// Exchange is one prior message/response pair from the conversation history.
type Exchange struct {
	MessageText  string    `json:"message_text"`
	ResponseText string    `json:"response_text,omitempty"`
	At           time.Time `json:"at"`
}

// ProcessResult is what the pipeline hands back to the chat collaborator
// after the response gate opens.
type ProcessResult struct {
	ResponseText      string                `json:"response_text"`
	RiskProfile       *RiskProfile          `json:"risk_profile"`
	CrisisTriggered   bool                  `json:"crisis_protocol_triggered"`
	ConcernIndicators []string              `json:"concern_indicators"`
	Questionnaire     *QuestionnaireSession `json:"questionnaire_session,omitempty"`
	DueInstrument     InstrumentID          `json:"due_instrument,omitempty"`
	Checkpoints       []CheckpointRecord    `json:"checkpoints,omitempty"`
}

// MessageAudit is the persisted audit trail for one processed message.
type MessageAudit struct {
	MessageID         string             `json:"message_id"`
	IndividualID      string             `json:"individual_id"`
	MessageText       string             `json:"message_text"`
	ResponseText      string             `json:"response_text,omitempty"`
	Checkpoints       []CheckpointRecord `json:"checkpoints"`
	ConcernIndicators []string           `json:"concern_indicators,omitempty"`
	CrisisTriggered   bool               `json:"crisis_triggered"`
	ProcessingMS      int64              `json:"processing_ms"`
	CreatedAt         time.Time          `json:"created_at"`
}
