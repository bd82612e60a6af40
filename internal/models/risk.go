package models

import "time"

// RiskLevel is the overall risk bucket assigned to one analyzed message.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
	RiskCrisis RiskLevel = "CRISIS"
)

// Score maps a risk level onto the 1-4 numeric scale used by trend analysis.
func (l RiskLevel) Score() float64 {
	switch l {
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCrisis:
		return 4
	default:
		return 1
	}
}

// SuicidalIdeationFactor reports whether the message expresses suicidal
// ideation and whether the expression is literal or idiomatic. IsLiteral is
// nil when the fallback scorer produced the factor and literalness is unknown.
type SuicidalIdeationFactor struct {
	Present    bool     `json:"present"`
	IsLiteral  *bool    `json:"is_literal,omitempty"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// DepressionSeverityFactor carries a PHQ-9 score only when a validated
// instrument result exists. Estimates derived from conversation are flagged
// with IsEstimate and RequiresAssessment.
type DepressionSeverityFactor struct {
	EstimatedPHQ9      *int    `json:"estimated_phq9,omitempty"`
	Confidence         float64 `json:"confidence"`
	Reason             string  `json:"reason"`
	IsEstimate         bool    `json:"is_estimate"`
	RequiresAssessment bool    `json:"requires_assessment"`
}

// BehaviorChangeFactor flags engagement or communication pattern changes.
type BehaviorChangeFactor struct {
	Concern    string  `json:"concern"` // LOW, MEDIUM, HIGH
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// RiskFactors is the multi-factor breakdown of a risk profile. A nil factor
// means there was no evidence for it, not that it was assessed as zero.
type RiskFactors struct {
	SuicidalIdeation   *SuicidalIdeationFactor   `json:"suicidal_ideation,omitempty"`
	DepressionSeverity *DepressionSeverityFactor `json:"depression_severity,omitempty"`
	BehaviorChange     *BehaviorChangeFactor     `json:"behavior_change,omitempty"`
}

// AlertRecommendation is the routing decision attached to a risk profile and
// consumed by the external notification system.
type AlertRecommendation struct {
	ShouldAlert   bool    `json:"should_alert"`
	AlertType     string  `json:"alert_type"` // IMMEDIATE, URGENT, ROUTINE, NONE
	Reasoning     string  `json:"reasoning"`
	PriorityScore float64 `json:"priority_score"`
}

// RiskProfile is the immutable result of risk analysis for one message.
// The per-individual sequence of profiles is the input to trend analysis.
type RiskProfile struct {
	ID                  string              `json:"id"`
	IndividualID        string              `json:"individual_id"`
	MessageID           string              `json:"message_id"`
	OverallRisk         RiskLevel           `json:"overall_risk"`
	Confidence          float64             `json:"confidence"`
	RiskFactors         RiskFactors         `json:"risk_factors"`
	RecommendedAction   string              `json:"recommended_action"`
	RequiresHumanReview bool                `json:"requires_human_review"`
	TemporalPatterns    []string            `json:"temporal_patterns,omitempty"`
	Alert               AlertRecommendation `json:"alert_recommendation"`
	CalculatedAt        time.Time           `json:"calculated_at"`
}

// RiskPoint is one entry of an individual's risk history.
type RiskPoint struct {
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Alert is the record emitted to the external notification/dashboard system.
type Alert struct {
	ID           string    `json:"id"`
	IndividualID string    `json:"individual_id"`
	Severity     string    `json:"severity"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}
