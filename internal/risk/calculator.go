// Package risk turns contextual analysis, baseline deviation, validated
// assessments and trend signals into a calibrated risk profile.
package risk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/temporal"
)

// Recommended actions attached to risk profiles.
const (
	ActionContinueMonitoring = "continue_monitoring"
	ActionScheduleAssessment = "schedule_validated_assessment"
	ActionHumanReview        = "route_to_human_review"
	ActionCrisisProtocol     = "initiate_crisis_protocol"
)

// Alert types.
const (
	AlertImmediate = "IMMEDIATE"
	AlertUrgent    = "URGENT"
	AlertRoutine   = "ROUTINE"
	AlertNone      = "NONE"
)

// assessmentValidity is how long a validated PHQ-9 result stands in for the
// depression severity factor before a fresh administration is needed.
const assessmentValidity = 14 * 24 * time.Hour

// Input bundles everything one calculation consumes. Analysis is required;
// the rest degrade gracefully to nil.
type Input struct {
	Message       models.Message
	Analysis      *scorer.RiskAnalysis
	Baseline      *models.BaselineProfile
	Trend         *temporal.Trend
	ValidatedPHQ9 *models.AssessmentResult
	HistoryLen    int
	Thresholds    *models.ThresholdConfig
}

// Calculator produces risk profiles. It is stateless; persistence and
// threshold management live elsewhere.
type Calculator struct {
	logger *zap.Logger
}

func NewCalculator(logger *zap.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// Calculate scores one analyzed message. The returned profile is immutable
// once persisted.
func (c *Calculator) Calculate(in Input) *models.RiskProfile {
	raw := rawScore(in.Analysis)
	rawConfidence := baseConfidence(in.Analysis)

	multiplier := 1.0
	var patterns []string
	if in.Trend != nil && !in.Trend.UseSnapshotOnly {
		multiplier = in.Trend.Multiplier
		patterns = in.Trend.Patterns
	}
	score := math.Min(1.0, raw*multiplier)

	confidence := c.calibrate(rawConfidence, in)
	if in.Analysis.Degraded && confidence > scorer.FallbackConfidence {
		confidence = scorer.FallbackConfidence
	}

	level := levelFor(score, in.Analysis, in.Thresholds)
	factors := c.buildFactors(in)

	profile := &models.RiskProfile{
		ID:               uuid.New().String(),
		IndividualID:     in.Message.IndividualID,
		MessageID:        in.Message.ID,
		OverallRisk:      level,
		Confidence:       confidence,
		RiskFactors:      factors,
		TemporalPatterns: patterns,
		CalculatedAt:     time.Now(),
	}

	c.route(profile, score, in)

	c.logger.Info("Risk profile calculated",
		zap.String("individual_id", profile.IndividualID),
		zap.String("message_id", profile.MessageID),
		zap.String("level", string(profile.OverallRisk)),
		zap.Float64("score", score),
		zap.Float64("confidence", profile.Confidence),
		zap.Bool("human_review", profile.RequiresHumanReview))
	return profile
}

// rawScore maps the contextual analysis onto a normalized 0-1 score before
// trend multipliers.
func rawScore(a *scorer.RiskAnalysis) float64 {
	score := 0.1
	switch a.Tone.ConcernLevel {
	case "MEDIUM":
		score = 0.45
	case "HIGH":
		score = 0.65
	}

	if a.SuicidalIdeation.Present {
		if a.SuicidalIdeation.IsLiteral != nil && !*a.SuicidalIdeation.IsLiteral {
			// Idiomatic usage is noted but barely moves the score.
			score = math.Max(score, 0.2)
		} else {
			score = math.Max(score, 0.9)
		}
	}

	if a.Tone.HopelessnessThemes {
		score = math.Min(1.0, score+0.1)
	}
	if a.Tone.Escalation {
		score = math.Min(1.0, score+0.05)
	}
	return score
}

func baseConfidence(a *scorer.RiskAnalysis) float64 {
	conf := a.SuicidalIdeation.Confidence
	if a.Depression.Confidence > conf {
		conf = a.Depression.Confidence
	}
	if conf == 0 {
		conf = 0.5
	}
	return conf
}

// calibrate multiplies the raw confidence by four dampening factors, each in
// (0, 1]. Calibrated confidence can therefore never exceed the raw value.
func (c *Calculator) calibrate(raw float64, in Input) float64 {
	context := 0.8 + 0.02*math.Min(float64(in.HistoryLen), 10)

	samples := 0
	if in.Baseline != nil {
		samples = in.Baseline.Stats.SampleCount
	}
	baseline := 0.85 + 0.015*math.Min(float64(samples), 10)

	ambiguity := 1.0
	switch {
	case in.Analysis.Tone.SarcasmDetected,
		in.Analysis.SuicidalIdeation.IsLiteral != nil && !*in.Analysis.SuicidalIdeation.IsLiteral:
		ambiguity = 0.7
	case in.Analysis.Tone.EmojiFunction == "ambiguous":
		ambiguity = 0.85
	}

	agreement := 0.9
	if signalsConcur(in.Analysis) {
		agreement = 1.0
	}

	return raw * context * baseline * ambiguity * agreement
}

// signalsConcur reports whether independent signals point the same way, which
// removes the agreement dampening.
func signalsConcur(a *scorer.RiskAnalysis) bool {
	if a.SuicidalIdeation.Present && a.Tone.HopelessnessThemes {
		return true
	}
	if a.Tone.ConcernLevel == "HIGH" && a.Depression.SeverityEstimate == "HIGH" {
		return true
	}
	if a.Tone.ConcernLevel == "LOW" && !a.SuicidalIdeation.Present && !a.Tone.HopelessnessThemes {
		return true
	}
	return false
}

func levelFor(score float64, a *scorer.RiskAnalysis, t *models.ThresholdConfig) models.RiskLevel {
	if a.SuicidalIdeation.Present &&
		(a.SuicidalIdeation.IsLiteral == nil || *a.SuicidalIdeation.IsLiteral) &&
		a.SuicidalIdeation.Confidence >= 0.8 {
		return models.RiskCrisis
	}
	switch {
	case score >= t.HighRisk:
		return models.RiskHigh
	case score >= t.MediumRisk:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func (c *Calculator) buildFactors(in Input) models.RiskFactors {
	a := in.Analysis
	var factors models.RiskFactors

	if a.SuicidalIdeation.Present {
		factors.SuicidalIdeation = &models.SuicidalIdeationFactor{
			Present:    true,
			IsLiteral:  a.SuicidalIdeation.IsLiteral,
			Confidence: a.SuicidalIdeation.Confidence,
			Reason:     a.SuicidalIdeation.Reasoning,
		}
	}

	// A PHQ-9 score appears only when a validated administration backs it.
	// Conversation-derived severity stays an unnumbered estimate.
	if in.ValidatedPHQ9 != nil && time.Since(in.ValidatedPHQ9.AdministeredAt) <= assessmentValidity {
		score := in.ValidatedPHQ9.RawScore
		factors.DepressionSeverity = &models.DepressionSeverityFactor{
			EstimatedPHQ9: &score,
			Confidence:    0.95,
			Reason:        fmt.Sprintf("validated PHQ-9 administered %s", in.ValidatedPHQ9.AdministeredAt.Format("2006-01-02")),
			IsEstimate:    false,
		}
	} else if a.Depression.SeverityEstimate != "" && a.Depression.SeverityEstimate != "LOW" {
		factors.DepressionSeverity = &models.DepressionSeverityFactor{
			Confidence:         a.Depression.Confidence,
			Reason:             reasonOrDefault(a.Depression.Reasoning, "conversational depression indicators: "+strings.Join(a.Depression.Indicators, ", ")),
			IsEstimate:         true,
			RequiresAssessment: true,
		}
	}

	if a.Tone.Escalation || a.Tone.ConcernLevel == "HIGH" {
		factors.BehaviorChange = &models.BehaviorChangeFactor{
			Concern:    a.Tone.ConcernLevel,
			Confidence: 0.6,
			Reason:     "tone escalation relative to recent conversation",
		}
	}
	return factors
}

// route fills in the recommended action, human-review flag and alert
// recommendation from the active threshold snapshot.
func (c *Calculator) route(p *models.RiskProfile, score float64, in Input) {
	t := in.Thresholds

	switch {
	case p.OverallRisk == models.RiskCrisis:
		p.RecommendedAction = ActionCrisisProtocol
		p.RequiresHumanReview = true
	case p.OverallRisk == models.RiskHigh && p.Confidence > 0.9:
		p.RecommendedAction = ActionCrisisProtocol
		p.RequiresHumanReview = true
	case p.OverallRisk == models.RiskHigh:
		p.RecommendedAction = ActionHumanReview
		p.RequiresHumanReview = true
	case p.OverallRisk == models.RiskMedium:
		p.RecommendedAction = ActionScheduleAssessment
	default:
		p.RecommendedAction = ActionContinueMonitoring
	}

	if in.Analysis.Degraded {
		p.RequiresHumanReview = true
	}
	if p.Confidence < t.MinimumConfidence && p.OverallRisk != models.RiskLow {
		p.RequiresHumanReview = true
	}

	switch t.RoutingPolicy {
	case models.PolicyRouteAllMediumPlus:
		if p.OverallRisk != models.RiskLow {
			p.RequiresHumanReview = true
		}
	case models.PolicyRouteUncertain:
		if p.Confidence < t.MinimumConfidence {
			p.RequiresHumanReview = true
		}
	}

	// Sudden improvement after sustained distress escalates, never reassures.
	if in.Trend != nil && in.Trend.HasPattern(temporal.PatternPreDecisionCalm) {
		p.RequiresHumanReview = true
		if p.RecommendedAction == ActionContinueMonitoring {
			p.RecommendedAction = ActionHumanReview
		}
	}

	p.Alert = alertFor(p, score)
}

func alertFor(p *models.RiskProfile, score float64) models.AlertRecommendation {
	switch {
	case p.OverallRisk == models.RiskCrisis || p.RecommendedAction == ActionCrisisProtocol:
		return models.AlertRecommendation{
			ShouldAlert:   true,
			AlertType:     AlertImmediate,
			Reasoning:     "crisis-level risk requires immediate attention",
			PriorityScore: score,
		}
	case p.OverallRisk == models.RiskHigh:
		return models.AlertRecommendation{
			ShouldAlert:   true,
			AlertType:     AlertUrgent,
			Reasoning:     "high risk level above alerting threshold",
			PriorityScore: score,
		}
	case p.OverallRisk == models.RiskMedium && p.RequiresHumanReview:
		return models.AlertRecommendation{
			ShouldAlert:   true,
			AlertType:     AlertRoutine,
			Reasoning:     "medium risk routed to human review",
			PriorityScore: score,
		}
	default:
		return models.AlertRecommendation{AlertType: AlertNone, PriorityScore: score}
	}
}

func reasonOrDefault(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
