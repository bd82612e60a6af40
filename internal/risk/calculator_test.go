package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/temporal"
)

func coldStartThresholds() *models.ThresholdConfig {
	return &models.ThresholdConfig{
		Version:           1,
		Phase:             models.PhaseColdStart,
		HighRisk:          0.70,
		MediumRisk:        0.40,
		MinimumConfidence: 0.5,
		RoutingPolicy:     models.PolicyRouteAllMediumPlus,
	}
}

func message() models.Message {
	return models.Message{ID: "m1", IndividualID: "ind-1", Text: "hello", Timestamp: time.Now()}
}

func boolPtr(v bool) *bool { return &v }

func TestCalculateLiteralIdeationIsCrisis(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	profile := c.Calculate(Input{
		Message: message(),
		Analysis: &scorer.RiskAnalysis{
			SuicidalIdeation: scorer.SuicidalIdeationAnalysis{
				Present:    true,
				IsLiteral:  boolPtr(true),
				Confidence: 0.95,
				Reasoning:  "direct first-person statement of intent",
			},
			Tone: scorer.ToneAnalysis{ConcernLevel: "HIGH", HopelessnessThemes: true},
		},
		HistoryLen: 8,
		Thresholds: coldStartThresholds(),
	})

	assert.Equal(t, models.RiskCrisis, profile.OverallRisk)
	assert.Equal(t, ActionCrisisProtocol, profile.RecommendedAction)
	assert.True(t, profile.RequiresHumanReview)
	assert.True(t, profile.Alert.ShouldAlert)
	assert.Equal(t, AlertImmediate, profile.Alert.AlertType)
	require.NotNil(t, profile.RiskFactors.SuicidalIdeation)
	assert.True(t, profile.RiskFactors.SuicidalIdeation.Present)
}

func TestCalculateIdiomaticPhrasingIsNotCrisis(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	// "I'm dead tired" style usage: ideation language present but judged
	// non-literal, in a sarcastic register.
	profile := c.Calculate(Input{
		Message: message(),
		Analysis: &scorer.RiskAnalysis{
			SuicidalIdeation: scorer.SuicidalIdeationAnalysis{
				Present:    true,
				IsLiteral:  boolPtr(false),
				Confidence: 0.85,
				Reasoning:  "hyperbolic idiom consistent with the individual's style",
			},
			Tone: scorer.ToneAnalysis{ConcernLevel: "LOW", SarcasmDetected: true},
		},
		HistoryLen: 2,
		Thresholds: coldStartThresholds(),
	})

	assert.NotEqual(t, models.RiskCrisis, profile.OverallRisk)
	assert.Equal(t, models.RiskLow, profile.OverallRisk)
	// Sarcasm dampens confidence below the raw analysis confidence.
	assert.Less(t, profile.Confidence, 0.85)
}

func TestCalibratedConfidenceNeverExceedsRaw(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	cases := []struct {
		name     string
		analysis scorer.RiskAnalysis
		history  int
		samples  int
	}{
		{"sparse context", scorer.RiskAnalysis{
			SuicidalIdeation: scorer.SuicidalIdeationAnalysis{Present: true, Confidence: 0.9},
		}, 0, 0},
		{"rich context", scorer.RiskAnalysis{
			SuicidalIdeation: scorer.SuicidalIdeationAnalysis{Present: true, Confidence: 0.9},
			Tone:             scorer.ToneAnalysis{HopelessnessThemes: true},
		}, 20, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile := c.Calculate(Input{
				Message:  message(),
				Analysis: &tc.analysis,
				Baseline: &models.BaselineProfile{
					IndividualID: "ind-1",
					Stats:        models.BaselineStats{SampleCount: tc.samples},
				},
				HistoryLen: tc.history,
				Thresholds: coldStartThresholds(),
			})
			assert.LessOrEqual(t, profile.Confidence, 0.9)
		})
	}
}

func TestCalibrationRewardsContext(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	analysis := func() *scorer.RiskAnalysis {
		return &scorer.RiskAnalysis{
			SuicidalIdeation: scorer.SuicidalIdeationAnalysis{Present: true, Confidence: 0.9},
			Tone:             scorer.ToneAnalysis{HopelessnessThemes: true},
		}
	}

	sparse := c.Calculate(Input{
		Message: message(), Analysis: analysis(),
		HistoryLen: 0, Thresholds: coldStartThresholds(),
	})
	rich := c.Calculate(Input{
		Message: message(), Analysis: analysis(),
		Baseline: &models.BaselineProfile{
			Stats: models.BaselineStats{SampleCount: 30},
		},
		HistoryLen: 10, Thresholds: coldStartThresholds(),
	})

	assert.Greater(t, rich.Confidence, sparse.Confidence)
}

func TestCalculateDegradedAnalysisForcesReview(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	ks := scorer.NewKeywordScorer()
	analysis, err := ks.AnalyzeRisk(nil, scorer.AnalysisRequest{
		Message: models.Message{ID: "m1", IndividualID: "ind-1", Text: "I want to kill myself"},
	})
	require.NoError(t, err)
	require.True(t, analysis.Degraded)

	profile := c.Calculate(Input{
		Message:    message(),
		Analysis:   analysis,
		HistoryLen: 5,
		Thresholds: coldStartThresholds(),
	})

	assert.LessOrEqual(t, profile.Confidence, scorer.FallbackConfidence)
	assert.True(t, profile.RequiresHumanReview)
}

func TestDepressionFactorRequiresValidatedInstrument(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	analysis := &scorer.RiskAnalysis{
		Depression: scorer.DepressionAnalysis{
			SeverityEstimate: "HIGH",
			Confidence:       0.7,
			Indicators:       []string{"anhedonia", "sleep disruption"},
		},
		Tone: scorer.ToneAnalysis{ConcernLevel: "MEDIUM"},
	}

	conversational := c.Calculate(Input{
		Message: message(), Analysis: analysis,
		HistoryLen: 5, Thresholds: coldStartThresholds(),
	})
	require.NotNil(t, conversational.RiskFactors.DepressionSeverity)
	assert.Nil(t, conversational.RiskFactors.DepressionSeverity.EstimatedPHQ9)
	assert.True(t, conversational.RiskFactors.DepressionSeverity.IsEstimate)
	assert.True(t, conversational.RiskFactors.DepressionSeverity.RequiresAssessment)

	validated := c.Calculate(Input{
		Message: message(), Analysis: analysis,
		ValidatedPHQ9: &models.AssessmentResult{
			Instrument:     models.InstrumentPHQ9,
			RawScore:       17,
			Severity:       "moderately_severe",
			AdministeredAt: time.Now().Add(-48 * time.Hour),
		},
		HistoryLen: 5, Thresholds: coldStartThresholds(),
	})
	require.NotNil(t, validated.RiskFactors.DepressionSeverity)
	require.NotNil(t, validated.RiskFactors.DepressionSeverity.EstimatedPHQ9)
	assert.Equal(t, 17, *validated.RiskFactors.DepressionSeverity.EstimatedPHQ9)
	assert.False(t, validated.RiskFactors.DepressionSeverity.IsEstimate)
}

func TestPreDecisionCalmEscalatesLowRisk(t *testing.T) {
	c := NewCalculator(zap.NewNop())

	trend := &temporal.Trend{
		Patterns:   []string{temporal.PatternPreDecisionCalm},
		Multiplier: 3.0,
		Confidence: 0.8,
	}

	profile := c.Calculate(Input{
		Message: message(),
		Analysis: &scorer.RiskAnalysis{
			Tone: scorer.ToneAnalysis{ConcernLevel: "LOW"},
		},
		Trend:      trend,
		HistoryLen: 12,
		Thresholds: coldStartThresholds(),
	})

	assert.True(t, profile.RequiresHumanReview)
	assert.Contains(t, profile.TemporalPatterns, temporal.PatternPreDecisionCalm)
}
