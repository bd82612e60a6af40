package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
)

func TestKeywordScorerPinsConfidence(t *testing.T) {
	s := NewKeywordScorer()

	analysis, err := s.AnalyzeRisk(context.Background(), AnalysisRequest{
		Message: models.Message{ID: "m1", IndividualID: "ind-1", Text: "I keep thinking about suicide"},
	})
	require.NoError(t, err)

	assert.True(t, analysis.SuicidalIdeation.Present)
	assert.Nil(t, analysis.SuicidalIdeation.IsLiteral)
	assert.Equal(t, FallbackConfidence, analysis.SuicidalIdeation.Confidence)
	assert.True(t, analysis.Degraded)
}

func TestKeywordScorerNoMatch(t *testing.T) {
	s := NewKeywordScorer()

	analysis, err := s.AnalyzeRisk(context.Background(), AnalysisRequest{
		Message: models.Message{ID: "m1", IndividualID: "ind-1", Text: "the movie was great"},
	})
	require.NoError(t, err)

	assert.False(t, analysis.SuicidalIdeation.Present)
	assert.Zero(t, analysis.SuicidalIdeation.Confidence)
	assert.False(t, analysis.Tone.HopelessnessThemes)
}

func TestKeywordScorerHopelessnessTerms(t *testing.T) {
	s := NewKeywordScorer()

	analysis, err := s.AnalyzeRisk(context.Background(), AnalysisRequest{
		Message: models.Message{ID: "m1", IndividualID: "ind-1", Text: "there's just no point anymore"},
	})
	require.NoError(t, err)

	assert.False(t, analysis.SuicidalIdeation.Present)
	assert.True(t, analysis.Tone.HopelessnessThemes)
}

func TestUnmarshalJSONBlockExtractsEmbeddedObject(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"overall_context\":{\"concern_level\":\"LOW\"}}\n```"

	var analysis RiskAnalysis
	require.NoError(t, unmarshalJSONBlock(raw, &analysis))
	assert.Equal(t, "LOW", analysis.Tone.ConcernLevel)
}

func TestValidRiskAnalysisBounds(t *testing.T) {
	valid := &RiskAnalysis{Tone: ToneAnalysis{ConcernLevel: "MEDIUM"}}
	assert.True(t, validRiskAnalysis(valid))

	badConfidence := &RiskAnalysis{
		SuicidalIdeation: SuicidalIdeationAnalysis{Confidence: 1.4},
		Tone:             ToneAnalysis{ConcernLevel: "LOW"},
	}
	assert.False(t, validRiskAnalysis(badConfidence))

	badLevel := &RiskAnalysis{Tone: ToneAnalysis{ConcernLevel: "EXTREME"}}
	assert.False(t, validRiskAnalysis(badLevel))
}

// erroringScorer always fails, standing in for an unreachable backend.
type erroringScorer struct{}

func (erroringScorer) Name() string { return "erroring" }
func (erroringScorer) AnalyzeRisk(context.Context, AnalysisRequest) (*RiskAnalysis, error) {
	return nil, errors.New("connection refused")
}
func (erroringScorer) ObserveBaseline(context.Context, string) (*BaselineObservation, error) {
	return nil, errors.New("connection refused")
}
func (erroringScorer) GenerateResponse(context.Context, ResponseRequest) (string, error) {
	return "", errors.New("connection refused")
}

func TestFailoverMarksDegradedResults(t *testing.T) {
	f := NewFailover(erroringScorer{}, NewKeywordScorer(), zap.NewNop())

	analysis, err := f.AnalyzeRisk(context.Background(), AnalysisRequest{
		Message: models.Message{ID: "m1", IndividualID: "ind-1", Text: "I want to end it all"},
	})
	require.NoError(t, err)

	assert.True(t, analysis.Degraded)
	assert.True(t, analysis.SuicidalIdeation.Present)
	assert.LessOrEqual(t, analysis.SuicidalIdeation.Confidence, FallbackConfidence)
}
