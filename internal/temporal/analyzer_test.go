package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwell/sentinel/internal/models"
)

// history builds one point per day, oldest first.
func history(scores ...float64) []models.RiskPoint {
	start := time.Now().Add(-time.Duration(len(scores)) * 24 * time.Hour)
	points := make([]models.RiskPoint, len(scores))
	for i, s := range scores {
		points[i] = models.RiskPoint{
			Score:      s,
			Confidence: 0.8,
			At:         start.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return points
}

func TestAnalyzeBelowVelocityMinimum(t *testing.T) {
	a := NewAnalyzer()

	trend := a.Analyze(history(2, 2, 3, 3))

	assert.Nil(t, trend.Velocity)
	assert.Nil(t, trend.Acceleration)
	assert.True(t, trend.UseSnapshotOnly)
	assert.Zero(t, trend.Confidence)
	assert.Equal(t, 1.0, trend.Multiplier)
	assert.Empty(t, trend.Patterns)
}

func TestAnalyzeVelocityWithoutAcceleration(t *testing.T) {
	a := NewAnalyzer()

	// 5 points is enough for velocity but not acceleration.
	trend := a.Analyze(history(1, 1.5, 2, 2.5, 3))

	require.NotNil(t, trend.Velocity)
	assert.Nil(t, trend.Acceleration)
	assert.False(t, trend.UseSnapshotOnly)
	assert.InDelta(t, 0.5, *trend.Velocity, 0.01)
}

func TestAnalyzePreDecisionCalm(t *testing.T) {
	a := NewAnalyzer()

	// Sustained distress followed by abrupt improvement. This must escalate,
	// never read as recovery.
	trend := a.Analyze(history(3.5, 3.5, 3.6, 3.4, 3.5, 3.6, 3.5, 3.4, 1, 1, 1, 1))

	assert.True(t, trend.HasPattern(PatternPreDecisionCalm))
	assert.GreaterOrEqual(t, trend.Multiplier, 3.0)
}

func TestAnalyzeChronicElevated(t *testing.T) {
	a := NewAnalyzer()

	trend := a.Analyze(history(2.8, 2.8, 2.8, 2.8, 2.8, 2.8, 2.8, 2.8))

	assert.True(t, trend.HasPattern(PatternChronicElevated))
	assert.InDelta(t, 1.5, trend.Multiplier, 0.001)
}

func TestAnalyzeStableLowHasNoPatterns(t *testing.T) {
	a := NewAnalyzer()

	trend := a.Analyze(history(1, 1, 1, 1, 1, 1, 1, 1))

	assert.Empty(t, trend.Patterns)
	assert.Equal(t, 1.0, trend.Multiplier)
}

func TestAnalyzeRapidDeterioration(t *testing.T) {
	a := NewAnalyzer()

	// Ten points over four days, declining faster and faster.
	scores := []float64{4, 4, 3.9, 3.8, 3.6, 3.3, 2.9, 2.4, 1.8, 1}
	start := time.Now().Add(-4 * 24 * time.Hour)
	points := make([]models.RiskPoint, len(scores))
	for i, s := range scores {
		points[i] = models.RiskPoint{Score: s, At: start.Add(time.Duration(i) * 10 * time.Hour)}
	}

	trend := a.Analyze(points)

	require.NotNil(t, trend.Velocity)
	require.NotNil(t, trend.Acceleration)
	assert.Less(t, *trend.Velocity, -0.5)
	assert.True(t, trend.HasPattern(PatternRapidDeterioration))
	assert.GreaterOrEqual(t, trend.Multiplier, 2.0)
}

func TestTrendConfidenceGrowsWithHistory(t *testing.T) {
	a := NewAnalyzer()

	short := a.Analyze(history(1, 1, 1, 1, 1))
	long := a.Analyze(history(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1))

	assert.Greater(t, long.Confidence, short.Confidence)
	assert.LessOrEqual(t, long.Confidence, 0.95)
}
