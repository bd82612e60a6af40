package sensitivity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/concern"
	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

func seedFeedback(t *testing.T, store storage.Storage, n int, score float64, severity string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := store.SaveFeedback(ctx, &models.FeedbackRecord{
			ID:             fmt.Sprintf("%s-%f-%d", severity, score, i),
			RiskProfileID:  fmt.Sprintf("rp-%d", i),
			IndividualID:   "ind-1",
			ActualSeverity: severity,
			Accuracy:       models.AccuracyAccurate,
			ModelScore:     score,
			SubmittedAt:    time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestDefaultIsColdStart(t *testing.T) {
	m := NewManager(storage.NewMemoryStorage(), zap.NewNop())

	cfg := m.Current()
	assert.Equal(t, models.PhaseColdStart, cfg.Phase)
	assert.Equal(t, 0.70, cfg.HighRisk)
	assert.Equal(t, 0.40, cfg.MediumRisk)
	assert.Equal(t, 0.5, cfg.MinimumConfidence)
	assert.Equal(t, models.PolicyRouteAllMediumPlus, cfg.RoutingPolicy)
}

func TestRecalibrateStaysColdStartBelowFloor(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, zap.NewNop())
	seedFeedback(t, store, 50, 0.8, "Severe")

	cfg, err := m.Recalibrate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.PhaseColdStart, cfg.Phase)
	assert.Equal(t, 0.70, cfg.HighRisk)
	assert.Equal(t, models.PolicyRouteAllMediumPlus, cfg.RoutingPolicy)
}

func TestRecalibrateEntersCalibrationPhase(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, zap.NewNop())
	seedFeedback(t, store, 200, 0.8, "Severe")

	cfg, err := m.Recalibrate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.PhaseCalibration, cfg.Phase)
	assert.Equal(t, 0.75, cfg.HighRisk)
	assert.Equal(t, 0.45, cfg.MediumRisk)
	assert.Equal(t, models.PolicyRouteUncertain, cfg.RoutingPolicy)
}

func TestRecalibrateOptimizesThresholdsFromFeedback(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, zap.NewNop())

	// Cleanly separable feedback: true positives scored 0.8, false alarms
	// scored 0.5. Every candidate in (0.5, 0.8] has perfect F1; ties break
	// toward the lowest, most sensitive threshold.
	seedFeedback(t, store, 300, 0.8, "Severe")
	seedFeedback(t, store, 300, 0.5, "None")

	cfg, err := m.Recalibrate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.PhaseOptimization, cfg.Phase)
	assert.Equal(t, models.PolicyDataDriven, cfg.RoutingPolicy)
	assert.InDelta(t, 0.60, cfg.HighRisk, 0.001)
	assert.LessOrEqual(t, cfg.MediumRisk, cfg.HighRisk-0.1)
}

func TestRecalibrateBumpsVersionAndPersists(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, zap.NewNop())

	first, err := m.Recalibrate(context.Background())
	require.NoError(t, err)
	second, err := m.Recalibrate(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	// A fresh manager restores the persisted snapshot.
	restored := NewManager(store, zap.NewNop())
	require.NoError(t, restored.Load(context.Background()))
	assert.Equal(t, second.Version, restored.Current().Version)
}

func TestForNarrowsButNeverLoosens(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, zap.NewNop())
	ctx := context.Background()
	global := m.Current()

	// A recent two-sigma language shift against an established baseline
	// justifies extra sensitivity for this individual.
	require.NoError(t, store.UpdateBaselineStats(ctx, "shifted", models.BaselineStats{
		TypicalSentiment:  0.3,
		SentimentVariance: 0.1,
		SampleCount:       20,
	}))
	require.NoError(t, store.SaveConcernFlag(ctx, &models.ConcernFlag{
		ID:           "cf-1",
		IndividualID: "shifted",
		Type:         concern.FlagSuddenLanguageShift,
		CreatedAt:    time.Now().Add(-time.Hour),
	}))
	narrowed := m.For(ctx, "shifted")
	assert.Less(t, narrowed.HighRisk, global.HighRisk)
	assert.Less(t, narrowed.MediumRisk, global.MediumRisk)
	assert.GreaterOrEqual(t, narrowed.HighRisk, narrowed.MediumRisk+0.1)

	// No recorded deviation means the global thresholds apply unchanged.
	require.NoError(t, store.UpdateBaselineStats(ctx, "steady", models.BaselineStats{
		TypicalSentiment:  -0.8,
		SentimentVariance: 0.1,
		SampleCount:       20,
	}))
	assert.Equal(t, global, m.For(ctx, "steady"))

	// Flags other than a language shift do not adjust thresholds.
	require.NoError(t, store.UpdateBaselineStats(ctx, "flagged-other", models.BaselineStats{
		TypicalSentiment:  0.1,
		SentimentVariance: 0.2,
		SampleCount:       20,
	}))
	require.NoError(t, store.SaveConcernFlag(ctx, &models.ConcernFlag{
		ID:           "cf-2",
		IndividualID: "flagged-other",
		Type:         concern.FlagEngagementDrop,
		CreatedAt:    time.Now().Add(-time.Hour),
	}))
	assert.Equal(t, global, m.For(ctx, "flagged-other"))

	// Too few samples means no per-individual adaptation at all.
	require.NoError(t, store.UpdateBaselineStats(ctx, "sparse", models.BaselineStats{
		TypicalSentiment:  -0.9,
		SentimentVariance: 0.05,
		SampleCount:       4,
	}))
	require.NoError(t, store.SaveConcernFlag(ctx, &models.ConcernFlag{
		ID:           "cf-3",
		IndividualID: "sparse",
		Type:         concern.FlagSuddenLanguageShift,
		CreatedAt:    time.Now().Add(-time.Hour),
	}))
	assert.Equal(t, global, m.For(ctx, "sparse"))
}

func TestPerformanceMetrics(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := NewManager(store, zap.NewNop())

	// Against the default 0.70 high threshold: 10 true positives at 0.8,
	// 5 false positives at 0.75, 5 missed cases at 0.3.
	seedFeedback(t, store, 10, 0.8, "Severe")
	seedFeedback(t, store, 5, 0.75, "None")
	seedFeedback(t, store, 5, 0.3, "Crisis")

	metrics, err := m.Performance(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, metrics.TruePositive)
	assert.Equal(t, 5, metrics.FalsePositive)
	assert.Equal(t, 5, metrics.FalseNegative)
	assert.InDelta(t, 10.0/15.0, metrics.Precision, 0.001)
	assert.InDelta(t, 10.0/15.0, metrics.Recall, 0.001)
	assert.Equal(t, 20, metrics.SampleSize)
}
