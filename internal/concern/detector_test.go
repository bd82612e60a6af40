package concern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/storage"
)

func newDetector(t *testing.T) (*Detector, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return NewDetector(store, zap.NewNop()), store
}

func positiveBaseline() *models.BaselineProfile {
	return &models.BaselineProfile{
		IndividualID: "ind-1",
		Stats: models.BaselineStats{
			TypicalSentiment:  0.8,
			SentimentVariance: 0.04,
			SampleCount:       20,
		},
	}
}

func TestLanguageShiftAgainstBaseline(t *testing.T) {
	d, store := newDetector(t)
	ctx := context.Background()

	msg := models.Message{ID: "m1", IndividualID: "ind-1", Text: "everything is awful"}
	analysis := &scorer.RiskAnalysis{Tone: scorer.ToneAnalysis{Tone: "distressed"}}

	flags, err := d.Detect(ctx, msg, analysis, positiveBaseline())
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, FlagSuddenLanguageShift, flags[0].Type)

	stored, err := store.RecentConcernFlags(ctx, "ind-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestNoShiftWithoutBaselineVariance(t *testing.T) {
	d, _ := newDetector(t)

	msg := models.Message{ID: "m1", IndividualID: "ind-1", Text: "everything is awful"}
	analysis := &scorer.RiskAnalysis{Tone: scorer.ToneAnalysis{Tone: "distressed"}}

	// Two samples cannot support a deviation comparison.
	sparse := &models.BaselineProfile{
		IndividualID: "ind-1",
		Stats:        models.BaselineStats{TypicalSentiment: 0.8, SentimentVariance: 0.04, SampleCount: 2},
	}
	flags, err := d.Detect(context.Background(), msg, analysis, sparse)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestEngagementDropFromMetadata(t *testing.T) {
	d, _ := newDetector(t)

	msg := models.Message{
		ID:           "m1",
		IndividualID: "ind-1",
		Text:         "ok",
		Metadata: map[string]string{
			"session_engagement": "0.2",
			"typical_engagement": "0.9",
		},
	}
	flags, err := d.Detect(context.Background(), msg, &scorer.RiskAnalysis{}, nil)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, FlagEngagementDrop, flags[0].Type)

	// Without metadata there is no engagement signal, inferred or otherwise.
	bare := models.Message{ID: "m2", IndividualID: "ind-1", Text: "ok"}
	flags, err = d.Detect(context.Background(), bare, &scorer.RiskAnalysis{}, nil)
	require.NoError(t, err)
	assert.Empty(t, flags)
}

func TestHopelessnessThemesFlag(t *testing.T) {
	d, _ := newDetector(t)

	msg := models.Message{ID: "m1", IndividualID: "ind-1", Text: "what's the point of anything"}
	analysis := &scorer.RiskAnalysis{Tone: scorer.ToneAnalysis{HopelessnessThemes: true}}

	flags, err := d.Detect(context.Background(), msg, analysis, nil)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, FlagHopelessnessThemes, flags[0].Type)
}

func TestFlagDisengagementPersists(t *testing.T) {
	d, store := newDetector(t)
	ctx := context.Background()

	flag, err := d.FlagDisengagement(ctx, "ind-1")
	require.NoError(t, err)
	assert.Equal(t, FlagDisengagementPattern, flag.Type)

	stored, err := store.RecentConcernFlags(ctx, "ind-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
