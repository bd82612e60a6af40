package baseline

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

func newProfiler(t *testing.T) *Profiler {
	t.Helper()
	return NewProfiler(storage.NewMemoryStorage(), scorer.NewKeywordScorer(), 3, zap.NewNop())
}

func msg(id, session, text string) models.Message {
	return models.Message{
		ID:           id,
		IndividualID: "ind-1",
		Text:         text,
		SessionID:    session,
		Timestamp:    time.Now(),
	}
}

func TestIngestAccumulatesStats(t *testing.T) {
	p := newProfiler(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, msg("m1", "s1", "had a great day 😊"), &scorer.BaselineObservation{
		Sentiment: models.SentimentPositive,
	})
	require.NoError(t, err)

	profile, err := p.Ingest(ctx, msg("m2", "s1", "feeling kind of tired"), &scorer.BaselineObservation{
		Sentiment: models.SentimentNegative,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, profile.Stats.SampleCount)
	assert.InDelta(t, 0, profile.Stats.TypicalSentiment, 0.001)
	assert.InDelta(t, 0.5, profile.Stats.EmojiRate, 0.001)
}

func TestIngestIsIdempotentPerMessageID(t *testing.T) {
	p := newProfiler(t)
	ctx := context.Background()
	obs := &scorer.BaselineObservation{Sentiment: models.SentimentNeutral}

	first, err := p.Ingest(ctx, msg("m1", "s1", "hello there"), obs)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.SampleCount)

	// A retried submission with the same message ID changes nothing.
	second, err := p.Ingest(ctx, msg("m1", "s1", "hello there"), obs)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Stats.SampleCount)
	assert.Len(t, second.Samples, 1)
}

func TestMatureRequiresPassiveSessions(t *testing.T) {
	p := newProfiler(t)
	ctx := context.Background()
	obs := &scorer.BaselineObservation{Sentiment: models.SentimentNeutral}

	var profile *models.BaselineProfile
	var err error
	for i, session := range []string{"s1", "s2"} {
		profile, err = p.Ingest(ctx, msg(string(rune('a'+i)), session, "hi"), obs)
		require.NoError(t, err)
	}
	assert.False(t, p.Mature(profile))

	profile, err = p.Ingest(ctx, msg("m3", "s3", "hi again"), obs)
	require.NoError(t, err)
	assert.True(t, p.Mature(profile))
}

func TestDarkHumorBaselineFlag(t *testing.T) {
	p := newProfiler(t)
	ctx := context.Background()

	var profile *models.BaselineProfile
	var err error
	messages := []struct {
		id    string
		humor bool
	}{
		{"m1", true}, {"m2", true}, {"m3", false}, {"m4", false}, {"m5", false},
	}
	for _, m := range messages {
		profile, err = p.Ingest(ctx, msg(m.id, "s1", "gallows joke"), &scorer.BaselineObservation{
			Sentiment:     models.SentimentNeutral,
			ContainsHumor: m.humor,
		})
		require.NoError(t, err)
	}

	// 2 of 5 humorous messages puts sarcasm frequency above the dark-humor
	// threshold.
	assert.InDelta(t, 0.4, profile.Stats.SarcasmFrequency, 0.001)
	assert.True(t, profile.Stats.DarkHumorBaseline)
}

func TestCountEmojis(t *testing.T) {
	assert.Equal(t, 0, CountEmojis("no emoji here"))
	assert.Equal(t, 2, CountEmojis("good day 😊🎉"))
}
