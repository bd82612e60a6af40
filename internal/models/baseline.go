package models

import (
	"math"
	"time"
)

// Sentiment is the categorical sentiment assigned to a single message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Value maps a sentiment category onto the -1..+1 scale used for baseline
// statistics and deviation checks.
func (s Sentiment) Value() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// BaselineSample is one raw observation of an individual's communication
// style. Samples accrue continuously and are never deleted.
type BaselineSample struct {
	MessageID     string    `json:"message_id"`
	Timestamp     time.Time `json:"timestamp"`
	MessageLength int       `json:"message_length"`
	EmojiCount    int       `json:"emoji_count"`
	Sentiment     Sentiment `json:"sentiment"`
	ContainsHumor bool      `json:"contains_humor"`
}

// BaselineStats are the statistics recomputed from the raw samples on each
// update.
type BaselineStats struct {
	AvgMessageLength  float64  `json:"avg_message_length"`
	EmojiRate         float64  `json:"emoji_usage_rate"`
	TypicalSentiment  float64  `json:"typical_sentiment"`
	SentimentVariance float64  `json:"sentiment_variance"`
	SarcasmFrequency  float64  `json:"sarcasm_frequency"`
	DarkHumorBaseline bool     `json:"dark_humor_baseline"`
	CommonThemes      []string `json:"common_themes,omitempty"`
	SampleCount       int      `json:"sample_count"`
}

// BaselineProfile is the per-individual communication baseline. It carries no
// risk score; it only contextualizes later signals.
type BaselineProfile struct {
	IndividualID  string           `json:"individual_id"`
	Samples       []BaselineSample `json:"samples"`
	Stats         BaselineStats    `json:"stats"`
	SessionCount  int              `json:"session_count"`
	LastSessionID string           `json:"last_session_id,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SentimentDeviation returns how far a sentiment value sits from the
// individual's typical sentiment, in standard deviations. The second return
// is false when the baseline has too few samples to support the comparison.
func (p *BaselineProfile) SentimentDeviation(value float64) (float64, bool) {
	if p == nil || p.Stats.SampleCount < 3 || p.Stats.SentimentVariance <= 0 {
		return 0, false
	}
	std := math.Sqrt(p.Stats.SentimentVariance)
	if std == 0 {
		return 0, false
	}
	return math.Abs(value-p.Stats.TypicalSentiment) / std, true
}
