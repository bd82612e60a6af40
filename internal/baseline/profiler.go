// Package baseline builds per-individual communication baselines. The
// profiler only observes: it never scores, never alerts, and keeps
// accumulating samples for the lifetime of the individual.
package baseline

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/storage"
)

// darkHumorThreshold: above this humor frequency, dark humor is considered
// part of the individual's normal register and weighs into ambiguity
// calibration downstream.
const darkHumorThreshold = 0.3

var emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{1F900}-\x{1F9FF}]`)

// Profiler ingests raw messages into baseline profiles and recomputes the
// derived statistics on every update.
type Profiler struct {
	store           storage.ProfileStorage
	scorer          scorer.Scorer
	passiveSessions int
	logger          *zap.Logger
}

func NewProfiler(store storage.ProfileStorage, sc scorer.Scorer, passiveSessions int, logger *zap.Logger) *Profiler {
	return &Profiler{
		store:           store,
		scorer:          sc,
		passiveSessions: passiveSessions,
		logger:          logger,
	}
}

// Ingest records one message into the individual's baseline. Messages whose
// ID was already ingested are skipped, so retried submissions do not skew the
// statistics. The returned profile reflects the post-ingest state.
func (p *Profiler) Ingest(ctx context.Context, msg models.Message, obs *scorer.BaselineObservation) (*models.BaselineProfile, error) {
	if obs == nil {
		obs = &scorer.BaselineObservation{Sentiment: models.SentimentNeutral}
	}

	sample := models.BaselineSample{
		MessageID:     msg.ID,
		Timestamp:     msg.Timestamp,
		MessageLength: len([]rune(msg.Text)),
		EmojiCount:    CountEmojis(msg.Text),
		Sentiment:     obs.Sentiment,
		ContainsHumor: obs.ContainsHumor,
	}

	appended, err := p.store.AppendBaselineSample(ctx, msg.IndividualID, sample, msg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to append baseline sample: %w", err)
	}
	if !appended {
		p.logger.Debug("Duplicate message skipped in baseline",
			zap.String("individual_id", msg.IndividualID),
			zap.String("message_id", msg.ID))
		return p.Get(ctx, msg.IndividualID)
	}

	profile, err := p.store.GetBaseline(ctx, msg.IndividualID)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}

	stats := computeStats(profile.Samples, obs.Themes, profile.Stats.CommonThemes)
	if err := p.store.UpdateBaselineStats(ctx, msg.IndividualID, stats); err != nil {
		return nil, fmt.Errorf("failed to update baseline stats: %w", err)
	}
	profile.Stats = stats
	return profile, nil
}

// Get returns the current baseline for an individual. A never-seen
// individual gets an empty profile, not an error.
func (p *Profiler) Get(ctx context.Context, individualID string) (*models.BaselineProfile, error) {
	return p.store.GetBaseline(ctx, individualID)
}

// Mature reports whether the baseline has left Tier-1 passive accumulation
// and may be used as a calibration input.
func (p *Profiler) Mature(profile *models.BaselineProfile) bool {
	return profile != nil && profile.SessionCount >= p.passiveSessions
}

// CountEmojis counts emoji runes in a message.
func CountEmojis(text string) int {
	return len(emojiPattern.FindAllString(text, -1))
}

func computeStats(samples []models.BaselineSample, newThemes, knownThemes []string) models.BaselineStats {
	stats := models.BaselineStats{SampleCount: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var lengthSum, emojiSum, sentimentSum float64
	humorCount := 0
	for _, s := range samples {
		lengthSum += float64(s.MessageLength)
		emojiSum += float64(s.EmojiCount)
		sentimentSum += s.Sentiment.Value()
		if s.ContainsHumor {
			humorCount++
		}
	}

	n := float64(len(samples))
	stats.AvgMessageLength = lengthSum / n
	stats.EmojiRate = emojiSum / n
	stats.TypicalSentiment = sentimentSum / n

	var varianceSum float64
	for _, s := range samples {
		d := s.Sentiment.Value() - stats.TypicalSentiment
		varianceSum += d * d
	}
	stats.SentimentVariance = varianceSum / n

	stats.SarcasmFrequency = float64(humorCount) / n
	stats.DarkHumorBaseline = stats.SarcasmFrequency > darkHumorThreshold
	stats.CommonThemes = mergeThemes(knownThemes, newThemes)
	return stats
}

func mergeThemes(known, incoming []string) []string {
	seen := make(map[string]struct{}, len(known))
	merged := make([]string, 0, len(known)+len(incoming))
	for _, t := range known {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range incoming {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	// cap the list so the prompt context stays small
	if len(merged) > 10 {
		merged = merged[:10]
	}
	return merged
}
