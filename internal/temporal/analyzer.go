// Package temporal computes trend statistics over an individual's ordered
// risk history. Every statistic has a minimum-data guard: below it the value
// is explicitly nil, never estimated.
package temporal

import (
	"math"
	"time"

	"github.com/mindwell/sentinel/internal/models"
)

// Minimum history sizes. Velocity and acceleration are gated independently.
const (
	MinPointsVelocity     = 5
	MinPointsAcceleration = 10
)

// Pattern names surfaced on risk profiles.
const (
	PatternRapidDeterioration = "rapid_deterioration"
	PatternPreDecisionCalm    = "pre_decision_calm"
	PatternChronicElevated    = "chronic_elevated"
	PatternCyclical           = "cyclical"
	PatternDisengagement      = "disengagement"
)

// Trend is the result of trajectory analysis. Velocity and Acceleration are
// nil when history is below the respective minimum. UseSnapshotOnly tells
// the risk calculator to ignore trend signals entirely.
type Trend struct {
	Velocity        *float64
	Acceleration    *float64
	Patterns        []string
	Multiplier      float64
	Confidence      float64
	UseSnapshotOnly bool
}

// HasPattern reports whether a named pattern was detected.
func (t *Trend) HasPattern(name string) bool {
	for _, p := range t.Patterns {
		if p == name {
			return true
		}
	}
	return false
}

// Analyzer classifies temporal patterns in risk score trajectories.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze computes velocity, acceleration, pattern classification and the
// resulting risk multiplier over an ordered (oldest first) risk history.
func (a *Analyzer) Analyze(history []models.RiskPoint) *Trend {
	trend := &Trend{Multiplier: 1.0}

	if len(history) < MinPointsVelocity {
		trend.UseSnapshotOnly = true
		return trend
	}

	v := velocity(history)
	trend.Velocity = &v

	if len(history) >= MinPointsAcceleration {
		acc := acceleration(history)
		trend.Acceleration = &acc
	}

	scores := make([]float64, len(history))
	for i, p := range history {
		scores[i] = p.Score
	}

	if trend.Acceleration != nil && v < -0.5 && *trend.Acceleration < 0 {
		trend.Patterns = append(trend.Patterns, PatternRapidDeterioration)
		trend.Multiplier *= 2.0
	}
	if preDecisionCalm(scores) {
		trend.Patterns = append(trend.Patterns, PatternPreDecisionCalm)
		trend.Multiplier *= 3.0
	}
	if chronicElevated(scores) {
		trend.Patterns = append(trend.Patterns, PatternChronicElevated)
		trend.Multiplier *= 1.5
	}
	if cyclical(scores) {
		// flagged for review only, no fixed multiplier
		trend.Patterns = append(trend.Patterns, PatternCyclical)
	}
	if disengagement(history) {
		trend.Patterns = append(trend.Patterns, PatternDisengagement)
		trend.Multiplier *= 1.3
	}

	trend.Confidence = trendConfidence(len(history))
	return trend
}

// trendConfidence grows monotonically with history length, capped below 1.
func trendConfidence(n int) float64 {
	return math.Min(0.95, 0.3+0.05*float64(n))
}

// velocity is the average per-day change between first and last point.
func velocity(history []models.RiskPoint) float64 {
	first, last := history[0], history[len(history)-1]
	days := last.At.Sub(first.At).Hours() / 24
	if days <= 0 {
		days = 1
	}
	return (last.Score - first.Score) / days
}

// acceleration is the change in velocity between the two halves of the
// window, per day.
func acceleration(history []models.RiskPoint) float64 {
	mid := len(history) / 2
	v1 := velocity(history[:mid+1])
	v2 := velocity(history[mid:])

	days := history[len(history)-1].At.Sub(history[0].At).Hours() / 24
	if days <= 0 {
		days = 1
	}
	return (v2 - v1) / (days / 2)
}

// preDecisionCalm detects sudden improvement after sustained distress: the
// most dangerous trajectory, because the apparent calm can reflect a decision
// already made. It must never be reported as resolution.
func preDecisionCalm(scores []float64) bool {
	if len(scores) < 5 {
		return false
	}
	split := int(float64(len(scores)) * 0.7)
	if split == 0 || split == len(scores) {
		return false
	}
	earlyMean := mean(scores[:split])
	lateMean := mean(scores[split:])
	return earlyMean >= 3.0 && lateMean < 2.0 && earlyMean-lateMean > 1.5
}

func chronicElevated(scores []float64) bool {
	m := mean(scores)
	return m > 2.5 && stddev(scores, m) < 0.5
}

// cyclical looks for frequent direction reversals, a possible indicator of
// mood cycling.
func cyclical(scores []float64) bool {
	if len(scores) < 6 {
		return false
	}
	diffs := make([]float64, 0, len(scores)-1)
	for i := 1; i < len(scores); i++ {
		diffs = append(diffs, scores[i]-scores[i-1])
	}
	signChanges := 0
	for i := 1; i < len(diffs); i++ {
		if (diffs[i] > 0) != (diffs[i-1] > 0) {
			signChanges++
		}
	}
	return float64(signChanges) > float64(len(scores))*0.5
}

// disengagement compares message frequency between the early and late halves
// of the window.
func disengagement(history []models.RiskPoint) bool {
	start := history[0].At
	end := history[len(history)-1].At
	total := end.Sub(start)
	if total <= 0 {
		return false
	}

	mid := start.Add(total / 2)
	earlyCount, lateCount := 0, 0
	for _, p := range history {
		if p.At.Before(mid) {
			earlyCount++
		} else {
			lateCount++
		}
	}

	half := total / 2
	if half <= 0 {
		return false
	}
	earlyFreq := float64(earlyCount) / half.Hours()
	lateFreq := float64(lateCount) / half.Hours()
	return lateFreq < earlyFreq*0.5
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Window is the default lookback for trajectory analysis.
const Window = 30 * 24 * time.Hour
