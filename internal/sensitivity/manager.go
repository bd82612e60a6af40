// Package sensitivity manages alerting thresholds across deployment phases
// and recalibrates them from accumulated clinician feedback.
package sensitivity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/concern"
	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

// Phase boundaries by cumulative feedback volume.
const (
	calibrationFloor  = 100
	optimizationFloor = 500
)

// feedbackWindow is how far back recalibration replays feedback.
const feedbackWindow = 90 * 24 * time.Hour

// deviationLookback is how far back For checks for a recorded sentiment
// deviation beyond two standard deviations of the individual's own baseline.
const deviationLookback = 7 * 24 * time.Hour

// Grid-search bounds for the optimization phase, stepped by gridStep. The
// medium threshold always stays at least gridGap below the high threshold.
const (
	gridHighMin = 0.60
	gridHighMax = 0.90
	gridMedMin  = 0.30
	gridStep    = 0.05
	gridGap     = 0.10
)

// Metrics summarizes model performance over a feedback window.
type Metrics struct {
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	F1            float64 `json:"f1"`
	SampleSize    int     `json:"sample_size"`
	TruePositive  int     `json:"true_positive"`
	FalsePositive int     `json:"false_positive"`
	FalseNegative int     `json:"false_negative"`
}

// Manager owns the active threshold snapshot. Readers get a consistent
// version with a single atomic load; recalibration installs a complete new
// version, never a partial update.
type Manager struct {
	store   storage.Storage
	logger  *zap.Logger
	current atomic.Pointer[models.ThresholdConfig]
}

func NewManager(store storage.Storage, logger *zap.Logger) *Manager {
	m := &Manager{store: store, logger: logger}
	m.current.Store(defaultConfig(models.PhaseColdStart, 0))
	return m
}

// Load restores the persisted current config, if any, so restarts do not
// reset to cold-start defaults.
func (m *Manager) Load(ctx context.Context) error {
	cfg, err := m.store.CurrentThresholdConfig(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load threshold config: %w", err)
	}
	m.current.Store(cfg)
	return nil
}

// Current returns the active threshold snapshot.
func (m *Manager) Current() *models.ThresholdConfig {
	return m.current.Load()
}

// For returns the thresholds to apply for one individual: the global snapshot,
// optionally narrowed when the individual's own baseline justifies more
// sensitivity. Per-individual adaptation only tightens, never loosens.
func (m *Manager) For(ctx context.Context, individualID string) *models.ThresholdConfig {
	global := m.Current()

	baseline, err := m.store.GetBaseline(ctx, individualID)
	if err != nil || baseline == nil || baseline.Stats.SampleCount < 10 {
		return global
	}

	// The detector records a language-shift flag when message sentiment moves
	// more than two standard deviations from this individual's own baseline.
	// A recent flag means small score changes carry more signal here.
	flags, err := m.store.RecentConcernFlags(ctx, individualID, time.Now().Add(-deviationLookback))
	if err != nil {
		return global
	}
	for _, f := range flags {
		if f.Type == concern.FlagSuddenLanguageShift {
			narrowed := *global
			narrowed.HighRisk = math.Max(global.MediumRisk+gridGap, global.HighRisk-0.05)
			narrowed.MediumRisk = math.Max(0.2, global.MediumRisk-0.05)
			return &narrowed
		}
	}
	return global
}

// Recalibrate recomputes the phase from feedback volume and, in the
// optimization phase, grid-searches thresholds for best F1. The new config is
// persisted before being installed.
func (m *Manager) Recalibrate(ctx context.Context) (*models.ThresholdConfig, error) {
	count, err := m.store.FeedbackCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	prev := m.Current()
	var next *models.ThresholdConfig

	switch {
	case count < calibrationFloor:
		next = defaultConfig(models.PhaseColdStart, prev.Version+1)
	case count < optimizationFloor:
		next = defaultConfig(models.PhaseCalibration, prev.Version+1)
	default:
		window, err := m.store.FeedbackWindow(ctx, time.Now().Add(-feedbackWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to load feedback window: %w", err)
		}
		high, medium := optimize(window)
		next = &models.ThresholdConfig{
			Version:           prev.Version + 1,
			Phase:             models.PhaseOptimization,
			HighRisk:          high,
			MediumRisk:        medium,
			MinimumConfidence: 0.6,
			RoutingPolicy:     models.PolicyDataDriven,
			CreatedAt:         time.Now(),
		}
	}

	if err := m.store.SaveThresholdConfig(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save threshold config: %w", err)
	}
	m.current.Store(next)

	m.logger.Info("Thresholds recalibrated",
		zap.Int("version", next.Version),
		zap.String("phase", string(next.Phase)),
		zap.Float64("high", next.HighRisk),
		zap.Float64("medium", next.MediumRisk),
		zap.Int("feedback_count", count))
	return next, nil
}

// Run recalibrates on a fixed interval until the context is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Recalibrate(ctx); err != nil {
				m.logger.Error("Recalibration failed", zap.Error(err))
			}
		}
	}
}

// Performance computes precision, recall and F1 of the active high threshold
// against the feedback window.
func (m *Manager) Performance(ctx context.Context) (*Metrics, error) {
	window, err := m.store.FeedbackWindow(ctx, time.Now().Add(-feedbackWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback window: %w", err)
	}
	metrics := evaluate(window, m.Current().HighRisk)
	metrics.SampleSize = len(window)
	return &metrics, nil
}

func defaultConfig(phase models.Phase, version int) *models.ThresholdConfig {
	cfg := &models.ThresholdConfig{
		Version:   version,
		Phase:     phase,
		CreatedAt: time.Now(),
	}
	switch phase {
	case models.PhaseCalibration:
		cfg.HighRisk = 0.75
		cfg.MediumRisk = 0.45
		cfg.MinimumConfidence = 0.6
		cfg.RoutingPolicy = models.PolicyRouteUncertain
	default:
		// Cold start errs toward sensitivity: lower thresholds, everything
		// medium and above routed to a human.
		cfg.HighRisk = 0.70
		cfg.MediumRisk = 0.40
		cfg.MinimumConfidence = 0.5
		cfg.RoutingPolicy = models.PolicyRouteAllMediumPlus
	}
	return cfg
}

// optimize grid-searches the high threshold for best F1 against recorded
// feedback, then derives the medium threshold. Ties break toward the lower,
// more sensitive candidate.
func optimize(window []models.FeedbackRecord) (high, medium float64) {
	bestHigh := gridHighMin
	bestF1 := -1.0

	for h := gridHighMin; h <= gridHighMax+1e-9; h += gridStep {
		f1 := evaluate(window, h).F1
		if f1 > bestF1 {
			bestF1 = f1
			bestHigh = h
		}
	}

	bestMedium := gridMedMin
	bestMedF1 := -1.0
	for md := gridMedMin; md <= bestHigh-gridGap+1e-9; md += gridStep {
		f1 := evaluate(window, md).F1
		if f1 > bestMedF1 {
			bestMedF1 = f1
			bestMedium = md
		}
	}

	return round2(bestHigh), round2(bestMedium)
}

// evaluate replays one threshold candidate against feedback: predicted
// positive when the recorded model score clears the candidate, actual
// positive per the clinician verdict.
func evaluate(window []models.FeedbackRecord, threshold float64) Metrics {
	var metrics Metrics
	for _, f := range window {
		predicted := f.ModelScore >= threshold
		actual := f.ActualPositive()
		switch {
		case predicted && actual:
			metrics.TruePositive++
		case predicted && !actual:
			metrics.FalsePositive++
		case !predicted && actual:
			metrics.FalseNegative++
		}
	}

	if metrics.TruePositive+metrics.FalsePositive > 0 {
		metrics.Precision = float64(metrics.TruePositive) / float64(metrics.TruePositive+metrics.FalsePositive)
	}
	if metrics.TruePositive+metrics.FalseNegative > 0 {
		metrics.Recall = float64(metrics.TruePositive) / float64(metrics.TruePositive+metrics.FalseNegative)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	return metrics
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
