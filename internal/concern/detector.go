// Package concern detects lightweight, unscored warning signals. Flags raised
// here influence assessment scheduling only; they never move the risk level
// directly.
package concern

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/storage"
)

// Flag types.
const (
	FlagSuddenLanguageShift  = "sudden_language_shift"
	FlagEngagementDrop       = "significant_engagement_drop"
	FlagHopelessnessThemes   = "hopelessness_themes"
	FlagDisengagementPattern = "disengagement_pattern"
)

// sentimentShiftSigma is the deviation threshold, in standard deviations from
// the individual's baseline sentiment, for a language-shift flag.
const sentimentShiftSigma = 2.0

// engagementDropRatio flags a session whose reported engagement falls below
// this fraction of the individual's recent norm.
const engagementDropRatio = 0.5

// Detector raises concern flags from per-message signals measured against the
// individual's baseline.
type Detector struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewDetector(store storage.Storage, logger *zap.Logger) *Detector {
	return &Detector{store: store, logger: logger}
}

// Detect evaluates one analyzed message against the baseline and persists any
// flags raised. The returned slice is empty when nothing fired.
func (d *Detector) Detect(ctx context.Context, msg models.Message, analysis *scorer.RiskAnalysis, baseline *models.BaselineProfile) ([]models.ConcernFlag, error) {
	var flags []models.ConcernFlag

	if f := d.languageShift(msg, analysis, baseline); f != nil {
		flags = append(flags, *f)
	}
	if f := d.engagementDrop(msg); f != nil {
		flags = append(flags, *f)
	}
	if analysis != nil && analysis.Tone.HopelessnessThemes {
		flags = append(flags, d.newFlag(msg.IndividualID, FlagHopelessnessThemes,
			"hopelessness themes present in message"))
	}

	for i := range flags {
		if err := d.store.SaveConcernFlag(ctx, &flags[i]); err != nil {
			return flags, fmt.Errorf("failed to save concern flag: %w", err)
		}
		d.logger.Info("Concern flag raised",
			zap.String("individual_id", msg.IndividualID),
			zap.String("type", flags[i].Type))
	}
	return flags, nil
}

// FlagDisengagement persists a disengagement flag detected by trajectory
// analysis. The temporal analyzer owns the detection; this is the recording
// side.
func (d *Detector) FlagDisengagement(ctx context.Context, individualID string) (*models.ConcernFlag, error) {
	flag := d.newFlag(individualID, FlagDisengagementPattern,
		"message frequency dropped below half of the individual's recent norm")
	if err := d.store.SaveConcernFlag(ctx, &flag); err != nil {
		return nil, fmt.Errorf("failed to save disengagement flag: %w", err)
	}
	d.logger.Info("Concern flag raised",
		zap.String("individual_id", individualID),
		zap.String("type", flag.Type))
	return &flag, nil
}

// languageShift fires when the message sentiment deviates more than
// sentimentShiftSigma from the individual's typical sentiment. It needs a
// baseline with enough samples for a meaningful variance.
func (d *Detector) languageShift(msg models.Message, analysis *scorer.RiskAnalysis, baseline *models.BaselineProfile) *models.ConcernFlag {
	if analysis == nil || baseline == nil {
		return nil
	}

	value := toneSentimentValue(analysis.Tone.Tone)
	dev, ok := baseline.SentimentDeviation(value)
	if !ok || dev <= sentimentShiftSigma {
		return nil
	}

	f := d.newFlag(msg.IndividualID, FlagSuddenLanguageShift,
		fmt.Sprintf("message sentiment deviates %.1f standard deviations from baseline", dev))
	return &f
}

// engagementDrop reads engagement metrics supplied by the chat collaborator in
// message metadata. Absent metadata means no signal, never an inferred one.
func (d *Detector) engagementDrop(msg models.Message) *models.ConcernFlag {
	current, ok1 := metadataFloat(msg.Metadata, "session_engagement")
	typical, ok2 := metadataFloat(msg.Metadata, "typical_engagement")
	if !ok1 || !ok2 || typical <= 0 {
		return nil
	}
	if current >= typical*engagementDropRatio {
		return nil
	}

	f := d.newFlag(msg.IndividualID, FlagEngagementDrop,
		fmt.Sprintf("session engagement %.2f against typical %.2f", current, typical))
	return &f
}

func (d *Detector) newFlag(individualID, flagType, evidence string) models.ConcernFlag {
	return models.ConcernFlag{
		ID:           uuid.New().String(),
		IndividualID: individualID,
		Type:         flagType,
		Evidence:     evidence,
		CreatedAt:    time.Now(),
	}
}

// toneSentimentValue maps the scorer's tone label onto the same scale the
// baseline tracks sentiment on.
func toneSentimentValue(tone string) float64 {
	switch tone {
	case "positive", "upbeat", "hopeful":
		return 1
	case "negative", "distressed", "despairing", "angry", "sad":
		return -1
	default:
		return 0
	}
}

func metadataFloat(md map[string]string, key string) (float64, bool) {
	if md == nil {
		return 0, false
	}
	raw, ok := md[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
