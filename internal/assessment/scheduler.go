package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

// ErrMalformedResponse reports answers that do not map onto the instrument's
// options. The caller re-prompts; the answer is never coerced into a score.
var ErrMalformedResponse = errors.New("malformed assessment response")

// Scheduler decides when to administer which instrument. Tier 1 is passive
// observation only, tier 2 is periodic two-item screeners, tier 3 is the full
// instrument triggered by a positive screen or concern flags.
type Scheduler struct {
	store           storage.Storage
	crisisFlow      *CrisisFlow
	logger          *zap.Logger
	checkInterval   time.Duration
	flaggedInterval time.Duration
	flagLookback    time.Duration
}

func NewScheduler(store storage.Storage, crisisFlow *CrisisFlow, checkInterval, flaggedInterval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:           store,
		crisisFlow:      crisisFlow,
		logger:          logger,
		checkInterval:   checkInterval,
		flaggedInterval: flaggedInterval,
		flagLookback:    7 * 24 * time.Hour,
	}
}

// NextDue returns the instrument to administer now, or nil when nothing is
// due. baselineMature gates everything: during passive observation no
// instrument is ever presented.
func (s *Scheduler) NextDue(ctx context.Context, individualID string, baselineMature bool) (*Instrument, string, error) {
	if !baselineMature {
		return nil, "", nil
	}

	// A positive two-item screen escalates to the full instrument before any
	// further screening happens.
	if in, reason, err := s.pendingEscalation(ctx, individualID); err != nil || in != nil {
		return in, reason, err
	}

	interval, flagged, err := s.effectiveInterval(ctx, individualID)
	if err != nil {
		return nil, "", err
	}

	for _, screener := range []models.InstrumentID{models.InstrumentPHQ2, models.InstrumentGAD2} {
		due, err := s.screenerDue(ctx, individualID, screener, interval)
		if err != nil {
			return nil, "", err
		}
		if due {
			in, _ := Lookup(screener)
			reason := "periodic checkpoint"
			if flagged {
				reason = "checkpoint shortened by concern flags"
			}
			return in, reason, nil
		}
	}
	return nil, "", nil
}

// Submit scores a completed instrument, persists the result and returns the
// follow-up instrument when the result escalates. A PHQ-9 with any answer
// above zero on the self-harm item opens the crisis questionnaire, whatever
// the total score; the returned session is the consent request.
func (s *Scheduler) Submit(ctx context.Context, individualID string, id models.InstrumentID, responses map[string]int, triggerReason string) (*models.AssessmentResult, *Instrument, *models.QuestionnaireSession, error) {
	in, ok := Lookup(id)
	if !ok {
		return nil, nil, nil, fmt.Errorf("unknown instrument %s", id)
	}

	score, severity, err := in.Score(responses)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	result := &models.AssessmentResult{
		ID:             uuid.New().String(),
		IndividualID:   individualID,
		Instrument:     id,
		RawScore:       score,
		Severity:       severity,
		Responses:      responses,
		TriggerReason:  triggerReason,
		AdministeredAt: time.Now(),
	}
	if err := s.store.SaveAssessment(ctx, result); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to save assessment: %w", err)
	}

	s.logger.Info("Assessment recorded",
		zap.String("individual_id", individualID),
		zap.String("instrument", string(id)),
		zap.Int("score", score),
		zap.String("severity", severity))

	var crisisSession *models.QuestionnaireSession
	if id == models.InstrumentPHQ9 && responses[SelfHarmItemID] > 0 {
		crisisSession, err = s.crisisFlow.Trigger(ctx, individualID,
			fmt.Sprintf("PHQ-9 self-harm item answered %d", responses[SelfHarmItemID]))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open crisis questionnaire: %w", err)
		}
	}

	next := escalationFor(id, score)
	return result, next, crisisSession, nil
}

// pendingEscalation finds a positive screen with no full instrument
// administered since it.
func (s *Scheduler) pendingEscalation(ctx context.Context, individualID string) (*Instrument, string, error) {
	pairs := []struct {
		screener, full models.InstrumentID
		cutoff         int
	}{
		{models.InstrumentPHQ2, models.InstrumentPHQ9, PHQ2EscalationScore},
		{models.InstrumentGAD2, models.InstrumentGAD7, GAD2EscalationScore},
	}

	for _, p := range pairs {
		screen, err := s.latest(ctx, individualID, p.screener)
		if err != nil {
			return nil, "", err
		}
		if screen == nil || screen.RawScore < p.cutoff {
			continue
		}
		full, err := s.latest(ctx, individualID, p.full)
		if err != nil {
			return nil, "", err
		}
		if full != nil && full.AdministeredAt.After(screen.AdministeredAt) {
			continue
		}
		in, _ := Lookup(p.full)
		return in, fmt.Sprintf("positive %s screen (score %d)", p.screener, screen.RawScore), nil
	}
	return nil, "", nil
}

func (s *Scheduler) screenerDue(ctx context.Context, individualID string, id models.InstrumentID, interval time.Duration) (bool, error) {
	last, err := s.latest(ctx, individualID, id)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return time.Since(last.AdministeredAt) >= interval, nil
}

// effectiveInterval shortens the checkpoint cadence when concern flags were
// raised recently.
func (s *Scheduler) effectiveInterval(ctx context.Context, individualID string) (time.Duration, bool, error) {
	flags, err := s.store.RecentConcernFlags(ctx, individualID, time.Now().Add(-s.flagLookback))
	if err != nil {
		return 0, false, fmt.Errorf("failed to load concern flags: %w", err)
	}
	if len(flags) > 0 {
		return s.flaggedInterval, true, nil
	}
	return s.checkInterval, false, nil
}

func (s *Scheduler) latest(ctx context.Context, individualID string, id models.InstrumentID) (*models.AssessmentResult, error) {
	result, err := s.store.LatestAssessment(ctx, individualID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest %s: %w", id, err)
	}
	return result, nil
}

func escalationFor(id models.InstrumentID, score int) *Instrument {
	switch {
	case id == models.InstrumentPHQ2 && score >= PHQ2EscalationScore:
		in, _ := Lookup(models.InstrumentPHQ9)
		return in
	case id == models.InstrumentGAD2 && score >= GAD2EscalationScore:
		in, _ := Lookup(models.InstrumentGAD7)
		return in
	default:
		return nil
	}
}
