// Package pipeline runs every inbound message through five ordered
// checkpoints. The order is a hard invariant: no response leaves the system
// before the gate has seen every prior checkpoint complete.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/alerts"
	"github.com/mindwell/sentinel/internal/assessment"
	"github.com/mindwell/sentinel/internal/baseline"
	"github.com/mindwell/sentinel/internal/concern"
	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/risk"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/sensitivity"
	"github.com/mindwell/sentinel/internal/storage"
	"github.com/mindwell/sentinel/internal/temporal"
)

// CheckpointOrderViolation is the panic payload when the response gate finds
// a checkpoint missing or out of order. This is a programming error, not a
// runtime condition, so it is fatal.
type CheckpointOrderViolation struct {
	Expected string
	Got      string
}

func (v CheckpointOrderViolation) Error() string {
	return fmt.Sprintf("checkpoint order violated: expected %s, got %s", v.Expected, v.Got)
}

const historyLimit = 10

// Processor orchestrates the checkpoint pipeline. Messages from the same
// individual never run concurrently with each other.
type Processor struct {
	store       storage.Storage
	scorer      scorer.Scorer
	profiler    *baseline.Profiler
	detector    *concern.Detector
	analyzer    *temporal.Analyzer
	calculator  *risk.Calculator
	sensitivity *sensitivity.Manager
	scheduler   *assessment.Scheduler
	crisisFlow  *assessment.CrisisFlow
	dispatcher  *alerts.Dispatcher
	logger      *zap.Logger

	analysisTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProcessor(
	store storage.Storage,
	sc scorer.Scorer,
	profiler *baseline.Profiler,
	detector *concern.Detector,
	analyzer *temporal.Analyzer,
	calculator *risk.Calculator,
	sm *sensitivity.Manager,
	scheduler *assessment.Scheduler,
	crisisFlow *assessment.CrisisFlow,
	dispatcher *alerts.Dispatcher,
	analysisTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		store:           store,
		scorer:          sc,
		profiler:        profiler,
		detector:        detector,
		analyzer:        analyzer,
		calculator:      calculator,
		sensitivity:     sm,
		scheduler:       scheduler,
		crisisFlow:      crisisFlow,
		dispatcher:      dispatcher,
		analysisTimeout: analysisTimeout,
		logger:          logger,
		locks:           make(map[string]*sync.Mutex),
	}
}

// run carries the pipeline state across stages for one message.
type run struct {
	msg         models.Message
	safetyFlags []string
	baseline    *models.BaselineProfile
	history     []models.Exchange
	analysis    *scorer.RiskAnalysis
	trend       *temporal.Trend
	response    string
	profile     *models.RiskProfile
	result      *models.ProcessResult
	checkpoints []models.CheckpointRecord
}

type stage int

const (
	stageSafetyScreen stage = iota
	stageContextEnrichment
	stageResponseGeneration
	stageDeepAnalysis
	stageResponseGating
	stageDone
)

var stageNames = map[stage]string{
	stageSafetyScreen:       models.CheckpointSafetyScreen,
	stageContextEnrichment:  models.CheckpointContextEnrichment,
	stageResponseGeneration: models.CheckpointResponseGeneration,
	stageDeepAnalysis:       models.CheckpointDeepAnalysis,
	stageResponseGating:     models.CheckpointResponseGating,
}

// Process runs one message through the pipeline and returns the gated result.
func (p *Processor) Process(ctx context.Context, msg models.Message) (*models.ProcessResult, error) {
	lock := p.individualLock(msg.IndividualID)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	r := &run{msg: msg, result: &models.ProcessResult{}}

	for st := stageSafetyScreen; st != stageDone; {
		stageStarted := time.Now()
		next, err := p.step(ctx, r, st)
		record := models.CheckpointRecord{
			Name:     stageNames[st],
			Passed:   err == nil,
			Duration: time.Since(stageStarted).Milliseconds(),
			At:       time.Now(),
		}
		if err != nil {
			record.Summary = err.Error()
			r.checkpoints = append(r.checkpoints, record)
			return nil, fmt.Errorf("checkpoint %s failed: %w", stageNames[st], err)
		}
		r.checkpoints = append(r.checkpoints, record)
		st = next
	}

	r.result.Checkpoints = r.checkpoints
	p.audit(ctx, r, time.Since(started))
	return r.result, nil
}

func (p *Processor) step(ctx context.Context, r *run, st stage) (stage, error) {
	switch st {
	case stageSafetyScreen:
		return stageContextEnrichment, p.safetyScreen(r)
	case stageContextEnrichment:
		return stageResponseGeneration, p.enrichContext(ctx, r)
	case stageResponseGeneration:
		return stageDeepAnalysis, p.generateResponse(ctx, r)
	case stageDeepAnalysis:
		return stageResponseGating, p.deepAnalysis(ctx, r)
	case stageResponseGating:
		return stageDone, p.gateResponse(ctx, r)
	default:
		return stageDone, fmt.Errorf("unknown pipeline stage %d", st)
	}
}

// safetyScreen is pure local pattern matching and cannot fail.
func (p *Processor) safetyScreen(r *run) error {
	r.safetyFlags = ScreenMessage(r.msg.Text)
	if len(r.safetyFlags) > 0 {
		p.logger.Warn("Safety screen raised flags",
			zap.String("individual_id", r.msg.IndividualID),
			zap.Strings("flags", r.safetyFlags))
	}
	return nil
}

// enrichContext loads baseline and history and feeds the message into passive
// baseline building. Scorer failure here degrades the observation, it never
// aborts the pipeline.
func (p *Processor) enrichContext(ctx context.Context, r *run) error {
	obs, err := p.scorer.ObserveBaseline(ctx, r.msg.Text)
	if err != nil {
		p.logger.Warn("Baseline observation degraded",
			zap.String("individual_id", r.msg.IndividualID),
			zap.Error(err))
		obs = &scorer.BaselineObservation{Sentiment: models.SentimentNeutral}
	}

	profile, err := p.profiler.Ingest(ctx, r.msg, obs)
	if err != nil {
		return fmt.Errorf("baseline ingest: %w", err)
	}
	r.baseline = profile

	history, err := p.store.ConversationHistory(ctx, r.msg.IndividualID, historyLimit)
	if err != nil {
		return fmt.Errorf("conversation history: %w", err)
	}
	r.history = history
	return nil
}

func (p *Processor) generateResponse(ctx context.Context, r *run) error {
	var response string
	err := p.withRetry(func() error {
		var genErr error
		response, genErr = p.scorer.GenerateResponse(ctx, scorer.ResponseRequest{
			Message: r.msg,
			History: r.history,
		})
		return genErr
	})
	if err != nil {
		return fmt.Errorf("response generation: %w", err)
	}
	r.response = FilterResponse(response)
	return nil
}

// deepAnalysis runs on a context detached from the caller so that a dropped
// request still results in a persisted risk profile.
func (p *Processor) deepAnalysis(ctx context.Context, r *run) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.analysisTimeout)
	defer cancel()

	var analysis *scorer.RiskAnalysis
	err := p.withRetry(func() error {
		var aErr error
		analysis, aErr = p.scorer.AnalyzeRisk(dctx, scorer.AnalysisRequest{
			Message:     r.msg,
			History:     r.history,
			Baseline:    r.baseline,
			SafetyFlags: r.safetyFlags,
		})
		return aErr
	})
	if err != nil {
		return fmt.Errorf("risk analysis: %w", err)
	}
	r.analysis = analysis

	flags, err := p.detector.Detect(dctx, r.msg, analysis, r.baseline)
	if err != nil {
		p.logger.Error("Concern detection failed", zap.Error(err))
	}
	for _, f := range flags {
		r.result.ConcernIndicators = append(r.result.ConcernIndicators, f.Type)
	}

	history, err := p.store.RiskHistory(dctx, r.msg.IndividualID, time.Now().Add(-temporal.Window))
	if err != nil {
		return fmt.Errorf("risk history: %w", err)
	}
	r.trend = p.analyzer.Analyze(history)
	if r.trend.HasPattern(temporal.PatternDisengagement) {
		if _, err := p.detector.FlagDisengagement(dctx, r.msg.IndividualID); err != nil {
			p.logger.Error("Disengagement flag failed", zap.Error(err))
		}
	}

	phq9, err := p.store.LatestAssessment(dctx, r.msg.IndividualID, models.InstrumentPHQ9)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("latest PHQ-9: %w", err)
	}

	profile := p.calculator.Calculate(risk.Input{
		Message:       r.msg,
		Analysis:      analysis,
		Baseline:      r.baseline,
		Trend:         r.trend,
		ValidatedPHQ9: phq9,
		HistoryLen:    len(r.history),
		Thresholds:    p.sensitivity.For(dctx, r.msg.IndividualID),
	})
	if err := p.store.SaveRiskProfile(dctx, profile); err != nil {
		return fmt.Errorf("save risk profile: %w", err)
	}
	r.profile = profile
	r.result.RiskProfile = profile

	if _, err := p.dispatcher.Dispatch(dctx, profile); err != nil {
		p.logger.Error("Alert dispatch failed", zap.Error(err))
	}
	return nil
}

// gateResponse is the last line of defense. It verifies checkpoint order,
// swaps in the crisis protocol when warranted and opens the consent-gated
// crisis questionnaire.
func (p *Processor) gateResponse(ctx context.Context, r *run) error {
	p.assertOrder(r)

	if r.profile == nil || r.analysis == nil {
		panic(CheckpointOrderViolation{Expected: models.CheckpointDeepAnalysis, Got: "missing analysis state"})
	}

	// Session writes here must survive a dropped request, same as the risk
	// profile persisted during deep analysis.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.analysisTimeout)
	defer cancel()

	crisis := r.profile.OverallRisk == models.RiskCrisis ||
		(r.profile.OverallRisk == models.RiskHigh && r.profile.Confidence > 0.9)

	switch {
	case crisis:
		r.result.ResponseText = CrisisProtocolMessage
		r.result.CrisisTriggered = true

		session, err := p.crisisFlow.Trigger(dctx, r.msg.IndividualID,
			fmt.Sprintf("risk level %s at confidence %.2f for message %s",
				r.profile.OverallRisk, r.profile.Confidence, r.msg.ID))
		if err != nil {
			p.logger.Error("Crisis questionnaire trigger failed", zap.Error(err))
		} else {
			r.result.Questionnaire = session
		}
	case r.profile.OverallRisk == models.RiskMedium || r.profile.OverallRisk == models.RiskHigh:
		r.result.ResponseText = r.response + counselingNote
	default:
		r.result.ResponseText = r.response
	}

	// A concerning trajectory paired with an explicit ask for help opens the
	// questionnaire even below crisis-level conversational risk.
	if r.result.Questionnaire == nil && r.trend.Multiplier > 1 && HasHelpRequest(r.msg.Text) {
		session, err := p.crisisFlow.Trigger(dctx, r.msg.IndividualID,
			fmt.Sprintf("concerning pattern %s with explicit help request",
				strings.Join(r.trend.Patterns, ",")))
		if err != nil {
			p.logger.Error("Crisis questionnaire trigger failed", zap.Error(err))
		} else {
			r.result.Questionnaire = session
		}
	}

	if r.result.Questionnaire == nil {
		in, _, err := p.scheduler.NextDue(dctx, r.msg.IndividualID, p.profiler.Mature(r.baseline))
		if err != nil {
			p.logger.Error("Assessment scheduling failed", zap.Error(err))
		} else if in != nil {
			r.result.DueInstrument = in.ID
		}
	}
	return nil
}

// assertOrder panics unless the four prior checkpoints were recorded in
// pipeline order with no failures.
func (p *Processor) assertOrder(r *run) {
	expected := []string{
		models.CheckpointSafetyScreen,
		models.CheckpointContextEnrichment,
		models.CheckpointResponseGeneration,
		models.CheckpointDeepAnalysis,
	}
	if len(r.checkpoints) != len(expected) {
		panic(CheckpointOrderViolation{
			Expected: strings.Join(expected, ","),
			Got:      fmt.Sprintf("%d checkpoints recorded", len(r.checkpoints)),
		})
	}
	for i, name := range expected {
		if r.checkpoints[i].Name != name || !r.checkpoints[i].Passed {
			panic(CheckpointOrderViolation{Expected: name, Got: r.checkpoints[i].Name})
		}
	}
}

func (p *Processor) audit(ctx context.Context, r *run, elapsed time.Duration) {
	audit := &models.MessageAudit{
		MessageID:         r.msg.ID,
		IndividualID:      r.msg.IndividualID,
		MessageText:       r.msg.Text,
		ResponseText:      r.result.ResponseText,
		Checkpoints:       r.checkpoints,
		ConcernIndicators: r.result.ConcernIndicators,
		CrisisTriggered:   r.result.CrisisTriggered,
		ProcessingMS:      elapsed.Milliseconds(),
		CreatedAt:         time.Now(),
	}
	if err := p.store.SaveMessageAudit(ctx, audit); err != nil {
		p.logger.Error("Audit write failed",
			zap.String("message_id", r.msg.ID),
			zap.Error(err))
	}
}

// withRetry runs fn and retries exactly once on failure.
func (p *Processor) withRetry(fn func() error) error {
	if err := fn(); err != nil {
		p.logger.Warn("Pipeline step failed, retrying once", zap.Error(err))
		return fn()
	}
	return nil
}

func (p *Processor) individualLock(individualID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[individualID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[individualID] = lock
	}
	return lock
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
