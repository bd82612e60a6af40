package scorer

import (
	"context"

	"go.uber.org/zap"
)

// Failover selects between the primary contextual scorer and the keyword
// fallback by availability. Every degraded result is marked so the risk
// calculator can pin confidence and force human review; backend outages are
// recovered here and never propagate as fatal errors.
type Failover struct {
	primary  Scorer
	fallback Scorer
	logger   *zap.Logger
}

func NewFailover(primary, fallback Scorer, logger *zap.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

func (f *Failover) Name() string { return f.primary.Name() }

func (f *Failover) AnalyzeRisk(ctx context.Context, req AnalysisRequest) (*RiskAnalysis, error) {
	analysis, err := f.primary.AnalyzeRisk(ctx, req)
	if err == nil {
		return analysis, nil
	}
	f.logger.Warn("Primary scorer unavailable, degrading to keyword analysis",
		zap.Error(err),
		zap.String("individual_id", req.Message.IndividualID))

	analysis, ferr := f.fallback.AnalyzeRisk(ctx, req)
	if ferr != nil {
		return nil, ferr
	}
	analysis.Degraded = true
	return analysis, nil
}

func (f *Failover) ObserveBaseline(ctx context.Context, text string) (*BaselineObservation, error) {
	obs, err := f.primary.ObserveBaseline(ctx, text)
	if err == nil {
		return obs, nil
	}
	f.logger.Warn("Primary scorer unavailable for baseline observation", zap.Error(err))
	return f.fallback.ObserveBaseline(ctx, text)
}

func (f *Failover) GenerateResponse(ctx context.Context, req ResponseRequest) (string, error) {
	text, err := f.primary.GenerateResponse(ctx, req)
	if err == nil {
		return text, nil
	}
	f.logger.Warn("Primary scorer unavailable for response generation",
		zap.Error(err),
		zap.String("individual_id", req.Message.IndividualID))
	return f.fallback.GenerateResponse(ctx, req)
}
