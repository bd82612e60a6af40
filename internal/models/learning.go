package models

import "time"

// Phase is the deployment phase of the adaptive sensitivity manager,
// determined by cumulative clinician feedback volume.
type Phase string

const (
	PhaseColdStart    Phase = "COLD_START"
	PhaseCalibration  Phase = "CALIBRATION"
	PhaseOptimization Phase = "OPTIMIZATION"
)

// Routing policies per phase.
const (
	PolicyRouteAllMediumPlus = "route_all_medium_plus_to_human"
	PolicyRouteUncertain     = "route_uncertain_to_human"
	PolicyDataDriven         = "data_driven_routing"
)

// ThresholdConfig is one immutable version of the alerting thresholds.
// The current version is replaced atomically on recalibration; readers always
// see a single complete snapshot.
type ThresholdConfig struct {
	Version           int       `json:"version"`
	Phase             Phase     `json:"phase"`
	HighRisk          float64   `json:"high_risk"`
	MediumRisk        float64   `json:"medium_risk"`
	MinimumConfidence float64   `json:"minimum_confidence"`
	RoutingPolicy     string    `json:"routing_policy"`
	CreatedAt         time.Time `json:"created_at"`
}

// Clinician accuracy verdicts on a flagged case.
const (
	AccuracyAccurate      = "accurate"
	AccuracyOverFlagged   = "over_flagged"
	AccuracyMissedContext = "missed_context"
)

// FeedbackRecord links a past risk profile to clinician-supplied ground
// truth. Immutable once submitted. ModelScore is the confidence-weighted
// numeric score the model produced at alert time, captured so recalibration
// can replay threshold candidates against history.
type FeedbackRecord struct {
	ID             string    `json:"id"`
	RiskProfileID  string    `json:"risk_profile_id"`
	IndividualID   string    `json:"individual_id"`
	WasAppropriate bool      `json:"was_appropriate"`
	ActualSeverity string    `json:"actual_severity"` // None, Mild, Moderate, Severe, Crisis
	Accuracy       string    `json:"accuracy"`
	Notes          string    `json:"notes,omitempty"`
	CounselorID    string    `json:"counselor_id,omitempty"`
	ModelScore     float64   `json:"model_score"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// ActualPositive reports whether the clinician judged the case to be a true
// elevated-risk case.
func (f FeedbackRecord) ActualPositive() bool {
	switch f.ActualSeverity {
	case "Moderate", "Severe", "Crisis":
		return true
	}
	return false
}
