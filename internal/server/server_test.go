package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/alerts"
	"github.com/mindwell/sentinel/internal/assessment"
	"github.com/mindwell/sentinel/internal/baseline"
	"github.com/mindwell/sentinel/internal/concern"
	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/pipeline"
	"github.com/mindwell/sentinel/internal/risk"
	"github.com/mindwell/sentinel/internal/scorer"
	"github.com/mindwell/sentinel/internal/sensitivity"
	"github.com/mindwell/sentinel/internal/storage"
	"github.com/mindwell/sentinel/internal/temporal"
)

func newTestServer(t *testing.T) (*Server, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	logger := zap.NewNop()
	sc := scorer.NewKeywordScorer()

	profiler := baseline.NewProfiler(store, sc, 3, logger)
	sm := sensitivity.NewManager(store, logger)
	crisisFlow := assessment.NewCrisisFlow(store, logger)
	scheduler := assessment.NewScheduler(store, crisisFlow, 14*24*time.Hour, 3*24*time.Hour, logger)

	processor := pipeline.NewProcessor(
		store, sc, profiler,
		concern.NewDetector(store, logger),
		temporal.NewAnalyzer(),
		risk.NewCalculator(logger),
		sm, scheduler, crisisFlow,
		alerts.NewDispatcher(store, logger),
		5*time.Second, logger,
	)

	return NewServer(processor, store, sm, scheduler, crisisFlow, profiler, logger), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessageReturnsGatedResult(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/messages", h{
		"message_id":    "m1",
		"individual_id": "ind-1",
		"text":          "had a pretty normal day",
		"session_id":    "s1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.ProcessResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.ResponseText)
	require.NotNil(t, result.RiskProfile)
	assert.Len(t, result.Checkpoints, 5)
}

func TestHandleMessageValidatesInput(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/messages", h{
		"individual_id": "ind-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackCapturesModelScore(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	profile := &models.RiskProfile{
		ID:           "rp-1",
		IndividualID: "ind-1",
		MessageID:    "m1",
		OverallRisk:  models.RiskHigh,
		Confidence:   0.8,
		Alert: models.AlertRecommendation{
			ShouldAlert:   true,
			AlertType:     "URGENT",
			PriorityScore: 0.72,
		},
		CalculatedAt: time.Now(),
	}
	require.NoError(t, store.SaveRiskProfile(ctx, profile))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/feedback", h{
		"risk_profile_id": "rp-1",
		"was_appropriate": true,
		"actual_severity": "Severe",
		"accuracy":        "accurate",
		"counselor_id":    "c-7",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	window, err := store.FeedbackWindow(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 0.72, window[0].ModelScore)
	assert.True(t, window[0].ActualPositive())
}

func TestFeedbackRejectsUnknownProfileAndAccuracy(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/feedback", h{
		"risk_profile_id": "missing",
		"was_appropriate": true,
		"actual_severity": "None",
		"accuracy":        "accurate",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/feedback", h{
		"risk_profile_id": "rp-1",
		"was_appropriate": true,
		"actual_severity": "None",
		"accuracy":        "somewhat",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThresholdsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Thresholds models.ThresholdConfig `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.PhaseColdStart, body.Thresholds.Phase)
	assert.Equal(t, 0.70, body.Thresholds.HighRisk)
}

func TestQuestionnaireEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	flow := assessment.NewCrisisFlow(store, zap.NewNop())
	session, err := flow.Trigger(ctx, "ind-1", "test trigger")
	require.NoError(t, err)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/questionnaires/"+session.ID+"/consent", h{
		"granted": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "questions")

	// Malformed responses come back as a re-prompt, not a server error.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/questionnaires/"+session.ID+"/responses", h{
		"responses": map[string]int{"cssrs_1": 9},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "re_prompt")

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/questionnaires/"+session.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type h = map[string]any
