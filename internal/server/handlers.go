package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/assessment"
	"github.com/mindwell/sentinel/internal/models"
	"github.com/mindwell/sentinel/internal/storage"
)

type messageRequest struct {
	MessageID    string            `json:"message_id" binding:"required"`
	IndividualID string            `json:"individual_id" binding:"required"`
	Text         string            `json:"text" binding:"required"`
	SessionID    string            `json:"session_id"`
	Metadata     map[string]string `json:"metadata"`
}

// handleMessage runs POST /api/messages through the checkpoint pipeline.
func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.processor.Process(c.Request.Context(), models.Message{
		ID:           req.MessageID,
		IndividualID: req.IndividualID,
		Text:         req.Text,
		SessionID:    req.SessionID,
		Timestamp:    time.Now(),
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.logger.Error("Message processing failed",
			zap.String("message_id", req.MessageID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleLatestRiskProfile handles GET /api/individuals/:id/risk-profile.
func (s *Server) handleLatestRiskProfile(c *gin.Context) {
	profile, err := s.store.LatestRiskProfile(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no risk profile for individual"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to load risk profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load risk profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk_profile": profile})
}

// handleBaseline handles GET /api/individuals/:id/baseline. Raw samples stay
// internal; only aggregate stats leave the system.
func (s *Server) handleBaseline(c *gin.Context) {
	profile, err := s.profiler.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.Error("Failed to load baseline", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load baseline"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"individual_id": profile.IndividualID,
		"stats":         profile.Stats,
		"session_count": profile.SessionCount,
		"mature":        s.profiler.Mature(profile),
	})
}

type assessmentRequest struct {
	IndividualID  string         `json:"individual_id" binding:"required"`
	Instrument    string         `json:"instrument" binding:"required"`
	Responses     map[string]int `json:"responses" binding:"required"`
	TriggerReason string         `json:"trigger_reason"`
}

// handleSubmitAssessment handles POST /api/assessments.
func (s *Server) handleSubmitAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, next, crisisSession, err := s.scheduler.Submit(c.Request.Context(), req.IndividualID,
		models.InstrumentID(req.Instrument), req.Responses, req.TriggerReason)
	if errors.Is(err, assessment.ErrMalformedResponse) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "re_prompt": true})
		return
	}
	if err != nil {
		s.logger.Error("Assessment submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record assessment"})
		return
	}

	resp := gin.H{"result": result}
	if next != nil {
		resp["escalate_to"] = next.ID
	}
	if crisisSession != nil {
		resp["crisis_questionnaire"] = crisisSession
		resp["consent_prompt"] = assessment.ConsentPrompt
	}
	c.JSON(http.StatusOK, resp)
}

type consentRequest struct {
	Granted *bool `json:"granted" binding:"required"`
}

// handleConsent handles POST /api/questionnaires/:id/consent.
func (s *Server) handleConsent(c *gin.Context) {
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.crisisFlow.RecordConsent(c.Request.Context(), c.Param("id"), *req.Granted)
	if err != nil {
		s.questionnaireError(c, err)
		return
	}

	resp := gin.H{"session": session}
	if session.State == models.QuestionnairePresenting {
		resp["questions"] = s.crisisFlow.Questions()
	}
	c.JSON(http.StatusOK, resp)
}

type questionnaireResponsesRequest struct {
	Responses map[string]int `json:"responses" binding:"required"`
}

// handleQuestionnaireResponses handles POST /api/questionnaires/:id/responses.
func (s *Server) handleQuestionnaireResponses(c *gin.Context) {
	var req questionnaireResponsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.crisisFlow.SubmitResponses(c.Request.Context(), c.Param("id"), req.Responses)
	if err != nil {
		s.questionnaireError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// handleGetQuestionnaire handles GET /api/questionnaires/:id.
func (s *Server) handleGetQuestionnaire(c *gin.Context) {
	session, err := s.store.GetQuestionnaireSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "questionnaire session not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to load questionnaire session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (s *Server) questionnaireError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "questionnaire session not found"})
	case errors.Is(err, assessment.ErrMalformedResponse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "re_prompt": true})
	case errors.Is(err, assessment.ErrSessionTerminal), errors.Is(err, assessment.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Questionnaire operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "questionnaire operation failed"})
	}
}

type feedbackRequest struct {
	RiskProfileID  string `json:"risk_profile_id" binding:"required"`
	WasAppropriate *bool  `json:"was_appropriate" binding:"required"`
	ActualSeverity string `json:"actual_severity" binding:"required"`
	Accuracy       string `json:"accuracy" binding:"required"`
	Notes          string `json:"notes"`
	CounselorID    string `json:"counselor_id"`
}

// handleFeedback handles POST /api/feedback. The model score is captured from
// the linked risk profile at submit time so recalibration can replay
// threshold candidates later.
func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !validAccuracy(req.Accuracy) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accuracy must be accurate, over_flagged or missed_context"})
		return
	}

	profile, err := s.store.GetRiskProfile(c.Request.Context(), req.RiskProfileID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "risk profile not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to load risk profile for feedback", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load risk profile"})
		return
	}

	record := &models.FeedbackRecord{
		ID:             uuid.New().String(),
		RiskProfileID:  profile.ID,
		IndividualID:   profile.IndividualID,
		WasAppropriate: *req.WasAppropriate,
		ActualSeverity: req.ActualSeverity,
		Accuracy:       req.Accuracy,
		Notes:          req.Notes,
		CounselorID:    req.CounselorID,
		ModelScore:     profile.Alert.PriorityScore,
		SubmittedAt:    time.Now(),
	}
	if err := s.store.SaveFeedback(c.Request.Context(), record); err != nil {
		s.logger.Error("Failed to save feedback", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feedback": record})
}

// handleAlerts handles GET /api/alerts?limit=N.
func (s *Server) handleAlerts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	list, err := s.store.ListAlerts(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": list})
}

// handleThresholds handles GET /api/thresholds.
func (s *Server) handleThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"thresholds": s.sensitivity.Current()})
}

// handleMetrics handles GET /api/metrics.
func (s *Server) handleMetrics(c *gin.Context) {
	metrics, err := s.sensitivity.Performance(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to compute metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute metrics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

func validAccuracy(a string) bool {
	switch a {
	case models.AccuracyAccurate, models.AccuracyOverFlagged, models.AccuracyMissedContext:
		return true
	}
	return false
}
