// Package server exposes the monitoring core over HTTP for the chat
// collaborator and the counselor dashboard.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindwell/sentinel/internal/assessment"
	"github.com/mindwell/sentinel/internal/baseline"
	"github.com/mindwell/sentinel/internal/pipeline"
	"github.com/mindwell/sentinel/internal/sensitivity"
	"github.com/mindwell/sentinel/internal/storage"
)

type Server struct {
	router      *gin.Engine
	processor   *pipeline.Processor
	store       storage.Storage
	sensitivity *sensitivity.Manager
	scheduler   *assessment.Scheduler
	crisisFlow  *assessment.CrisisFlow
	profiler    *baseline.Profiler
	logger      *zap.Logger
}

func NewServer(
	processor *pipeline.Processor,
	store storage.Storage,
	sm *sensitivity.Manager,
	scheduler *assessment.Scheduler,
	crisisFlow *assessment.CrisisFlow,
	profiler *baseline.Profiler,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:      gin.New(),
		processor:   processor,
		store:       store,
		sensitivity: sm,
		scheduler:   scheduler,
		crisisFlow:  crisisFlow,
		profiler:    profiler,
		logger:      logger,
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := s.router.Group("/api")
	{
		api.POST("/messages", s.handleMessage)

		api.GET("/individuals/:id/risk-profile", s.handleLatestRiskProfile)
		api.GET("/individuals/:id/baseline", s.handleBaseline)

		api.POST("/assessments", s.handleSubmitAssessment)

		api.POST("/questionnaires/:id/consent", s.handleConsent)
		api.POST("/questionnaires/:id/responses", s.handleQuestionnaireResponses)
		api.GET("/questionnaires/:id", s.handleGetQuestionnaire)

		api.POST("/feedback", s.handleFeedback)
		api.GET("/alerts", s.handleAlerts)
		api.GET("/thresholds", s.handleThresholds)
		api.GET("/metrics", s.handleMetrics)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	s.logger.Info("HTTP server starting", zap.String("addr", addr))
	return s.router.Run(addr)
}
