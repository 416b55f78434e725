// Package api exposes the decision engine over HTTP: evaluation and
// outcome endpoints, KPI and threshold inspection, and a WebSocket feed of
// decision events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/events"
	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/orchestrator"
	"edge-engine/internal/prediction"
	"edge-engine/internal/store"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Server routes HTTP and WebSocket traffic to the orchestrator.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	orch      *orchestrator.Orchestrator
	engine    *adaptive.Engine
	decisions store.DecisionStore
	states    store.StateStore
	hub       *WSHub
	logger    *logging.Logger
}

// NewServer builds the router. Both stores may be no-ops; the API degrades
// to in-memory data.
func NewServer(
	config ServerConfig,
	orch *orchestrator.Orchestrator,
	engine *adaptive.Engine,
	decisions store.DecisionStore,
	states store.StateStore,
	bus *events.Bus,
	logger *logging.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		config:    config,
		orch:      orch,
		engine:    engine,
		decisions: decisions,
		states:    states,
		hub:       NewWSHub(bus, logger),
		logger:    logger.WithComponent("api"),
	}
	server.setupRoutes()
	go server.hub.Run()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/evaluate", s.handleEvaluate)
		v1.POST("/outcome", s.handleOutcome)
		v1.GET("/kpis", s.handleKPIs)
		v1.GET("/thresholds", s.handleThresholds)
		v1.GET("/decisions", s.handleDecisions)
		v1.GET("/rejections", s.handleRejections)
	}
}

// Start blocks serving HTTP until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	archiveHealthy := s.decisions.HealthCheck(ctx) == nil
	stateHealthy := s.states.Healthy(ctx)

	status := "healthy"
	code := http.StatusOK
	if !archiveHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":      status,
		"archive":     archiveHealthy,
		"state_store": stateHealthy,
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

// handleEvaluate runs one decision cycle over the posted snapshot.
func (s *Server) handleEvaluate(c *gin.Context) {
	var snap market.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid snapshot: %v", err))
		return
	}
	if snap.Pair == "" {
		errorResponse(c, http.StatusBadRequest, "pair is required")
		return
	}

	rec, err := s.orch.Evaluate(c.Request.Context(), &snap)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.decisions.SaveDecision(c.Request.Context(), &rec.Decision); err != nil {
		s.logger.Warn("decision archive write failed", "error", err, "decision_id", rec.Decision.ID)
	}
	successResponse(c, rec)
}

type outcomeRequest struct {
	SignalID string    `json:"signal_id" binding:"required"`
	HitTP    bool      `json:"hit_tp"`
	Return   float64   `json:"return"`
	ClosedAt time.Time `json:"closed_at"`
}

// handleOutcome feeds a realized trade result back into the engine.
func (s *Server) handleOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid outcome: %v", err))
		return
	}
	if req.ClosedAt.IsZero() {
		req.ClosedAt = time.Now().UTC()
	}
	outcome := prediction.Outcome{
		SignalID: req.SignalID,
		HitTP:    req.HitTP,
		Return:   req.Return,
		ClosedAt: req.ClosedAt,
	}
	s.orch.UpdateOutcome(req.SignalID, outcome)

	if err := s.decisions.SaveOutcome(c.Request.Context(), outcome); err != nil {
		s.logger.Warn("outcome archive write failed", "error", err, "signal_id", req.SignalID)
	}
	successResponse(c, gin.H{"recorded": true})
}

func (s *Server) handleKPIs(c *gin.Context) {
	successResponse(c, s.orch.KPIs())
}

func (s *Server) handleThresholds(c *gin.Context) {
	successResponse(c, s.engine.Thresholds())
}

func (s *Server) handleDecisions(c *gin.Context) {
	pair := c.Query("pair")
	if pair != "" {
		archived, err := s.decisions.RecentDecisions(c.Request.Context(), pair, 50)
		if err != nil {
			s.logger.Warn("decision archive read failed", "error", err, "pair", pair)
		} else if len(archived) > 0 {
			successResponse(c, archived)
			return
		}
	}
	successResponse(c, s.orch.DecisionHistory())
}

func (s *Server) handleRejections(c *gin.Context) {
	successResponse(c, gin.H{
		"count":  s.engine.RejectionCount(),
		"recent": s.engine.RecentRejections(20),
	})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
