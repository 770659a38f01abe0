// Package api exposes the notation service, stored results and UAT cycles
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nccn-uat-mcp-server/internal/domain"
	"github.com/nccn-uat-mcp-server/internal/middleware"
	"github.com/nccn-uat-mcp-server/internal/service"
	"github.com/nccn-uat-mcp-server/internal/store"
	"github.com/nccn-uat-mcp-server/pkg/notation"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// NotationService is the part of the notation service the API uses.
type NotationService interface {
	Parse(ctx context.Context, raw, targetRule, platform string) (*domain.ParsedTestCase, *domain.TestCaseRecord)
	Validate(ctx context.Context, raw string) *domain.ValidationReport
	ValidateBatch(ctx context.Context, items []service.BatchItem) ([]service.BatchResult, error)
	Vocabulary() notation.VocabularyInfo
	Stats() service.CacheStats
}

// Dependencies are the collaborators of the server. Results and Cycles are
// optional; their routes answer 503 when unset.
type Dependencies struct {
	Notation NotationService
	Results  store.Store
	Cycles   domain.CycleRepository
	Logger   *logrus.Logger
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	router        *gin.Engine
	server        *http.Server

	notation NotationService
	results  store.Store
	cycles   domain.CycleRepository
	logger   *logrus.Logger
	maxBatch int
	started  time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"panic": recovered,
		}).Error("Request handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrInternalServer, "Internal server error", "", c.GetString(middleware.CorrelationIDKey)))
	}))
	router.Use(middleware.CORS())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))
	if cfg.Server.WriteTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))
	}
	router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	maxBatch := cfg.Batch.MaxRows
	if maxBatch <= 0 {
		maxBatch = 5000
	}

	server := &Server{
		configManager: configManager,
		router:        router,
		notation:      deps.Notation,
		results:       deps.Results,
		cycles:        deps.Cycles,
		logger:        logger,
		maxBatch:      maxBatch,
		started:       time.Now(),
	}

	server.setupRoutes()

	return server
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithFields(logrus.Fields{
		"addr": addr,
		"tls":  cfg.TLSEnabled,
	}).Info("HTTP server listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/vocabulary", s.handleVocabulary)

		notations := v1.Group("/notations")
		notations.POST("/parse", s.handleParse)
		notations.POST("/validate", s.handleValidate)
		notations.POST("/validate/batch", s.handleValidateBatch)

		results := v1.Group("/results", s.requireResults)
		results.GET("", s.handleListResults)
		results.POST("", s.handleSaveResult)
		results.GET("/:test_id", s.handleGetResult)

		v1.POST("/imports", s.handleImport)

		cycles := v1.Group("/cycles", s.requireCycles)
		cycles.POST("", s.handleCreateCycle)
		cycles.GET("", s.handleListCycles)
		cycles.GET("/:id", s.handleGetCycle)
		cycles.PATCH("/:id/status", s.handleUpdateCycleStatus)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"components": gin.H{
			"results": s.results != nil,
			"cycles":  s.cycles != nil,
		},
		"cache": s.notation.Stats(),
	})
}

func (s *Server) requireResults(c *gin.Context) {
	if s.results == nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, "Result storage is not configured", "")
		return
	}
	c.Next()
}

func (s *Server) requireCycles(c *gin.Context) {
	if s.cycles == nil {
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, "Cycle management requires a database", "")
		return
	}
	c.Next()
}

// abortError writes a standardized error body and stops the chain.
func (s *Server) abortError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

// abortStorageError maps repository errors onto HTTP responses.
func (s *Server) abortStorageError(c *gin.Context, err error, what string) {
	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.abortError(c, http.StatusNotFound, domain.ErrNotFoundCode, what+" not found", "")
	case errors.Is(err, domain.ErrInvalidCycleStatus):
		s.abortError(c, http.StatusBadRequest, domain.ErrValidation, err.Error(), "")
	case errors.As(err, &vErr):
		s.abortError(c, http.StatusBadRequest, domain.ErrValidation, vErr.Message, vErr.Field)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.abortError(c, http.StatusServiceUnavailable, domain.ErrUnavailable, "Request cancelled", err.Error())
	default:
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
			"error":          err,
		}).Error("Storage operation failed")
		s.abortError(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Storage operation failed", "")
	}
}
