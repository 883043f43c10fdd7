// Package api wires the HTTP surface of the gateway: admin license
// management, quota-gated AI extraction, and presigned storage URLs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"expense-tracker-gateway/internal/ai"
	"expense-tracker-gateway/internal/auth"
	"expense-tracker-gateway/internal/license"
	"expense-tracker-gateway/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       license.Repository
	extractor  ai.Extractor
	storage    *storage.Mediator
	audit      auth.AuditRecorder
	config     ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string
	AdminSecret    string
	ProductionMode bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// NewServer creates a new API server. audit may be nil when the audit log
// is disabled.
func NewServer(
	config ServerConfig,
	repo license.Repository,
	extractor ai.Extractor,
	mediator *storage.Mediator,
	audit auth.AuditRecorder,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		// Unexpected panics surface as a generic 500; details stay server-side.
		log.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("unhandled panic in handler")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}))
	router.Use(securityHeaders())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", auth.LicenseKeyHeader, auth.AdminSecretHeader}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		repo:      repo,
		extractor: extractor,
		storage:   mediator,
		audit:     audit,
		config:    config,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	// License management, gated by the admin shared secret
	admin := s.router.Group("/licenses")
	admin.Use(auth.RequireAdmin(s.config.AdminSecret))
	{
		admin.POST("", s.handleCreateLicense)
		admin.GET("", s.handleListLicenses)
		admin.GET("/:id", s.handleGetLicense)
		admin.PUT("/:id", s.handleUpdateLicense)
	}

	// Tenant-facing routes, gated by the license key
	aiGroup := s.router.Group("/ai")
	aiGroup.Use(auth.Middleware(s.repo, s.audit))
	{
		aiGroup.POST("/extract", s.handleExtract)
		aiGroup.POST("/extract-from-receipt", s.handleExtractFromReceipt)
	}

	storageGroup := s.router.Group("/storage")
	storageGroup.Use(auth.Middleware(s.repo, s.audit))
	{
		storageGroup.POST("/upload-url", s.handleUploadURL)
		storageGroup.GET("/view-url", s.handleViewURL)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "expense-tracker-gateway",
	})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	log.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// securityHeaders mirrors the headers the edge filter sets so responses
// are safe even when the gateway is reached directly.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// SplitOrigins parses the comma-separated allowed-origins config value.
func SplitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
