package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"custody/internal/config"
	"custody/internal/domain"
	"custody/internal/infra/ratelimit"
	"custody/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultRateLimitWindow = time.Minute
	multipartOverhead      = 1 << 20
	shutdownGrace          = 10 * time.Second
)

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger

	vault   *usecase.VaultService
	queries *usecase.AuditQueries
	dbMode  string

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Vault       *usecase.VaultService
	Queries     *usecase.AuditQueries
	RateLimiter domain.RateLimiter
	Logger      *zap.Logger
	// StoreMode is reported by /healthz: "db" or "memory".
	StoreMode string
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		r:       r,
		logger:  logger.With(zap.String("service", "http")),
		vault:   deps.Vault,
		queries: deps.Queries,
		dbMode:  deps.StoreMode,
	}
	if s.dbMode == "" {
		s.dbMode = "memory"
	}
	if s.queries == nil && s.vault != nil && s.vault.Audit != nil {
		s.queries = usecase.NewAuditQueries(s.vault.Audit, s.vault.Authorizer)
	}
	s.r.Use(s.requestLogger())
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	s.rateLimiter = override
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
			MaxKeys: s.cfg.RateLimitMaxKeys,
		})
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = defaultRateLimitWindow
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.dbMode})
	})

	v1 := s.r.Group("/v1")

	documents := v1.Group("/documents", s.rateLimit("documents"), s.authenticate())
	{
		documents.POST("", s.handleUpload)
		documents.GET("", s.handleListDocuments)
		documents.GET("/:id", s.handleViewDocument)
		documents.GET("/:id/versions", s.handleListVersions)
		documents.POST("/:id/versions", s.handleUploadVersion)
		documents.GET("/:id/content", s.handleDownload)
		documents.DELETE("/:id", s.handleDeleteDocument)
		documents.POST("/:id/integrity", s.handleVerifyDocument)
	}

	audit := v1.Group("/audit", s.rateLimit("audit"), s.authenticate())
	{
		audit.GET("/records", s.handleSearchAudit)
		audit.GET("/records/:id", s.handleGetAuditRecord)
		audit.GET("/records/:id/verify", s.handleVerifyAuditRecord)
		audit.GET("/custody/:resource_type/:resource_id", s.handleChainOfCustody)
		audit.GET("/security-events", s.handleSecurityEvents)
		audit.POST("/verify", s.handleVerifyAuditWindow)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled and then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
