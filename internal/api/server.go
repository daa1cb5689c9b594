// Package api serves the read-only snapshot API and the operator controls
// (emergency stop, resume, config save) over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/copytrade"
	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/observability"
	"solana-copytrade-lab/internal/ranking"
	"solana-copytrade-lab/internal/storage"
)

// Classifier is the early-buyer side of the API. Implemented by *analysis.Runner.
type Classifier interface {
	Snapshot() *domain.ClassificationSnapshot
	Report(ctx context.Context) (*ranking.Report, error)
	WalletHistory(ctx context.Context, wallet string) ([]*storage.ClassificationRecord, error)
}

// Controller is the copy-trade side of the API. Implemented by *copytrade.Orchestrator.
type Controller interface {
	Status() copytrade.Status
	FollowerStatus(sessionID string) (copytrade.FollowerStatus, error)
	EmergencyStop(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error
}

// Configs is the config store surface. Implemented by *configstore.Service.
type Configs interface {
	Save(ctx context.Context, cfg *domain.CopyTradeConfig) (*domain.CopyTradeConfig, error)
	Get(ctx context.Context, sessionID string) (*domain.CopyTradeConfig, error)
	GetVersion(ctx context.Context, sessionID string, version int) (*domain.CopyTradeConfig, error)
	List(ctx context.Context) ([]*domain.CopyTradeConfig, error)
	TradeableNow(ctx context.Context, sessionID string) (bool, error)
}

// Options for creating Server. Nil components leave their routes unregistered.
type Options struct {
	Classifier Classifier
	Controller Controller
	Configs    Configs
	Orders     storage.MirroredOrderStore
	Logger     logrus.FieldLogger
}

// Server wires the HTTP routes.
type Server struct {
	classifier Classifier
	controller Controller
	configs    Configs
	orders     storage.MirroredOrderStore
	logger     logrus.FieldLogger
	started    time.Time
	router     *gin.Engine
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		classifier: opts.Classifier,
		controller: opts.Controller,
		configs:    opts.Configs,
		orders:     opts.Orders,
		logger:     logger.WithField("component", "api"),
		started:    time.Now(),
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/status", s.getStatus)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := r.Group("/api/v1")

	if s.classifier != nil {
		v1.GET("/classifications", s.listClassifications)
		v1.GET("/classifications/report", s.getReport)
		v1.GET("/wallets/:wallet/history", s.getWalletHistory)
	}

	if s.controller != nil {
		ct := v1.Group("/copytrade")
		ct.GET("/status", s.getCopyTradeStatus)
		ct.POST("/emergency-stop", s.emergencyStopAll)
		ct.GET("/sessions/:session", s.getSession)
		ct.POST("/sessions/:session/emergency-stop", s.emergencyStop)
		ct.POST("/sessions/:session/resume", s.resume)
		if s.orders != nil {
			ct.GET("/sessions/:session/orders", s.listOrders)
		}
	}

	if s.configs != nil {
		v1.GET("/configs", s.listConfigs)
		v1.POST("/configs", s.saveConfig)
		v1.GET("/configs/:session", s.getConfig)
	}

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requestLogger logs one line per request in the service's logrus format.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
