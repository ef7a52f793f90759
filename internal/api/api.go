// Package api is the HTTP boundary of the oracle. It orchestrates validation
// (fraud rules + weather corroboration), durable ledger recording, and
// enqueueing for batch settlement, returning a synchronous decision to the
// caller. The package is organized as:
//   - api.go: service struct, dependencies, and routing (this file)
//   - oracle.go: the submission state machine
//   - handler.go: HTTP request handlers
//   - middleware.go: middleware functions
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltbridge/gridoracle/internal/fraud"
	"github.com/voltbridge/gridoracle/internal/ledger"
	"github.com/voltbridge/gridoracle/internal/models"
	"github.com/voltbridge/gridoracle/internal/queue"
	"github.com/voltbridge/gridoracle/internal/settlement"
)

const (
	// RequestIDHeaderKey carries the per-request correlation ID.
	RequestIDHeaderKey = "X-Request-ID"
	requestIDContext   = "request_id"
)

// WeatherService corroborates solar claims. Satisfied by *weather.Service.
type WeatherService interface {
	GetCurrentCondition(ctx context.Context, latitude, longitude float64) (models.WeatherCondition, error)
}

// BatchOperator is the operator-facing settlement surface.
// Satisfied by *settlement.Processor.
type BatchOperator interface {
	Retry(ctx context.Context, batchID string) (models.Batch, error)
	Reconcile(ctx context.Context, batchID string) (models.Batch, error)
}

// Config holds the API-level knobs.
type Config struct {
	Latitude         float64
	Longitude        float64
	UnitPrice        int64
	RequireSignature bool
}

// Service wires the oracle's components behind the HTTP boundary.
type Service struct {
	ledger   *ledger.Ledger
	history  *fraud.HistoryStore
	weather  WeatherService
	queue    *queue.Queue
	registry *settlement.Registry
	operator BatchOperator
	rules    fraud.Rules
	cfg      Config
}

// NewService creates the oracle API service.
func NewService(l *ledger.Ledger, h *fraud.HistoryStore, w WeatherService, q *queue.Queue,
	reg *settlement.Registry, op BatchOperator, rules fraud.Rules, cfg Config) *Service {
	return &Service{
		ledger:   l,
		history:  h,
		weather:  w,
		queue:    q,
		registry: reg,
		operator: op,
		rules:    rules,
		cfg:      cfg,
	}
}

// Router configures all API routes.
func (s *Service) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.POST("/submit_trade", s.SubmitTrade)
	router.GET("/status", s.Status)
	router.GET("/trades/:id", s.GetTrade)
	router.GET("/batches", s.ListBatches)
	router.GET("/batches/:id", s.GetBatch)
	router.POST("/batches/:id/retry", s.RetryBatch)
	router.POST("/batches/:id/reconcile", s.ReconcileBatch)
	router.GET("/health", s.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Service) Serve(ctx context.Context, listenAddr string, requestTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
