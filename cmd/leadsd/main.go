package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/bootstrap"
	"github.com/boddenberg/leadflow-go/internal/config"
	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/handler"
	"github.com/boddenberg/leadflow-go/internal/infra/cache"
	"github.com/boddenberg/leadflow-go/internal/infra/observability"
	"github.com/boddenberg/leadflow-go/internal/infra/queue"
	"github.com/boddenberg/leadflow-go/internal/infra/resilience"
	"github.com/boddenberg/leadflow-go/internal/port"
	"github.com/boddenberg/leadflow-go/internal/service"
)

func main() {
	// --- Config (.env is loaded first, real env wins) ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("conflict_retries", cfg.ConflictRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Bool("events_enabled", cfg.AMQPURL != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "leadflow")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Stores ---
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := bootstrap.OpenBackend(startCtx, cfg, cfg.StoreBackend == config.BackendPostgres, logger)
	if err != nil {
		cancelStart()
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer backend.Close()

	if cfg.SeedDemo || backend.Name == config.BackendMemory {
		if err := bootstrap.SeedDemo(startCtx, backend.Leads, backend.Principals, logger); err != nil {
			logger.Error("demo seed failed", zap.Error(err))
		}
	}
	cancelStart()

	// --- Cache ---
	leadCache := cache.New[*domain.Lead](cfg.CacheTTL)
	defer leadCache.Close()

	// --- Events ---
	probes := backend.Probes
	var publisher port.EventPublisher = queue.NoopPublisher{}
	if cfg.AMQPURL != "" {
		dialCtx, cancelDial := context.WithTimeout(context.Background(), 30*time.Second)
		amqpPub, err := queue.NewAMQPPublisher(dialCtx, cfg.AMQPURL, cfg.EventsExchange, resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
		}, logger)
		cancelDial()
		if err != nil {
			logger.Warn("event publishing disabled, broker unreachable", zap.Error(err))
		} else {
			defer amqpPub.Close()
			publisher = amqpPub
			probes = append(probes, port.Probe{Name: "rabbitmq", Check: func(context.Context) error {
				if !amqpPub.Healthy() {
					return errors.New("connection closed")
				}
				return nil
			}})
			logger.Info("publishing lead events", zap.String("exchange", cfg.EventsExchange))
		}
	}

	// --- Services ---
	leadSvc := service.NewLeadService(
		backend.Leads,
		backend.Principals,
		metrics,
		logger,
		service.WithCache(leadCache),
		service.WithEventPublisher(publisher),
		service.WithConflictRetry(resilience.Config{
			MaxRetries:     cfg.ConflictRetries,
			InitialBackoff: cfg.InitialBackoff,
		}),
	)
	authSvc := service.NewAuthService(backend.Principals, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	// --- Router ---
	router := handler.NewRouter(leadSvc, authSvc, metrics, handler.RouterConfig{
		CORSAllowedOrigins: cfg.CORSOrigins,
		Probes:             probes,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
