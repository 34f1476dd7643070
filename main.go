package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/config"
	"github.com/ekaya-inc/risk-register/pkg/handlers"
	"github.com/ekaya-inc/risk-register/pkg/logging"
	"github.com/ekaya-inc/risk-register/pkg/middleware"
	"github.com/ekaya-inc/risk-register/pkg/repositories"
	"github.com/ekaya-inc/risk-register/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, handlers.ServiceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.String("store", cfg.Store.Driver),
		zap.String("listen", cfg.ListenAddr()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := repositories.OpenRiskStore(startupCtx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()

	riskService := services.NewRiskService(store.Risks, logger)
	exporter := services.NewRiskExporter(riskService, logger)
	reporter := handlers.NewErrorReporter(!cfg.IsProduction(), logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, store.Ping, logger).RegisterRoutes(mux)
	handlers.NewRiskHandler(riskService, exporter, reporter, logger).RegisterRoutes(mux)
	mux.HandleFunc("/", handlers.NotFound)

	handler := middleware.Chain(mux,
		middleware.Recover(logger),
		middleware.RequestLogger(logger),
		middleware.SecurityHeaders(cfg.IsProduction()),
		middleware.CORS(middleware.CORSPolicy{
			AllowLocalhost: cfg.CORS.AllowLocalhost,
			TrustedSuffix:  cfg.CORS.TrustedSuffix,
		}),
	)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting risk-register", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
