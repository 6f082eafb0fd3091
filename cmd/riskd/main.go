package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantrisk/riskcore/internal/config"
	"github.com/quantrisk/riskcore/internal/risk"
	"github.com/quantrisk/riskcore/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	configPath := os.Getenv("RISKCORE_CONFIG")
	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath, zapLogger)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Create the risk service
	svc, err := risk.NewService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create risk service", zap.Error(err))
	}

	// Expose Prometheus metrics
	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		zapLogger.Info("Metrics server listening", zap.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Log operational health periodically
	healthTicker := time.NewTicker(time.Minute)
	go func() {
		for range healthTicker.C {
			h := svc.CheckHealth()
			zapLogger.Info("Health",
				zap.Duration("uptime", h.Uptime),
				zap.Int("active_triggers", h.ActiveTriggers),
				zap.Bool("trading_halted", h.TradingHalted))
		}
	}()

	zapLogger.Info("Risk service started",
		zap.Int("scenarios", len(cfg.Stress.Scenarios)),
		zap.Int("breakers", len(cfg.Breakers)))

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down")
	healthTicker.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Metrics server shutdown failed", zap.Error(err))
	}
	zapLogger.Info("Shutdown complete")
}
