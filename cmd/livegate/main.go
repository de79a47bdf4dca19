package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"livegate/internal/backend"
	"livegate/internal/batcher"
	"livegate/internal/cache"
	"livegate/internal/config"
	"livegate/internal/gateway"
	"livegate/internal/metrics"
	"livegate/internal/pool"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", *configPath).
		Int("poolCapacity", cfg.Pool.Capacity).
		Int("sizeThreshold", cfg.Batch.SizeThreshold).
		Int("flushIntervalMs", cfg.Batch.FlushInterval).
		Str("backend", cfg.Backend.URL).
		Msg("starting livegate")

	// Resource pool guarding the live-data source
	slots := pool.New(cfg.Pool.Capacity, cfg.GetAcquireTimeoutDuration(), logger)

	// Result cache
	resultCache, err := buildCache(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cache")
	}

	// Backend session
	client := backend.NewClient(cfg.Backend.URL, logger)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := client.Connect(connectCtx); err != nil {
		connectCancel()
		logger.Fatal().Err(err).Msg("failed to connect to live-data source")
	}
	connectCancel()

	// Gateway with batch handlers for the known intents
	gw := gateway.New(cfg, slots, resultCache, logger)
	for _, intent := range backend.Intents() {
		gw.RegisterHandler(intent, backend.BatchHandler(client, slots, cfg.GetRequestTimeoutDuration()))
	}
	gw.RegisterFallback(backend.SingleHandler(client, slots, cfg.GetRequestTimeoutDuration()))
	gw.Start()

	// Metrics endpoint
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	logger.Info().Int("port", cfg.MetricsPort).Msg("metrics server started")

	// Dev query endpoint
	queryMux := http.NewServeMux()
	queryMux.HandleFunc("/query", queryHandler(gw, logger))
	queryServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.QueryPort),
		Handler: queryMux,
	}
	go func() {
		if err := queryServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("query server failed")
		}
	}()
	logger.Info().Int("port", cfg.QueryPort).Msg("query server started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := queryServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error shutting down query server")
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error shutting down metrics server")
	}
	gw.Close(ctx)
	client.Close()
}

// buildCache creates the configured result cache
func buildCache(cfg *config.Config, logger zerolog.Logger) (cache.Cache, error) {
	if !cfg.IsCacheEnabled() {
		logger.Info().Msg("cache disabled")
		return cache.NewNoopCache(), nil
	}

	switch cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(
			cfg.Cache.RedisAddr,
			cfg.Cache.RedisPassword,
			cfg.Cache.RedisDB,
			cfg.Cache.GetTTLDuration(),
			logger,
		)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Int("ttl", cfg.Cache.TTL).Msg("redis cache enabled")
		return c, nil
	default:
		c, err := cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, err
		}
		logger.Info().Int("size", cfg.Cache.Size).Int("ttl", cfg.Cache.TTL).Msg("memory cache enabled")
		return c, nil
	}
}

type queryRequest struct {
	Intent  string          `json:"intent"`
	Role    string          `json:"role"`
	Payload json.RawMessage `json:"payload"`
}

// queryHandler exposes Gateway.Query over HTTP for manual testing
func queryHandler(gw *gateway.Gateway, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := gw.Query(r.Context(), req.Intent, req.Role, req.Payload)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(result); err != nil {
			logger.Debug().Err(err).Msg("failed to write response")
		}
	}
}

// statusFor maps gateway error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrUnknownIntent):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, pool.ErrAcquireTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, batcher.ErrWaitTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, batcher.ErrHandlerFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
