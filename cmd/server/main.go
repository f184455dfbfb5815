package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livewall/internal/liveness"
	"livewall/internal/platform/config"
	"livewall/internal/platform/fetch"
	"livewall/internal/platform/logger"
	"livewall/internal/platform/metrics"
	"livewall/internal/prober"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	apiKey := config.GetEnv("YOUTUBE_API_KEY", "")
	timeout := config.GetEnvDuration("RESOLVE_TIMEOUT", liveness.DefaultTimeout)
	concurrency := config.GetEnvInt("RESOLVE_CONCURRENCY", liveness.DefaultConcurrency)
	batchTTL := config.GetEnvDuration("BATCH_CACHE_TTL", liveness.DefaultBatchTTL)
	holdoverTTL := config.GetEnvDuration("HOLDOVER_TTL", liveness.DefaultHoldoverTTL)
	fetchRate := config.GetEnvInt("FETCH_RATE_LIMIT", 10)

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	fetcher := fetch.New(timeout, fetchRate)

	// Strategy order is confidence order; the API strategy is skipped
	// entirely when no credential is configured.
	var strategies []liveness.Strategy
	if apiKey != "" {
		strategies = append(strategies, liveness.NewAPIStrategy(apiKey))
	} else {
		log.Info("no API key configured, using HTML strategies only")
	}
	strategies = append(strategies, liveness.NewScrapeStrategy(fetcher))

	resolver := liveness.NewResolver(strategies, liveness.Options{
		BatchTTL:    batchTTL,
		HoldoverTTL: holdoverTTL,
		Timeout:     timeout,
		Concurrency: concurrency,
		Log:         log,
		Metrics:     met,
	})
	livenessHandler := liveness.NewHandler(resolver, log)

	statusProber := prober.New(fetcher, prober.Options{
		BatchTTL:    batchTTL,
		Timeout:     timeout,
		Concurrency: concurrency,
		Log:         log,
		Metrics:     met,
	})
	proberHandler := prober.NewHandler(statusProber, log)

	r := chi.NewRouter()
	r.Use(logger.RequestID)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/live", livenessHandler.GetBatch)
		r.Post("/external/status", proberHandler.PostStatus)
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"api_strategy", apiKey != "",
		"resolve_timeout", timeout.String(),
		"resolve_concurrency", concurrency,
		"batch_cache_ttl", batchTTL.String(),
		"holdover_ttl", holdoverTTL.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
