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

	"github.com/gadget-sense/gadget-sense/internal/analysis"
	"github.com/gadget-sense/gadget-sense/internal/api"
	"github.com/gadget-sense/gadget-sense/internal/cache"
	"github.com/gadget-sense/gadget-sense/internal/config"
	"github.com/gadget-sense/gadget-sense/internal/logging"
	"github.com/gadget-sense/gadget-sense/internal/observability"
	"github.com/gadget-sense/gadget-sense/internal/validate"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logCloser := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		Env:     cfg.Env,
		Service: "gadget-sense",
		File:    cfg.LogFile,
	})
	defer logCloser.Close()

	// Initialise Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
			TracesSampleRate: func() float64 {
				if cfg.IsProduction() {
					return 0.1 // 10% sampling in production
				}
				return 1.0
			}(),
			AttachStacktrace: true,
			Debug:            cfg.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", cfg.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	var obsProviders *observability.Providers

	if cfg.ObservabilityEnabled {
		obsProviders, err = observability.Init(context.Background(), observability.Config{
			Enabled:        true,
			ServiceName:    "gadget-sense",
			Environment:    cfg.Env,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			OTLPHeaders:    cfg.OTLPHeaders,
			OTLPInsecure:   cfg.OTLPInsecure,
			MetricsAddress: cfg.MetricsAddr,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()

			if obsProviders.MetricsHandler != nil && cfg.MetricsAddr != "" {
				metricsSrv := &http.Server{
					Addr:              cfg.MetricsAddr,
					Handler:           obsProviders.MetricsHandler,
					ReadHeaderTimeout: 5 * time.Second,
				}

				go func() {
					log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server listening")
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						sentry.CaptureException(err)
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()

				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
					}
				}()
			}
		}
	}

	client := analysis.New(cfg.ClientOptions()...)
	log.Info().
		Str("endpoint", client.Endpoint()).
		Dur("timeout", cfg.AnalysisTimeout).
		Int("max_retries", cfg.MaxRetries).
		Dur("retry_base_delay", cfg.RetryBaseDelay).
		Msg("Analysis client configured")

	handler := newRouter(cfg, client, obsProviders)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Analyses may retry for the whole client timeout
		WriteTimeout: cfg.AnalysisTimeout + 10*time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		<-stop
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("health", fmt.Sprintf("http://localhost:%s/health", cfg.Port)).
		Msg("Starting server")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Server error")
	}

	<-done
	log.Info().Msg("Server stopped")
}

// newRouter mounts the API routes behind the middleware chain.
func newRouter(cfg *config.Config, analyzer api.Analyzer, prov *observability.Providers) http.Handler {
	reports := cache.New[analysis.Report](cfg.CacheSize, cfg.CacheTTL)
	apiHandler := api.NewHandler(analyzer, validate.Default(), reports, cfg.AnalysisURL)

	mux := http.NewServeMux()
	apiHandler.SetupRoutes(mux)

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Outermost first
	handler := api.Chain(mux,
		api.CORSMiddleware(cfg.AllowedOrigin),
		api.CrossOriginProtectionMiddleware(cfg.AllowedOrigin),
		api.SecurityHeadersMiddleware,
		api.RequestIDMiddleware,
		api.LoggingMiddleware,
		limiter.Middleware,
	)
	return observability.WrapHandler(handler, prov)
}
