package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/voxline/relay/internal/api"
	"github.com/voxline/relay/internal/auth"
	"github.com/voxline/relay/internal/billing"
	"github.com/voxline/relay/internal/config"
	"github.com/voxline/relay/internal/metrics"
	"github.com/voxline/relay/internal/postcall"
	"github.com/voxline/relay/internal/relay"
	"github.com/voxline/relay/internal/storage"
	"github.com/voxline/relay/internal/token"
	"github.com/voxline/relay/internal/tools"
	"github.com/voxline/relay/internal/voice"
	"github.com/voxline/relay/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.TokenSecret == "" {
		log.Warn().Msg("STREAM_TOKEN_SECRET not set, all stream connections will be rejected")
	}

	log.Info().
		Str("port", cfg.Port).
		Str("voice_backend", string(cfg.VoiceBackend)).
		Str("audio_format", cfg.VoiceAudioFormat).
		Str("log_level", cfg.LogLevel).
		Msg("starting voxline relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage (DynamoDB or in-memory, per DYNAMODB_MODE)
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Voice session backend
	var opener voice.Opener
	switch cfg.VoiceBackend {
	case config.VoiceBackendLive:
		opener = voice.NewLiveOpener(cfg.VoiceBackendURL, cfg.VoiceAPIKey, cfg.VoiceAudioFormat, log.Logger)
	default:
		opener = voice.NewSimOpener(log.Logger)
	}

	// Post-call collaborators are optional; missing keys disable their steps
	var summarizer postcall.Summarizer
	if cfg.GeminiAPIKey != "" {
		s, err := postcall.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.SummaryModel, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize summarizer")
		}
		summarizer = s
	} else {
		log.Info().Msg("GEMINI_API_KEY not set, call summaries disabled")
	}

	var reporter billing.Reporter
	if cfg.StripeAPIKey != "" {
		reporter = billing.NewStripeReporter(cfg.StripeAPIKey, cfg.StripeMeter, log.Logger)
	} else {
		log.Info().Msg("STRIPE_API_KEY not set, usage billing disabled")
	}

	pipeline := postcall.NewPipeline(store, summarizer, reporter, log.Logger)

	// Media-stream handler
	streamHandler := relay.NewHandler(cfg, relay.Deps{
		Verifier: token.NewVerifier(cfg.TokenSecret),
		Opener:   opener,
		Tools:    tools.NewWebhookExecutor(cfg.ToolWebhookBase, log.Logger),
		Store:    store,
		PostCall: pipeline,
	}, log.Logger)

	callsHandler := api.NewCallsHandler(store, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)

	// Public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Telephony stream endpoint; auth happens on the start frame's routing
	// token, not at the HTTP layer
	r.Get("/stream", streamHandler.ServeHTTP)

	// Ops routes (dashboard access, JWT protected)
	r.Route("/ops", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
		r.Use(auth.Middleware)
		r.Get("/calls", callsHandler.ListCalls)
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"voxline-relay"}`)
}
