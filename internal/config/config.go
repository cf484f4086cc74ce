package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// VoiceBackend selects which voice session implementation handles calls
type VoiceBackend string

const (
	VoiceBackendSim  VoiceBackend = "sim"
	VoiceBackendLive VoiceBackend = "live"
)

// Config holds all configuration for the relay
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket keepalive
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Routing token verification
	TokenSecret string

	// Voice session backend
	VoiceBackend    VoiceBackend
	VoiceBackendURL string
	VoiceAPIKey     string
	// "mulaw" forwards telephony audio as-is; "linear16" transcodes to
	// 16kHz PCM both ways.
	VoiceAudioFormat string

	// Tool execution webhook base URL (per-tenant paths appended)
	ToolWebhookBase string

	// Post-call collaborators
	StripeAPIKey string
	StripeMeter  string
	GeminiAPIKey string
	SummaryModel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TokenSecret:      os.Getenv("STREAM_TOKEN_SECRET"),
		VoiceBackendURL:  getEnv("VOICE_BACKEND_URL", "wss://voice.voxline.dev/v1/session"),
		VoiceAPIKey:      os.Getenv("VOICE_API_KEY"),
		VoiceAudioFormat: getEnv("VOICE_AUDIO_FORMAT", "mulaw"),
		ToolWebhookBase:  getEnv("TOOL_WEBHOOK_BASE", "http://localhost:3000/api/tools"),
		StripeAPIKey:     os.Getenv("STRIPE_API_KEY"),
		StripeMeter:      getEnv("STRIPE_METER_NAME", "relay_call_completed"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		SummaryModel:     getEnv("SUMMARY_MODEL", "gemini-2.0-flash"),
	}

	backend := VoiceBackend(getEnv("VOICE_BACKEND", "sim"))
	if backend != VoiceBackendSim && backend != VoiceBackendLive {
		return nil, fmt.Errorf("invalid VOICE_BACKEND %q (want sim or live)", backend)
	}
	config.VoiceBackend = backend

	if config.VoiceAudioFormat != "mulaw" && config.VoiceAudioFormat != "linear16" {
		return nil, fmt.Errorf("invalid VOICE_AUDIO_FORMAT %q (want mulaw or linear16)", config.VoiceAudioFormat)
	}

	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.PongWait = time.Duration(wsReadTimeout) * time.Second
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WriteWait = time.Duration(wsWriteTimeout) * time.Second

	// Media frames are small; 64KB leaves headroom for start frames with
	// custom parameters.
	config.MaxMessageSize = 64 * 1024

	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
