package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.VoiceBackend != VoiceBackendSim {
					t.Errorf("expected sim backend by default, got %s", cfg.VoiceBackend)
				}
				if cfg.VoiceAudioFormat != "mulaw" {
					t.Errorf("expected mulaw passthrough by default, got %s", cfg.VoiceAudioFormat)
				}
				if cfg.PongWait != 60*time.Second {
					t.Errorf("expected PongWait 60s, got %v", cfg.PongWait)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":               "9000",
				"LOG_LEVEL":          "debug",
				"WS_READ_TIMEOUT":    "30",
				"WS_WRITE_TIMEOUT":   "5",
				"ALLOWED_ORIGINS":    "http://example.com, http://test.com",
				"VOICE_BACKEND":      "live",
				"VOICE_AUDIO_FORMAT": "linear16",
				"STREAM_TOKEN_SECRET": "s3cret",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.VoiceBackend != VoiceBackendLive {
					t.Errorf("expected live backend, got %s", cfg.VoiceBackend)
				}
				if cfg.VoiceAudioFormat != "linear16" {
					t.Errorf("expected linear16, got %s", cfg.VoiceAudioFormat)
				}
				if cfg.TokenSecret != "s3cret" {
					t.Errorf("expected token secret to load, got %q", cfg.TokenSecret)
				}
				if cfg.PongWait != 30*time.Second {
					t.Errorf("expected PongWait 30s, got %v", cfg.PongWait)
				}
				if cfg.WriteWait != 5*time.Second {
					t.Errorf("expected WriteWait 5s, got %v", cfg.WriteWait)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("expected trimmed origins, got %v", cfg.AllowedOrigins)
				}
			},
		},
		{
			name:    "invalid WS_READ_TIMEOUT",
			env:     map[string]string{"WS_READ_TIMEOUT": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "invalid voice backend",
			env:     map[string]string{"VOICE_BACKEND": "mock"},
			wantErr: true,
		},
		{
			name:    "invalid audio format",
			env:     map[string]string{"VOICE_AUDIO_FORMAT": "opus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.env {
					os.Unsetenv(k)
				}
			}()

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestPingPeriodLessThanPongWait(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod %v must be less than PongWait %v", cfg.PingPeriod, cfg.PongWait)
	}
}
