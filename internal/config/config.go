package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	Persona string

	BrainProvider   string
	GroqAPIKey      string
	GroqBaseURL     string
	GroqModel       string
	GroqTemperature float64

	VoiceProvider       string
	ElevenLabsAPIKey    string
	ElevenLabsBaseURL   string
	ElevenLabsSTTModel  string
	ElevenLabsTTSModel  string
	ElevenLabsVoiceA    string
	ElevenLabsVoiceB    string
	TTSOutputFormat     string
	TTSEnabledByDefault bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "aria"),
		AllowAnyOrigin:   false,
		Persona:          envOrDefault("APP_PERSONA", "You are a helpful assistant. Reply only one line"),
		BrainProvider:    envOrDefault("BRAIN_PROVIDER", "auto"),
		GroqAPIKey:       envTrimmed("GROQ_API_KEY"),
		GroqBaseURL:      envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai"),
		GroqModel:        envOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GroqTemperature:  0.7,
		VoiceProvider:    envOrDefault("VOICE_PROVIDER", "auto"),
		ElevenLabsAPIKey: envTrimmed("ELEVENLABS_API_KEY"),
		// REST base; both the STT upload and TTS render use it.
		ElevenLabsBaseURL:  envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsSTTModel: envOrDefault("ELEVENLABS_STT_MODEL_ID", "scribe_v1"),
		ElevenLabsTTSModel: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		// Two selectable profiles; A is the engine default voice.
		ElevenLabsVoiceA:         envOrDefault("ELEVENLABS_VOICE_A_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsVoiceB:         envOrDefault("ELEVENLABS_VOICE_B_ID", "pNInz6obpgDQGcFmaJgB"),
		TTSOutputFormat:          envOrDefault("TTS_OUTPUT_FORMAT", "mp3_44100_128"),
		TTSEnabledByDefault:      true,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSEnabledByDefault, err = boolFromEnv("TTS_ENABLED_DEFAULT", cfg.TTSEnabledByDefault)
	if err != nil {
		return Config{}, err
	}
	cfg.GroqTemperature, err = floatFromEnv("GROQ_TEMPERATURE", cfg.GroqTemperature)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.GroqTemperature < 0 || cfg.GroqTemperature > 2 {
		return Config{}, fmt.Errorf("GROQ_TEMPERATURE must be in [0, 2]")
	}
	if strings.TrimSpace(cfg.Persona) == "" {
		return Config{}, fmt.Errorf("APP_PERSONA must not be blank")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
