package app

import (
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/aria/internal/brain"
	"github.com/ent0n29/aria/internal/chat"
	"github.com/ent0n29/aria/internal/config"
	"github.com/ent0n29/aria/internal/httpapi"
	"github.com/ent0n29/aria/internal/observability"
	"github.com/ent0n29/aria/internal/session"
	"github.com/ent0n29/aria/internal/synth"
	"github.com/ent0n29/aria/internal/transcribe"
	"github.com/ent0n29/aria/internal/turn"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics
}

// Build resolves providers from config and wires the session manager, turn
// controllers, and HTTP API together.
func Build(cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	brainClient, err := resolveBrain(cfg)
	if err != nil {
		return nil, err
	}
	stt, tts, err := resolveVoice(cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, func() *turn.Controller {
		return turn.NewController(
			chat.NewConversation(cfg.Persona),
			turn.NewSettings(cfg.TTSEnabledByDefault, synth.VoiceA),
			brainClient,
			stt,
			tts,
			metrics,
		)
	})
	sessions.SetExpireHook(func(_ session.Info) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, metrics)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Metrics:  metrics,
	}, nil
}

func resolveBrain(cfg config.Config) (brain.Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.BrainProvider))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("BRAIN_PROVIDER=groq but GROQ_API_KEY is not set")
		}
		log.Printf("brain provider: groq (%s)", cfg.GroqModel)
		return brain.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, cfg.GroqTemperature), nil
	case "mock":
		log.Printf("brain provider: mock")
		return brain.NewMockClient(), nil
	case "auto":
		if cfg.GroqAPIKey != "" {
			log.Printf("brain provider: groq (%s)", cfg.GroqModel)
			return brain.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, cfg.GroqTemperature), nil
		}
		log.Printf("brain provider: mock (no groq key)")
		return brain.NewMockClient(), nil
	default:
		return nil, fmt.Errorf("invalid BRAIN_PROVIDER: %q (expected auto|groq|mock)", cfg.BrainProvider)
	}
}

func resolveVoice(cfg config.Config) (transcribe.Transcriber, synth.Synthesizer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if mode == "" {
		mode = "auto"
	}

	elevenlabs := func() (transcribe.Transcriber, synth.Synthesizer) {
		stt := transcribe.NewElevenLabsTranscriber(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsSTTModel)
		tts := synth.NewElevenLabsSynthesizer(
			cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, cfg.ElevenLabsTTSModel,
			cfg.TTSOutputFormat, cfg.ElevenLabsVoiceA, cfg.ElevenLabsVoiceB,
		)
		return stt, tts
	}

	switch mode {
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			return nil, nil, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		stt, tts := elevenlabs()
		log.Printf("voice provider: elevenlabs")
		return stt, tts, nil
	case "mock":
		log.Printf("voice provider: mock")
		return transcribe.NewMockTranscriber(), synth.NewMockSynthesizer(), nil
	case "auto":
		if cfg.ElevenLabsAPIKey != "" {
			stt, tts := elevenlabs()
			log.Printf("voice provider: elevenlabs")
			return stt, tts, nil
		}
		log.Printf("voice provider: mock (no elevenlabs key)")
		return transcribe.NewMockTranscriber(), synth.NewMockSynthesizer(), nil
	default:
		return nil, nil, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.VoiceProvider)
	}
}
