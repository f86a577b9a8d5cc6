package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ElevenLabsSynthesizer renders text through the ElevenLabs text-to-speech
// HTTP endpoint.
type ElevenLabsSynthesizer struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	modelID      string
	outputFormat string
	voiceA       string
	voiceB       string
}

func NewElevenLabsSynthesizer(apiKey, baseURL, modelID, outputFormat, voiceA, voiceB string) *ElevenLabsSynthesizer {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	if outputFormat == "" {
		outputFormat = "mp3_44100_128"
	}
	return &ElevenLabsSynthesizer{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		apiKey:       apiKey,
		baseURL:      baseURL,
		modelID:      modelID,
		outputFormat: outputFormat,
		voiceA:       voiceA,
		voiceB:       voiceB,
	}
}

func (s *ElevenLabsSynthesizer) voiceForProfile(profile Profile) string {
	if profile == VoiceB && strings.TrimSpace(s.voiceB) != "" {
		return s.voiceB
	}
	return s.voiceA
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string, profile Profile) (Clip, error) {
	if s.apiKey == "" {
		return Clip{}, fmt.Errorf("elevenlabs api key missing")
	}
	if strings.TrimSpace(text) == "" {
		return Clip{}, fmt.Errorf("nothing to synthesize")
	}

	voiceID := s.voiceForProfile(profile)
	clip, err := s.render(ctx, text, voiceID)
	if err == nil {
		return clip, nil
	}
	// Best-effort profile selection: retry once with the default voice before
	// reporting a synthesis failure.
	if voiceID != s.voiceA && strings.TrimSpace(s.voiceA) != "" {
		if clip, fbErr := s.render(ctx, text, s.voiceA); fbErr == nil {
			return clip, nil
		}
	}
	return Clip{}, err
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

func (s *ElevenLabsSynthesizer) render(ctx context.Context, text, voiceID string) (Clip, error) {
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.baseURL, url.PathEscape(voiceID), url.QueryEscape(s.outputFormat))

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.4,
			SimilarityBoost: 0.7,
		},
	})
	if err != nil {
		return Clip{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Clip{}, err
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("text-to-speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Clip{}, fmt.Errorf("text-to-speech error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clip{}, fmt.Errorf("text-to-speech read error: %w", err)
	}
	if len(audio) == 0 {
		return Clip{}, fmt.Errorf("text-to-speech returned no audio")
	}
	return Clip{Audio: audio, Format: s.outputFormat}, nil
}
