package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/aria/internal/audio"
)

// ElevenLabsTranscriber uploads closed audio snapshots to the ElevenLabs
// batch speech-to-text endpoint.
type ElevenLabsTranscriber struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	modelID    string
}

type sttResponse struct {
	Text string `json:"text"`
}

func NewElevenLabsTranscriber(apiKey, baseURL, modelID string) *ElevenLabsTranscriber {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	return &ElevenLabsTranscriber{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		baseURL:    baseURL,
		modelID:    modelID,
	}
}

func (t *ElevenLabsTranscriber) Transcribe(ctx context.Context, seg Segment) (string, error) {
	if t.apiKey == "" {
		return "", fmt.Errorf("elevenlabs api key missing")
	}
	// Dead air is decided locally so it never burns a provider call.
	if IsSilent(seg) {
		return "", nil
	}

	wav, err := audio.EncodeWAVPCM16LE(seg.PCM, seg.SampleRate, seg.Channels)
	if err != nil {
		return "", fmt.Errorf("encode segment: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := mw.WriteField("model_id", t.modelID); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech-to-text request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("speech-to-text error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("speech-to-text decode error: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
