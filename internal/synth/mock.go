package synth

import (
	"context"
	"fmt"
	"strings"
)

// MockSynthesizer is a local fallback used when no TTS provider is configured.
// It emits the reply text bytes tagged with a fake format.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Synthesize(_ context.Context, text string, _ Profile) (Clip, error) {
	if strings.TrimSpace(text) == "" {
		return Clip{}, fmt.Errorf("nothing to synthesize")
	}
	return Clip{Audio: []byte(text), Format: "mock_text_bytes"}, nil
}
