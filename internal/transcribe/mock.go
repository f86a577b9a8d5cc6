package transcribe

import "context"

// MockTranscriber is a local fallback used when no STT provider is configured.
// Any non-silent segment transcribes to a fixed utterance.
type MockTranscriber struct{}

func NewMockTranscriber() *MockTranscriber { return &MockTranscriber{} }

func (t *MockTranscriber) Transcribe(_ context.Context, seg Segment) (string, error) {
	if IsSilent(seg) {
		return "", nil
	}
	return "simulated voice input", nil
}
