package turn

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ent0n29/aria/internal/chat"
	"github.com/ent0n29/aria/internal/observability"
	"github.com/ent0n29/aria/internal/synth"
	"github.com/ent0n29/aria/internal/transcribe"
)

type fakeBrain struct {
	mu      sync.Mutex
	reply   string
	err     error
	lenSeen int
	block   chan struct{}
}

func (b *fakeBrain) Complete(_ context.Context, history []chat.Message) (string, error) {
	b.mu.Lock()
	b.lenSeen = len(history)
	block := b.block
	b.mu.Unlock()
	if block != nil {
		<-block
	}
	return b.reply, b.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (t *fakeTranscriber) Transcribe(context.Context, transcribe.Segment) (string, error) {
	return t.text, t.err
}

type fakeSynth struct {
	mu     sync.Mutex
	err    error
	calls  int
	lastIn string
}

func (s *fakeSynth) Synthesize(_ context.Context, text string, _ synth.Profile) (synth.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastIn = text
	if s.err != nil {
		return synth.Clip{}, s.err
	}
	return synth.Clip{Audio: []byte(text), Format: "mock_text_bytes"}, nil
}

func newTestController(b *fakeBrain, tr *fakeTranscriber, sy *fakeSynth, tts bool) *Controller {
	return NewController(
		chat.NewConversation(""),
		NewSettings(tts, synth.VoiceA),
		b, tr, sy, nil,
	)
}

func loudSegment() transcribe.Segment {
	pcm := make([]byte, 640)
	for i := 0; i+1 < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(8000)))
	}
	return transcribe.Segment{PCM: pcm, SampleRate: 16000, Channels: 1}
}

func TestTextTurnAppendsUserThenAssistant(t *testing.T) {
	b := &fakeBrain{reply: "hi there"}
	c := newTestController(b, &fakeTranscriber{}, &fakeSynth{}, false)

	res, err := c.TextTurn(context.Background(), "hello")
	if err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if res.Reply != "hi there" {
		t.Fatalf("Reply = %q", res.Reply)
	}

	history := c.Conversation().History()
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	if history[0].Role != chat.RoleSystem || history[1].Role != chat.RoleUser || history[2].Role != chat.RoleAssistant {
		t.Fatalf("role order = %v/%v/%v", history[0].Role, history[1].Role, history[2].Role)
	}
	if history[1].Content != "hello" || history[2].Content != "hi there" {
		t.Fatalf("contents = %q/%q", history[1].Content, history[2].Content)
	}
	// The user message must already be part of the history handed to the brain.
	if b.lenSeen != 2 {
		t.Fatalf("brain saw %d messages, want 2 (system + user)", b.lenSeen)
	}
}

func TestCompletionErrorStillPairsTheTurn(t *testing.T) {
	b := &fakeBrain{err: errors.New("timeout")}
	c := newTestController(b, &fakeTranscriber{}, &fakeSynth{}, true)

	res, err := c.TextTurn(context.Background(), "hello")
	if err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if res.ErrKind != ErrKindCompletion {
		t.Fatalf("ErrKind = %q, want completion", res.ErrKind)
	}

	history := c.Conversation().History()
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3 (user + error-as-reply)", len(history))
	}
	last := history[len(history)-1]
	if last.Role != chat.RoleAssistant || !strings.Contains(last.Content, "timeout") {
		t.Fatalf("last message = %+v, want assistant reply containing %q", last, "timeout")
	}
	if len(res.Audio) != 0 {
		t.Fatalf("completion failure must not synthesize audio")
	}
}

func TestVoiceTurnEmptyTranscriptAbortsWithoutMutation(t *testing.T) {
	c := newTestController(&fakeBrain{reply: "x"}, &fakeTranscriber{text: ""}, &fakeSynth{}, true)

	res, err := c.VoiceTurn(context.Background(), loudSegment())
	if err != nil {
		t.Fatalf("VoiceTurn() error = %v", err)
	}
	if !res.NoInput {
		t.Fatalf("NoInput = false, want true")
	}
	if c.Conversation().Len() != 1 {
		t.Fatalf("history mutated on empty transcript: len = %d", c.Conversation().Len())
	}
}

func TestVoiceTurnTranscriptionErrorAbortsWithoutMutation(t *testing.T) {
	c := newTestController(&fakeBrain{reply: "x"}, &fakeTranscriber{err: errors.New("decode failed")}, &fakeSynth{}, true)

	res, err := c.VoiceTurn(context.Background(), loudSegment())
	if err != nil {
		t.Fatalf("VoiceTurn() error = %v", err)
	}
	if res.ErrKind != ErrKindTranscription {
		t.Fatalf("ErrKind = %q, want transcription", res.ErrKind)
	}
	if c.Conversation().Len() != 1 {
		t.Fatalf("history mutated on transcription failure: len = %d", c.Conversation().Len())
	}
}

func TestVoiceTurnSuccess(t *testing.T) {
	sy := &fakeSynth{}
	c := newTestController(&fakeBrain{reply: "hi there"}, &fakeTranscriber{text: "hello"}, sy, true)

	res, err := c.VoiceTurn(context.Background(), loudSegment())
	if err != nil {
		t.Fatalf("VoiceTurn() error = %v", err)
	}
	if res.Transcript != "hello" || res.Reply != "hi there" {
		t.Fatalf("result = %+v", res)
	}
	if res.AudioFormat != "mock_text_bytes" {
		t.Fatalf("AudioFormat = %q", res.AudioFormat)
	}
	if sy.lastIn != "hi there" {
		t.Fatalf("synthesizer input = %q", sy.lastIn)
	}
}

func TestSynthesisFailureDoesNotTouchHistory(t *testing.T) {
	c := newTestController(&fakeBrain{reply: "hi there"}, &fakeTranscriber{}, &fakeSynth{err: errors.New("engine down")}, true)

	res, err := c.TextTurn(context.Background(), "hello")
	if err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if res.ErrKind != ErrKindSynthesis {
		t.Fatalf("ErrKind = %q, want synthesis", res.ErrKind)
	}
	if res.Reply != "hi there" {
		t.Fatalf("Reply = %q, textual reply must survive", res.Reply)
	}

	history := c.Conversation().History()
	if len(history) != 3 || history[2].Content != "hi there" {
		t.Fatalf("history altered by synthesis failure: %+v", history)
	}
}

func TestTTSDisabledSkipsSynthesis(t *testing.T) {
	sy := &fakeSynth{}
	c := newTestController(&fakeBrain{reply: "hi"}, &fakeTranscriber{}, sy, false)

	if _, err := c.TextTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if sy.calls != 0 {
		t.Fatalf("synthesizer called %d times with TTS disabled", sy.calls)
	}
}

func TestOverlappingTurnIsRejected(t *testing.T) {
	block := make(chan struct{})
	b := &fakeBrain{reply: "hi", block: block}
	c := newTestController(b, &fakeTranscriber{}, &fakeSynth{}, false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.TextTurn(context.Background(), "first")
	}()

	// Wait for the first turn to reach the brain call.
	deadline := time.After(2 * time.Second)
	for c.State() != StateAwaitingCompletion {
		select {
		case <-deadline:
			t.Fatalf("first turn never reached awaiting_completion")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := c.TextTurn(context.Background(), "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("overlapping TextTurn() error = %v, want ErrTurnInFlight", err)
	}

	close(block)
	<-done
	if c.State() != StateIdle {
		t.Fatalf("State() = %q after turn, want idle", c.State())
	}
	// Only the first turn may have touched the conversation.
	if got := c.Conversation().Len(); got != 3 {
		t.Fatalf("len(history) = %d, want 3", got)
	}
}

func TestObserverNotifiedAfterCommittedTurn(t *testing.T) {
	c := newTestController(&fakeBrain{reply: "hi"}, &fakeTranscriber{}, &fakeSynth{}, false)

	var seen []Result
	c.SetObserver(func(r Result) { seen = append(seen, r) })

	if _, err := c.TextTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if len(seen) != 1 || seen[0].Reply != "hi" {
		t.Fatalf("observer saw %+v, want one committed turn", seen)
	}

	// Aborted turns are not committed and must not notify.
	if _, err := c.TextTurn(context.Background(), "   "); err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("observer notified for an aborted turn")
	}
}

func TestResetAfterManyTurns(t *testing.T) {
	c := newTestController(&fakeBrain{reply: "hi"}, &fakeTranscriber{}, &fakeSynth{}, false)
	for i := 0; i < 5; i++ {
		if _, err := c.TextTurn(context.Background(), fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("TextTurn() error = %v", err)
		}
	}
	if c.Conversation().Len() != 11 {
		t.Fatalf("len = %d before reset", c.Conversation().Len())
	}
	c.Reset()
	history := c.Conversation().History()
	if len(history) != 1 || history[0].Role != chat.RoleSystem {
		t.Fatalf("history after Reset = %+v", history)
	}
}

func TestProviderErrorsAreCounted(t *testing.T) {
	// One instrument set for the test; promauto registers globally and
	// duplicate names panic.
	m := observability.NewMetrics("aria_turn_test")

	newC := func(b *fakeBrain, tr *fakeTranscriber, sy *fakeSynth) *Controller {
		return NewController(chat.NewConversation(""), NewSettings(true, synth.VoiceA), b, tr, sy, m)
	}

	c := newC(&fakeBrain{reply: "x"}, &fakeTranscriber{err: errors.New("decode failed")}, &fakeSynth{})
	if _, err := c.VoiceTurn(context.Background(), loudSegment()); err != nil {
		t.Fatalf("VoiceTurn() error = %v", err)
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("stt", "transcribe")); got != 1 {
		t.Fatalf("stt/transcribe errors = %v, want 1", got)
	}

	c = newC(&fakeBrain{err: errors.New("timeout")}, &fakeTranscriber{}, &fakeSynth{})
	if _, err := c.TextTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("brain", "complete")); got != 1 {
		t.Fatalf("brain/complete errors = %v, want 1", got)
	}

	c = newC(&fakeBrain{reply: "hi"}, &fakeTranscriber{}, &fakeSynth{err: errors.New("engine down")})
	if _, err := c.TextTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("TextTurn() error = %v", err)
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues("tts", "synthesize")); got != 1 {
		t.Fatalf("tts/synthesize errors = %v, want 1", got)
	}
}

func TestVoiceTurnWithIDUsesCallerID(t *testing.T) {
	c := newTestController(&fakeBrain{reply: "hi"}, &fakeTranscriber{text: "hello"}, &fakeSynth{}, false)
	res, err := c.VoiceTurnWithID(context.Background(), "turn-42", loudSegment())
	if err != nil {
		t.Fatalf("VoiceTurnWithID() error = %v", err)
	}
	if res.TurnID != "turn-42" {
		t.Fatalf("TurnID = %q, want caller-minted id", res.TurnID)
	}
}

func TestSettingsProfileValidation(t *testing.T) {
	s := NewSettings(true, synth.Profile("weird"))
	if _, profile := s.Snapshot(); profile != synth.VoiceA {
		t.Fatalf("profile = %q, want voiceA default", profile)
	}
	if s.SetVoiceProfile(synth.Profile("nope")) {
		t.Fatalf("SetVoiceProfile accepted an unknown profile")
	}
	if !s.SetVoiceProfile(synth.VoiceB) {
		t.Fatalf("SetVoiceProfile rejected voiceB")
	}
	s.SetTTSEnabled(false)
	enabled, profile := s.Snapshot()
	if enabled || profile != synth.VoiceB {
		t.Fatalf("Snapshot() = (%v, %q)", enabled, profile)
	}
}
