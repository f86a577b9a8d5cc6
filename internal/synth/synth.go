package synth

import "context"

// Profile selects one of the two user-facing voices.
type Profile string

const (
	VoiceA Profile = "voiceA"
	VoiceB Profile = "voiceB"
)

// Clip is one rendered utterance of compressed audio.
type Clip struct {
	Audio  []byte
	Format string
}

// Synthesizer renders reply text into playable audio. Synthesis always runs
// after the assistant message has been committed, so a failure here never
// loses the textual reply. Profile selection is best-effort: when the
// requested profile's voice is unavailable, implementations fall back to the
// engine default voice instead of failing the turn.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, profile Profile) (Clip, error)
}
