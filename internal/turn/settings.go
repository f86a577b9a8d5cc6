package turn

import (
	"sync"

	"github.com/ent0n29/aria/internal/synth"
)

// Settings are the user-tunable speech options. They are read at the moment
// synthesis is invoked; a concurrent update simply applies to the next turn.
type Settings struct {
	mu           sync.RWMutex
	ttsEnabled   bool
	voiceProfile synth.Profile
}

func NewSettings(ttsEnabled bool, profile synth.Profile) *Settings {
	if profile != synth.VoiceA && profile != synth.VoiceB {
		profile = synth.VoiceA
	}
	return &Settings{ttsEnabled: ttsEnabled, voiceProfile: profile}
}

func (s *Settings) SetTTSEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsEnabled = enabled
}

func (s *Settings) SetVoiceProfile(profile synth.Profile) bool {
	if profile != synth.VoiceA && profile != synth.VoiceB {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceProfile = profile
	return true
}

// Snapshot returns a consistent view of both options.
func (s *Settings) Snapshot() (ttsEnabled bool, profile synth.Profile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttsEnabled, s.voiceProfile
}
