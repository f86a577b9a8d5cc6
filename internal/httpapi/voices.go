package httpapi

import (
	"net/http"

	"github.com/ent0n29/aria/internal/synth"
)

type voiceSummary struct {
	Profile string `json:"profile"`
	VoiceID string `json:"voice_id"`
}

type listVoicesResponse struct {
	DefaultProfile string         `json:"default_profile"`
	Voices         []voiceSummary `json:"voices"`
}

// handleListVoices reports the selectable voice profiles and the provider
// voice IDs they map to.
func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultProfile: string(synth.VoiceA),
		Voices: []voiceSummary{
			{Profile: string(synth.VoiceA), VoiceID: s.cfg.ElevenLabsVoiceA},
			{Profile: string(synth.VoiceB), VoiceID: s.cfg.ElevenLabsVoiceB},
		},
	})
}
