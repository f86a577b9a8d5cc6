package session

import (
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Info is the wire-safe view of a session.
type Info struct {
	ID             string    `json:"session_id"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type CreateRequest struct {
	TTSEnabled   *bool  `json:"tts_enabled,omitempty"`
	VoiceProfile string `json:"voice_profile,omitempty"`
}

type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
