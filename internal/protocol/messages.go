package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeTurnStarted      MessageType = "turn_started"
	TypeTranscript       MessageType = "transcript"
	TypeAssistantReply   MessageType = "assistant_reply"
	TypeAssistantAudio   MessageType = "assistant_audio"
	TypeHistoryReset     MessageType = "history_reset"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted on client_control messages.
const (
	ActionStop        = "stop"
	ActionReset       = "reset"
	ActionSetSettings = "set_settings"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	Channels    int         `json:"channels,omitempty"`
}

type ClientControl struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Action       string      `json:"action"`
	TTSEnabled   *bool       `json:"tts_enabled,omitempty"`
	VoiceProfile string      `json:"voice_profile,omitempty"`
}

type TurnStarted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Source    string      `json:"source"`
}

type Transcript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
}

type AssistantReply struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
}

type AssistantAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TurnID      string      `json:"turn_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type HistoryReset struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		if msg.Channels == 0 {
			msg.Channels = 1
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionStop, ActionReset, ActionSetSettings:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
