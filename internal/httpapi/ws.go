package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/aria/internal/protocol"
	"github.com/ent0n29/aria/internal/reliability"
	"github.com/ent0n29/aria/internal/session"
	"github.com/ent0n29/aria/internal/synth"
	"github.com/ent0n29/aria/internal/transcribe"
	"github.com/ent0n29/aria/internal/turn"
)

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Keep websocket writes single-threaded; drop if the outbound
				// queue is saturated.
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// runConnection consumes parsed client messages for one websocket. Audio
// chunks accumulate in a server-side buffer; a stop control closes the buffer
// into a snapshot and runs a voice turn against it. Capture keeps flowing
// while a turn is in flight, so chunks for the next utterance are never lost.
func (s *Server) runConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) {
	var (
		pcmBuf     []byte
		sampleRate int
		channels   int
	)
	turnDone := make(chan struct{}, 1)
	turnRunning := false

	send := func(msg any) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-turnDone:
			turnRunning = false
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			_ = s.sessions.Touch(sess.ID)

			switch m := msg.(type) {
			case protocol.ClientAudioChunk:
				raw, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
				if err != nil {
					send(protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: sess.ID,
						Code:      "invalid_audio_chunk",
						Source:    "gateway",
						Retryable: false,
						Detail:    err.Error(),
					})
					continue
				}
				if sampleRate == 0 {
					sampleRate = m.SampleRate
					channels = m.Channels
				} else if m.SampleRate != sampleRate || m.Channels != channels {
					// A mid-capture format change would corrupt the snapshot.
					send(protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: sess.ID,
						Code:      "audio_format_mismatch",
						Source:    "gateway",
						Retryable: false,
						Detail: fmt.Sprintf("chunk format %d Hz/%d ch does not match capture %d Hz/%d ch",
							m.SampleRate, m.Channels, sampleRate, channels),
					})
					continue
				}
				if len(pcmBuf)+len(raw) > s.maxCaptureBytes {
					send(protocol.ErrorEvent{
						Type:      protocol.TypeErrorEvent,
						SessionID: sess.ID,
						Code:      "capture_overflow",
						Source:    "gateway",
						Retryable: false,
						Detail:    "buffered capture exceeds the size limit; send stop to commit it",
					})
					continue
				}
				pcmBuf = append(pcmBuf, raw...)

			case protocol.ClientControl:
				switch m.Action {
				case protocol.ActionReset:
					sess.Controller.Reset()
					s.metrics.SessionEvents.WithLabelValues("history_reset").Inc()
					send(protocol.HistoryReset{Type: protocol.TypeHistoryReset, SessionID: sess.ID})

				case protocol.ActionSetSettings:
					if m.TTSEnabled != nil {
						sess.Controller.Settings().SetTTSEnabled(*m.TTSEnabled)
					}
					if p := strings.TrimSpace(m.VoiceProfile); p != "" {
						if !sess.Controller.Settings().SetVoiceProfile(synth.Profile(p)) {
							send(protocol.ErrorEvent{
								Type:      protocol.TypeErrorEvent,
								SessionID: sess.ID,
								Code:      "invalid_voice_profile",
								Source:    "gateway",
								Retryable: false,
								Detail:    "unknown voice profile " + p,
							})
						}
					}

				case protocol.ActionStop:
					if turnRunning {
						// One turn at a time; the buffered capture survives so
						// the client can stop again once the turn settles.
						send(protocol.ErrorEvent{
							Type:      protocol.TypeErrorEvent,
							SessionID: sess.ID,
							Code:      "turn_in_flight",
							Source:    "controller",
							Retryable: true,
							Detail:    turn.ErrTurnInFlight.Error(),
						})
						continue
					}
					seg := transcribe.Segment{PCM: pcmBuf, SampleRate: sampleRate, Channels: channels}
					pcmBuf = nil
					sampleRate = 0
					channels = 0

					// Announce the turn before it runs so the client has an
					// in-progress signal during the multi-second pipeline.
					turnID := uuid.NewString()
					send(protocol.TurnStarted{
						Type:      protocol.TypeTurnStarted,
						SessionID: sess.ID,
						TurnID:    turnID,
						Source:    "voice",
					})

					turnRunning = true
					go func() {
						defer func() { turnDone <- struct{}{} }()
						s.runVoiceTurn(ctx, sess, turnID, seg, send)
					}()
				}
			}
		}
	}
}

func (s *Server) runVoiceTurn(ctx context.Context, sess *session.Session, turnID string, seg transcribe.Segment, send func(any)) {
	res, err := sess.Controller.VoiceTurnWithID(ctx, turnID, seg)
	if err != nil {
		code := "turn_failed"
		if errors.Is(err, turn.ErrTurnInFlight) {
			code = "turn_in_flight"
		}
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      code,
			Source:    "controller",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}

	if res.NoInput {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "no_input",
			Source:    "transcribe",
			Retryable: true,
			Detail:    "no speech detected",
		})
		return
	}
	if res.ErrKind == turn.ErrKindTranscription {
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "transcription_failed",
			Source:    "transcribe",
			Retryable: reliability.IsRetryableDetail(res.ErrDetail),
			Detail:    res.ErrDetail,
		})
		return
	}

	send(protocol.Transcript{
		Type:      protocol.TypeTranscript,
		SessionID: sess.ID,
		TurnID:    res.TurnID,
		Text:      res.Transcript,
	})
	send(protocol.AssistantReply{
		Type:      protocol.TypeAssistantReply,
		SessionID: sess.ID,
		TurnID:    res.TurnID,
		Text:      res.Reply,
	})

	switch res.ErrKind {
	case turn.ErrKindCompletion:
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "completion_failed",
			Source:    "brain",
			Retryable: reliability.IsRetryableDetail(res.ErrDetail),
			Detail:    res.ErrDetail,
		})
	case turn.ErrKindSynthesis:
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "synthesis_failed",
			Source:    "synth",
			Retryable: reliability.IsRetryableDetail(res.ErrDetail),
			Detail:    res.ErrDetail,
		})
	default:
		if len(res.Audio) > 0 {
			send(protocol.AssistantAudio{
				Type:        protocol.TypeAssistantAudio,
				SessionID:   sess.ID,
				TurnID:      res.TurnID,
				Format:      res.AudioFormat,
				AudioBase64: encodeBase64(res.Audio),
			})
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TurnStarted:
		return m.Type, true
	case protocol.Transcript:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.AssistantAudio:
		return m.Type, true
	case protocol.HistoryReset:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
