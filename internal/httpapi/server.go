package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/aria/internal/audio"
	"github.com/ent0n29/aria/internal/chat"
	"github.com/ent0n29/aria/internal/config"
	"github.com/ent0n29/aria/internal/observability"
	"github.com/ent0n29/aria/internal/session"
	"github.com/ent0n29/aria/internal/synth"
	"github.com/ent0n29/aria/internal/transcribe"
	"github.com/ent0n29/aria/internal/turn"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	// Upper bound for one captured utterance, shared by the WAV upload path
	// and the websocket chunk buffer.
	maxCaptureBytes int
}

func New(cfg config.Config, sessions *session.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:             cfg,
		sessions:        sessions,
		metrics:         metrics,
		maxCaptureBytes: 16 << 20,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive the user's mic
				// session if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/voices", s.handleListVoices)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Post("/v1/sessions/{id}/turns/text", s.handleTextTurn)
	r.Post("/v1/sessions/{id}/turns/voice", s.handleVoiceTurn)
	r.Get("/v1/sessions/{id}/history", s.handleHistory)
	r.Post("/v1/sessions/{id}/reset", s.handleReset)
	r.Get("/v1/sessions/{id}/settings", s.handleGetSettings)
	r.Put("/v1/sessions/{id}/settings", s.handlePutSettings)
	r.Get("/v1/sessions/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess := s.sessions.Create()
	if req.TTSEnabled != nil {
		sess.Controller.Settings().SetTTSEnabled(*req.TTSEnabled)
	}
	if p := strings.TrimSpace(req.VoiceProfile); p != "" {
		if !sess.Controller.Settings().SetVoiceProfile(synth.Profile(p)) {
			_, _ = s.sessions.End(sess.ID)
			respondError(w, http.StatusBadRequest, "invalid_voice_profile", "unknown voice profile "+p)
			return
		}
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.End(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, info)
}

type textTurnRequest struct {
	Text string `json:"text"`
}

// turnResponse is Result plus the synthesized clip rendered as base64 for
// JSON transport.
type turnResponse struct {
	turn.Result
	AudioBase64 string `json:"audio_base64,omitempty"`
}

func (s *Server) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	var req textTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := sess.Controller.TextTurn(r.Context(), req.Text)
	s.respondTurn(w, sess.ID, res, err)
}

func (s *Server) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.maxCaptureBytes)))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	pcm, sampleRate, channels, err := audio.DecodeWAVPCM16LE(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}

	seg := transcribe.Segment{PCM: pcm, SampleRate: sampleRate, Channels: channels}
	res, err := sess.Controller.VoiceTurn(r.Context(), seg)
	s.respondTurn(w, sess.ID, res, err)
}

func (s *Server) respondTurn(w http.ResponseWriter, sessionID string, res turn.Result, err error) {
	if err != nil {
		if errors.Is(err, turn.ErrTurnInFlight) {
			respondError(w, http.StatusConflict, "turn_in_flight", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	_ = s.sessions.Touch(sessionID)

	out := turnResponse{Result: res}
	if len(res.Audio) > 0 {
		out.AudioBase64 = encodeBase64(res.Audio)
	}
	respondJSON(w, http.StatusOK, out)
}

type historyResponse struct {
	SessionID string         `json:"session_id"`
	Messages  []chat.Message `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{
		SessionID: sess.ID,
		Messages:  sess.Controller.Conversation().History(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	sess.Controller.Reset()
	_ = s.sessions.Touch(sess.ID)
	s.metrics.SessionEvents.WithLabelValues("history_reset").Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"history":    sess.Controller.Conversation().Len(),
	})
}

type settingsPayload struct {
	TTSEnabled   *bool  `json:"tts_enabled,omitempty"`
	VoiceProfile string `json:"voice_profile,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	enabled, profile := sess.Controller.Settings().Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"tts_enabled":   enabled,
		"voice_profile": string(profile),
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	var req settingsPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.TTSEnabled != nil {
		sess.Controller.Settings().SetTTSEnabled(*req.TTSEnabled)
	}
	if p := strings.TrimSpace(req.VoiceProfile); p != "" {
		if !sess.Controller.Settings().SetVoiceProfile(synth.Profile(p)) {
			respondError(w, http.StatusBadRequest, "invalid_voice_profile", "unknown voice profile "+p)
			return
		}
	}
	_ = s.sessions.Touch(sess.ID)

	enabled, profile := sess.Controller.Settings().Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"tts_enabled":   enabled,
		"voice_profile": string(profile),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
