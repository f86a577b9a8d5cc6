package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/aria/internal/brain"
	"github.com/ent0n29/aria/internal/chat"
	"github.com/ent0n29/aria/internal/observability"
	"github.com/ent0n29/aria/internal/synth"
	"github.com/ent0n29/aria/internal/transcribe"
)

// State tracks where the controller is inside one turn. Every invocation
// terminates back in StateIdle.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingInput      State = "awaiting_input"
	StateTranscribing       State = "transcribing"
	StateAwaitingCompletion State = "awaiting_completion"
	StateSynthesizing       State = "synthesizing"
)

// ErrKind classifies which stage degraded or aborted a turn.
type ErrKind string

const (
	ErrKindNone          ErrKind = ""
	ErrKindTranscription ErrKind = "transcription"
	ErrKindCompletion    ErrKind = "completion"
	ErrKindSynthesis     ErrKind = "synthesis"
)

// ErrTurnInFlight is returned when a trigger arrives while another turn is
// still running. Overlapping triggers are rejected, never queued.
var ErrTurnInFlight = errors.New("turn already in flight")

// completionErrPrefix makes a completion failure visible in history as the
// assistant's reply, preserving the user/assistant pairing.
const completionErrPrefix = "Error connecting to AI: "

// Result describes the outcome of one invoked turn. It is returned to the
// caller and passed to the observer; it is never persisted.
type Result struct {
	TurnID      string  `json:"turn_id"`
	Transcript  string  `json:"transcript,omitempty"`
	Reply       string  `json:"reply,omitempty"`
	Audio       []byte  `json:"-"`
	AudioFormat string  `json:"audio_format,omitempty"`
	NoInput     bool    `json:"no_input,omitempty"`
	ErrKind     ErrKind `json:"error_kind,omitempty"`
	ErrDetail   string  `json:"error_detail,omitempty"`
}

// Controller runs one full turn at a time against a single conversation:
// obtain input, transcribe if needed, append the user message, call the
// completion client, append the reply, then synthesize speech if enabled.
type Controller struct {
	conv     *chat.Conversation
	settings *Settings
	brain    brain.Client
	stt      transcribe.Transcriber
	tts      synth.Synthesizer
	metrics  *observability.Metrics

	busy  atomic.Bool
	state atomic.Value // State

	obsMu    sync.RWMutex
	observer func(Result)
}

func NewController(
	conv *chat.Conversation,
	settings *Settings,
	brainClient brain.Client,
	stt transcribe.Transcriber,
	tts synth.Synthesizer,
	metrics *observability.Metrics,
) *Controller {
	c := &Controller{
		conv:     conv,
		settings: settings,
		brain:    brainClient,
		stt:      stt,
		tts:      tts,
		metrics:  metrics,
	}
	c.state.Store(StateIdle)
	return c
}

// SetObserver registers a callback invoked after every committed turn. It
// replaces any previous observer.
func (c *Controller) SetObserver(fn func(Result)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observer = fn
}

func (c *Controller) notify(res Result) {
	c.obsMu.RLock()
	fn := c.observer
	c.obsMu.RUnlock()
	if fn != nil {
		fn(res)
	}
}

// State reports the controller's current position in the turn lifecycle.
func (c *Controller) State() State {
	return c.state.Load().(State)
}

func (c *Controller) setState(s State) {
	c.state.Store(s)
}

// Conversation exposes the conversation this controller mutates.
func (c *Controller) Conversation() *chat.Conversation {
	return c.conv
}

// Settings exposes the speech options read during synthesis.
func (c *Controller) Settings() *Settings {
	return c.settings
}

// Reset atomically replaces the conversation with a fresh persona-only log.
func (c *Controller) Reset() {
	c.conv.Reset()
}

// TextTurn runs one turn for a typed message. The transcription stage is
// skipped on this path.
func (c *Controller) TextTurn(ctx context.Context, text string) (Result, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Result{}, ErrTurnInFlight
	}
	defer c.busy.Store(false)
	defer c.setState(StateIdle)

	c.setState(StateAwaitingInput)
	res := Result{TurnID: uuid.NewString()}

	text = strings.TrimSpace(text)
	if text == "" {
		res.NoInput = true
		c.metrics.ObserveTurnOutcome("no_input")
		return res, nil
	}
	return c.run(ctx, res, text)
}

// VoiceTurn runs one turn for a closed audio snapshot. An empty transcript
// aborts the turn without touching the conversation.
func (c *Controller) VoiceTurn(ctx context.Context, seg transcribe.Segment) (Result, error) {
	return c.VoiceTurnWithID(ctx, uuid.NewString(), seg)
}

// VoiceTurnWithID runs a voice turn under a caller-minted turn ID, so a
// transport can announce the turn before it settles.
func (c *Controller) VoiceTurnWithID(ctx context.Context, turnID string, seg transcribe.Segment) (Result, error) {
	if turnID == "" {
		turnID = uuid.NewString()
	}
	if !c.busy.CompareAndSwap(false, true) {
		return Result{}, ErrTurnInFlight
	}
	defer c.busy.Store(false)
	defer c.setState(StateIdle)

	c.setState(StateAwaitingInput)
	res := Result{TurnID: turnID}

	c.setState(StateTranscribing)
	start := time.Now()
	transcript, err := c.stt.Transcribe(ctx, seg)
	c.metrics.ObserveTurnStage("transcribe", time.Since(start))
	if err != nil {
		// Not retried: a repeated failure usually means no input or no
		// network, and recognition calls are not idempotent.
		res.ErrKind = ErrKindTranscription
		res.ErrDetail = err.Error()
		c.metrics.ObserveProviderError("stt", "transcribe")
		c.metrics.ObserveTurnOutcome("transcription_error")
		return res, nil
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		res.NoInput = true
		c.metrics.ObserveTurnOutcome("no_input")
		return res, nil
	}
	res.Transcript = transcript
	return c.run(ctx, res, transcript)
}

// run is the shared back half of a turn: the user message is committed
// strictly before the completion client is invoked, and every exit path
// leaves the conversation with a paired assistant reply.
func (c *Controller) run(ctx context.Context, res Result, userText string) (Result, error) {
	turnStart := time.Now()
	c.setState(StateAwaitingCompletion)

	if err := c.conv.Append(chat.NewMessage(chat.RoleUser, userText)); err != nil {
		return Result{}, fmt.Errorf("append user message: %w", err)
	}

	completeStart := time.Now()
	reply, err := c.brain.Complete(ctx, c.conv.History())
	c.metrics.ObserveTurnStage("complete", time.Since(completeStart))
	if err != nil {
		res.ErrKind = ErrKindCompletion
		res.ErrDetail = err.Error()
		reply = completionErrPrefix + err.Error()
		c.metrics.ObserveProviderError("brain", "complete")
	}
	res.Reply = reply

	if aerr := c.conv.Append(chat.NewMessage(chat.RoleAssistant, reply)); aerr != nil {
		return Result{}, fmt.Errorf("append assistant message: %w", aerr)
	}

	if err != nil {
		c.metrics.ObserveTurnOutcome("completion_error")
		c.metrics.ObserveTurnStage("turn_total", time.Since(turnStart))
		c.notify(res)
		return res, nil
	}

	// Synthesis runs only after the reply is committed; its failure is
	// reported but never unwinds the turn.
	if ttsEnabled, profile := c.settings.Snapshot(); ttsEnabled {
		c.setState(StateSynthesizing)
		synthStart := time.Now()
		clip, serr := c.tts.Synthesize(ctx, reply, profile)
		c.metrics.ObserveTurnStage("synthesize", time.Since(synthStart))
		if serr != nil {
			res.ErrKind = ErrKindSynthesis
			res.ErrDetail = serr.Error()
			c.metrics.ObserveProviderError("tts", "synthesize")
		} else {
			res.Audio = clip.Audio
			res.AudioFormat = clip.Format
		}
	}

	if res.ErrKind == ErrKindSynthesis {
		c.metrics.ObserveTurnOutcome("synthesis_error")
	} else {
		c.metrics.ObserveTurnOutcome("ok")
	}
	c.metrics.ObserveTurnStage("turn_total", time.Since(turnStart))
	c.notify(res)
	return res, nil
}
