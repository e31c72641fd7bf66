// Package model maintains the generative speech session for one phone call.
//
// It speaks the BidiGenerateContent protocol over a bidirectional WebSocket:
// caller audio goes up as base64 PCM chunks, synthesized speech and tool
// calls come back as typed [Event] values on a single ordered channel so the
// session loop can consume everything through one select arm.
package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/spicebay/voicegate/internal/tools"
)

const (
	defaultModel   = "gemini-2.0-flash-live-001"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	defaultVoice   = "Aoede"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// Dial and setup failures are retried before giving up on the call.
	dialAttempts = 3
	redialDelay  = time.Second

	// The model hears raw PCM at 16 kHz mono.
	inputMIME = "audio/pcm;rate=16000"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the generative model used for sessions.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithVoice sets the prebuilt voice used for synthesized speech.
func WithVoice(voice string) Option {
	return func(c *Client) {
		if voice != "" {
			c.voice = voice
		}
	}
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithLogger sets the logger used by sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client dials model sessions. Safe for concurrent use.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	voice   string
	logger  *slog.Logger
}

// NewClient creates a Client with the given API key and options.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		voice:   defaultVoice,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionConfig carries the per-call session parameters.
type SessionConfig struct {
	// Instructions is the system prompt for the agent.
	Instructions string

	// Tools is the tool surface declared at setup. Mid-session changes are
	// not supported by the protocol.
	Tools []tools.Declaration
}

// Connect establishes a model session, retrying the dial and setup up to two
// more times with a short delay. The returned session accepts audio as soon
// as Connect returns.
func (c *Client) Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		sess, err := c.dial(ctx, cfg)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if attempt == dialAttempts {
			break
		}
		c.logger.Warn("model dial failed, retrying",
			"attempt", attempt,
			"max_attempts", dialAttempts,
			"err", err,
		)
		timer := time.NewTimer(redialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (c *Client) dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		c.baseURL, c.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("model: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:   conn,
		events: make(chan Event, 64),
		logger: c.logger,
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(c.model, c.voice, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("model: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Events ─────────────────────────────────────────────────────────────────────

// EventKind labels an [Event].
type EventKind int

const (
	// EventAudio carries one synthesized speech chunk, 24 kHz s16le mono.
	EventAudio EventKind = iota

	// EventCallerTranscript carries recognized caller speech.
	EventCallerTranscript

	// EventAgentTranscript carries the text version of agent speech.
	EventAgentTranscript

	// EventInterrupted signals that the caller spoke over the agent and all
	// queued agent audio must be discarded.
	EventInterrupted

	// EventTurnComplete marks the end of one agent turn.
	EventTurnComplete

	// EventToolCalls carries one batch of tool invocations.
	EventToolCalls

	// EventError carries a fatal session error. EventClosed follows.
	EventError

	// EventClosed is the final event before the channel closes.
	EventClosed
)

// Event is one ordered occurrence on the model leg.
type Event struct {
	Kind  EventKind
	Audio []byte
	Text  string
	Calls []tools.Call
	Err   error
}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is one live model connection. Events are emitted on a single
// channel in protocol order; the channel closes after EventClosed.
type Session struct {
	conn   *websocket.Conn
	events chan Event
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Events returns the ordered event stream.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) sendSetup(model, voice string, cfg SessionConfig) error {
	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
			RealtimeInputConfig: &realtimeInputConfig{
				AutomaticActivityDetection: automaticActivityDetection{
					StartOfSpeechSensitivity: "START_SENSITIVITY_HIGH",
					EndOfSpeechSensitivity:   "END_SENSITIVITY_LOW",
					PrefixPaddingMs:          200,
					SilenceDurationMs:        600,
				},
			},
			InputTranscription:  &struct{}{},
			OutputTranscription: &struct{}{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		msg.Setup.Tools = []toolSet{{FunctionDeclarations: decls}}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("model: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// SendAudio delivers one caller audio chunk (16 kHz, s16le, mono).
func (s *Session) SendAudio(chunk []byte) error {
	if s.isClosed() {
		return fmt.Errorf("model: session closed")
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: inputMIME, Data: base64.StdEncoding.EncodeToString(chunk)},
			},
		},
	}
	return s.writeJSON(msg)
}

// SendUserTurn injects text as a completed user turn, prompting the model to
// respond. Used for the opening greeting trigger.
func (s *Session) SendUserTurn(text string) error {
	if s.isClosed() {
		return fmt.Errorf("model: session closed")
	}
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: true,
		},
	}
	return s.writeJSON(msg)
}

// SendToolResponses answers one tool call batch. Results are sent in a single
// message preserving their order.
func (s *Session) SendToolResponses(results []tools.Result) error {
	if s.isClosed() {
		return fmt.Errorf("model: session closed")
	}
	if len(results) == 0 {
		return nil
	}
	resps := make([]functionResponse, len(results))
	for i, r := range results {
		resps[i] = functionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		}
	}
	return s.writeJSON(toolResponseMessage{
		ToolResponse: toolResponse{FunctionResponses: resps},
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// receiveLoop reads protocol messages and translates them into events. It
// owns the events channel and closes it on exit.
func (s *Session) receiveLoop() {
	defer func() {
		s.emit(Event{Kind: EventClosed})
		close(s.events)
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.emit(Event{Kind: EventError, Err: fmt.Errorf("model: read: %w", err)})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("discarding malformed model frame", "err", err)
			continue
		}
		if !s.handleServerMessage(&msg) {
			return
		}
	}
}

// handleServerMessage emits the events for one protocol message. It reports
// false when the session must stop.
func (s *Session) handleServerMessage(msg *serverMessage) bool {
	if msg.SetupComplete != nil {
		s.logger.Debug("model session setup complete")
	}
	if msg.Error != nil {
		text := msg.Error.Message
		if text == "" {
			text = "unknown error"
		}
		s.emit(Event{Kind: EventError, Err: fmt.Errorf("model: %s", text)})
		return false
	}
	if sc := msg.ServerContent; sc != nil {
		// Interruption invalidates the in-flight turn; report it before any
		// audio that may ride in the same message.
		if sc.Interrupted {
			s.emit(Event{Kind: EventInterrupted})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil {
					continue
				}
				audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(audio) == 0 {
					continue
				}
				s.emit(Event{Kind: EventAudio, Audio: audio})
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.emit(Event{Kind: EventCallerTranscript, Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emit(Event{Kind: EventAgentTranscript, Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			s.emit(Event{Kind: EventTurnComplete})
		}
	}
	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]tools.Call, len(tc.FunctionCalls))
		for i, fc := range tc.FunctionCalls {
			calls[i] = tools.Call{ID: fc.ID, Name: fc.Name, Args: fc.Args}
		}
		s.emit(Event{Kind: EventToolCalls, Calls: calls})
	}
	return true
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// keepaliveLoop pings the connection so idle stretches do not drop it.
func (s *Session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// Close terminates the session and releases all resources. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
