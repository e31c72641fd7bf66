// Package session couples the two legs of one phone call. Each Session is an
// actor: media frames, model events, timer firings, and completion callbacks
// all funnel into a single loop, so the cart, the transcript accumulator, and
// every lifecycle flag are mutated from exactly one goroutine.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spicebay/voicegate/internal/menu"
	"github.com/spicebay/voicegate/internal/model"
	"github.com/spicebay/voicegate/internal/observe"
	"github.com/spicebay/voicegate/internal/store"
	"github.com/spicebay/voicegate/internal/telephony"
	"github.com/spicebay/voicegate/internal/tools"
	"github.com/spicebay/voicegate/pkg/audio"
)

const (
	// greetingDelay guards against the model service's open-handshake race:
	// client content sent immediately after open sometimes triggers an
	// abnormal close.
	greetingDelay = 500 * time.Millisecond

	// teardownGrace is how long a hang-up waits for an in-flight order
	// persistence pipeline before tearing the session down anyway.
	teardownGrace = 8 * time.Second

	// farewellDelay keeps the session alive after a successful order so the
	// agent can read the order number back before the line drops.
	farewellDelay = 22 * time.Second

	// An abnormal model-leg close before the greeting has gone out gets a
	// fresh dial; the conversation has no state yet, so the caller only hears
	// a slightly longer pause. After the greeting the session fails instead.
	redialAttempts = 2
	redialDelay    = time.Second
)

// MediaLeg is the telephony side of the call.
type MediaLeg interface {
	Events() <-chan telephony.Event
	SendMedia(mulaw []byte) error
	SendClear() error
	Close() error
}

// ModelLeg is the generative speech side of the call.
type ModelLeg interface {
	Events() <-chan model.Event
	SendAudio(pcm []byte) error
	SendUserTurn(text string) error
	SendToolResponses(results []tools.Result) error
	Close() error
}

// ModelDialer opens the model leg for one call.
type ModelDialer func(ctx context.Context, cfg model.SessionConfig) (ModelLeg, error)

// Transferer hands a live call to a human.
type Transferer interface {
	Enabled() bool
	Transfer(ctx context.Context, callID string) error
}

// terminalSource distinguishes an orderly close from an error-driven one;
// it selects the call record's terminal status.
type terminalSource int

const (
	srcStop terminalSource = iota
	srcError
)

// Config carries the session dependencies. Zero timer fields take the
// package defaults; tests shrink them.
type Config struct {
	Logger   *slog.Logger
	Metrics  *observe.Metrics
	Media    MediaLeg
	Dial     ModelDialer
	Gateway  store.Gateway
	Transfer Transferer
	Prices   *menu.PriceMap
	Registry *Registry

	RestaurantID   string
	RestaurantName string

	GreetingDelay time.Duration
	TeardownGrace time.Duration
	FarewellDelay time.Duration
	RedialDelay   time.Duration
}

// Session orchestrates one live call.
type Session struct {
	logger   *slog.Logger
	metrics  *observe.Metrics
	media    MediaLeg
	dial     ModelDialer
	gateway  store.Gateway
	transfer Transferer
	prices   *menu.PriceMap
	registry *Registry

	restaurantID   string
	restaurantName string
	greetingDelay  time.Duration
	teardownGrace  time.Duration
	farewellDelay  time.Duration
	redialDelay    time.Duration

	// set once the start frame arrives
	callID    string
	streamID  string
	startedAt time.Time
	router    *tools.Router
	modelLeg  ModelLeg
	modelCfg  model.SessionConfig

	// modelEvents is the loop's receive arm for the current model leg; it is
	// nilled during a redial so stragglers from the dead leg are ignored.
	modelEvents <-chan model.Event

	// lifecycle flags, loop-owned
	agentSpeaking      bool
	toolCallInProgress bool
	wasInterrupted     bool
	orderInProgress    bool
	transferTriggered  bool
	greetingSent       bool
	redialsLeft        int

	closing       bool
	done          bool
	terminalSrc   terminalSource
	failureReason string

	transcript strings.Builder

	greetTimer    *time.Timer
	graceTimer    *time.Timer
	farewellTimer *time.Timer

	ctx      context.Context
	cmds     chan func()
	loopDone chan struct{}
}

// New creates a Session around an accepted media leg. Run drives it.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.Default()
	}
	s := &Session{
		logger:         logger,
		metrics:        m,
		media:          cfg.Media,
		dial:           cfg.Dial,
		gateway:        cfg.Gateway,
		transfer:       cfg.Transfer,
		prices:         cfg.Prices,
		registry:       cfg.Registry,
		restaurantID:   cfg.RestaurantID,
		restaurantName: cfg.RestaurantName,
		greetingDelay:  cfg.GreetingDelay,
		teardownGrace:  cfg.TeardownGrace,
		farewellDelay:  cfg.FarewellDelay,
		redialDelay:    cfg.RedialDelay,
		redialsLeft:    redialAttempts,
		cmds:           make(chan func(), 16),
		loopDone:       make(chan struct{}),
	}
	if s.greetingDelay <= 0 {
		s.greetingDelay = greetingDelay
	}
	if s.teardownGrace <= 0 {
		s.teardownGrace = teardownGrace
	}
	if s.farewellDelay <= 0 {
		s.farewellDelay = farewellDelay
	}
	if s.redialDelay <= 0 {
		s.redialDelay = redialDelay
	}
	return s
}

// Run drives the session to completion. It returns after the terminal call
// status has been applied.
func (s *Session) Run(ctx context.Context) {
	s.ctx = ctx
	defer s.media.Close()
	defer close(s.loopDone)

	// Correlation id for log lines before the provider call id is known,
	// and to disambiguate a reused call id across reconnects.
	s.logger = s.logger.With("session_id", uuid.NewString())

	start, ok := s.awaitStart(ctx)
	if !ok {
		return
	}
	s.callID = start.CallID
	s.streamID = start.StreamID
	s.startedAt = time.Now()
	s.logger = s.logger.With("call_id", s.callID)

	record, err := s.gateway.CreateCall(ctx, start.CallID, start.StreamID, start.CallerPhone, start.RestaurantPhone)
	if err != nil {
		// The call goes on without its record; terminal writes will miss.
		s.logger.Error("create call record failed", "err", err)
		s.metrics.PersistenceErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", "create_call"),
		))
	} else {
		s.startedAt = record.StartedAt
	}

	if s.registry != nil {
		s.registry.Add(s.callID, s)
		defer s.registry.Remove(s.callID)
	}
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	s.router = tools.NewRouter(tools.Config{
		Logger:       s.logger,
		Metrics:      s.metrics,
		Prices:       s.prices,
		Gateway:      s.gateway,
		RestaurantID: s.restaurantID,
		CallID:       s.callID,
	})

	s.modelCfg = model.SessionConfig{
		Instructions: BuildInstructions(s.restaurantName, s.prices, s.transfer != nil && s.transfer.Enabled()),
		Tools:        tools.Declarations(),
	}
	leg, err := s.dial(ctx, s.modelCfg)
	if err != nil {
		s.logger.Error("model connect failed", "err", err)
		s.terminalSrc = srcError
		s.failureReason = "model connect: " + err.Error()
		s.finalize()
		return
	}
	s.modelLeg = leg
	s.modelEvents = leg.Events()
	defer func() { s.modelLeg.Close() }()

	s.logger.Info("session started",
		"stream_id", s.streamID,
		"caller", start.CallerPhone,
	)

	s.armGreeting()

	s.loop(ctx)
	s.stopTimers()
	s.finalize()
}

// awaitStart consumes media events until the start frame. Anything terminal
// before start means there is no call to record.
func (s *Session) awaitStart(ctx context.Context) (telephony.StartInfo, bool) {
	for {
		select {
		case ev, ok := <-s.media.Events():
			if !ok {
				return telephony.StartInfo{}, false
			}
			switch ev.Kind {
			case telephony.EventStart:
				return ev.Start, true
			case telephony.EventStop, telephony.EventError, telephony.EventClosed:
				return telephony.StartInfo{}, false
			}
		case <-ctx.Done():
			return telephony.StartInfo{}, false
		}
	}
}

// armGreeting schedules the opening user-turn trigger against the current
// model leg; a redial rearms it.
func (s *Session) armGreeting() {
	if s.greetTimer != nil {
		s.greetTimer.Stop()
	}
	s.greetTimer = time.AfterFunc(s.greetingDelay, func() {
		s.post(func() {
			if s.closing {
				return
			}
			s.greetingSent = true
			if err := s.modelLeg.SendUserTurn(greetingTrigger); err != nil {
				s.logger.Warn("greeting send failed", "err", err)
			}
		})
	})
}

func (s *Session) loop(ctx context.Context) {
	mediaEvents := s.media.Events()
	ctxDone := ctx.Done()

	for !s.done {
		select {
		case ev, ok := <-mediaEvents:
			if !ok {
				mediaEvents = nil
				s.requestTeardown(srcStop, "")
				continue
			}
			s.handleMediaEvent(ev)
		case ev, ok := <-s.modelEvents:
			if !ok {
				s.modelEvents = nil
				s.modelLost("model stream closed")
				continue
			}
			s.handleModelEvent(ev)
		case cmd := <-s.cmds:
			cmd()
		case <-ctxDone:
			ctxDone = nil
			s.requestTeardown(srcStop, "")
		}
	}
}

// post schedules fn onto the session loop from another goroutine. Dropped
// once the loop has exited.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.loopDone:
	}
}

// ── media leg ─────────────────────────────────────────────────────────────────

func (s *Session) handleMediaEvent(ev telephony.Event) {
	switch ev.Kind {
	case telephony.EventAudio:
		// Realtime input during a tool exchange is a protocol violation on
		// the model side, so it is gated rather than forwarded.
		if s.closing || s.toolCallInProgress {
			return
		}
		pcm, err := audio.MediaToModel(ev.Audio)
		if err != nil {
			s.logger.Debug("dropping unconvertible caller frame", "err", err)
			s.metrics.FramesDropped.Add(s.ctx, 1, metric.WithAttributes(
				attribute.String("direction", "inbound"),
			))
			return
		}
		if err := s.modelLeg.SendAudio(pcm); err != nil {
			s.logger.Debug("caller audio send failed", "err", err)
		}

	case telephony.EventDTMF:
		s.logger.Debug("ignoring dtmf digit", "digit", ev.Digit)

	case telephony.EventStop, telephony.EventClosed:
		s.requestTeardown(srcStop, "")

	case telephony.EventError:
		s.requestTeardown(srcError, "media stream: "+ev.Err.Error())
	}
}

// ── model leg ─────────────────────────────────────────────────────────────────

func (s *Session) handleModelEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventAudio:
		if s.closing {
			return
		}
		// Fragments of an interrupted turn keep arriving for a short while;
		// the caller must not hear the cancelled speech.
		if s.wasInterrupted {
			s.metrics.FramesDropped.Add(s.ctx, 1, metric.WithAttributes(
				attribute.String("direction", "outbound"),
			))
			return
		}
		if !s.agentSpeaking {
			s.agentSpeaking = true
			s.logger.Debug("agent turn started")
		}
		mulaw, err := audio.ModelToMedia(ev.Audio)
		if err != nil {
			s.logger.Debug("dropping unconvertible model frame", "err", err)
			s.metrics.FramesDropped.Add(s.ctx, 1, metric.WithAttributes(
				attribute.String("direction", "outbound"),
			))
			return
		}
		if err := s.media.SendMedia(mulaw); err != nil {
			s.logger.Debug("agent audio send failed", "err", err)
		}

	case model.EventInterrupted:
		s.agentSpeaking = false
		s.wasInterrupted = true
		if err := s.media.SendClear(); err != nil {
			s.logger.Debug("clear send failed", "err", err)
		}
		s.logger.Debug("caller barge-in, agent turn cancelled")

	case model.EventCallerTranscript:
		s.logger.Debug("caller said", "text", ev.Text)

	case model.EventAgentTranscript:
		s.transcript.WriteString(ev.Text)

	case model.EventTurnComplete:
		s.agentSpeaking = false
		s.wasInterrupted = false
		s.maybeTransfer()

	case model.EventToolCalls:
		s.handleToolCalls(ev.Calls)

	case model.EventError:
		s.logger.Error("model session error", "err", ev.Err)
		s.modelEvents = nil
		s.modelLost(ev.Err.Error())

	case model.EventClosed:
		s.modelEvents = nil
		s.modelLost("model stream closed")
	}
}

// modelLost reacts to an abnormal model-leg close. Before the greeting the
// session redials; afterwards the conversation is unrecoverable and the call
// fails.
func (s *Session) modelLost(reason string) {
	if s.closing {
		return
	}
	if !s.greetingSent && s.redialsLeft > 0 {
		s.redialModel(reason)
		return
	}
	s.requestTeardown(srcError, reason)
}

// redialModel replaces the model leg off-loop and swaps it in via post. The
// greeting timer restarts once the fresh leg is up.
func (s *Session) redialModel(reason string) {
	s.redialsLeft--
	s.logger.Warn("model leg lost before greeting, redialing",
		"attempt", redialAttempts-s.redialsLeft,
		"reason", reason,
	)
	if s.greetTimer != nil {
		s.greetTimer.Stop()
	}
	old := s.modelLeg

	go func() {
		if old != nil {
			old.Close()
		}
		timer := time.NewTimer(s.redialDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.ctx.Done():
			s.post(func() { s.requestTeardown(srcStop, "") })
			return
		}

		leg, err := s.dial(s.ctx, s.modelCfg)
		swap := func() {
			if s.closing {
				if err == nil {
					leg.Close()
				}
				return
			}
			if err != nil {
				s.modelLost("model redial: " + err.Error())
				return
			}
			s.modelLeg = leg
			s.modelEvents = leg.Events()
			s.armGreeting()
		}
		select {
		case s.cmds <- swap:
		case <-s.loopDone:
			if err == nil {
				leg.Close()
			}
		}
	}()
}

// ── tool dispatch ─────────────────────────────────────────────────────────────

func (s *Session) handleToolCalls(calls []tools.Call) {
	if s.closing || len(calls) == 0 {
		return
	}
	s.toolCallInProgress = true

	results := make([]tools.Result, len(calls))
	jobIdx := -1
	var job tools.OrderJob

	for i, call := range calls {
		if call.Name != tools.NameCompleteOrder {
			results[i] = s.router.Dispatch(s.ctx, call)
			continue
		}
		if s.orderInProgress || job != nil {
			s.logger.Warn("rejecting overlapping completeOrder")
			results[i] = tools.Result{ID: call.ID, Name: call.Name, Response: map[string]any{
				"result":  "An order is already being saved. Please wait a moment.",
				"orderId": nil,
			}}
			continue
		}
		res, j := s.router.StartOrder(s.ctx, call)
		if res != nil {
			results[i] = *res
			continue
		}
		jobIdx, job = i, j
	}

	if job == nil {
		s.sendToolResults(results)
		return
	}

	s.orderInProgress = true
	go func() {
		out := job(s.ctx)
		s.post(func() { s.orderFinished(out, results, jobIdx) })
	}()
}

// orderFinished runs on the loop once the persistence job returns.
func (s *Session) orderFinished(out tools.OrderOutcome, results []tools.Result, idx int) {
	s.orderInProgress = false
	s.router.CommitOrder(s.ctx, out)
	results[idx] = out.Result
	s.sendToolResults(results)

	if out.Committed && !s.closing {
		// Leave time for the agent to read the order number back.
		s.farewellTimer = time.AfterFunc(s.farewellDelay, func() {
			s.post(func() { s.requestTeardown(srcStop, "") })
		})
	}

	// A hang-up during the pipeline deferred its teardown to here.
	if s.closing && !s.done {
		if s.graceTimer != nil {
			s.graceTimer.Stop()
		}
		s.done = true
	}
}

// sendToolResults answers one tool batch, honoring the barge-in rule: a
// cancelled turn must not be acknowledged or the service closes the stream.
func (s *Session) sendToolResults(results []tools.Result) {
	// The media gate stays latched while an order job is still in flight;
	// orderFinished clears orderInProgress before sending its own batch.
	s.toolCallInProgress = s.orderInProgress
	if s.wasInterrupted {
		s.wasInterrupted = false
		s.logger.Debug("skipping tool response for interrupted turn")
		return
	}
	if s.closing {
		return
	}
	if err := s.modelLeg.SendToolResponses(results); err != nil {
		s.logger.Warn("tool response send failed", "err", err)
	}
}

// ── transfer ──────────────────────────────────────────────────────────────────

// maybeTransfer scans the whole accumulated agent transcript for the
// escalation phrase and fires the transfer at most once.
func (s *Session) maybeTransfer() {
	if s.transferTriggered || s.transfer == nil || !s.transfer.Enabled() {
		return
	}
	if !strings.Contains(s.transcript.String(), TransferPhrase) {
		return
	}
	s.transferTriggered = true
	s.metrics.TransferAttempts.Add(s.ctx, 1)
	s.logger.Info("transfer phrase detected, redirecting call")

	go func() {
		err := s.transfer.Transfer(s.ctx, s.callID)
		s.post(func() {
			if err != nil {
				// Roll the latch back so the call can still end normally.
				s.logger.Warn("transfer failed", "err", err)
				s.transferTriggered = false
			}
		})
	}()
}

// ── teardown ──────────────────────────────────────────────────────────────────

func (s *Session) requestTeardown(src terminalSource, reason string) {
	if s.closing {
		if !s.orderInProgress {
			s.done = true
		}
		return
	}
	s.closing = true
	s.terminalSrc = src
	s.failureReason = reason

	if s.orderInProgress {
		s.logger.Info("deferring teardown for in-flight order", "grace", s.teardownGrace)
		s.graceTimer = time.AfterFunc(s.teardownGrace, func() {
			s.post(func() { s.done = true })
		})
		return
	}
	s.done = true
}

func (s *Session) stopTimers() {
	for _, t := range []*time.Timer{s.greetTimer, s.graceTimer, s.farewellTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

// finalize applies the terminal call status exactly once and emits the
// closing telemetry. Persistence failures are logged, never propagated; the
// phone call is already over.
func (s *Session) finalize() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		status store.CallStatus
		err    error
	)
	switch {
	case s.transferTriggered:
		status = store.CallEscalated
		err = s.gateway.EscalateCall(ctx, s.callID)
	case s.terminalSrc == srcError:
		status = store.CallFailed
		err = s.gateway.FailCall(ctx, s.callID, s.failureReason)
	default:
		status = store.CallCompleted
		err = s.gateway.CompleteCall(ctx, s.callID, s.startedAt)
	}
	if err != nil {
		s.logger.Error("terminal status write failed", "status", status, "err", err)
		s.metrics.PersistenceErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", "terminal_"+string(status)),
		))
	}

	duration := time.Since(s.startedAt)
	s.metrics.CallsTerminated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
	))
	s.metrics.CallDuration.Record(ctx, duration.Seconds())

	abandoned := 0
	if s.router != nil {
		abandoned = s.router.Cart().ItemCount()
	}
	s.logger.Info("session ended",
		"status", status,
		"duration", duration.Round(time.Second),
		"cart_items_abandoned", abandoned,
	)
}
