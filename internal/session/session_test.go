package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spicebay/voicegate/internal/menu"
	"github.com/spicebay/voicegate/internal/model"
	"github.com/spicebay/voicegate/internal/session"
	"github.com/spicebay/voicegate/internal/store"
	"github.com/spicebay/voicegate/internal/tools"
)

type harness struct {
	media    *fakeMedia
	modelLeg *fakeModel
	gw       *fakeGateway
	transfer *fakeTransfer
	registry *session.Registry
	done     chan struct{}
	cancel   context.CancelFunc
}

func startSession(t *testing.T, mutate func(*session.Config)) *harness {
	t.Helper()
	h := &harness{
		media:    newFakeMedia(),
		modelLeg: newFakeModel(),
		gw:       newGateway(),
		transfer: &fakeTransfer{enabled: true},
		registry: session.NewRegistry(),
		done:     make(chan struct{}),
	}
	cfg := session.Config{
		Media:   h.media,
		Gateway: h.gw,
		Dial: func(ctx context.Context, _ model.SessionConfig) (session.ModelLeg, error) {
			return h.modelLeg, nil
		},
		Transfer:       h.transfer,
		Prices:         menu.SpiceBay(),
		Registry:       h.registry,
		RestaurantID:   "spicebay-irvine",
		RestaurantName: "Spice Bay Irvine",
		GreetingDelay:  5 * time.Millisecond,
		TeardownGrace:  2 * time.Second,
		FarewellDelay:  time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := session.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() {
		s.Run(ctx)
		close(h.done)
	}()
	return h
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not terminate")
	}
}

// pcm24 returns n 24 kHz samples of silence as little-endian bytes.
func pcm24(n int) []byte { return make([]byte, 2*n) }

func TestSession_CompletedLifecycle(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)

	h.media.start()
	waitFor(t, "call record", func() bool {
		h.gw.mu.Lock()
		defer h.gw.mu.Unlock()
		return h.gw.createCalls == 1
	})
	waitFor(t, "registry entry", func() bool { return h.registry.Count() == 1 })
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.media.stop()
	h.waitDone(t)

	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallCompleted {
		t.Errorf("terminals = %v, want one completed", got)
	}
	if h.registry.Count() != 0 {
		t.Errorf("registry count after teardown = %d", h.registry.Count())
	}
}

func TestSession_AudioBridging(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	// Caller µ-law up to the model as 16 kHz PCM.
	h.media.audio([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	waitFor(t, "caller audio forwarded", func() bool { return h.modelLeg.audioCount() == 1 })
	h.modelLeg.mu.Lock()
	up := h.modelLeg.audio[0]
	h.modelLeg.mu.Unlock()
	if len(up) != 16 { // 4 samples upsampled 2x, 2 bytes each
		t.Errorf("upsampled frame = %d bytes, want 16", len(up))
	}

	// Model PCM down to the caller as µ-law.
	h.modelLeg.events <- model.Event{Kind: model.EventAudio, Audio: pcm24(6)}
	waitFor(t, "agent audio forwarded", func() bool { return h.media.sentCount() == 1 })
	h.media.mu.Lock()
	down := h.media.sent[0]
	h.media.mu.Unlock()
	if len(down) != 2 { // 6 samples decimated 3:1
		t.Errorf("downsampled frame = %d bytes, want 2", len(down))
	}

	h.media.stop()
	h.waitDone(t)
}

func TestSession_BargeIn(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.events <- model.Event{Kind: model.EventAudio, Audio: pcm24(3)}
	waitFor(t, "first fragment", func() bool { return h.media.sentCount() == 1 })

	h.modelLeg.events <- model.Event{Kind: model.EventInterrupted}
	waitFor(t, "clear frame", func() bool { return h.media.clearCount() == 1 })

	// Late fragments of the cancelled turn are dropped.
	h.modelLeg.events <- model.Event{Kind: model.EventAudio, Audio: pcm24(3)}
	// A tool call before the next turnComplete must not be acknowledged.
	h.modelLeg.toolCall(tools.NameSearchMenu, map[string]any{"query": "dosa"})
	time.Sleep(50 * time.Millisecond)
	if n := h.media.sentCount(); n != 1 {
		t.Errorf("fragments forwarded after interrupt = %d, want 1", n)
	}
	if n := h.modelLeg.batchCount(); n != 0 {
		t.Errorf("tool responses after interrupt = %d, want 0", n)
	}

	// turnComplete resets the latch; the next exchange works again.
	h.modelLeg.events <- model.Event{Kind: model.EventTurnComplete}
	h.modelLeg.toolCall(tools.NameSearchMenu, map[string]any{"query": "dosa"})
	waitFor(t, "tool response after reset", func() bool { return h.modelLeg.batchCount() == 1 })

	h.media.stop()
	h.waitDone(t)
}

func TestSession_MediaGatedDuringToolCall(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.gw.upsertGate = make(chan struct{})

	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.toolCall(tools.NameManageOrder, map[string]any{
		"action": "add", "itemName": "Mango Lassi", "quantity": float64(1), "price": 6.49,
	})
	waitFor(t, "cart ack", func() bool { return h.modelLeg.batchCount() == 1 })

	h.modelLeg.toolCall(tools.NameCompleteOrder, map[string]any{
		"customerName": "Priya", "phoneNumber": "+19495550100",
	})

	// While the pipeline is blocked, caller media must not reach the model.
	time.Sleep(50 * time.Millisecond)
	h.media.audio([]byte{0xFF, 0xFF})
	time.Sleep(50 * time.Millisecond)
	if n := h.modelLeg.audioCount(); n != 0 {
		t.Fatalf("audio forwarded during tool call = %d, want 0", n)
	}

	close(h.gw.upsertGate)
	waitFor(t, "order response", func() bool { return h.modelLeg.batchCount() == 2 })
	if h.gw.orderCount() != 1 {
		t.Errorf("orders persisted = %d", h.gw.orderCount())
	}

	// Gate lifts once the response is sent.
	h.media.audio([]byte{0xFF, 0xFF})
	waitFor(t, "audio after gate", func() bool { return h.modelLeg.audioCount() == 1 })

	h.media.stop()
	h.waitDone(t)
}

func TestSession_GateHeldAcrossBatchesDuringOrder(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.gw.upsertGate = make(chan struct{})

	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.toolCall(tools.NameManageOrder, map[string]any{
		"action": "add", "itemName": "Mango Lassi", "quantity": float64(1), "price": 6.49,
	})
	waitFor(t, "cart ack", func() bool { return h.modelLeg.batchCount() == 1 })

	h.modelLeg.toolCall(tools.NameCompleteOrder, map[string]any{
		"customerName": "Priya", "phoneNumber": "+19495550100",
	})
	time.Sleep(50 * time.Millisecond)

	// A second batch answered while the order job is still blocked must not
	// reopen the caller-media gate.
	h.modelLeg.toolCall(tools.NameSearchMenu, map[string]any{"query": "dosa"})
	waitFor(t, "search ack", func() bool { return h.modelLeg.batchCount() == 2 })

	h.media.audio([]byte{0xFF, 0xFF})
	time.Sleep(50 * time.Millisecond)
	if n := h.modelLeg.audioCount(); n != 0 {
		t.Fatalf("audio forwarded while order in flight = %d, want 0", n)
	}

	close(h.gw.upsertGate)
	waitFor(t, "order response", func() bool { return h.modelLeg.batchCount() == 3 })

	// Gate lifts only once the order response went out.
	h.media.audio([]byte{0xFF, 0xFF})
	waitFor(t, "audio after gate", func() bool { return h.modelLeg.audioCount() == 1 })

	h.media.stop()
	h.waitDone(t)
}

func TestSession_DeferredTeardownForOrder(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.gw.upsertGate = make(chan struct{})

	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.toolCall(tools.NameManageOrder, map[string]any{
		"action": "add", "itemName": "Masala Dosa", "quantity": float64(1), "price": 11.49,
	})
	waitFor(t, "cart ack", func() bool { return h.modelLeg.batchCount() == 1 })
	h.modelLeg.toolCall(tools.NameCompleteOrder, map[string]any{
		"customerName": "Priya", "phoneNumber": "+19495550100",
	})
	time.Sleep(50 * time.Millisecond)

	// Caller hangs up mid-pipeline; the session must wait for the write.
	h.media.stop()
	select {
	case <-h.done:
		t.Fatal("session tore down while the order was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(h.gw.upsertGate)
	h.waitDone(t)

	if h.gw.orderCount() != 1 {
		t.Errorf("orders persisted = %d, want 1", h.gw.orderCount())
	}
	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallCompleted {
		t.Errorf("terminals = %v", got)
	}
}

func TestSession_FarewellTimerEndsCall(t *testing.T) {
	t.Parallel()
	h := startSession(t, func(cfg *session.Config) {
		cfg.FarewellDelay = 80 * time.Millisecond
	})
	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.toolCall(tools.NameManageOrder, map[string]any{
		"action": "add", "itemName": "Masala Dosa", "quantity": float64(1), "price": 11.49,
	})
	waitFor(t, "cart ack", func() bool { return h.modelLeg.batchCount() == 1 })
	h.modelLeg.toolCall(tools.NameCompleteOrder, map[string]any{
		"customerName": "Priya", "phoneNumber": "+19495550100",
	})
	waitFor(t, "order response", func() bool { return h.modelLeg.batchCount() == 2 })

	last := h.modelLeg.lastBatch()
	if len(last) != 1 || last[0].Response["orderNumber"] != "SB-IRV-A1B2C3" {
		t.Errorf("order response = %+v", last)
	}

	// No hang-up: the farewell timer closes the call as completed.
	h.waitDone(t)
	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallCompleted {
		t.Errorf("terminals = %v", got)
	}
}

func TestSession_TransferFiresOnce(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.events <- model.Event{
		Kind: model.EventAgentTranscript,
		Text: "Of course, one moment. " + session.TransferPhrase,
	}
	h.modelLeg.events <- model.Event{Kind: model.EventTurnComplete}
	waitFor(t, "transfer", func() bool { return h.transfer.callCount() == 1 })

	// The phrase stays in the accumulated transcript; later turns must not
	// re-fire the transfer.
	h.modelLeg.events <- model.Event{Kind: model.EventTurnComplete}
	time.Sleep(50 * time.Millisecond)
	if n := h.transfer.callCount(); n != 1 {
		t.Errorf("transfer count = %d, want 1", n)
	}

	h.media.stop()
	h.waitDone(t)
	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallEscalated {
		t.Errorf("terminals = %v, want escalated", got)
	}
}

func TestSession_TransferFailureRollsBack(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.transfer.fail = true

	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.events <- model.Event{Kind: model.EventAgentTranscript, Text: session.TransferPhrase}
	h.modelLeg.events <- model.Event{Kind: model.EventTurnComplete}
	waitFor(t, "transfer attempt", func() bool { return h.transfer.callCount() == 1 })
	time.Sleep(50 * time.Millisecond) // let the rollback land on the loop

	h.media.stop()
	h.waitDone(t)
	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallCompleted {
		t.Errorf("terminals = %v, want completed after rollback", got)
	}
}

func TestSession_RedialsBeforeGreeting(t *testing.T) {
	t.Parallel()
	second := newFakeModel()
	var mu sync.Mutex
	dials := 0
	h := startSession(t, func(cfg *session.Config) {
		cfg.GreetingDelay = 200 * time.Millisecond
		cfg.RedialDelay = time.Millisecond
		base := cfg.Dial
		cfg.Dial = func(ctx context.Context, c model.SessionConfig) (session.ModelLeg, error) {
			mu.Lock()
			defer mu.Unlock()
			dials++
			if dials == 1 {
				return base(ctx, c)
			}
			return second, nil
		}
	})

	h.media.start()
	waitFor(t, "first dial", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 1
	})

	// The leg drops before the greeting window elapses; the session must
	// dial a fresh one instead of failing the call.
	h.modelLeg.events <- model.Event{Kind: model.EventClosed}
	waitFor(t, "redial", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 2
	})
	waitFor(t, "greeting on fresh leg", func() bool { return second.greetings() == 1 })
	if n := h.modelLeg.greetings(); n != 0 {
		t.Errorf("greetings on dead leg = %d, want 0", n)
	}

	// The conversation proceeds on the replacement leg.
	second.toolCall(tools.NameSearchMenu, map[string]any{"query": "dosa"})
	waitFor(t, "tool response", func() bool { return second.batchCount() == 1 })

	h.media.stop()
	h.waitDone(t)
	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallCompleted {
		t.Errorf("terminals = %v, want completed", got)
	}
}

func TestSession_RedialExhaustionFailsCall(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	dials := 0
	h := startSession(t, func(cfg *session.Config) {
		cfg.GreetingDelay = time.Minute
		cfg.RedialDelay = time.Millisecond
		base := cfg.Dial
		cfg.Dial = func(ctx context.Context, c model.SessionConfig) (session.ModelLeg, error) {
			mu.Lock()
			defer mu.Unlock()
			dials++
			if dials == 1 {
				return base(ctx, c)
			}
			return nil, errors.New("service unavailable")
		}
	})

	h.media.start()
	waitFor(t, "first dial", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 1
	})

	h.modelLeg.events <- model.Event{Kind: model.EventClosed}
	h.waitDone(t)

	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 3 { // the initial dial plus two redials
		t.Errorf("dials = %d, want 3", got)
	}
	if terms := h.gw.terminalStatuses(); len(terms) != 1 || terms[0] != store.CallFailed {
		t.Errorf("terminals = %v, want failed", terms)
	}
	h.gw.mu.Lock()
	reason := h.gw.reasons[0]
	h.gw.mu.Unlock()
	if !strings.Contains(reason, "redial") {
		t.Errorf("failure reason = %q", reason)
	}
}

func TestSession_ModelErrorFailsCall(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.media.start()
	waitFor(t, "greeting", func() bool { return h.modelLeg.greetings() == 1 })

	h.modelLeg.events <- model.Event{Kind: model.EventError, Err: context.DeadlineExceeded}
	h.waitDone(t)

	if got := h.gw.terminalStatuses(); len(got) != 1 || got[0] != store.CallFailed {
		t.Errorf("terminals = %v, want failed", got)
	}
	h.gw.mu.Lock()
	reason := h.gw.reasons[0]
	h.gw.mu.Unlock()
	if reason == "" {
		t.Error("failure reason missing")
	}
}

func TestSession_StopBeforeStart(t *testing.T) {
	t.Parallel()
	h := startSession(t, nil)
	h.media.stop()
	h.waitDone(t)

	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	if h.gw.createCalls != 0 || len(h.gw.terminals) != 0 {
		t.Errorf("writes without start: creates=%d terminals=%v", h.gw.createCalls, h.gw.terminals)
	}
}

func TestBuildInstructions(t *testing.T) {
	t.Parallel()
	got := session.BuildInstructions("Spice Bay Irvine", menu.SpiceBay(), true)
	for _, want := range []string{"Spice Bay Irvine", "Masala Dosa", "11.49", session.TransferPhrase, "completeOrder"} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
	noTransfer := session.BuildInstructions("Spice Bay Irvine", menu.SpiceBay(), false)
	if strings.Contains(noTransfer, session.TransferPhrase) {
		t.Error("transfer guidance present while disabled")
	}
}

func TestRegistry_Order(t *testing.T) {
	t.Parallel()
	r := session.NewRegistry()
	r.Add("a", nil)
	r.Add("b", nil)
	r.Add("c", nil)
	r.Remove("b")
	r.Add("a", nil) // re-add keeps position

	if got := r.CallIDs(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("ids = %v", got)
	}
	if r.Count() != 2 {
		t.Errorf("count = %d", r.Count())
	}
	r.Remove("missing") // no-op
}
