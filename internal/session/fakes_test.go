package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spicebay/voicegate/internal/model"
	"github.com/spicebay/voicegate/internal/store"
	"github.com/spicebay/voicegate/internal/telephony"
	"github.com/spicebay/voicegate/internal/tools"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// ── media leg fake ────────────────────────────────────────────────────────────

type fakeMedia struct {
	events chan telephony.Event

	mu     sync.Mutex
	sent   [][]byte
	clears int
	closed bool
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{events: make(chan telephony.Event, 64)}
}

func (f *fakeMedia) Events() <-chan telephony.Event { return f.events }

func (f *fakeMedia) SendMedia(mulaw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(mulaw))
	copy(cp, mulaw)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeMedia) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMedia) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMedia) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func (f *fakeMedia) start() {
	f.events <- telephony.Event{Kind: telephony.EventStart, Start: telephony.StartInfo{
		CallID:          "CA001",
		StreamID:        "MZ001",
		CallerPhone:     "+19495550100",
		RestaurantPhone: "+19495550199",
	}}
}

func (f *fakeMedia) stop() {
	f.events <- telephony.Event{Kind: telephony.EventStop}
}

func (f *fakeMedia) audio(b []byte) {
	f.events <- telephony.Event{Kind: telephony.EventAudio, Audio: b}
}

// ── model leg fake ────────────────────────────────────────────────────────────

type fakeModel struct {
	events chan model.Event

	mu        sync.Mutex
	audio     [][]byte
	userTurns []string
	batches   [][]tools.Result
	closed    bool
}

func newFakeModel() *fakeModel {
	return &fakeModel{events: make(chan model.Event, 64)}
}

func (f *fakeModel) Events() <-chan model.Event { return f.events }

func (f *fakeModel) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.audio = append(f.audio, cp)
	return nil
}

func (f *fakeModel) SendUserTurn(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userTurns = append(f.userTurns, text)
	return nil
}

func (f *fakeModel) SendToolResponses(results []tools.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]tools.Result, len(results))
	copy(batch, results)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeModel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeModel) audioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

func (f *fakeModel) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeModel) greetings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.userTurns)
}

func (f *fakeModel) lastBatch() []tools.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *fakeModel) toolCall(name string, args map[string]any) {
	f.events <- model.Event{Kind: model.EventToolCalls, Calls: []tools.Call{
		{ID: "fc-" + name, Name: name, Args: args},
	}}
}

// ── gateway fake ──────────────────────────────────────────────────────────────

type fakeGateway struct {
	mu          sync.Mutex
	createCalls int
	terminals   []store.CallStatus
	reasons     []string
	orders      []store.Order
	items       map[string][]store.OrderItem

	// when set, UpsertCustomer blocks until the channel is closed
	upsertGate chan struct{}
}

func newGateway() *fakeGateway {
	return &fakeGateway{items: make(map[string][]store.OrderItem)}
}

func (g *fakeGateway) CreateCall(ctx context.Context, callID, streamID, caller, restaurant string) (store.CallRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	return store.CallRecord{
		ID:        "row-1",
		CallID:    callID,
		StreamID:  streamID,
		Status:    store.CallInProgress,
		StartedAt: time.Now(),
	}, nil
}

func (g *fakeGateway) terminal(status store.CallStatus, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminals = append(g.terminals, status)
	g.reasons = append(g.reasons, reason)
	return nil
}

func (g *fakeGateway) CompleteCall(ctx context.Context, callID string, startedAt time.Time) error {
	return g.terminal(store.CallCompleted, "")
}

func (g *fakeGateway) EscalateCall(ctx context.Context, callID string) error {
	return g.terminal(store.CallEscalated, "")
}

func (g *fakeGateway) FailCall(ctx context.Context, callID, reason string) error {
	return g.terminal(store.CallFailed, reason)
}

func (g *fakeGateway) UpsertCustomer(ctx context.Context, phone, name string) (string, error) {
	g.mu.Lock()
	gate := g.upsertGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "cust-1", nil
}

func (g *fakeGateway) InsertOrder(ctx context.Context, o store.Order) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, o)
	return "a1b2c3d4-0000-0000-0000-000000000000", nil
}

func (g *fakeGateway) InsertOrderItems(ctx context.Context, orderID string, items []store.OrderItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items[orderID] = append(g.items[orderID], items...)
	return nil
}

func (g *fakeGateway) terminalStatuses() []store.CallStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]store.CallStatus, len(g.terminals))
	copy(out, g.terminals)
	return out
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

var _ store.Gateway = (*fakeGateway)(nil)

// ── transfer fake ─────────────────────────────────────────────────────────────

type fakeTransfer struct {
	mu      sync.Mutex
	enabled bool
	fail    bool
	calls   []string
}

func (f *fakeTransfer) Enabled() bool { return f.enabled }

func (f *fakeTransfer) Transfer(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, callID)
	if f.fail {
		return errors.New("redirect rejected")
	}
	return nil
}

func (f *fakeTransfer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
