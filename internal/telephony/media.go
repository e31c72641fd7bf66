// Package telephony handles the provider-facing side of a call: the media
// stream WebSocket, the TwiML webhook that routes calls into it, and the REST
// redirect used to hand a live call to a human.
package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// EventKind labels a media stream [Event].
type EventKind int

const (
	// EventStart carries the call identity from the stream start frame.
	EventStart EventKind = iota

	// EventAudio carries one decoded caller audio chunk, µ-law 8 kHz mono.
	EventAudio

	// EventDTMF carries one keypad digit.
	EventDTMF

	// EventStop signals that the provider ended the stream.
	EventStop

	// EventError carries a fatal read error. EventClosed follows.
	EventError

	// EventClosed is the final event before the channel closes.
	EventClosed
)

// Event is one occurrence on the media leg.
type Event struct {
	Kind  EventKind
	Start StartInfo
	Audio []byte
	Digit string
	Err   error
}

// StartInfo is the call identity extracted from the start frame. Missing
// custom parameters degrade to "unknown" rather than failing the call.
type StartInfo struct {
	CallID          string
	StreamID        string
	CallerPhone     string
	RestaurantPhone string
}

// MediaLeg is the server half of one media stream connection. Read it
// through Events; write with SendMedia and SendClear. Writes after the peer
// is gone are logged and dropped, not surfaced as errors, because teardown
// races are routine when a caller hangs up.
type MediaLeg struct {
	conn   *websocket.Conn
	events chan Event
	logger *slog.Logger

	mu        sync.Mutex
	streamSid string
	closed    bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Accept upgrades an HTTP request into a media stream leg and starts its
// read loop.
func Accept(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*MediaLeg, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("telephony: accept: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	leg := &MediaLeg{
		conn:   conn,
		events: make(chan Event, 64),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go leg.readLoop()
	return leg, nil
}

// Events returns the inbound event stream.
func (l *MediaLeg) Events() <-chan Event { return l.events }

func (l *MediaLeg) readLoop() {
	defer func() {
		l.emit(Event{Kind: EventClosed})
		close(l.events)
	}()

	started := false
	for {
		_, data, err := l.conn.Read(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			l.emit(Event{Kind: EventError, Err: fmt.Errorf("telephony: read: %w", err)})
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			l.logger.Debug("discarding malformed media frame", "err", err)
			continue
		}

		switch frame.Event {
		case eventConnected:
			// handshake preamble, nothing to do

		case eventStart:
			if frame.Start == nil {
				l.logger.Warn("start frame without payload")
				continue
			}
			started = true
			l.mu.Lock()
			l.streamSid = frame.Start.StreamSid
			l.mu.Unlock()
			l.emit(Event{Kind: EventStart, Start: startInfo(frame.Start)})

		case eventMedia:
			if !started || frame.Media == nil {
				// Media may race ahead of start; without a stream identity
				// it cannot be attributed, so it is dropped.
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
			if err != nil || len(audio) == 0 {
				l.logger.Debug("discarding undecodable media payload", "err", err)
				continue
			}
			l.emit(Event{Kind: EventAudio, Audio: audio})

		case eventDTMF:
			if frame.DTMF == nil || frame.DTMF.Digit == "" {
				continue
			}
			l.emit(Event{Kind: EventDTMF, Digit: frame.DTMF.Digit})

		case eventStop:
			l.emit(Event{Kind: EventStop})
			return

		default:
			l.logger.Debug("ignoring unknown media event", "event", frame.Event)
		}
	}
}

func startInfo(p *startPayload) StartInfo {
	info := StartInfo{
		CallID:          p.CallSid,
		StreamID:        p.StreamSid,
		CallerPhone:     "unknown",
		RestaurantPhone: "unknown",
	}
	if v := p.CustomParameters["callerPhone"]; v != "" {
		info.CallerPhone = v
	}
	if v := p.CustomParameters["restaurantPhone"]; v != "" {
		info.RestaurantPhone = v
	}
	return info
}

func (l *MediaLeg) emit(ev Event) {
	select {
	case l.events <- ev:
	case <-l.ctx.Done():
	}
}

// SendMedia writes one µ-law audio chunk to the caller.
func (l *MediaLeg) SendMedia(mulaw []byte) error {
	sid, ok := l.writable()
	if !ok {
		return nil
	}
	return l.writeJSON(outboundMediaFrame{
		Event:     eventMedia,
		StreamSid: sid,
		Media:     outboundMedia{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	})
}

// SendClear tells the provider to drop any buffered outbound audio. Used on
// barge-in so the caller does not keep hearing a cancelled reply.
func (l *MediaLeg) SendClear() error {
	sid, ok := l.writable()
	if !ok {
		return nil
	}
	return l.writeJSON(outboundClearFrame{Event: eventClear, StreamSid: sid})
}

// writable reports the stream id and whether the leg accepts writes. Writes
// before start or after close are silently skipped.
func (l *MediaLeg) writable() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.streamSid == "" {
		return "", false
	}
	return l.streamSid, true
}

func (l *MediaLeg) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("telephony: marshal: %w", err)
	}
	if err := l.conn.Write(l.ctx, websocket.MessageText, data); err != nil {
		if l.ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("media write failed", "err", err)
		return nil
	}
	return nil
}

// Close tears the connection down. Idempotent.
func (l *MediaLeg) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.closeOnce.Do(func() {
		l.cancel()
		l.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return nil
}
