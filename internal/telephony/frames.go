package telephony

// Media stream wire messages. The telephony provider sends newline-free JSON
// text frames; every message carries an event discriminator.

const (
	eventConnected = "connected"
	eventStart     = "start"
	eventMedia     = "media"
	eventStop      = "stop"
	eventDTMF      = "dtmf"
	eventClear     = "clear"
)

type inboundFrame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Stop      *stopPayload  `json:"stop,omitempty"`
	DTMF      *dtmfPayload  `json:"dtmf,omitempty"`
}

type startPayload struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 µ-law, 8 kHz mono
}

type stopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

type dtmfPayload struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

type outboundMediaFrame struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid"`
	Media     outboundMedia `json:"media"`
}

type outboundMedia struct {
	Payload string `json:"payload"` // base64 µ-law, 8 kHz mono
}

type outboundClearFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}
