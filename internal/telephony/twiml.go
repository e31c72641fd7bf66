package telephony

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// TwiML document returned from the call webhook. It instructs the provider
// to open a media stream back to this server, carrying the phone numbers as
// stream parameters.

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string       `xml:"url,attr"`
	Parameters []twimlParam `xml:"Parameter"`
}

type twimlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// TwiMLHandler answers the inbound-call webhook with a stream connect
// document pointing at wss://<publicHost>/stream.
type TwiMLHandler struct {
	publicHost string
	logger     *slog.Logger
}

// NewTwiMLHandler creates the webhook handler. publicHost is the externally
// reachable host name of this server, without scheme.
func NewTwiMLHandler(publicHost string, logger *slog.Logger) *TwiMLHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwiMLHandler{publicHost: publicHost, logger: logger}
}

func (h *TwiMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	caller := sanitizeNumber(r.PostFormValue("From"))
	restaurant := sanitizeNumber(r.PostFormValue("To"))
	h.logger.Info("inbound call webhook",
		"caller", caller,
		"restaurant", restaurant,
		"call_sid", r.PostFormValue("CallSid"),
	)

	doc := twimlResponse{
		Connect: twimlConnect{
			Stream: twimlStream{
				URL: fmt.Sprintf("wss://%s/stream", h.publicHost),
				Parameters: []twimlParam{
					{Name: "callerPhone", Value: caller},
					{Name: "restaurantPhone", Value: restaurant},
				},
			},
		},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, xml.Header)
	w.Write(out)
}

// sanitizeNumber keeps only the characters that appear in dialed numbers.
// Webhook form values are attacker-influenced and end up inside XML.
func sanitizeNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == '-' || r == '(' || r == ')' || r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}
