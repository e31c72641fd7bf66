package telephony_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/spicebay/voicegate/internal/telephony"
)

func postWebhook(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/twiml", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTwiMLHandler_ConnectsStream(t *testing.T) {
	t.Parallel()
	h := telephony.NewTwiMLHandler("gateway.spicebay.example", nil)

	rec := postWebhook(t, h, url.Values{
		"From":    {"+19495550100"},
		"To":      {"+19495550199"},
		"CallSid": {"CA001"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `url="wss://gateway.spicebay.example/stream"`) {
		t.Errorf("body missing stream url: %s", body)
	}
	if !strings.Contains(body, `name="callerPhone" value="+19495550100"`) {
		t.Errorf("body missing caller parameter: %s", body)
	}
	if !strings.Contains(body, `name="restaurantPhone" value="+19495550199"`) {
		t.Errorf("body missing restaurant parameter: %s", body)
	}
}

func TestTwiMLHandler_SanitizesNumbers(t *testing.T) {
	t.Parallel()
	h := telephony.NewTwiMLHandler("host.example", nil)

	rec := postWebhook(t, h, url.Values{
		"From": {`+1"/><Evil>949555`},
		"To":   {"+1 (949) 555-0199"},
	})

	body := rec.Body.String()
	if strings.Contains(body, "Evil") {
		t.Errorf("injection survived sanitization: %s", body)
	}
	if !strings.Contains(body, `value="+1949555"`) {
		t.Errorf("sanitized caller missing: %s", body)
	}
	if !strings.Contains(body, `value="+1 (949) 555-0199"`) {
		t.Errorf("formatted number mangled: %s", body)
	}
}

func TestTwiMLHandler_RejectsGet(t *testing.T) {
	t.Parallel()
	h := telephony.NewTwiMLHandler("host.example", nil)
	req := httptest.NewRequest(http.MethodGet, "/twiml", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
