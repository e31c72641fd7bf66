package telephony

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRESTBaseURL = "https://api.twilio.com/2010-04-01"

// TransferController redirects a live call to a human over the provider's
// REST API. A controller without credentials is valid and reports every
// transfer as unavailable, so a half-configured deployment degrades to the
// agent finishing the call itself.
type TransferController struct {
	accountSID     string
	authToken      string
	transferNumber string
	baseURL        string
	client         *http.Client
	logger         *slog.Logger
}

// TransferOption configures a TransferController.
type TransferOption func(*TransferController)

// WithRESTBaseURL overrides the REST endpoint. Used in tests.
func WithRESTBaseURL(u string) TransferOption {
	return func(c *TransferController) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) TransferOption {
	return func(c *TransferController) {
		if client != nil {
			c.client = client
		}
	}
}

// NewTransferController creates a controller. Empty credentials or an empty
// transfer number disable transfers.
func NewTransferController(accountSID, authToken, transferNumber string, logger *slog.Logger, opts ...TransferOption) *TransferController {
	if logger == nil {
		logger = slog.Default()
	}
	c := &TransferController{
		accountSID:     accountSID,
		authToken:      authToken,
		transferNumber: transferNumber,
		baseURL:        defaultRESTBaseURL,
		client:         &http.Client{Timeout: 10 * time.Second},
		logger:         logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enabled reports whether the controller can attempt transfers.
func (c *TransferController) Enabled() bool {
	return c.accountSID != "" && c.authToken != "" && c.transferNumber != ""
}

// Transfer redirects the call identified by callID to the configured human
// number. The media stream drops as a side effect of the redirect.
func (c *TransferController) Transfer(ctx context.Context, callID string) error {
	if !c.Enabled() {
		return fmt.Errorf("telephony: transfer not configured")
	}

	twiml := fmt.Sprintf("<Response><Dial>%s</Dial></Response>", c.transferNumber)
	form := url.Values{"Twiml": []string{twiml}}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telephony: transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telephony: transfer: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info("call redirected to human", "call_id", callID)
	return nil
}
