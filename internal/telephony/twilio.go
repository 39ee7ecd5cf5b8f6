package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-agent-platform/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioProvider places calls through the Twilio REST API using a plain
// HTTP client rather than the vendor SDK.
type TwilioProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

func NewTwilioProvider(cfg config.TwilioConfig) *TwilioProvider {
	return &TwilioProvider{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

type twilioCallResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (p *TwilioProvider) PlaceCall(ctx context.Context, to, from, answerURL, statusURL string) (PlacedCall, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Url", answerURL)
	form.Set("StatusCallback", statusURL)
	form.Set("StatusCallbackMethod", "POST")
	for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
		form.Add("StatusCallbackEvent", ev)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return PlacedCall{}, fmt.Errorf("build call request: %w", err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return PlacedCall{}, fmt.Errorf("place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PlacedCall{}, fmt.Errorf("read call response: %w", err)
	}

	var parsed twilioCallResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return PlacedCall{}, fmt.Errorf("decode call response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PlacedCall{}, fmt.Errorf("place call failed (status %d, code %d): %s", resp.StatusCode, parsed.Code, parsed.Message)
	}
	if parsed.SID == "" {
		return PlacedCall{}, fmt.Errorf("place call response missing sid")
	}
	return PlacedCall{ProviderCallSID: parsed.SID, Status: parsed.Status}, nil
}

// HealthCheck fetches the account resource to verify credentials.
func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("twilio account check failed: status %d", resp.StatusCode)
	}
	return nil
}
