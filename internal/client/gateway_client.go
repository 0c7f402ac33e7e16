package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

const DefaultGatewayURL = "https://api.46elks.com/a1/sms"

// GatewaySendError reports a failed outbound SMS. Details carries the
// provider's decoded JSON error body when there is one, otherwise its text.
type GatewaySendError struct {
	StatusCode int
	Details    any
	Err        error
}

func (e *GatewaySendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway send failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway send failed: status=%d details=%v", e.StatusCode, e.Details)
}

func (e *GatewaySendError) Unwrap() error {
	return e.Err
}

type SendResult struct {
	ProviderID string
	SentAt     time.Time
}

type GatewayClient struct {
	url      string
	sender   string
	username string
	password string
	client   *http.Client
	now      func() time.Time
}

func NewGatewayClient(url, sender, username, password string, timeout time.Duration) *GatewayClient {
	if url == "" {
		url = DefaultGatewayURL
	}
	if sender == "" {
		sender = "Inbox"
	}
	return &GatewayClient{
		url:      url,
		sender:   sender,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

type sendResponse struct {
	ID string `json:"id"`
}

func (c *GatewayClient) Send(ctx context.Context, to, message string) (SendResult, error) {
	form := url.Values{}
	form.Set("from", c.sender)
	form.Set("to", to)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, &GatewaySendError{Err: err, Details: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, &GatewaySendError{Err: err, Details: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SendResult{}, &GatewaySendError{
			StatusCode: resp.StatusCode,
			Details:    providerDetails(body),
		}
	}

	now := c.now()
	var sr sendResponse
	_ = json.Unmarshal(body, &sr)
	if sr.ID == "" {
		sr.ID = model.FallbackID(now)
	}

	return SendResult{ProviderID: sr.ID, SentAt: now}, nil
}

func providerDetails(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(body))
}
