package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTicketingURL = "https://api.telavox.se"

// TicketingClient talks to the helpdesk REST API with a bearer token.
type TicketingClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewTicketingClient(baseURL, token string, timeout time.Duration) *TicketingClient {
	if baseURL == "" {
		baseURL = DefaultTicketingURL
	}
	return &TicketingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type createTicketRequest struct {
	VisitorID string `json:"visitorId"`
	Subject   string `json:"subject"`
}

type createTicketResponse struct {
	ID json.RawMessage `json:"id"`
}

type membersRequest struct {
	Members []string `json:"members"`
}

type noteRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

func (c *TicketingClient) CreateTicket(ctx context.Context, visitorID, subject string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/tickets", createTicketRequest{
		VisitorID: visitorID,
		Subject:   subject,
	})
	if err != nil {
		return "", err
	}

	var tr createTicketResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	id := rawID(tr.ID)
	if id == "" {
		return "", fmt.Errorf("missing id in response body=%q", string(body))
	}
	return id, nil
}

func (c *TicketingClient) AssignMembers(ctx context.Context, ticketID string, members []string) error {
	_, err := c.do(ctx, http.MethodPut, "/tickets/"+url.PathEscape(ticketID)+"/members", membersRequest{Members: members})
	return err
}

func (c *TicketingClient) AddNote(ctx context.Context, ticketID, note string) error {
	_, err := c.do(ctx, http.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/notes", noteRequest{
		Body:     note,
		Internal: true,
	})
	return err
}

func (c *TicketingClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}
	return body, nil
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
