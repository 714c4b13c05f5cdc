package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 15 * time.Second

// Client is a minimal Wasender API client for sending text messages.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a client for the given Wasender endpoint.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendText posts one plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	body, err := json.Marshal(sendMessageRequest{To: to, Text: text})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send message: unexpected status %s", resp.Status)
	}
	return nil
}

// Close releases pooled transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
